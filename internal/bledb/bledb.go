// Package bledb holds UUID normalisation and the small name database used for
// health peripherals and the vendor-custom services they commonly expose.
package bledb

import "strings"

// sigBaseSuffix is the Bluetooth SIG base UUID tail (0000xxxx-0000-1000-8000-00805f9b34fb)
// in normalized form.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format: lowercase, no dashes,
// no braces, no 0x prefix. Full 128-bit UUIDs built on the SIG base collapse to their
// 16-bit short form ("0000180d-0000-1000-8000-00805f9b34fb" -> "180d").
// Returns an empty string for input that is not hex.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "{")
	u = strings.TrimSuffix(u, "}")
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		u = u[4:8]
	}

	for _, r := range u {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return ""
		}
	}
	switch len(u) {
	case 4, 32:
		return u
	case 8:
		// 32-bit SIG alias
		if strings.HasPrefix(u, "0000") {
			return u[4:]
		}
		return u
	default:
		return ""
	}
}

// NormalizeUUIDs normalizes a slice of UUID strings, keeping order.
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}

// ExpandUUID returns the canonical dashed 128-bit form of a UUID.
// 16-bit forms are placed on the SIG base. Returns "" for invalid input.
func ExpandUUID(uuid string) string {
	u := NormalizeUUID(uuid)
	switch len(u) {
	case 4:
		u = "0000" + u + sigBaseSuffix
	case 32:
	default:
		return ""
	}
	return u[0:8] + "-" + u[8:12] + "-" + u[12:16] + "-" + u[16:20] + "-" + u[20:32]
}

var services = map[string]string{
	"180d":                             "Heart Rate",
	"1822":                             "Pulse Oximeter",
	"180f":                             "Battery Service",
	"180a":                             "Device Information",
	"1800":                             "Generic Access",
	"1801":                             "Generic Attribute",
	"ffe0":                             "Vendor Serial (FFE0)",
	"fff0":                             "Vendor Health (FFF0)",
	"000015231212efde1523785feabcd123": "FORA Custom",
	"aaaa":                             "Acare Data",
	"1d14d6eefd634fa1bfa48f47b42119f0": "Acare Secondary",
	"49535343fe7d4ae58fa99fafd205e455": "Microchip Transparent UART",
	"6e400001b5a3f393e0a9e50e24dcca9e": "Nordic UART",
}

var characteristics = map[string]string{
	"2a37":                             "Heart Rate Measurement",
	"2a38":                             "Body Sensor Location",
	"2a39":                             "Heart Rate Control Point",
	"2a5e":                             "PLX Spot-Check Measurement",
	"2a5f":                             "PLX Continuous Measurement",
	"2a60":                             "PLX Features",
	"2a19":                             "Battery Level",
	"2a29":                             "Manufacturer Name String",
	"2a24":                             "Model Number String",
	"2a25":                             "Serial Number String",
	"2a26":                             "Firmware Revision String",
	"2a00":                             "Device Name",
	"000015241212efde1523785feabcd123": "FORA Measurement",
	"aaac":                             "Acare Data Notify",
	"aaab":                             "Acare Command",
	"f7bf3564fb6d4e5388a45e37e0326063": "Acare Secondary Control",
	"6e400002b5a3f393e0a9e50e24dcca9e": "Nordic UART RX",
	"6e400003b5a3f393e0a9e50e24dcca9e": "Nordic UART TX",
}

// LookupService returns the known name for a service UUID, or "" if unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the known name for a characteristic UUID, or "" if unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}
