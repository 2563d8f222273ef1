// Package profile knows which GATT services and characteristics carry health
// measurements and locates them on a connected peripheral.
package profile

import "github.com/srg/healthlink/internal/device"

// Standard SIG services and characteristics.
const (
	HeartRateService     = "180d"
	HeartRateMeasurement = "2a37"

	PulseOximeterService = "1822"
	PLXContinuous        = "2a5f"
	PLXSpotCheck         = "2a5e"

	BatteryService = "180f"
	BatteryLevel   = "2a19"

	DeviceInformationService = "180a"
)

// Vendor services and characteristics.
const (
	// FORA/TaiDoc TD-8255 and related meters.
	ForaService        = "00001523-1212-efde-1523-785feabcd123"
	ForaCharacteristic = "00001524-1212-efde-1523-785feabcd123"

	// Acare AE-K1 oximeter: data notifications on aaac, commands on aaab.
	AcareService          = "0000aaaa-0000-1000-8000-00805f9b34fb"
	AcareData             = "0000aaac-0000-1000-8000-00805f9b34fb"
	AcareCommand          = "0000aaab-0000-1000-8000-00805f9b34fb"
	AcareSecondaryService = "1d14d6ee-fd63-4fa1-bfa4-8f47b42119f0"
	AcareSecondaryControl = "f7bf3564-fb6d-4e53-88a4-5e37e0326063"

	MicrochipUARTService = "49535343-fe7d-4ae5-8fa9-9fafd205e455"
	NordicUARTService    = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
)

// commonCustomServices are vendor services seen on low-cost health devices.
var commonCustomServices = []string{
	"ffe0", "ffe1", "ffe5",
	"fff0", "fff1", "fff2", "fff3", "fff4", "fff5", "fff6", "fff7",
	"fff8", "fff9", "fffa", "fffb", "fffc", "fffd", "fffe", "ffff",
	"1523", "1524",
	DeviceInformationService, BatteryService,
	ForaService, ForaCharacteristic,
	"0000fff0-0000-1000-8000-00805f9b34fb",
	"0000ffe0-0000-1000-8000-00805f9b34fb",
	"0000ffe1-0000-1000-8000-00805f9b34fb",
	"0000ffe5-0000-1000-8000-00805f9b34fb",
	"0000fff1-0000-1000-8000-00805f9b34fb",
	"0000fff2-0000-1000-8000-00805f9b34fb",
	"0000fff3-0000-1000-8000-00805f9b34fb",
	"0000fff4-0000-1000-8000-00805f9b34fb",
	"0000fff5-0000-1000-8000-00805f9b34fb",
	"0000fff6-0000-1000-8000-00805f9b34fb",
	"0000fff7-0000-1000-8000-00805f9b34fb",
	"0000fff8-0000-1000-8000-00805f9b34fb",
	"0000fff9-0000-1000-8000-00805f9b34fb",
	"0000180a-0000-1000-8000-00805f9b34fb",
	AcareService,
	AcareSecondaryService,
	MicrochipUARTService,
	NordicUARTService,
}

// OptionalServices lists every service the health layer may access after connecting:
// heart rate, pulse oximeter, battery and the common vendor services. UUIDs are
// normalized and de-duplicated, first occurrence wins.
func OptionalServices() []string {
	all := append([]string{HeartRateService, PulseOximeterService, BatteryService}, commonCustomServices...)
	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, u := range device.NormalizeUUIDs(all) {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
