package codec

// Physiologically plausible ranges used to accept a layout.
const (
	SpO2Min      = 70
	SpO2Max      = 100
	HeartRateMin = 30
	HeartRateMax = 250
)

// Layout is one candidate interpretation of a vendor frame.
type Layout struct {
	Name string
	// Len is the exact frame length required; zero means any length >= MinLen.
	Len    int
	MinLen int
	// Extract returns candidate SpO2 and heart rate values.
	Extract func(b []byte) (spo2, hr int)
}

func (l Layout) fits(b []byte) bool {
	if l.Len > 0 {
		return len(b) == l.Len
	}
	return len(b) >= l.MinLen
}

var (
	// BerryMed 5-byte packet: [status, pleth, bargraph|hr bit7 in bit6, hr low 7 bits, spo2].
	layoutBerryMed = Layout{
		Name: "berrymed-5",
		Len:  5,
		Extract: func(b []byte) (int, int) {
			return int(b[4]), int(b[3]) | int(b[2]&0x40)<<1
		},
	}
	layoutHeaderSpO2HR = Layout{
		Name:    "header-spo2-hr",
		MinLen:  3,
		Extract: func(b []byte) (int, int) { return int(b[1]), int(b[2]) },
	}
	layoutHeaderHRSpO2 = Layout{
		Name:    "header-hr-spo2",
		MinLen:  3,
		Extract: func(b []byte) (int, int) { return int(b[2]), int(b[1]) },
	}
	layoutSpO2HR = Layout{
		Name:    "spo2-hr",
		MinLen:  2,
		Extract: func(b []byte) (int, int) { return int(b[0]), int(b[1]) },
	}
	layoutHRSpO2 = Layout{
		Name:    "hr-spo2",
		MinLen:  2,
		Extract: func(b []byte) (int, int) { return int(b[1]), int(b[0]) },
	}
)

// VendorLayouts is the priority order used for Acare-style oximeter clones.
var VendorLayouts = []Layout{layoutBerryMed, layoutHeaderSpO2HR, layoutHeaderHRSpO2}

// ForaLayouts is the priority order used for the FORA custom characteristic.
var ForaLayouts = []Layout{layoutSpO2HR, layoutHRSpO2}

// ValidSpO2 reports whether v is a plausible oxygen saturation.
func ValidSpO2(v int) bool { return v >= SpO2Min && v <= SpO2Max }

// ValidHeartRate reports whether v is a plausible pulse rate.
func ValidHeartRate(v int) bool { return v >= HeartRateMin && v <= HeartRateMax }

// DecodeLayouts tries each layout in order and returns the first whose SpO2 and heart
// rate both validate. When none does, both fields are nil and RawHex keeps the input.
func DecodeLayouts(b []byte, layouts []Layout) VendorCustom {
	m := VendorCustom{Raw: clone(b), RawHex: HexString(b)}
	for _, l := range layouts {
		if !l.fits(b) {
			continue
		}
		spo2, hr := l.Extract(b)
		if ValidSpO2(spo2) && ValidHeartRate(hr) {
			m.SpO2 = intPtr(spo2)
			m.HeartRate = intPtr(hr)
			m.Layout = l.Name
			return m
		}
	}
	return m
}

// ParseVendor decodes an Acare-style data notification.
func ParseVendor(b []byte) VendorCustom {
	return DecodeLayouts(b, VendorLayouts)
}

// ParseForaCustom decodes a FORA custom characteristic value.
func ParseForaCustom(b []byte) VendorCustom {
	return DecodeLayouts(b, ForaLayouts)
}
