package codec

import "math"

// ParsePulseOximeter decodes a PLX continuous (0x2A5F) or spot-check (0x2A5E) frame.
// The first two bytes are flags; SpO2 and pulse rate are SFLOATs at offsets 2 and 4.
// Frames shorter than four bytes yield no values.
func ParsePulseOximeter(b []byte) PulseOximeter {
	m := PulseOximeter{Raw: clone(b)}
	if len(b) < 4 {
		return m
	}
	m.SpO2 = finite(DecodeSFloat(b, 2))
	m.HeartRate = finite(DecodeSFloat(b, 4))
	return m
}

func finite(v float64, ok bool) *float64 {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
