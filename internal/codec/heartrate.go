package codec

import "encoding/binary"

// Heart Rate Measurement flag bits.
const (
	hrFlagUint16      = 0x01
	hrFlagContact     = 0x02
	hrFlagEnergy      = 0x08
	hrFlagRRIntervals = 0x10
)

// ParseHeartRate decodes a Heart Rate Measurement frame.
//
// Fields are read in order: heart rate (8 or 16 bit), energy expended (uint16) and
// RR intervals (uint16, 1/1024 s). Decoding stops at the first field that does not fit;
// trailing partial data is dropped.
func ParseHeartRate(b []byte) HeartRate {
	m := HeartRate{Raw: clone(b)}
	if len(b) == 0 {
		return m
	}

	flags := b[0]
	m.ContactDetected = flags&hrFlagContact != 0
	off := 1

	if flags&hrFlagUint16 != 0 {
		if off+2 > len(b) {
			return m
		}
		m.HeartRate = intPtr(int(binary.LittleEndian.Uint16(b[off:])))
		off += 2
	} else {
		if off+1 > len(b) {
			return m
		}
		m.HeartRate = intPtr(int(b[off]))
		off++
	}

	if flags&hrFlagEnergy != 0 && off+2 <= len(b) {
		m.EnergyExpended = intPtr(int(binary.LittleEndian.Uint16(b[off:])))
		off += 2
	}

	if flags&hrFlagRRIntervals != 0 {
		for off+2 <= len(b) {
			m.RRIntervals = append(m.RRIntervals, float64(binary.LittleEndian.Uint16(b[off:]))/1024)
			off += 2
		}
	}
	return m
}
