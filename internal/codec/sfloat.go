package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SFloatNaN is the reserved "no value" SFLOAT encoding.
const SFloatNaN uint16 = 0x07FF

// SFLOAT mantissa and exponent ranges.
const (
	SFloatMantissaMin = -2048
	SFloatMantissaMax = 2047
	SFloatExponentMin = -8
	SFloatExponentMax = 7
)

// DecodeSFloat reads the little-endian IEEE-11073 16-bit SFLOAT at off.
// Returns false when fewer than two bytes remain or the value is the 0x07FF sentinel.
func DecodeSFloat(b []byte, off int) (float64, bool) {
	if off < 0 || off+2 > len(b) {
		return 0, false
	}
	return SFloatValue(binary.LittleEndian.Uint16(b[off:]))
}

// SFloatValue decodes a raw SFLOAT word.
func SFloatValue(raw uint16) (float64, bool) {
	if raw == SFloatNaN {
		return 0, false
	}
	mantissa := int(raw & 0x0FFF)
	if mantissa >= 0x0800 {
		mantissa -= 0x1000
	}
	exponent := int(raw >> 12)
	if exponent >= 0x0008 {
		exponent -= 0x0010
	}
	return float64(mantissa) * math.Pow10(exponent), true
}

// EncodeSFloat packs mantissa × 10^exponent into a raw SFLOAT word.
func EncodeSFloat(mantissa, exponent int) (uint16, error) {
	if mantissa < SFloatMantissaMin || mantissa > SFloatMantissaMax {
		return 0, fmt.Errorf("sfloat: mantissa %d out of range [%d,%d]", mantissa, SFloatMantissaMin, SFloatMantissaMax)
	}
	if exponent < SFloatExponentMin || exponent > SFloatExponentMax {
		return 0, fmt.Errorf("sfloat: exponent %d out of range [%d,%d]", exponent, SFloatExponentMin, SFloatExponentMax)
	}
	raw := uint16(exponent&0x0F)<<12 | uint16(mantissa&0x0FFF)
	if raw == SFloatNaN {
		return 0, fmt.Errorf("sfloat: %d×10^%d collides with the reserved NaN encoding", mantissa, exponent)
	}
	return raw, nil
}

// AppendSFloat appends the little-endian encoding of mantissa × 10^exponent.
func AppendSFloat(dst []byte, mantissa, exponent int) ([]byte, error) {
	raw, err := EncodeSFloat(mantissa, exponent)
	if err != nil {
		return dst, err
	}
	return binary.LittleEndian.AppendUint16(dst, raw), nil
}
