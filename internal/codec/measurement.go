package codec

import (
	"encoding/hex"
	"strings"
)

// Kind tags a Measurement variant.
type Kind int

const (
	KindHeartRate Kind = iota + 1
	KindPulseOximeter
	KindVendor
)

func (k Kind) String() string {
	switch k {
	case KindHeartRate:
		return "heart_rate"
	case KindPulseOximeter:
		return "pulse_oximeter"
	case KindVendor:
		return "vendor"
	default:
		return "unknown"
	}
}

// Measurement is the tagged union of decoded frames.
type Measurement interface {
	Kind() Kind
	RawBytes() []byte
}

// HeartRate is a decoded Heart Rate Measurement (0x2A37).
type HeartRate struct {
	HeartRate       *int      `json:"heartRate"`
	ContactDetected bool      `json:"contactDetected"`
	EnergyExpended  *int      `json:"energyExpended,omitempty"`
	RRIntervals     []float64 `json:"rrIntervals,omitempty"` // seconds
	Raw             []byte    `json:"-"`
}

func (HeartRate) Kind() Kind          { return KindHeartRate }
func (m HeartRate) RawBytes() []byte { return m.Raw }

// PulseOximeter is a decoded PLX continuous or spot-check measurement.
type PulseOximeter struct {
	SpO2      *float64 `json:"spo2"`
	HeartRate *float64 `json:"heartRate"`
	Raw       []byte   `json:"-"`
}

func (PulseOximeter) Kind() Kind          { return KindPulseOximeter }
func (m PulseOximeter) RawBytes() []byte { return m.Raw }

// VendorCustom is a frame decoded by the vendor heuristics.
type VendorCustom struct {
	SpO2      *int   `json:"spo2"`
	HeartRate *int   `json:"heartRate"`
	Layout    string `json:"layout,omitempty"` // empty when no layout matched
	RawHex    string `json:"rawHex"`
	Raw       []byte `json:"-"`
}

func (VendorCustom) Kind() Kind          { return KindVendor }
func (m VendorCustom) RawBytes() []byte { return m.Raw }

// Matched reports whether a layout produced values.
func (m VendorCustom) Matched() bool {
	return m.Layout != ""
}

// HexString renders b as space separated lowercase hex pairs ("0a ff 62").
func HexString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	s := hex.EncodeToString(b)
	var sb strings.Builder
	sb.Grow(len(s) + len(b) - 1)
	for i := 0; i < len(s); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s[i : i+2])
	}
	return sb.String()
}

func intPtr(v int) *int { return &v }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
