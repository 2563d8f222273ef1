package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeUUID verifies that NormalizeUUID correctly handles various UUID formats
func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit short form", input: "180d", expected: "180d"},
		{name: "16-bit upper case", input: "180D", expected: "180d"},
		{name: "16-bit with 0x prefix", input: "0x180d", expected: "180d"},
		{name: "Full SIG UUID with dashes", input: "0000180d-0000-1000-8000-00805f9b34fb", expected: "180d"},
		{name: "Full SIG UUID without dashes", input: "0000180d00001000800000805f9b34fb", expected: "180d"},
		{name: "Acare data service long form", input: "0000aaaa-0000-1000-8000-00805f9b34fb", expected: "aaaa"},
		{name: "FORA custom (not SIG base)", input: "00001523-1212-efde-1523-785feabcd123", expected: "000015231212efde1523785feabcd123"},
		{name: "Nordic UART", input: "6e400001-b5a3-f393-e0a9-e50e24dcca9e", expected: "6e400001b5a3f393e0a9e50e24dcca9e"},
		{name: "UUID with braces", input: "{0000180d-0000-1000-8000-00805f9b34fb}", expected: "180d"},
		{name: "32-bit SIG alias", input: "0000180f", expected: "180f"},
		{name: "not hex", input: "heart", expected: ""},
		{name: "wrong length", input: "180", expected: ""},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestExpandUUID(t *testing.T) {
	assert.Equal(t, "0000180d-0000-1000-8000-00805f9b34fb", ExpandUUID("0x180D"))
	assert.Equal(t, "00001523-1212-efde-1523-785feabcd123", ExpandUUID("000015231212EFDE1523785FEABCD123"))
	assert.Equal(t, "", ExpandUUID("zz"))
}

// TestLookupServiceWithFullUUID verifies that LookupService works with both short and full UUIDs
func TestLookupServiceWithFullUUID(t *testing.T) {
	tests := []struct {
		name     string
		uuid     string
		expected string
	}{
		{name: "Heart Rate - short form", uuid: "180d", expected: "Heart Rate"},
		{name: "Heart Rate - with 0x prefix", uuid: "0x180d", expected: "Heart Rate"},
		{name: "Heart Rate - full SIG UUID", uuid: "0000180d-0000-1000-8000-00805f9b34fb", expected: "Heart Rate"},
		{name: "Pulse Oximeter", uuid: "1822", expected: "Pulse Oximeter"},
		{name: "FORA custom", uuid: "00001523-1212-efde-1523-785feabcd123", expected: "FORA Custom"},
		{name: "unknown", uuid: "1234", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LookupService(tt.uuid))
		})
	}
}

func TestLookupCharacteristic(t *testing.T) {
	assert.Equal(t, "Heart Rate Measurement", LookupCharacteristic("2A37"))
	assert.Equal(t, "PLX Spot-Check Measurement", LookupCharacteristic("00002a5e-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "Acare Secondary Control", LookupCharacteristic("f7bf3564-fb6d-4e53-88a4-5e37e0326063"))
	assert.Equal(t, "", LookupCharacteristic("ffff"))
}
