package device

import "strings"

// NormalizeAddress folds a peripheral address (MAC or CoreBluetooth UUID) to the
// lowercase form used as a lookup key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// SameAddress reports whether two addresses denote the same peripheral.
func SameAddress(a, b string) bool {
	na := NormalizeAddress(a)
	return na != "" && na == NormalizeAddress(b)
}
