// Package device defines the Bluetooth Low Energy abstractions the health layer is
// written against: a platform adapter that scans, a device handle that owns a GATT
// connection, and the service/characteristic hierarchy behind it.
//
// Backends live in sub-packages (see go-ble). Tests use the in-memory peripheral from
// internal/testutils.
package device
