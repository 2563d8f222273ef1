package goble

import (
	"fmt"

	"github.com/srg/healthlink/internal/device"
)

// NormalizeError maps go-ble specific failures onto the device error classes and
// falls back to device.NormalizeError for everything else.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrBluetoothUnavailable, err)
	case msg == "central manager has invalid state: have=3 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrPermissionDenied, err)
	default:
		return device.NormalizeError(err)
	}
}
