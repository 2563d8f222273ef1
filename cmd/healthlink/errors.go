package main

import (
	"errors"
	"fmt"

	"github.com/srg/healthlink/internal/device"
	"github.com/srg/healthlink/internal/foraapi"
	"github.com/srg/healthlink/internal/proxy"
)

// Command-level errors
var (
	// ErrNoHealthProfile means the connected peripheral exposes nothing healthlink can decode.
	ErrNoHealthProfile = errors.New("no supported health characteristic found")

	// ErrConnectionLost indicates the BLE connection dropped while monitoring.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError renders err for the terminal.
func FormatUserError(err error) string {
	var (
		rc *foraapi.ReturnCodeError
		he *foraapi.HTTPError
		ue *proxy.UpstreamError
	)
	switch {
	case err == nil:
		return device.UserMessage(nil)
	case errors.Is(err, ErrNoHealthProfile):
		return "the device does not expose a supported heart rate, pulse oximeter or vendor characteristic; run 'healthlink explore' to inspect it"
	case errors.Is(err, device.ErrBluetoothUnavailable):
		return "Bluetooth is not available on this system; check that an adapter is present and powered on"
	case foraapi.IsUnauthorized(err):
		return "FORA rejected the token; sign in again with 'healthlink fora login'"
	case errors.As(err, &rc):
		return rc.Error()
	case errors.As(err, &he):
		return fmt.Sprintf("FORA gateway answered %d", he.Status)
	case errors.As(err, &ue):
		return ue.Error()
	case errors.Is(err, proxy.ErrCircuitOpen):
		return "FORA API is temporarily unavailable, try again later"
	default:
		return device.UserMessage(err)
	}
}
