package device

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Platform and operation errors
var (
	// ErrBluetoothUnavailable is the hard precondition failure: the host has no usable adapter.
	ErrBluetoothUnavailable = errors.New("bluetooth is not available on this platform")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrNotSupported         = errors.New("not supported")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrTimeout              = errors.New("timeout")
	// ErrUnsupported is returned when a characteristic lacks the property an operation needs.
	ErrUnsupported = errors.New("unsupported")
)

// User-facing messages for the normalized error classes.
const (
	MsgDeviceNotFound   = "no matching Bluetooth device found"
	MsgNotSupported     = "this device or platform does not support the requested Bluetooth feature"
	MsgPermissionDenied = "Bluetooth permission denied, check that Bluetooth access is granted"
	MsgUnknown          = "unknown error"
)

// NormalizeError maps known backend error strings to structured error types.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	// Already classified
	for _, known := range []error{
		ErrBluetoothUnavailable, ErrDeviceNotFound, ErrNotSupported, ErrPermissionDenied,
		ErrNotConnected, ErrAlreadyConnected, ErrNotInitialized,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "is Bluetooth turned on"),
		containsIgnoreCase(msg, "no bluetooth adapter"),
		containsIgnoreCase(msg, "can't init hci"):
		return fmt.Errorf("%w: %v", ErrBluetoothUnavailable, err)
	case containsIgnoreCase(msg, "NotFoundError"),
		containsIgnoreCase(msg, "no devices found"),
		containsIgnoreCase(msg, "device not found"):
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	case containsIgnoreCase(msg, "NotSupportedError"),
		containsIgnoreCase(msg, "not supported"):
		return fmt.Errorf("%w: %v", ErrNotSupported, err)
	case containsIgnoreCase(msg, "SecurityError"),
		containsIgnoreCase(msg, "permission denied"),
		containsIgnoreCase(msg, "not authorized"),
		containsIgnoreCase(msg, "unauthorized"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// UserMessage renders err as a short human-readable message. Device-not-found,
// not-supported and permission errors get fixed texts; anything else passes its
// message through.
func UserMessage(err error) string {
	if err == nil {
		return MsgUnknown
	}
	err = NormalizeError(err)
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		return MsgDeviceNotFound
	case errors.Is(err, ErrNotSupported):
		return MsgNotSupported
	case errors.Is(err, ErrPermissionDenied):
		return MsgPermissionDenied
	default:
		return err.Error()
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
