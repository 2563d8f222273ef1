package device

import (
	"context"
	"time"
)

// Advertisement is a single scan result.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Services() []string
	TxPowerLevel() int
	Connectable() bool
	RSSI() int
	Addr() string
}

// ScanningDevice represents a BLE adapter capable of scanning for advertisements
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Adapter is the host Bluetooth stack.
type Adapter interface {
	ScanningDevice

	// Device returns a handle for the peripheral at address. No radio traffic happens
	// until Device.Connect is called.
	Device(address, name string) Device
}

//nolint:revive // DeviceInfo name is intentional for clarity when used as a device.DeviceInfo
type DeviceInfo interface {
	ID() string
	Name() string
	Address() string
}

// Device is a peripheral handle. It owns at most one GATT connection.
type Device interface {
	DeviceInfo

	// Connect opens the GATT connection. A connected device returns its existing
	// server instead of dialing again.
	Connect(ctx context.Context) (Server, error)
	// Server returns the live server, or nil when not connected.
	Server() Server
	IsConnected() bool
	Disconnect() error
}

// Server is a connected GATT server.
type Server interface {
	Connected() bool
	PrimaryService(ctx context.Context, uuid string) (Service, error)
	PrimaryServices(ctx context.Context) ([]Service, error)
	Disconnect() error
}

// Service represents a GATT service interface
type Service interface {
	UUID() string
	KnownName() string
	Characteristic(ctx context.Context, uuid string) (Characteristic, error)
	Characteristics(ctx context.Context) ([]Characteristic, error)
}

// CharacteristicInfo represents characteristic metadata
type CharacteristicInfo interface {
	UUID() string
	KnownName() string
	Properties() Properties
}

// ListenerID identifies a value listener registered on a characteristic.
type ListenerID uint64

// ValueListener receives raw characteristic values. Calls for one characteristic are
// delivered in arrival order.
type ValueListener func(value []byte)

// Characteristic combines info + operations
type Characteristic interface {
	CharacteristicInfo

	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte, withResponse bool) error

	// AddListener registers fn for value-changed events. It does not enable
	// notifications on the peripheral; call StartNotifications for that.
	AddListener(fn ValueListener) ListenerID
	RemoveListener(id ListenerID)

	StartNotifications(ctx context.Context) error
	StopNotifications(ctx context.Context) error
}

// RequestOptions selects a peripheral during discovery.
type RequestOptions struct {
	// Address connects to a known peripheral and skips advertisement matching.
	Address string
	// NamePrefix matches the advertised local name.
	NamePrefix string
	// Services matches peripherals advertising any of these services.
	Services []string
	// OptionalServices are services the caller wants to access after connecting
	// even when they are not advertised.
	OptionalServices []string
	// AcceptAll scans the whole window and picks the connectable peripheral with
	// the strongest signal.
	AcceptAll bool
	// Timeout bounds the scan. Zero uses the scanner default.
	Timeout time.Duration
}

// HasFilters reports whether any advertisement filter is set.
func (o RequestOptions) HasFilters() bool {
	return o.Address != "" || o.NamePrefix != "" || len(o.Services) > 0
}
