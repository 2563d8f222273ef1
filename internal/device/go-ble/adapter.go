// Package goble implements the device abstractions on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/healthlink/internal/device"
)

// Client is the subset of ble.Client used by this package.
type Client interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// DialFunc opens a GATT client to addr.
type DialFunc func(ctx context.Context, addr string) (Client, error)

// ScanFunc reports advertisements until ctx is done.
type ScanFunc func(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error

// DeviceFactory creates the host ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Adapter implements device.Adapter on go-ble.
type Adapter struct {
	dial   DialFunc
	scan   ScanFunc
	logger *logrus.Logger

	mu      sync.Mutex
	devices map[string]*Peripheral
}

var _ device.Adapter = (*Adapter)(nil)

// NewAdapter opens the host Bluetooth device via DeviceFactory.
func NewAdapter(logger *logrus.Logger) (*Adapter, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	dial := func(ctx context.Context, addr string) (Client, error) {
		return dev.Dial(ctx, ble.NewAddr(addr))
	}
	scan := func(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
		return dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
			handler(NewBLEAdvertisement(adv))
		})
	}
	return NewAdapterWith(dial, scan, logger), nil
}

// NewAdapterWith builds an Adapter from explicit dial and scan functions.
func NewAdapterWith(dial DialFunc, scan ScanFunc, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Adapter{
		dial:    dial,
		scan:    scan,
		logger:  logger,
		devices: make(map[string]*Peripheral),
	}
}

// Scan reports advertisements until ctx is done.
func (a *Adapter) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	if a.scan == nil {
		return device.ErrBluetoothUnavailable
	}
	return NormalizeError(a.scan(ctx, allowDup, handler))
}

// Device returns the handle for address, creating it on first use.
func (a *Adapter) Device(address, name string) device.Device {
	key := device.NormalizeAddress(address)

	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.devices[key]; ok {
		if name != "" {
			p.setName(name)
		}
		return p
	}
	p := &Peripheral{
		address: address,
		name:    name,
		dial:    a.dial,
		logger:  a.logger,
	}
	a.devices[key] = p
	return p
}
