package testutils

import (
	"context"
	"sync"

	"github.com/srg/healthlink/internal/device"
)

// Advertisement is a static scan result.
type Advertisement struct {
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	RSSIValue     int      `json:"rssi"`
	TxPower       int      `json:"tx_power"`
	IsConnectable bool     `json:"connectable"`
	ServiceUUIDs  []string `json:"services"`
	Manufacturer  []byte   `json:"manufacturer_data"`
}

var _ device.Advertisement = (*Advertisement)(nil)

func (a *Advertisement) LocalName() string        { return a.Name }
func (a *Advertisement) ManufacturerData() []byte { return a.Manufacturer }
func (a *Advertisement) Services() []string       { return a.ServiceUUIDs }
func (a *Advertisement) TxPowerLevel() int        { return a.TxPower }
func (a *Advertisement) Connectable() bool        { return a.IsConnectable }
func (a *Advertisement) RSSI() int                { return a.RSSIValue }
func (a *Advertisement) Addr() string             { return a.Address }

// Adapter is an in-memory device.Adapter. Scan replays the configured advertisements
// once and returns; Device hands out registered peripherals by address.
type Adapter struct {
	mu          sync.Mutex
	peripherals map[string]*Peripheral
	ads         []device.Advertisement
	scanErr     error
	scans       int
}

var _ device.Adapter = (*Adapter)(nil)

// NewAdapter registers peripherals and advertises each of them.
func NewAdapter(peripherals ...*Peripheral) *Adapter {
	a := &Adapter{peripherals: make(map[string]*Peripheral)}
	for _, p := range peripherals {
		a.peripherals[device.NormalizeAddress(p.address)] = p
		a.ads = append(a.ads, p.Advertisement())
	}
	return a
}

// WithAdvertisements appends extra scan results.
func (a *Adapter) WithAdvertisements(ads ...device.Advertisement) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ads = append(a.ads, ads...)
	return a
}

// FailScan makes Scan return err.
func (a *Adapter) FailScan(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanErr = err
}

func (a *Adapter) Scans() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scans
}

func (a *Adapter) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	a.mu.Lock()
	a.scans++
	err := a.scanErr
	ads := append([]device.Advertisement(nil), a.ads...)
	a.mu.Unlock()

	if err != nil {
		return err
	}
	for _, adv := range ads {
		if err := ctx.Err(); err != nil {
			return err
		}
		handler(adv)
	}
	return nil
}

func (a *Adapter) Device(address, name string) device.Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.peripherals[device.NormalizeAddress(address)]; ok {
		return p
	}
	p := &Peripheral{name: name, address: address}
	a.peripherals[device.NormalizeAddress(address)] = p
	return p
}
