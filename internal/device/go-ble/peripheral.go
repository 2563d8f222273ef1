package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/healthlink/internal/bledb"
	"github.com/srg/healthlink/internal/device"
	"github.com/srg/healthlink/internal/groutine"
)

// Peripheral is a go-ble backed device.Device. It owns at most one client.
type Peripheral struct {
	address string
	dial    DialFunc
	logger  *logrus.Logger

	mu            sync.Mutex
	name          string
	client        Client
	server        *Server
	cancelMonitor context.CancelFunc
}

var _ device.Device = (*Peripheral)(nil)

func (p *Peripheral) ID() string      { return p.address }
func (p *Peripheral) Address() string { return p.address }

func (p *Peripheral) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.name == "" {
		return p.address
	}
	return p.name
}

func (p *Peripheral) setName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

// Connect dials the peripheral and discovers its profile. A connected peripheral
// returns the existing server.
func (p *Peripheral) Connect(ctx context.Context) (device.Server, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.server != nil {
		return p.server, nil
	}
	if strings.TrimSpace(p.address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	if p.dial == nil {
		return nil, device.ErrBluetoothUnavailable
	}

	p.logger.WithField("address", p.address).Info("Connecting to BLE device...")
	client, err := p.dial(ctx, p.address)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"address": p.address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", p.address, NormalizeError(err))
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			p.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	server := &Server{peripheral: p}
	chars := 0
	for _, bs := range profile.Services {
		svc := &Service{
			uuid:      device.NormalizeUUID(bs.UUID.String()),
			knownName: bledb.LookupService(bs.UUID.String()),
		}
		for _, bc := range bs.Characteristics {
			svc.chars = append(svc.chars, newCharacteristic(p, bc))
			chars++
		}
		server.services = append(server.services, svc)
	}

	p.client = client
	p.server = server

	monitorCtx, cancel := context.WithCancel(context.Background())
	p.cancelMonitor = cancel
	groutine.Go(monitorCtx, "ble-disconnect-monitor", func(ctx context.Context) {
		select {
		case <-client.Disconnected():
			p.logger.WithField("address", p.address).Warn("Peripheral disconnected")
			p.drop(client)
		case <-ctx.Done():
		}
	})

	p.logger.WithFields(logrus.Fields{
		"address":         p.address,
		"services":        len(server.services),
		"characteristics": chars,
	}).Info("BLE device connected successfully")
	return server, nil
}

// drop forgets client if it is still the current one.
func (p *Peripheral) drop(client Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != client {
		return
	}
	p.client = nil
	p.server = nil
	if p.cancelMonitor != nil {
		p.cancelMonitor()
		p.cancelMonitor = nil
	}
}

// Server returns the live server, or nil when not connected.
func (p *Peripheral) Server() device.Server {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server == nil {
		return nil
	}
	return p.server
}

func (p *Peripheral) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil
}

// Disconnect cancels the connection. Disconnecting an idle peripheral is a no-op.
func (p *Peripheral) Disconnect() error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil {
		p.logger.Debug("Disconnect called but already disconnected")
		return nil
	}
	p.drop(client)
	if err := client.CancelConnection(); err != nil {
		return NormalizeError(err)
	}
	p.logger.WithField("address", p.address).Info("BLE device disconnected")
	return nil
}

// currentClient returns the live client or device.ErrNotConnected.
func (p *Peripheral) currentClient() (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil, device.ErrNotConnected
	}
	return p.client, nil
}
