// Package session drives one health peripheral: discovery, connection,
// characteristic resolution and the per-vendor notification streams.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/healthlink/internal/codec"
	"github.com/srg/healthlink/internal/device"
	"github.com/srg/healthlink/internal/notify"
	"github.com/srg/healthlink/internal/profile"
	"github.com/srg/healthlink/scanner"
)

// HealthContext is a connected peripheral together with the characteristics
// resolved on it. Absent characteristics are nil.
type HealthContext struct {
	Device device.Device
	Server device.Server
	*profile.Resolved
}

// Options configures a Session.
type Options struct {
	Logger *logrus.Logger
	// StartCommandDelay is the pause after each start command written to a FORA
	// characteristic.
	StartCommandDelay time.Duration `default:"50ms"`
	// ReadCommandDelay is the pause between the read command and the read.
	ReadCommandDelay time.Duration `default:"100ms"`
	// SendStartCommands enables the FORA start-command sequence.
	SendStartCommands bool `default:"true"`
	// QueueSize bounds pending notifications per subscription.
	QueueSize int `default:"256"`
}

// DefaultOptions returns Options with defaults applied.
func DefaultOptions() Options {
	o := Options{}
	defaults.SetDefaults(&o)
	return o
}

// Session owns the connection lifetime of one peripheral. It is not reentrant:
// Connect on a connected device reuses the live server.
type Session struct {
	adapter  device.Adapter
	opts     Options
	logger   *logrus.Logger
	resolver *profile.Resolver

	mu       sync.Mutex
	dev      device.Device
	health   *HealthContext
	optional []string

	stoppers *hashmap.Map[uint64, notify.Stopper]
	nextID   atomic.Uint64
}

// New creates a Session on adapter. A nil adapter is allowed; RequestDevice then
// fails with device.ErrBluetoothUnavailable.
func New(adapter device.Adapter, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetOutput(io.Discard)
	}
	return &Session{
		adapter:  adapter,
		opts:     opts,
		logger:   opts.Logger,
		resolver: profile.NewResolver(opts.Logger),
		stoppers: hashmap.New[uint64, notify.Stopper](),
	}
}

// Device returns the selected peripheral, or nil.
func (s *Session) Device() device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev
}

// Health returns the context of the current connection, or nil.
func (s *Session) Health() *HealthContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// OptionalServices returns the services requested for post-connection access.
func (s *Session) OptionalServices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.optional...)
}

// RequestDevice selects a peripheral. Options with filters are used as given;
// without filters every connectable peripheral is a candidate. The known
// optional services are attached when the caller supplies none.
func (s *Session) RequestDevice(ctx context.Context, opts device.RequestOptions) (device.Device, error) {
	if s.adapter == nil {
		return nil, device.ErrBluetoothUnavailable
	}

	if !opts.HasFilters() {
		opts.AcceptAll = true
	}
	if len(opts.OptionalServices) == 0 {
		opts.OptionalServices = profile.OptionalServices()
	} else {
		opts.OptionalServices = device.NormalizeUUIDs(opts.OptionalServices)
	}

	var dev device.Device
	if opts.Address != "" {
		dev = s.adapter.Device(opts.Address, "")
	} else {
		sc, err := scanner.NewScanner(s.adapter, s.logger)
		if err != nil {
			return nil, err
		}
		adv, err := sc.Request(ctx, opts)
		if err != nil {
			return nil, err
		}
		dev = s.adapter.Device(adv.Addr(), adv.LocalName())
	}

	s.mu.Lock()
	s.dev = dev
	s.optional = opts.OptionalServices
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"address":           dev.Address(),
		"device":            dev.Name(),
		"optional_services": len(opts.OptionalServices),
	}).Info("Device requested")
	return dev, nil
}

// Connect opens the GATT connection to dev, or to the requested device when dev
// is nil, and resolves the health characteristics.
func (s *Session) Connect(ctx context.Context, dev device.Device) (*HealthContext, error) {
	s.mu.Lock()
	if dev == nil {
		dev = s.dev
	}
	if dev == nil {
		s.mu.Unlock()
		return nil, device.ErrNotInitialized
	}
	if s.health != nil && s.health.Device == dev && dev.IsConnected() {
		hc := s.health
		s.mu.Unlock()
		s.logger.WithField("address", dev.Address()).Debug("Reusing existing connection")
		return hc, nil
	}
	s.dev = dev
	s.mu.Unlock()

	server, err := dev.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dev.Address(), device.NormalizeError(err))
	}

	s.logger.WithFields(logrus.Fields{
		"address": dev.Address(),
		"device":  dev.Name(),
	}).Info("Connected")

	hc := &HealthContext{
		Device:   dev,
		Server:   server,
		Resolved: s.resolver.ResolveAll(ctx, server),
	}

	s.mu.Lock()
	s.health = hc
	s.mu.Unlock()
	return hc, nil
}

// Disconnect stops every active subscription, then closes the connection if one
// is open. Subscription teardown errors are swallowed.
func (s *Session) Disconnect(ctx context.Context) error {
	s.StopAll(ctx)

	s.mu.Lock()
	dev := s.dev
	s.health = nil
	s.mu.Unlock()

	if dev == nil || !dev.IsConnected() {
		return nil
	}
	if err := dev.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from %s: %w", dev.Address(), device.NormalizeError(err))
	}
	s.logger.WithField("address", dev.Address()).Info("Disconnected")
	return nil
}

// Explore connects if needed and reads every readable characteristic.
func (s *Session) Explore(ctx context.Context) (*profile.Inventory, error) {
	hc, err := s.Connect(ctx, nil)
	if err != nil {
		return nil, err
	}
	inv, err := s.resolver.Explore(ctx, hc.Server)
	if err != nil {
		return nil, err
	}
	inv.Each(func(svc *profile.ServiceEntry) {
		for _, c := range svc.Characteristics {
			if c.Value == nil {
				continue
			}
			s.logger.WithFields(logrus.Fields{
				"service_uuid": svc.UUID,
				"char_uuid":    c.UUID,
				"raw_hex":      codec.HexString(c.Value),
			}).Info("Characteristic value")
		}
	})
	return inv, nil
}

// ActiveSubscriptions returns the number of subscriptions not yet stopped.
func (s *Session) ActiveSubscriptions() int {
	return s.stoppers.Len()
}

// StopAll ends every active subscription.
func (s *Session) StopAll(ctx context.Context) {
	var ids []uint64
	s.stoppers.Range(func(id uint64, _ notify.Stopper) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		if stop, ok := s.stoppers.Get(id); ok {
			_ = stop(ctx)
		}
	}
}

// track registers stop so StopAll can reach it; the returned Stopper also
// unregisters itself.
func (s *Session) track(stop notify.Stopper) notify.Stopper {
	id := s.nextID.Add(1)
	tracked := func(ctx context.Context) error {
		s.stoppers.Del(id)
		return stop(ctx)
	}
	s.stoppers.Set(id, tracked)
	return tracked
}

func (s *Session) notifyOptions(name string) []notify.Option {
	return []notify.Option{
		notify.WithLogger(s.logger),
		notify.WithQueueSize(s.opts.QueueSize),
		notify.WithName(name),
	}
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
