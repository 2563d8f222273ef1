package goble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/healthlink/internal/bledb"
	"github.com/srg/healthlink/internal/device"
)

// Server is the discovered GATT layout of a connected Peripheral.
type Server struct {
	peripheral *Peripheral
	services   []*Service
}

var _ device.Server = (*Server)(nil)

func (s *Server) Connected() bool {
	_, err := s.peripheral.currentClient()
	return err == nil
}

func (s *Server) PrimaryService(ctx context.Context, uuid string) (device.Service, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	for _, svc := range s.services {
		if device.SameUUID(svc.uuid, uuid) {
			return svc, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

func (s *Server) PrimaryServices(ctx context.Context) ([]device.Service, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := make([]device.Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	return out, nil
}

func (s *Server) Disconnect() error {
	return s.peripheral.Disconnect()
}

func (s *Server) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.peripheral.currentClient()
	return err
}

// Service is a discovered GATT service.
type Service struct {
	uuid      string
	knownName string
	chars     []*Characteristic
}

var _ device.Service = (*Service)(nil)

func (s *Service) UUID() string      { return s.uuid }
func (s *Service) KnownName() string { return s.knownName }

func (s *Service) Characteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, c := range s.chars {
		if device.SameUUID(c.uuid, uuid) {
			return c, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{s.uuid, uuid}}
}

func (s *Service) Characteristics(ctx context.Context) ([]device.Characteristic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]device.Characteristic, 0, len(s.chars))
	for _, c := range s.chars {
		out = append(out, c)
	}
	return out, nil
}

// Characteristic is a discovered GATT characteristic. Value-changed events fan out
// to every registered listener.
type Characteristic struct {
	peripheral *Peripheral
	char       *ble.Characteristic
	uuid       string
	knownName  string
	flags      device.PropertyFlags

	listeners *hashmap.Map[device.ListenerID, device.ValueListener]
	nextID    atomic.Uint64

	subMu      sync.Mutex
	subscribed bool
	indicate   bool
}

var _ device.Characteristic = (*Characteristic)(nil)

func newCharacteristic(p *Peripheral, bc *ble.Characteristic) *Characteristic {
	return &Characteristic{
		peripheral: p,
		char:       bc,
		uuid:       device.NormalizeUUID(bc.UUID.String()),
		knownName:  bledb.LookupCharacteristic(bc.UUID.String()),
		flags:      propertyFlags(bc.Property),
		listeners:  hashmap.New[device.ListenerID, device.ValueListener](),
	}
}

func (c *Characteristic) UUID() string                  { return c.uuid }
func (c *Characteristic) KnownName() string             { return c.knownName }
func (c *Characteristic) Properties() device.Properties { return device.NewProperties(c.flags) }

func (c *Characteristic) Read(ctx context.Context) ([]byte, error) {
	client, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	if c.flags&device.PropRead == 0 {
		return nil, fmt.Errorf("read %s: %w", c.uuid, device.ErrNotSupported)
	}
	data, err := client.ReadCharacteristic(c.char)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return data, nil
}

// Write sends data. A request for an acknowledged write falls back to write
// without response when that is the only mode the characteristic offers.
func (c *Characteristic) Write(ctx context.Context, data []byte, withResponse bool) error {
	client, err := c.client(ctx)
	if err != nil {
		return err
	}
	canAck := c.flags&device.PropWrite != 0
	canNR := c.flags&device.PropWriteNR != 0
	if !canAck && !canNR {
		return fmt.Errorf("write %s: %w", c.uuid, device.ErrNotSupported)
	}
	noRsp := !withResponse || !canAck
	if noRsp && !canNR {
		noRsp = false
	}
	if err := client.WriteCharacteristic(c.char, data, noRsp); err != nil {
		return fmt.Errorf("failed to write to characteristic %s: %w", c.uuid, NormalizeError(err))
	}
	return nil
}

func (c *Characteristic) AddListener(fn device.ValueListener) device.ListenerID {
	id := device.ListenerID(c.nextID.Add(1))
	c.listeners.Set(id, fn)
	return id
}

func (c *Characteristic) RemoveListener(id device.ListenerID) {
	c.listeners.Del(id)
}

// StartNotifications subscribes with notifications, or indications when that is
// all the characteristic supports. Starting twice is a no-op.
func (c *Characteristic) StartNotifications(ctx context.Context) error {
	client, err := c.client(ctx)
	if err != nil {
		return err
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subscribed {
		return nil
	}

	ind := false
	switch {
	case c.flags&device.PropNotify != 0:
	case c.flags&device.PropIndicate != 0:
		ind = true
	default:
		return fmt.Errorf("subscribe %s: %w", c.uuid, device.ErrNotSupported)
	}

	if err := client.Subscribe(c.char, ind, c.dispatch); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.uuid, NormalizeError(err))
	}
	c.subscribed = true
	c.indicate = ind
	c.peripheral.logger.WithFields(logrus.Fields{
		"char_uuid": c.uuid,
		"indicate":  ind,
	}).Debug("Subscribed to characteristic")
	return nil
}

// StopNotifications unsubscribes. Stopping an idle characteristic is a no-op.
func (c *Characteristic) StopNotifications(ctx context.Context) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if !c.subscribed {
		return nil
	}
	c.subscribed = false

	client, err := c.client(ctx)
	if err != nil {
		return err
	}
	if err := client.Unsubscribe(c.char, c.indicate); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", c.uuid, NormalizeError(err))
	}
	return nil
}

// dispatch runs on the go-ble notification path, one value at a time.
func (c *Characteristic) dispatch(data []byte) {
	value := append([]byte(nil), data...)
	c.listeners.Range(func(_ device.ListenerID, fn device.ValueListener) bool {
		fn(value)
		return true
	})
}

func (c *Characteristic) client(ctx context.Context) (Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.peripheral.currentClient()
}
