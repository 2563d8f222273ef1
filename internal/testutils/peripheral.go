package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/healthlink/internal/bledb"
	"github.com/srg/healthlink/internal/device"
)

// Peripheral is an in-memory GATT peripheral. It implements device.Device and
// serves its profile through a device.Server once connected.
type Peripheral struct {
	mu       sync.Mutex
	name     string
	address  string
	services []*Service

	connected    bool
	connectErr   error
	connectCalls int
	disconnects  int
	enumerations int
}

var _ device.Device = (*Peripheral)(nil)

func (p *Peripheral) ID() string      { return p.address }
func (p *Peripheral) Name() string    { return p.name }
func (p *Peripheral) Address() string { return p.address }

// Connect marks the peripheral connected. A connected peripheral returns its server
// without counting another dial.
func (p *Peripheral) Connect(ctx context.Context) (device.Server, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return &server{p: p}, nil
	}
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	p.connectCalls++
	p.connected = true
	return &server{p: p}, nil
}

func (p *Peripheral) Server() device.Server {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil
	}
	return &server{p: p}
}

func (p *Peripheral) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Peripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		p.disconnects++
	}
	p.connected = false
	return nil
}

// FailConnect makes subsequent Connect calls return err.
func (p *Peripheral) FailConnect(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectErr = err
}

// ConnectCalls returns how many times a new connection was opened.
func (p *Peripheral) ConnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectCalls
}

// Disconnects returns how many connected-to-disconnected transitions happened.
func (p *Peripheral) Disconnects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects
}

// Enumerations returns how many times the full service list was requested.
func (p *Peripheral) Enumerations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enumerations
}

// Services returns the configured services.
func (p *Peripheral) Services() []*Service {
	return p.services
}

// Characteristic returns the configured characteristic, or nil.
func (p *Peripheral) Characteristic(serviceUUID, charUUID string) *Characteristic {
	for _, svc := range p.services {
		if !device.SameUUID(svc.uuid, serviceUUID) {
			continue
		}
		for _, c := range svc.chars {
			if device.SameUUID(c.uuid, charUUID) {
				return c
			}
		}
	}
	return nil
}

// Advertisement describes the peripheral as a scan result.
func (p *Peripheral) Advertisement() *Advertisement {
	adv := &Advertisement{
		Name:          p.name,
		Address:       p.address,
		RSSIValue:     -60,
		IsConnectable: true,
	}
	for _, svc := range p.services {
		adv.ServiceUUIDs = append(adv.ServiceUUIDs, svc.uuid)
	}
	return adv
}

type server struct {
	p *Peripheral
}

func (s *server) Connected() bool { return s.p.IsConnected() }

func (s *server) PrimaryService(ctx context.Context, uuid string) (device.Service, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	for _, svc := range s.p.services {
		if device.SameUUID(svc.uuid, uuid) {
			return svc, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

func (s *server) PrimaryServices(ctx context.Context) ([]device.Service, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.p.mu.Lock()
	s.p.enumerations++
	s.p.mu.Unlock()

	out := make([]device.Service, 0, len(s.p.services))
	for _, svc := range s.p.services {
		out = append(out, svc)
	}
	return out, nil
}

func (s *server) Disconnect() error { return s.p.Disconnect() }

func (s *server) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.p.IsConnected() {
		return device.ErrNotConnected
	}
	return nil
}

// Service is an in-memory GATT service.
type Service struct {
	uuid  string
	chars []*Characteristic
}

func (s *Service) UUID() string      { return device.NormalizeUUID(s.uuid) }
func (s *Service) KnownName() string { return bledb.LookupService(s.uuid) }

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

// WriteHook decides the outcome of a write. It sees every write in order.
type WriteHook func(data []byte) error

// Characteristic is an in-memory characteristic with listener bookkeeping and
// failure injection.
type Characteristic struct {
	mu    sync.Mutex
	uuid  string
	flags device.PropertyFlags
	value []byte

	listeners map[device.ListenerID]device.ValueListener
	order     []device.ListenerID
	nextID    device.ListenerID
	notifying bool

	readErr   error
	startErr  error
	stopErr   error
	writeHook WriteHook
	onStart   [][]byte

	writes []Write
	reads  int
	starts int
	stops  int
}

// Write records one characteristic write.
type Write struct {
	Data         []byte
	WithResponse bool
}

var _ device.Characteristic = (*Characteristic)(nil)

func newCharacteristic(uuid string, flags device.PropertyFlags, value []byte) *Characteristic {
	return &Characteristic{
		uuid:      uuid,
		flags:     flags,
		value:     append([]byte(nil), value...),
		listeners: make(map[device.ListenerID]device.ValueListener),
	}
}

func (c *Characteristic) UUID() string                  { return device.NormalizeUUID(c.uuid) }
func (c *Characteristic) KnownName() string             { return bledb.LookupCharacteristic(c.uuid) }
func (c *Characteristic) Properties() device.Properties { return device.NewProperties(c.flags) }

func (c *Characteristic) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.readErr != nil {
		return nil, c.readErr
	}
	if c.flags&device.PropRead == 0 {
		return nil, fmt.Errorf("read %s: %w", c.uuid, device.ErrNotSupported)
	}
	return append([]byte(nil), c.value...), nil
}

func (c *Characteristic) Write(ctx context.Context, data []byte, withResponse bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	hook := c.writeHook
	c.writes = append(c.writes, Write{Data: append([]byte(nil), data...), WithResponse: withResponse})
	c.mu.Unlock()

	if c.flags&(device.PropWrite|device.PropWriteNR) == 0 {
		return fmt.Errorf("write %s: %w", c.uuid, device.ErrNotSupported)
	}
	if hook != nil {
		return hook(data)
	}
	return nil
}

func (c *Characteristic) AddListener(fn device.ValueListener) device.ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.order = append(c.order, id)
	return id
}

func (c *Characteristic) RemoveListener(id device.ListenerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.listeners[id]; !ok {
		return
	}
	delete(c.listeners, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Characteristic) StartNotifications(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.starts++
	if c.startErr != nil {
		c.mu.Unlock()
		return c.startErr
	}
	if c.flags&(device.PropNotify|device.PropIndicate) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", c.uuid, device.ErrNotSupported)
	}
	c.notifying = true
	pending := c.onStart
	c.onStart = nil
	c.mu.Unlock()

	for _, v := range pending {
		c.Notify(v)
	}
	return nil
}

func (c *Characteristic) StopNotifications(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.notifying = false
	return c.stopErr
}

// Notify delivers value to every registered listener in registration order, as the
// peripheral would while notifications are enabled. It reports whether delivery happened.
func (c *Characteristic) Notify(value []byte) bool {
	c.mu.Lock()
	if !c.notifying {
		c.mu.Unlock()
		return false
	}
	c.value = append(c.value[:0], value...)
	fns := make([]device.ValueListener, 0, len(c.order))
	for _, id := range c.order {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(append([]byte(nil), value...))
	}
	return true
}

// SetValue replaces the value returned by Read.
func (c *Characteristic) SetValue(v []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = append([]byte(nil), v...)
}

// FailRead makes Read return err.
func (c *Characteristic) FailRead(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// FailStart makes StartNotifications return err.
func (c *Characteristic) FailStart(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startErr = err
}

// EmitOnStart queues values delivered synchronously from the next successful
// StartNotifications call, before it returns.
func (c *Characteristic) EmitOnStart(values ...[]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range values {
		c.onStart = append(c.onStart, append([]byte(nil), v...))
	}
}

// FailStop makes StopNotifications return err.
func (c *Characteristic) FailStop(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopErr = err
}

// OnWrite installs a hook deciding the result of every write.
func (c *Characteristic) OnWrite(h WriteHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeHook = h
}

func (c *Characteristic) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func (c *Characteristic) Notifying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifying
}

// Writes returns a copy of every write in order.
func (c *Characteristic) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Write(nil), c.writes...)
}

func (c *Characteristic) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *Characteristic) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

func (c *Characteristic) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}
