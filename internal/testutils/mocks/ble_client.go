// Package mocks holds testify mocks of go-ble client interfaces.
package mocks

import (
	"sync"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// BLEClient is a testify mock of the go-ble client operations used by the go-ble
// backend. Subscribe handlers are captured so tests can push notifications.
type BLEClient struct {
	mock.Mock

	mu           sync.Mutex
	handlers     map[*ble.Characteristic]ble.NotificationHandler
	disconnected chan struct{}
	closeOnce    sync.Once
}

// NewBLEClient creates a mock client that is connected until Drop is called.
func NewBLEClient() *BLEClient {
	return &BLEClient{
		handlers:     make(map[*ble.Characteristic]ble.NotificationHandler),
		disconnected: make(chan struct{}),
	}
}

func (m *BLEClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *BLEClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *BLEClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *BLEClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	err := m.Called(c, ind, h).Error(0)
	if err == nil {
		m.mu.Lock()
		m.handlers[c] = h
		m.mu.Unlock()
	}
	return err
}

func (m *BLEClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	err := m.Called(c, ind).Error(0)
	if err == nil {
		m.mu.Lock()
		delete(m.handlers, c)
		m.mu.Unlock()
	}
	return err
}

func (m *BLEClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *BLEClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// Notify delivers data to the handler subscribed on c. It reports false when
// nothing is subscribed.
func (m *BLEClient) Notify(c *ble.Characteristic, data []byte) bool {
	m.mu.Lock()
	h := m.handlers[c]
	m.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Drop simulates the peripheral going away.
func (m *BLEClient) Drop() {
	m.closeOnce.Do(func() { close(m.disconnected) })
}
