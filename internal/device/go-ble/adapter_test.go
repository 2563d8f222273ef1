package goble_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/healthlink/internal/device"
	goble "github.com/srg/healthlink/internal/device/go-ble"
	"github.com/srg/healthlink/internal/testutils"
	"github.com/srg/healthlink/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

type AdapterSuite struct {
	suite.Suite

	helper  *testutils.TestHelper
	client  *mocks.BLEClient
	adapter *goble.Adapter
	dials   int
	dialErr error

	hr  *ble.Characteristic
	cmd *ble.Characteristic
	ctx context.Context
}

func TestAdapterSuite(t *testing.T) {
	suite.Run(t, new(AdapterSuite))
}

func (s *AdapterSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.ctx = context.Background()
	s.client = mocks.NewBLEClient()
	s.dials = 0
	s.dialErr = nil

	s.hr = &ble.Characteristic{UUID: ble.UUID16(0x2a37), Property: ble.CharRead | ble.CharNotify}
	s.cmd = &ble.Characteristic{UUID: ble.MustParse("0000aaab-0000-1000-8000-00805f9b34fb"), Property: ble.CharWriteNR}
	profile := &ble.Profile{Services: []*ble.Service{
		{UUID: ble.UUID16(0x180d), Characteristics: []*ble.Characteristic{s.hr}},
		{UUID: ble.MustParse("0000aaaa-0000-1000-8000-00805f9b34fb"), Characteristics: []*ble.Characteristic{s.cmd}},
	}}
	s.client.On("DiscoverProfile", true).Return(profile, nil).Maybe()

	dial := func(_ context.Context, addr string) (goble.Client, error) {
		s.dials++
		if s.dialErr != nil {
			return nil, s.dialErr
		}
		s.Equal(testAddress, addr)
		return s.client, nil
	}
	scan := func(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
		handler(&testutils.Advertisement{Name: "Oximeter", Address: testAddress, IsConnectable: true})
		return nil
	}
	s.adapter = goble.NewAdapterWith(dial, scan, s.helper.Logger)
}

func (s *AdapterSuite) connect() (device.Device, device.Server) {
	dev := s.adapter.Device(testAddress, "Oximeter")
	server, err := dev.Connect(s.ctx)
	s.Require().NoError(err)
	return dev, server
}

func (s *AdapterSuite) char(server device.Server, svcUUID, charUUID string) device.Characteristic {
	svc, err := server.PrimaryService(s.ctx, svcUUID)
	s.Require().NoError(err)
	c, err := svc.Characteristic(s.ctx, charUUID)
	s.Require().NoError(err)
	return c
}

func (s *AdapterSuite) TestScanForwardsAdvertisements() {
	var got []string
	err := s.adapter.Scan(s.ctx, false, func(adv device.Advertisement) {
		got = append(got, adv.Addr())
	})

	s.NoError(err)
	s.Equal([]string{testAddress}, got)
}

func (s *AdapterSuite) TestScanNormalizesErrors() {
	adapter := goble.NewAdapterWith(nil, func(context.Context, bool, func(device.Advertisement)) error {
		return errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
	}, nil)

	err := adapter.Scan(s.ctx, false, func(device.Advertisement) {})
	s.ErrorIs(err, device.ErrBluetoothUnavailable)
}

func (s *AdapterSuite) TestDeviceHandlesAreCached() {
	a := s.adapter.Device(testAddress, "")
	b := s.adapter.Device("aa:bb:cc:dd:ee:ff", "Oximeter")

	s.Same(a, b)
	s.Equal("Oximeter", a.Name())
	s.Equal(testAddress, a.Address())
}

func (s *AdapterSuite) TestConnectDiscoversProfile() {
	dev, server := s.connect()

	s.True(dev.IsConnected())
	s.True(server.Connected())
	s.Same(server, dev.Server())

	services, err := server.PrimaryServices(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(services, 2)
	s.Equal("180d", services[0].UUID())

	c := s.char(server, "180D", "2A37")
	s.Equal("2a37", c.UUID())
	s.True(device.CanNotify(c))
	s.True(device.CanRead(c))

	_, err = server.PrimaryService(s.ctx, "1822")
	s.True(device.IsNotFound(err))

	svc, err := server.PrimaryService(s.ctx, "180d")
	s.Require().NoError(err)
	_, err = svc.Characteristic(s.ctx, "2a5f")
	s.True(device.IsNotFound(err))
}

func (s *AdapterSuite) TestConnectReusesClient() {
	dev, first := s.connect()
	second, err := dev.Connect(s.ctx)

	s.Require().NoError(err)
	s.Same(first, second)
	s.Equal(1, s.dials)
}

func (s *AdapterSuite) TestConnectErrors() {
	s.Run("dial failure", func() {
		s.dialErr = errors.New("connection timed out")
		dev := s.adapter.Device(testAddress, "")

		_, err := dev.Connect(s.ctx)
		s.Error(err)
		s.Contains(err.Error(), testAddress)
		s.False(dev.IsConnected())
		s.dialErr = nil
	})

	s.Run("discovery failure cancels connection", func() {
		client := mocks.NewBLEClient()
		client.On("DiscoverProfile", true).Return(nil, errors.New("att timeout"))
		client.On("CancelConnection").Return(nil).Once()
		adapter := goble.NewAdapterWith(func(context.Context, string) (goble.Client, error) {
			return client, nil
		}, nil, s.helper.Logger)

		dev := adapter.Device(testAddress, "")
		_, err := dev.Connect(s.ctx)
		s.ErrorContains(err, "failed to discover profile")
		s.False(dev.IsConnected())
		client.AssertExpectations(s.T())
	})
}

func (s *AdapterSuite) TestReadAndWrite() {
	_, server := s.connect()
	hr := s.char(server, "180d", "2a37")
	cmd := s.char(server, "0000aaaa-0000-1000-8000-00805f9b34fb", "0000aaab-0000-1000-8000-00805f9b34fb")

	s.client.On("ReadCharacteristic", s.hr).Return([]byte{0x00, 72}, nil).Once()
	value, err := hr.Read(s.ctx)
	s.Require().NoError(err)
	s.Equal([]byte{0x00, 72}, value)

	_, err = cmd.Read(s.ctx)
	s.ErrorIs(err, device.ErrNotSupported)

	// Only write-without-response is offered, so an acknowledged write falls back.
	s.client.On("WriteCharacteristic", s.cmd, []byte{0x02}, true).Return(nil).Once()
	s.NoError(cmd.Write(s.ctx, []byte{0x02}, true))

	err = hr.Write(s.ctx, []byte{0x01}, true)
	s.ErrorIs(err, device.ErrNotSupported)

	s.client.AssertExpectations(s.T())
}

func (s *AdapterSuite) TestNotificationsFanOut() {
	_, server := s.connect()
	hr := s.char(server, "180d", "2a37")

	var a, b [][]byte
	idA := hr.AddListener(func(v []byte) { a = append(a, v) })
	hr.AddListener(func(v []byte) { b = append(b, v) })

	s.client.On("Subscribe", s.hr, false, mock.Anything).Return(nil).Once()
	s.Require().NoError(hr.StartNotifications(s.ctx))
	s.Require().NoError(hr.StartNotifications(s.ctx))

	s.True(s.client.Notify(s.hr, []byte{0x00, 80}))
	hr.RemoveListener(idA)
	s.True(s.client.Notify(s.hr, []byte{0x00, 81}))

	s.Equal([][]byte{{0x00, 80}}, a)
	s.Equal([][]byte{{0x00, 80}, {0x00, 81}}, b)

	s.client.On("Unsubscribe", s.hr, false).Return(nil).Once()
	s.NoError(hr.StopNotifications(s.ctx))
	s.NoError(hr.StopNotifications(s.ctx))
	s.False(s.client.Notify(s.hr, []byte{0x00, 82}))

	s.client.AssertExpectations(s.T())
}

func (s *AdapterSuite) TestSubscribeUnsupported() {
	_, server := s.connect()
	cmd := s.char(server, "aaaa", "aaab")

	s.ErrorIs(cmd.StartNotifications(s.ctx), device.ErrNotSupported)
}

func (s *AdapterSuite) TestDisconnect() {
	dev, server := s.connect()
	hr := s.char(server, "180d", "2a37")

	s.client.On("CancelConnection").Return(nil).Once()
	s.Require().NoError(dev.Disconnect())
	s.NoError(dev.Disconnect())

	s.False(dev.IsConnected())
	s.Nil(dev.Server())
	s.False(server.Connected())

	_, err := hr.Read(s.ctx)
	s.ErrorIs(err, device.ErrNotConnected)
	_, err = server.PrimaryServices(s.ctx)
	s.ErrorIs(err, device.ErrNotConnected)

	s.client.AssertExpectations(s.T())
}

func (s *AdapterSuite) TestPeripheralDropIsDetected() {
	dev, _ := s.connect()

	s.client.Drop()

	s.Eventually(func() bool { return !dev.IsConnected() }, 2*time.Second, 5*time.Millisecond)
	s.NotEmpty(s.helper.EntriesWithMessage("Peripheral disconnected"))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"powered off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), device.ErrBluetoothUnavailable},
		{"unauthorized", errors.New("central manager has invalid state: have=3 want=5: is Bluetooth turned on?"), device.ErrPermissionDenied},
		{"generic disconnected", errors.New("peripheral disconnected"), device.ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := goble.NormalizeError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("NormalizeError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if goble.NormalizeError(nil) != nil {
		t.Fatal("nil error must stay nil")
	}
}
