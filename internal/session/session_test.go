package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/healthlink/internal/codec"
	"github.com/srg/healthlink/internal/device"
	"github.com/srg/healthlink/internal/profile"
	"github.com/srg/healthlink/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type SessionSuite struct {
	testutils.MockPeripheralSuite
	ctx     context.Context
	session *Session
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.WithPeripheral().
			WithName("PO Oximeter").
			FromJSON(`
			{
				"services": [
					{ "uuid": "180D", "characteristics": [ { "uuid": "2A37", "properties": "read,notify", "value": [0, 80] } ] },
					{ "uuid": "1822", "characteristics": [ { "uuid": "2A5E", "properties": "read,indicate", "value": [0, 0, 98, 0, 72, 0] } ] },
					{ "uuid": "00001523-1212-efde-1523-785feabcd123", "characteristics": [
						{ "uuid": "00001524-1212-efde-1523-785feabcd123", "properties": "read,write,notify", "value": [97, 72, 0] }
					] },
					{ "uuid": "0000aaaa-0000-1000-8000-00805f9b34fb", "characteristics": [
						{ "uuid": "0000aaac-0000-1000-8000-00805f9b34fb", "properties": "notify" },
						{ "uuid": "0000aaab-0000-1000-8000-00805f9b34fb", "properties": "write" }
					] }
				]
			}`)
	}
	s.MockPeripheralSuite.SetupTest()

	s.ctx = context.Background()
	opts := DefaultOptions()
	opts.Logger = s.Logger
	opts.StartCommandDelay = time.Millisecond
	opts.ReadCommandDelay = time.Millisecond
	s.session = New(s.Adapter, opts)
}

func (s *SessionSuite) connect() *HealthContext {
	_, err := s.session.RequestDevice(s.ctx, device.RequestOptions{Address: s.Peripheral.Address()})
	s.Require().NoError(err)
	hc, err := s.session.Connect(s.ctx, nil)
	s.Require().NoError(err)
	return hc
}

// collector gathers callback values in order.
type collector[T any] struct {
	mu  sync.Mutex
	got []T
}

func (c *collector[T]) add(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, v)
}

func (c *collector[T]) values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.got...)
}

func (s *SessionSuite) TestDefaultOptions() {
	opts := DefaultOptions()

	s.Equal(50*time.Millisecond, opts.StartCommandDelay)
	s.Equal(100*time.Millisecond, opts.ReadCommandDelay)
	s.True(opts.SendStartCommands)
	s.Equal(256, opts.QueueSize)
}

func (s *SessionSuite) TestRequestDevice() {
	s.Run("without adapter", func() {
		dev, err := New(nil, Options{}).RequestDevice(s.ctx, device.RequestOptions{})

		s.ErrorIs(err, device.ErrBluetoothUnavailable)
		s.Nil(dev)
	})

	s.Run("accept all attaches optional services", func() {
		dev, err := s.session.RequestDevice(s.ctx, device.RequestOptions{Timeout: time.Second})

		s.Require().NoError(err)
		s.Equal(s.Peripheral.Address(), dev.Address())
		s.Equal(profile.OptionalServices(), s.session.OptionalServices())
	})

	s.Run("name prefix filter", func() {
		dev, err := s.session.RequestDevice(s.ctx, device.RequestOptions{NamePrefix: "PO"})

		s.Require().NoError(err)
		s.Equal("PO Oximeter", dev.Name())
	})

	s.Run("explicit optional services are kept", func() {
		_, err := s.session.RequestDevice(s.ctx, device.RequestOptions{
			NamePrefix:       "PO",
			OptionalServices: []string{"0000180F-0000-1000-8000-00805F9B34FB"},
		})

		s.Require().NoError(err)
		s.Equal([]string{"180f"}, s.session.OptionalServices())
	})

	s.Run("address skips scanning", func() {
		scans := s.Adapter.Scans()
		dev, err := s.session.RequestDevice(s.ctx, device.RequestOptions{Address: "aa:bb:cc:dd:ee:ff"})

		s.Require().NoError(err)
		s.Same(s.Peripheral, dev)
		s.Equal(scans, s.Adapter.Scans())
	})

	s.Run("no match", func() {
		dev, err := s.session.RequestDevice(s.ctx, device.RequestOptions{NamePrefix: "Nope"})

		s.ErrorIs(err, device.ErrDeviceNotFound)
		s.Nil(dev)
	})
}

func (s *SessionSuite) TestConnectResolvesCharacteristics() {
	hc := s.connect()

	s.Same(s.Peripheral, hc.Device)
	s.NotNil(hc.Server)
	s.NotNil(hc.HeartRate)
	s.NotNil(hc.PulseOximeter)
	s.True(hc.SpotCheck)
	s.NotNil(hc.ForaCustom)
	s.NotNil(hc.AcareData)
	s.NotNil(hc.AcareCommand)
	s.Nil(hc.AcareSecondary)
	s.Nil(hc.Inventory)
	s.Same(hc, s.session.Health())
}

func (s *SessionSuite) TestConnectReusesConnection() {
	first := s.connect()
	second, err := s.session.Connect(s.ctx, nil)

	s.Require().NoError(err)
	s.Same(first, second)
	s.Equal(1, s.Peripheral.ConnectCalls())
}

func (s *SessionSuite) TestConnectErrors() {
	s.Run("no device requested", func() {
		hc, err := s.session.Connect(s.ctx, nil)

		s.ErrorIs(err, device.ErrNotInitialized)
		s.Nil(hc)
	})

	s.Run("connect failure", func() {
		s.Peripheral.FailConnect(errors.New("connection refused"))
		hc, err := s.session.Connect(s.ctx, s.Peripheral)

		s.Error(err)
		s.Contains(err.Error(), "failed to connect")
		s.Nil(hc)
	})
}

func (s *SessionSuite) TestHeartRateSubscriptionAndDisconnect() {
	hc := s.connect()
	var got collector[int]

	stop, err := s.session.StartHeartRate(s.ctx, hc.HeartRate, func(m codec.HeartRate) {
		got.add(*m.HeartRate)
	})
	s.Require().NoError(err)
	s.Equal(1, s.session.ActiveSubscriptions())

	char := s.Char("180d", "2a37")
	s.True(char.Notify([]byte{0x00, 72}))
	s.True(char.Notify([]byte{0x00, 73}))
	s.Require().Eventually(func() bool { return len(got.values()) == 2 }, s.TestTimeout, 5*time.Millisecond)
	s.Equal([]int{72, 73}, got.values())

	s.Require().NoError(s.session.Disconnect(s.ctx))
	s.Equal(0, s.session.ActiveSubscriptions())
	s.Equal(0, char.ListenerCount())
	s.Equal(1, char.Stops())
	s.Equal(1, s.Peripheral.Disconnects())
	s.Nil(s.session.Health())

	// Stopper stays safe after disconnect and the registry is already empty.
	s.NoError(stop(s.ctx))
	s.Equal(1, char.Stops())
}

func (s *SessionSuite) TestStopperUnregisters() {
	hc := s.connect()

	stop, err := s.session.StartPulseOximeter(s.ctx, hc.PulseOximeter, func(codec.PulseOximeter) {})
	s.Require().NoError(err)
	s.Equal(1, s.session.ActiveSubscriptions())

	s.NoError(stop(s.ctx))
	s.NoError(stop(s.ctx))
	s.Equal(0, s.session.ActiveSubscriptions())
}

func (s *SessionSuite) TestDisconnectWithoutConnection() {
	s.NoError(s.session.Disconnect(s.ctx))
	s.Equal(0, s.Peripheral.Disconnects())
}

func (s *SessionSuite) TestForaStartCommands() {
	tests := []struct {
		name       string
		hook       testutils.WriteHook
		wantWrites [][]byte
		wantWarn   int
	}{
		{
			name:       "first sequence accepted",
			wantWrites: [][]byte{{0x01}},
		},
		{
			name: "falls through to first fully written sequence",
			hook: func(data []byte) error {
				if len(data) == 1 {
					return errors.New("rejected")
				}
				return nil
			},
			wantWrites: [][]byte{{0x01}, {0x00}, {0x01, 0x00}},
		},
		{
			name: "all sequences fail",
			hook: func([]byte) error { return errors.New("rejected") },
			wantWrites: [][]byte{
				{0x01}, {0x00}, {0x01, 0x00}, {0x00, 0x01}, {0x57, 0x01}, {0xAA, 0x55}, {0x01},
				{0xFD, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x02},
			},
			wantWarn: 1,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			hc := s.connect()
			char := s.Char("00001523-1212-efde-1523-785feabcd123", "00001524-1212-efde-1523-785feabcd123")
			char.OnWrite(tt.hook)

			stop, err := s.session.StartForaCustom(s.ctx, hc.ForaCustom, func(codec.VendorCustom) {})
			s.Require().NoError(err)
			defer func() { _ = stop(s.ctx) }()

			var data [][]byte
			for _, w := range char.Writes() {
				data = append(data, w.Data)
				s.True(w.WithResponse)
			}
			s.Equal(tt.wantWrites, data)
			s.Len(s.Helper.EntriesWithMessage("All start commands failed"), tt.wantWarn)
		})
	}
}

func (s *SessionSuite) TestForaStartCommandsSkipped() {
	s.Run("disabled", func() {
		hc := s.connect()
		opts := DefaultOptions()
		opts.SendStartCommands = false
		sess := New(s.Adapter, opts)

		stop, err := sess.StartForaCustom(s.ctx, hc.ForaCustom, func(codec.VendorCustom) {})
		s.Require().NoError(err)
		defer func() { _ = stop(s.ctx) }()

		s.Empty(s.Char("00001523-1212-efde-1523-785feabcd123", "00001524-1212-efde-1523-785feabcd123").Writes())
	})
}

func (s *SessionSuite) TestForaNotificationsDecode() {
	hc := s.connect()
	var got collector[codec.VendorCustom]

	stop, err := s.session.StartForaCustom(s.ctx, hc.ForaCustom, got.add)
	s.Require().NoError(err)
	defer func() { _ = stop(s.ctx) }()

	char := s.Char("00001523-1212-efde-1523-785feabcd123", "00001524-1212-efde-1523-785feabcd123")
	s.True(char.Notify([]byte{0x3C, 0x5F}))
	s.Require().Eventually(func() bool { return len(got.values()) == 1 }, s.TestTimeout, 5*time.Millisecond)

	m := got.values()[0]
	s.Require().NotNil(m.SpO2)
	s.Require().NotNil(m.HeartRate)
	s.Equal(95, *m.SpO2)
	s.Equal(60, *m.HeartRate)
}

func (s *SessionSuite) TestAcareStreamReassembly() {
	hc := s.connect()
	var got collector[codec.VendorCustom]

	stop, err := s.session.StartAcareCustom(s.ctx, hc.AcareData, hc.AcareCommand, hc.AcareSecondary, got.add, true)
	s.Require().NoError(err)
	defer func() { _ = stop(s.ctx) }()

	char := s.Char("0000aaaa-0000-1000-8000-00805f9b34fb", "0000aaac-0000-1000-8000-00805f9b34fb")
	s.True(char.Notify([]byte{0x81, 0x20}))
	s.True(char.Notify([]byte{0x05, 0x46, 0x62, 0x81}))
	s.Require().Eventually(func() bool { return len(got.values()) == 1 }, s.TestTimeout, 5*time.Millisecond)

	m := got.values()[0]
	s.Equal("berrymed-5", m.Layout)
	s.Equal(98, *m.SpO2)
	s.Equal(70, *m.HeartRate)
}

func (s *SessionSuite) TestAcareStreamFallsBackToVendorLayouts() {
	hc := s.connect()
	var got collector[codec.VendorCustom]

	stop, err := s.session.StartAcareCustom(s.ctx, hc.AcareData, nil, nil, got.add, true)
	s.Require().NoError(err)
	defer func() { _ = stop(s.ctx) }()

	char := s.Char("0000aaaa-0000-1000-8000-00805f9b34fb", "0000aaac-0000-1000-8000-00805f9b34fb")
	s.True(char.Notify([]byte{0x00, 0x00, 0x00, 0x46, 0x62}))
	s.True(char.Notify([]byte{0x00, 0x62, 0x46}))
	s.True(char.Notify([]byte{0x00, 0x00, 0x00, 0x00, 0x00}))
	s.Require().Eventually(func() bool { return len(got.values()) == 3 }, s.TestTimeout, 5*time.Millisecond)

	vals := got.values()
	s.Equal("berrymed-5", vals[0].Layout)
	s.Equal("header-spo2-hr", vals[1].Layout)
	for _, m := range vals[:2] {
		s.Require().True(m.Matched())
		s.Equal(98, *m.SpO2)
		s.Equal(70, *m.HeartRate)
	}
	s.Nil(vals[2].SpO2)
	s.Nil(vals[2].HeartRate)
	s.Equal("00 00 00 00 00", vals[2].RawHex)
}

func (s *SessionSuite) TestAcareFramePerNotification() {
	hc := s.connect()
	var got collector[codec.VendorCustom]

	stop, err := s.session.StartAcareCustom(s.ctx, hc.AcareData, nil, nil, got.add, false)
	s.Require().NoError(err)
	defer func() { _ = stop(s.ctx) }()

	char := s.Char("0000aaaa-0000-1000-8000-00805f9b34fb", "0000aaac-0000-1000-8000-00805f9b34fb")
	s.True(char.Notify([]byte{0x00, 0x00, 0x00, 0x46, 0x62}))
	s.True(char.Notify([]byte{0x00, 0x00, 0x00, 0x00, 0x00}))
	s.Require().Eventually(func() bool { return len(got.values()) == 2 }, s.TestTimeout, 5*time.Millisecond)

	vals := got.values()
	s.True(vals[0].Matched())
	s.False(vals[1].Matched())
	s.Equal("00 00 00 00 00", vals[1].RawHex)
	s.Len(s.Helper.EntriesWithMessage("Unrecognised vendor frame"), 1)
}

func (s *SessionSuite) TestReadOnce() {
	hc := s.connect()

	s.Run("heart rate", func() {
		m, err := s.session.ReadHeartRateOnce(s.ctx, hc.HeartRate)

		s.Require().NoError(err)
		s.Equal(80, *m.HeartRate)
	})

	s.Run("pulse oximeter", func() {
		m, err := s.session.ReadPulseOximeterOnce(s.ctx, hc.PulseOximeter)

		s.Require().NoError(err)
		s.InDelta(98, *m.SpO2, 1e-9)
		s.InDelta(72, *m.HeartRate, 1e-9)
	})

	s.Run("fora writes read command first", func() {
		m, err := s.session.ReadForaCustomOnce(s.ctx, hc.ForaCustom)

		s.Require().NoError(err)
		s.Equal(97, *m.SpO2)
		s.Equal(72, *m.HeartRate)
		char := s.Char("00001523-1212-efde-1523-785feabcd123", "00001524-1212-efde-1523-785feabcd123")
		s.Require().Len(char.Writes(), 1)
		s.Equal(ReadCommand, char.Writes()[0].Data)
		s.Equal(1, char.Reads())
	})

	s.Run("acare command characteristic is not readable", func() {
		_, err := s.session.ReadAcareCustomOnce(s.ctx, hc.AcareCommand)

		s.ErrorIs(err, device.ErrUnsupported)
		s.True(IsUnsupported(err))
		s.Len(s.Char("0000aaaa-0000-1000-8000-00805f9b34fb", "0000aaab-0000-1000-8000-00805f9b34fb").Writes(), 1)
	})

	s.Run("read failure", func() {
		s.Char("180d", "2a37").FailRead(errors.New("gatt read failed"))
		_, err := s.session.ReadHeartRateOnce(s.ctx, hc.HeartRate)

		s.Error(err)
		s.Contains(err.Error(), "failed to read 2a37")
	})

	s.Run("nil characteristic", func() {
		_, err := s.session.ReadForaCustomOnce(s.ctx, nil)

		s.Error(err)
	})
}

func (s *SessionSuite) TestExplore() {
	_, err := s.session.RequestDevice(s.ctx, device.RequestOptions{Address: s.Peripheral.Address()})
	s.Require().NoError(err)

	inv, err := s.session.Explore(s.ctx)
	s.Require().NoError(err)

	s.True(s.Peripheral.IsConnected())
	s.Equal(4, inv.Len())
	s.NotEmpty(s.Helper.EntriesWithMessage("Characteristic value"))
}

func (s *SessionSuite) TestStartFailureIsNotTracked() {
	hc := s.connect()
	s.Char("180d", "2a37").FailStart(errors.New("cccd write failed"))

	stop, err := s.session.StartHeartRate(s.ctx, hc.HeartRate, func(codec.HeartRate) {})
	s.Error(err)
	s.Nil(stop)
	s.Equal(0, s.session.ActiveSubscriptions())
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleep(ctx, time.Minute)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep ignored cancellation")
	}
}
