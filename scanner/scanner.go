package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/healthlink/internal/device"
	"github.com/srg/healthlink/internal/notify"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type          DeviceEventType
	Advertisement device.Advertisement
}

// Scanner handles BLE device discovery
type Scanner struct {
	adapter device.Adapter
	devices *hashmap.Map[string, device.Advertisement]
	events  *notify.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	scanOptions *ScanOptions
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	NamePrefix      string
	ServiceUUIDs    []string
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// NewScanner creates a new BLE scanner
func NewScanner(adapter device.Adapter, logger *logrus.Logger) (*Scanner, error) {
	if adapter == nil {
		return nil, device.ErrBluetoothUnavailable
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		adapter: adapter,
		devices: hashmap.New[string, device.Advertisement](),
		events:  notify.NewRingChannel[DeviceEvent](100),
		logger:  logger,
	}, nil
}

// Scan performs BLE discovery with provided options. It returns when the duration
// elapses or ctx is done; both count as a normal end of the scan.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]device.Advertisement, error) {
	s.devices = hashmap.New[string, device.Advertisement]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()
	err := s.adapter.Scan(scanCtx, !opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", device.NormalizeError(err))
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	return s.Devices(), nil
}

// Devices returns a snapshot of discovered devices, strongest signal first.
func (s *Scanner) Devices() []device.Advertisement {
	devs := make([]device.Advertisement, 0, s.devices.Len())
	s.devices.Range(func(_ string, adv device.Advertisement) bool {
		devs = append(devs, adv)
		return true
	})
	sort.SliceStable(devs, func(i, j int) bool {
		if devs[i].RSSI() != devs[j].RSSI() {
			return devs[i].RSSI() > devs[j].RSSI()
		}
		return devs[i].Addr() < devs[j].Addr()
	})
	return devs
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	deviceID := device.NormalizeAddress(adv.Addr())

	_, existing := s.devices.Get(deviceID)
	if !existing && !s.shouldIncludeDevice(adv, s.scanOptions) {
		return
	}
	s.devices.Set(deviceID, adv)

	event := DeviceEvent{Advertisement: adv, Type: EventNew}
	if existing {
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  adv.LocalName(),
			"address": adv.Addr(),
			"rssi":    adv.RSSI(),
		}).Info("Discovered new device")
	}

	s.events.Send(event)
}

// shouldIncludeDevice applies to allow/block/name/service filters
func (s *Scanner) shouldIncludeDevice(adv device.Advertisement, opts *ScanOptions) bool {
	if opts == nil {
		return true
	}
	addr := adv.Addr()

	for _, blocked := range opts.BlockList {
		if device.SameAddress(addr, blocked) {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if device.SameAddress(addr, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if opts.NamePrefix != "" && !strings.HasPrefix(adv.LocalName(), opts.NamePrefix) {
		return false
	}

	if len(opts.ServiceUUIDs) > 0 && !advertisesAny(adv, opts.ServiceUUIDs) {
		return false
	}

	return true
}

// NextEvent blocks until a discovery event is available or ctx is done.
func (s *Scanner) NextEvent(ctx context.Context) (DeviceEvent, error) {
	return s.events.Receive(ctx)
}

func advertisesAny(adv device.Advertisement, uuids []string) bool {
	for _, required := range uuids {
		for _, advUUID := range adv.Services() {
			if device.SameUUID(required, advUUID) {
				return true
			}
		}
	}
	return false
}
