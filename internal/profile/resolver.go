package profile

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/srg/healthlink/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Slot names a characteristic role the resolver fills.
type Slot int

const (
	SlotHeartRate Slot = iota + 1
	SlotPulseOximeter
	SlotForaCustom
	SlotAcareData
	SlotAcareCommand
	SlotAcareSecondary
)

func (s Slot) String() string {
	switch s {
	case SlotHeartRate:
		return "heart_rate"
	case SlotPulseOximeter:
		return "pulse_oximeter"
	case SlotForaCustom:
		return "fora_custom"
	case SlotAcareData:
		return "acare_data"
	case SlotAcareCommand:
		return "acare_command"
	case SlotAcareSecondary:
		return "acare_secondary"
	default:
		return "unknown"
	}
}

// Target is a service/characteristic pair to probe.
type Target struct {
	Service        string
	Characteristic string
}

// probePlan lists, per slot in probe order, the targets tried until one resolves.
// The spot-check characteristic is only probed when the continuous one is absent.
func probePlan() *orderedmap.OrderedMap[Slot, []Target] {
	plan := orderedmap.New[Slot, []Target]()
	plan.Set(SlotHeartRate, []Target{{HeartRateService, HeartRateMeasurement}})
	plan.Set(SlotPulseOximeter, []Target{
		{PulseOximeterService, PLXContinuous},
		{PulseOximeterService, PLXSpotCheck},
	})
	plan.Set(SlotForaCustom, []Target{{ForaService, ForaCharacteristic}})
	plan.Set(SlotAcareData, []Target{{AcareService, AcareData}})
	plan.Set(SlotAcareCommand, []Target{{AcareService, AcareCommand}})
	plan.Set(SlotAcareSecondary, []Target{{AcareSecondaryService, AcareSecondaryControl}})
	return plan
}

// Resolved holds the characteristics found on a peripheral. Absent ones are nil.
type Resolved struct {
	HeartRate      device.Characteristic
	PulseOximeter  device.Characteristic
	ForaCustom     device.Characteristic
	AcareData      device.Characteristic
	AcareCommand   device.Characteristic
	AcareSecondary device.Characteristic

	// SpotCheck is set when PulseOximeter is the spot-check characteristic.
	SpotCheck bool

	// Inventory is filled when no measurement characteristic was found.
	Inventory *Inventory
}

// HasMeasurementSource reports whether any characteristic that produces
// measurements was found.
func (r *Resolved) HasMeasurementSource() bool {
	return r.HeartRate != nil || r.PulseOximeter != nil || r.ForaCustom != nil || r.AcareData != nil
}

// Get returns the characteristic for slot, or nil.
func (r *Resolved) Get(slot Slot) device.Characteristic {
	switch slot {
	case SlotHeartRate:
		return r.HeartRate
	case SlotPulseOximeter:
		return r.PulseOximeter
	case SlotForaCustom:
		return r.ForaCustom
	case SlotAcareData:
		return r.AcareData
	case SlotAcareCommand:
		return r.AcareCommand
	case SlotAcareSecondary:
		return r.AcareSecondary
	default:
		return nil
	}
}

func (r *Resolved) set(slot Slot, c device.Characteristic) {
	switch slot {
	case SlotHeartRate:
		r.HeartRate = c
	case SlotPulseOximeter:
		r.PulseOximeter = c
	case SlotForaCustom:
		r.ForaCustom = c
	case SlotAcareData:
		r.AcareData = c
	case SlotAcareCommand:
		r.AcareCommand = c
	case SlotAcareSecondary:
		r.AcareSecondary = c
	}
}

// Resolve looks up a characteristic. Any failure, including a missing service,
// yields nil.
func Resolve(ctx context.Context, server device.Server, serviceUUID, charUUID string) device.Characteristic {
	return NewResolver(nil).Resolve(ctx, server, serviceUUID, charUUID)
}

func lookup(ctx context.Context, server device.Server, serviceUUID, charUUID string) (device.Characteristic, error) {
	if server == nil {
		return nil, device.ErrNotConnected
	}
	svc, err := server.PrimaryService(ctx, serviceUUID)
	if err != nil {
		return nil, err
	}
	return svc.Characteristic(ctx, charUUID)
}

// Resolver probes a connected server for the known health characteristics.
type Resolver struct {
	logger *logrus.Logger
}

// NewResolver creates a Resolver. A nil logger discards output.
func NewResolver(logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Resolver{logger: logger}
}

// Resolve looks up one characteristic. A failed lookup is logged at debug level and
// yields nil.
func (r *Resolver) Resolve(ctx context.Context, server device.Server, serviceUUID, charUUID string) device.Characteristic {
	c, err := lookup(ctx, server, serviceUUID, charUUID)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"service_uuid": serviceUUID,
			"char_uuid":    charUUID,
			"error":        err,
		}).Debug("Characteristic not available")
		return nil
	}
	return c
}

// ResolveAll probes every slot in order. When no measurement characteristic is
// found the server is enumerated once and the result returned in Inventory.
func (r *Resolver) ResolveAll(ctx context.Context, server device.Server) *Resolved {
	res := &Resolved{}

	for pair := probePlan().Oldest(); pair != nil; pair = pair.Next() {
		for i, t := range pair.Value {
			c, err := lookup(ctx, server, t.Service, t.Characteristic)
			if err != nil {
				r.logger.WithFields(logrus.Fields{
					"slot":         pair.Key.String(),
					"service_uuid": t.Service,
					"char_uuid":    t.Characteristic,
					"error":        err,
				}).Debug("Characteristic not available")
				continue
			}
			res.set(pair.Key, c)
			if pair.Key == SlotPulseOximeter && i > 0 {
				res.SpotCheck = true
			}
			r.logger.WithFields(logrus.Fields{
				"slot":         pair.Key.String(),
				"service_uuid": device.NormalizeUUID(t.Service),
				"char_uuid":    c.UUID(),
			}).Info("Found characteristic")
			break
		}
	}

	if !res.HasMeasurementSource() {
		r.logger.Warn("No supported measurement service found, listing available services")
		inv, err := r.Enumerate(ctx, server)
		if err != nil {
			r.logger.WithError(err).Warn("Failed to list services")
		}
		res.Inventory = inv
	}
	return res
}
