package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/healthlink/internal/codec"
	"github.com/srg/healthlink/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CharacteristicEntry describes one discovered characteristic.
type CharacteristicEntry struct {
	UUID       string   `json:"uuid"`
	Name       string   `json:"name,omitempty"`
	Properties []string `json:"properties"`
	Value      []byte   `json:"-"`
	ValueHex   string   `json:"value,omitempty"`
	ReadError  string   `json:"read_error,omitempty"`
}

// ServiceEntry describes one discovered service.
type ServiceEntry struct {
	UUID            string                `json:"uuid"`
	Name            string                `json:"name,omitempty"`
	Characteristics []CharacteristicEntry `json:"characteristics"`
	Error           string                `json:"error,omitempty"`
}

// Inventory is the discovered GATT layout, keyed by normalized service UUID in
// discovery order.
type Inventory struct {
	Services *orderedmap.OrderedMap[string, *ServiceEntry]
}

func newInventory() *Inventory {
	return &Inventory{Services: orderedmap.New[string, *ServiceEntry]()}
}

// Len returns the number of services.
func (inv *Inventory) Len() int {
	if inv == nil || inv.Services == nil {
		return 0
	}
	return inv.Services.Len()
}

// Each calls fn for every service in discovery order.
func (inv *Inventory) Each(fn func(*ServiceEntry)) {
	if inv == nil || inv.Services == nil {
		return
	}
	for pair := inv.Services.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Value)
	}
}

// MarshalJSON renders the inventory as an ordered object of services.
func (inv *Inventory) MarshalJSON() ([]byte, error) {
	if inv == nil || inv.Services == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(inv.Services)
}

// Enumerate lists every service and characteristic with its properties. Failures
// listing one service's characteristics are recorded on that service and do not stop
// the walk.
func (r *Resolver) Enumerate(ctx context.Context, server device.Server) (*Inventory, error) {
	return r.walk(ctx, server, false)
}

// Explore is Enumerate plus a read of every readable characteristic.
func (r *Resolver) Explore(ctx context.Context, server device.Server) (*Inventory, error) {
	return r.walk(ctx, server, true)
}

func (r *Resolver) walk(ctx context.Context, server device.Server, read bool) (*Inventory, error) {
	inv := newInventory()
	if server == nil {
		return inv, device.ErrNotConnected
	}

	services, err := server.PrimaryServices(ctx)
	if err != nil {
		return inv, fmt.Errorf("failed to list services: %w", err)
	}
	r.logger.WithField("services", len(services)).Info("Device services")

	for _, svc := range services {
		entry := &ServiceEntry{
			UUID:            svc.UUID(),
			Name:            svc.KnownName(),
			Characteristics: []CharacteristicEntry{},
		}
		inv.Services.Set(entry.UUID, entry)
		r.logger.WithFields(logrus.Fields{
			"service_uuid": entry.UUID,
			"name":         entry.Name,
		}).Info("Service")

		chars, err := svc.Characteristics(ctx)
		if err != nil {
			entry.Error = err.Error()
			r.logger.WithFields(logrus.Fields{
				"service_uuid": entry.UUID,
				"error":        err,
			}).Warn("Failed to list characteristics")
			continue
		}

		for _, c := range chars {
			ce := CharacteristicEntry{
				UUID:       c.UUID(),
				Name:       c.KnownName(),
				Properties: device.PropertyNames(c.Properties()),
			}
			if read && device.CanRead(c) {
				v, err := c.Read(ctx)
				if err != nil {
					ce.ReadError = err.Error()
				} else {
					ce.Value = v
					ce.ValueHex = codec.HexString(v)
				}
			}
			entry.Characteristics = append(entry.Characteristics, ce)

			fields := logrus.Fields{
				"service_uuid": entry.UUID,
				"char_uuid":    ce.UUID,
				"properties":   ce.Properties,
			}
			if ce.ValueHex != "" {
				fields["raw_hex"] = ce.ValueHex
			}
			if ce.ReadError != "" {
				fields["error"] = ce.ReadError
			}
			r.logger.WithFields(fields).Info("Characteristic")
		}
	}
	return inv, nil
}
