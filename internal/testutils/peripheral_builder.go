package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/srg/healthlink/internal/device"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Name     string          `json:"name,omitempty"`
	Address  string          `json:"address,omitempty"`
	Services []ServiceConfig `json:"services"`
}

const (
	DefaultPeripheralName    = "Mock Oximeter"
	DefaultPeripheralAddress = "AA:BB:CC:DD:EE:FF"
)

// PeripheralBuilder builds in-memory peripherals with full service/characteristic support
type PeripheralBuilder struct {
	profile DeviceProfileConfig
}

// NewPeripheralBuilder creates a new peripheral builder
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{
		profile: DeviceProfileConfig{
			Name:     DefaultPeripheralName,
			Address:  DefaultPeripheralAddress,
			Services: []ServiceConfig{},
		},
	}
}

func (b *PeripheralBuilder) WithName(name string) *PeripheralBuilder {
	b.profile.Name = name
	return b
}

func (b *PeripheralBuilder) WithAddress(address string) *PeripheralBuilder {
	b.profile.Address = address
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// FromJSON fills the device profile from JSON. Name and address keep their current
// values unless the JSON sets them.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	config := DeviceProfileConfig{Name: b.profile.Name, Address: b.profile.Address}
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// Profile returns the configured profile.
func (b *PeripheralBuilder) Profile() DeviceProfileConfig {
	return b.profile
}

// Build creates the peripheral. It starts disconnected.
func (b *PeripheralBuilder) Build() *Peripheral {
	p := &Peripheral{
		name:    b.profile.Name,
		address: b.profile.Address,
	}
	for _, svcConfig := range b.profile.Services {
		svc := &Service{uuid: svcConfig.UUID}
		for _, charConfig := range svcConfig.Characteristics {
			svc.chars = append(svc.chars, newCharacteristic(
				charConfig.UUID,
				ParseProperties(charConfig.Properties),
				charConfig.Value,
			))
		}
		p.services = append(p.services, svc)
	}
	return p
}

// ParseProperties converts a comma separated property list ("read,write,notify") to
// GATT property flags. An empty list means read, write and notify.
func ParseProperties(props string) device.PropertyFlags {
	if strings.TrimSpace(props) == "" {
		return device.PropRead | device.PropWrite | device.PropNotify // default
	}

	var flags device.PropertyFlags
	for _, p := range strings.Split(props, ",") {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "broadcast":
			flags |= device.PropBroadcast
		case "read":
			flags |= device.PropRead
		case "write-without-response", "writenr":
			flags |= device.PropWriteNR
		case "write":
			flags |= device.PropWrite
		case "notify":
			flags |= device.PropNotify
		case "indicate":
			flags |= device.PropIndicate
		case "signed-write":
			flags |= device.PropSignedWrite
		case "extended":
			flags |= device.PropExtended
		default:
			panic(fmt.Sprintf("ParseProperties: unknown property %q", p))
		}
	}
	return flags
}
