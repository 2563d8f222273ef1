package device

// PropertyFlags is the GATT characteristic properties bit field.
type PropertyFlags uint8

const (
	PropBroadcast   PropertyFlags = 0x01
	PropRead        PropertyFlags = 0x02
	PropWriteNR     PropertyFlags = 0x04
	PropWrite       PropertyFlags = 0x08
	PropNotify      PropertyFlags = 0x10
	PropIndicate    PropertyFlags = 0x20
	PropSignedWrite PropertyFlags = 0x40
	PropExtended    PropertyFlags = 0x80
)

// Property represents a single BLE characteristic property
type Property interface {
	Value() int
	KnownName() string
}

// Properties represent a collection of BLE characteristic properties
type Properties interface {
	Broadcast() Property
	Read() Property
	Write() Property
	WriteWithoutResponse() Property
	Notify() Property
	Indicate() Property
	AuthenticatedSignedWrites() Property
	ExtendedProperties() Property
}

// flagProperty represents a single BLE characteristic property with its bit flag value and human-readable name.
type flagProperty struct {
	value PropertyFlags
	name  string
}

func (p *flagProperty) Value() int        { return int(p.value) }
func (p *flagProperty) KnownName() string { return p.name }

// flagProperties implements Properties over a PropertyFlags bit field.
type flagProperties struct {
	flags PropertyFlags
}

// NewProperties creates a Properties instance from GATT property bits.
func NewProperties(flags PropertyFlags) Properties {
	return &flagProperties{flags: flags}
}

func (p *flagProperties) get(bit PropertyFlags, name string) Property {
	if p.flags&bit == 0 {
		return nil
	}
	return &flagProperty{value: bit, name: name}
}

// Broadcast returns the Broadcast property if present, nil otherwise.
func (p *flagProperties) Broadcast() Property { return p.get(PropBroadcast, "Broadcast") }

// Read returns the Read property if present, nil otherwise.
func (p *flagProperties) Read() Property { return p.get(PropRead, "Read") }

// Write returns the Write property if present, nil otherwise.
func (p *flagProperties) Write() Property { return p.get(PropWrite, "Write") }

// WriteWithoutResponse returns the WriteWithoutResponse property if present, nil otherwise.
func (p *flagProperties) WriteWithoutResponse() Property {
	return p.get(PropWriteNR, "WriteWithoutResponse")
}

// Notify returns the Notify property if present, nil otherwise.
func (p *flagProperties) Notify() Property { return p.get(PropNotify, "Notify") }

// Indicate returns the Indicate property if present, nil otherwise.
func (p *flagProperties) Indicate() Property { return p.get(PropIndicate, "Indicate") }

// AuthenticatedSignedWrites returns the AuthenticatedSignedWrites property if present, nil otherwise.
func (p *flagProperties) AuthenticatedSignedWrites() Property {
	return p.get(PropSignedWrite, "AuthenticatedSignedWrites")
}

// ExtendedProperties returns the ExtendedProperties property if present, nil otherwise.
func (p *flagProperties) ExtendedProperties() Property {
	return p.get(PropExtended, "ExtendedProperties")
}

// PropertyNames lists the names of the properties present, in bit order.
func PropertyNames(p Properties) []string {
	if p == nil {
		return nil
	}
	var names []string
	for _, prop := range []Property{
		p.Broadcast(), p.Read(), p.WriteWithoutResponse(), p.Write(),
		p.Notify(), p.Indicate(), p.AuthenticatedSignedWrites(), p.ExtendedProperties(),
	} {
		if prop != nil {
			names = append(names, prop.KnownName())
		}
	}
	return names
}

// CanRead reports whether c supports reads.
func CanRead(c CharacteristicInfo) bool {
	return c != nil && c.Properties() != nil && c.Properties().Read() != nil
}

// CanWrite reports whether c accepts writes with or without response.
func CanWrite(c CharacteristicInfo) bool {
	if c == nil || c.Properties() == nil {
		return false
	}
	p := c.Properties()
	return p.Write() != nil || p.WriteWithoutResponse() != nil
}

// CanNotify reports whether c supports notifications or indications.
func CanNotify(c CharacteristicInfo) bool {
	if c == nil || c.Properties() == nil {
		return false
	}
	p := c.Properties()
	return p.Notify() != nil || p.Indicate() != nil
}
