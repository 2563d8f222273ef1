package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/healthlink/internal/device"
)

var propertyBits = []struct {
	ble  ble.Property
	flag device.PropertyFlags
}{
	{ble.CharBroadcast, device.PropBroadcast},
	{ble.CharRead, device.PropRead},
	{ble.CharWriteNR, device.PropWriteNR},
	{ble.CharWrite, device.PropWrite},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
	{ble.CharSignedWrite, device.PropSignedWrite},
	{ble.CharExtended, device.PropExtended},
}

// propertyFlags converts go-ble characteristic properties.
func propertyFlags(p ble.Property) device.PropertyFlags {
	var flags device.PropertyFlags
	for _, b := range propertyBits {
		if p&b.ble != 0 {
			flags |= b.flag
		}
	}
	return flags
}

// NewProperties creates device.Properties from go-ble property bits.
func NewProperties(p ble.Property) device.Properties {
	return device.NewProperties(propertyFlags(p))
}
