package scadabridge

import (
	"fmt"

	"github.com/dernate/scadabridge/outstation"
)

// Address locates a channel in the outstation database.
type Address struct {
	Type  outstation.PointType
	Index uint16
}

func (a Address) String() string {
	return fmt.Sprintf("%s[%d]", a.Type, a.Index)
}

// AddressOf returns the point a channel is reported on.
func AddressOf(id ChannelID) (Address, error) {
	if id >= numChannels {
		return Address{}, fmt.Errorf("%w: channel %d", ErrAddress, id)
	}
	return channelDefs[id].address, nil
}

// ChannelAt is the inverse of AddressOf.
func ChannelAt(a Address) (ChannelID, error) {
	for id, def := range channelDefs {
		if def.address == a {
			return ChannelID(id), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrAddress, a)
}

// BinaryIndex returns the binary input index of the named channel.
func BinaryIndex(name string) (uint16, error) {
	return indexByName(outstation.Binary, name)
}

// AnalogIndex returns the analog input index of the named channel.
func AnalogIndex(name string) (uint16, error) {
	return indexByName(outstation.Analog, name)
}

func indexByName(t outstation.PointType, name string) (uint16, error) {
	for _, def := range channelDefs {
		if def.name == name && def.address.Type == t {
			return def.address.Index, nil
		}
	}
	return 0, fmt.Errorf("%w: no %s point named %q", ErrAddress, t, name)
}

func ValidateBinary(index uint16) error {
	if index >= numBinaryPoints {
		return fmt.Errorf("%w: binary index %d", ErrAddress, index)
	}
	return nil
}

func ValidateAnalog(index uint16) error {
	if index >= numAnalogPoints {
		return fmt.Errorf("%w: analog index %d", ErrAddress, index)
	}
	return nil
}

// OutputField maps an analog output index to the command field it controls.
func OutputField(index uint16) (CommandField, error) {
	if index >= uint16(numCommandFields) {
		return 0, fmt.Errorf("%w: analog output %d", ErrUnsupportedIndex, index)
	}
	return CommandField(index), nil
}

// PointLayout returns the database layout exposed to the master. Binary inputs report in
// class 1, analog inputs in class 2; the measured powers use float variations, the echoed
// command values 16-bit ones.
func PointLayout() outstation.DatabaseConfig {
	var db outstation.DatabaseConfig
	for i := uint16(0); i < numBinaryPoints; i++ {
		db.Binary = append(db.Binary, outstation.Point{
			Type:            outstation.Binary,
			Index:           i,
			Class:           outstation.Class1,
			StaticVariation: outstation.Group1Var2,
			EventVariation:  outstation.Group2Var2,
		})
	}
	for i := uint16(0); i < numAnalogPoints; i++ {
		p := outstation.Point{
			Type:            outstation.Analog,
			Index:           i,
			Class:           outstation.Class2,
			StaticVariation: outstation.Group30Var5,
			EventVariation:  outstation.Group32Var7,
		}
		if i >= AnalogProductionConstraint {
			p.StaticVariation = outstation.Group30Var4
			p.EventVariation = outstation.Group32Var4
		}
		db.Analog = append(db.Analog, p)
	}
	return db
}
