package scadabridge

import (
	"time"

	"github.com/dernate/scadabridge/outstation"
)

const (
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
	PayloadOnline  = "online"
	PayloadOffline = "offline"

	// DefaultStepInterval is the period between two ramp steps.
	DefaultStepInterval = 5 * time.Second

	discoveryPrefix = "homeassistant"
	discoveryNode   = "scada"
	uniqueIDPrefix  = "CoCT_scada_"
)

// Binary input indices
const (
	BinaryProductionConstraint uint16 = 0
	BinaryGradientConstraint   uint16 = 1
	numBinaryPoints                   = 2
)

// Analog input indices. Powers are in W and var, echoes in % and %/min.
const (
	AnalogTotalPower              uint16 = 0
	AnalogReactivePower           uint16 = 1
	AnalogExportedOrImportedPower uint16 = 2
	AnalogProductionConstraint    uint16 = 3
	AnalogPowerGradientRampUp     uint16 = 4
	AnalogPowerGradientRampDown   uint16 = 5
	numAnalogPoints                      = 6
)

// ChannelID enumerates the telemetry channels of the bridge.
type ChannelID uint8

const (
	ChannelPlantACPowerGenerated ChannelID = iota
	ChannelGridReactivePower
	ChannelGridExportedPower
	ChannelProductionConstraintSetpoint
	ChannelGradientRampUp
	ChannelGradientRampDown
	ChannelFlagProductionConstraint
	ChannelFlagGradientConstraint
	numChannels
)

// EntityKind is the Home Assistant platform an entity is announced on.
type EntityKind string

const (
	KindSensor EntityKind = "sensor"
	KindSwitch EntityKind = "switch"
)

type channelDef struct {
	name        string
	kind        ValueKind
	entity      EntityKind
	deviceClass string
	unit        string
	address     Address
}

var channelDefs = [numChannels]channelDef{
	ChannelPlantACPowerGenerated: {
		name: "plant_ac_power_generated", kind: KindFloat, entity: KindSensor,
		deviceClass: "power", unit: "W",
		address: Address{Type: outstation.Analog, Index: AnalogTotalPower},
	},
	ChannelGridReactivePower: {
		name: "grid_reactive_power", kind: KindFloat, entity: KindSensor,
		deviceClass: "reactive_power", unit: "var",
		address: Address{Type: outstation.Analog, Index: AnalogReactivePower},
	},
	ChannelGridExportedPower: {
		name: "grid_exported_power", kind: KindFloat, entity: KindSensor,
		deviceClass: "power", unit: "W",
		address: Address{Type: outstation.Analog, Index: AnalogExportedOrImportedPower},
	},
	ChannelProductionConstraintSetpoint: {
		name: "production_constraint_setpoint", kind: KindFloat, entity: KindSensor,
		unit:    "%",
		address: Address{Type: outstation.Analog, Index: AnalogProductionConstraint},
	},
	ChannelGradientRampUp: {
		name: "gradient_ramp_up", kind: KindFloat, entity: KindSensor,
		unit:    "%/min",
		address: Address{Type: outstation.Analog, Index: AnalogPowerGradientRampUp},
	},
	ChannelGradientRampDown: {
		name: "gradient_ramp_down", kind: KindFloat, entity: KindSensor,
		unit:    "%/min",
		address: Address{Type: outstation.Analog, Index: AnalogPowerGradientRampDown},
	},
	ChannelFlagProductionConstraint: {
		name: "flag_production_constraint", kind: KindBool, entity: KindSwitch,
		address: Address{Type: outstation.Binary, Index: BinaryProductionConstraint},
	},
	ChannelFlagGradientConstraint: {
		name: "flag_gradient_constraint", kind: KindBool, entity: KindSwitch,
		address: Address{Type: outstation.Binary, Index: BinaryGradientConstraint},
	},
}

func (id ChannelID) String() string {
	if id < numChannels {
		return channelDefs[id].name
	}
	return "unknown"
}

// commandChannels maps each command field to the channel that mirrors it.
var commandChannels = [numCommandFields]ChannelID{
	FieldProductionConstraintSetpoint: ChannelProductionConstraintSetpoint,
	FieldGradientRampUp:               ChannelGradientRampUp,
	FieldGradientRampDown:             ChannelGradientRampDown,
}

var deviceInfo = Device{
	Manufacturer: "CoCT Addon",
	Model:        "Virtual DNP3 Device",
	Identifiers:  []string{"CoCT_DNP3_virtual"},
	Name:         "CoCT_DNP3_virtual",
}

var commandStateNames = map[CommandState]string{
	StateIdle:          "Idle",
	StateSelectPending: "SelectPending",
	StateOperated:      "Operated",
}
