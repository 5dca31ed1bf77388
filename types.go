package scadabridge

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandField identifies one of the values the master can command. The numeric value is the
// analog output index the master addresses it with.
type CommandField uint8

const (
	FieldProductionConstraintSetpoint CommandField = iota
	FieldGradientRampUp
	FieldGradientRampDown
	numCommandFields
)

func (f CommandField) String() string {
	switch f {
	case FieldProductionConstraintSetpoint:
		return "production_constraint_setpoint"
	case FieldGradientRampUp:
		return "gradient_ramp_up"
	case FieldGradientRampDown:
		return "gradient_ramp_down"
	default:
		return fmt.Sprintf("CommandField(%d)", uint8(f))
	}
}

// CommandValues as commanded from the SCADA master to the outstation. Every field stays in
// [0,100]; the setters reject anything else and keep the previous value.
type CommandValues struct {
	ProductionConstraintSetpoint float64 `json:"production_constraint_setpoint"` // %
	GradientRampUp               float64 `json:"gradient_ramp_up"`               // %/min
	GradientRampDown             float64 `json:"gradient_ramp_down"`             // %/min
}

// DefaultCommandValues returns the unconstrained plant state with 5 %/min gradients.
func DefaultCommandValues() CommandValues {
	return CommandValues{
		ProductionConstraintSetpoint: 100,
		GradientRampUp:               5,
		GradientRampDown:             5,
	}
}

// NewCommandValues validates all three fields.
func NewCommandValues(setpoint, rampUp, rampDown float64) (CommandValues, error) {
	var c CommandValues
	for field, v := range [numCommandFields]float64{setpoint, rampUp, rampDown} {
		if err := c.Set(CommandField(field), v); err != nil {
			return CommandValues{}, err
		}
	}
	return c, nil
}

func validCommandValue(v float64) bool {
	return v >= 0 && v <= 100
}

// Set assigns a field after checking the [0,100] range.
func (c *CommandValues) Set(field CommandField, v float64) error {
	if field >= numCommandFields {
		return fmt.Errorf("%w: %d", ErrUnsupportedIndex, field)
	}
	if !validCommandValue(v) {
		return fmt.Errorf("%w: %s=%v", ErrInvalidSetpoint, field, v)
	}
	switch field {
	case FieldProductionConstraintSetpoint:
		c.ProductionConstraintSetpoint = v
	case FieldGradientRampUp:
		c.GradientRampUp = v
	case FieldGradientRampDown:
		c.GradientRampDown = v
	}
	return nil
}

func (c *CommandValues) SetProductionConstraintSetpoint(v float64) error {
	return c.Set(FieldProductionConstraintSetpoint, v)
}

func (c *CommandValues) SetGradientRampUp(v float64) error {
	return c.Set(FieldGradientRampUp, v)
}

func (c *CommandValues) SetGradientRampDown(v float64) error {
	return c.Set(FieldGradientRampDown, v)
}

// Get returns the value of a field, 0 for unknown fields.
func (c CommandValues) Get(field CommandField) float64 {
	switch field {
	case FieldProductionConstraintSetpoint:
		return c.ProductionConstraintSetpoint
	case FieldGradientRampUp:
		return c.GradientRampUp
	case FieldGradientRampDown:
		return c.GradientRampDown
	default:
		return 0
	}
}

// FlagProductionConstraint is set while production is limited below 100 %.
func (c CommandValues) FlagProductionConstraint() bool {
	return c.ProductionConstraintSetpoint != 100
}

// FlagGradientConstraint is set unless both gradients are unrestricted.
func (c CommandValues) FlagGradientConstraint() bool {
	return !(c.GradientRampUp == 100 && c.GradientRampDown == 100)
}

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindFloat ValueKind = iota
	KindBool
	KindInt
)

func (k ValueKind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	default:
		return fmt.Sprintf("ValueKind(%d)", uint8(k))
	}
}

// Value is a telemetry value of one of the supported kinds.
type Value struct {
	kind ValueKind
	f    float64
	b    bool
}

func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }
func BoolValue(v bool) Value     { return Value{kind: KindBool, b: v} }

// IntValue truncates toward zero.
func IntValue(v float64) Value { return Value{kind: KindInt, f: float64(int64(v))} }

func (v Value) Kind() ValueKind { return v.kind }

// Float returns the numeric value; booleans map to 0 and 1.
func (v Value) Float() float64 {
	if v.kind == KindBool {
		if v.b {
			return 1
		}
		return 0
	}
	return v.f
}

// Bool returns the boolean value; numbers are true when non-zero.
func (v Value) Bool() bool {
	if v.kind == KindBool {
		return v.b
	}
	return v.f != 0
}

// Payload renders the value the way it is published on the bus.
func (v Value) Payload() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return PayloadOn
		}
		return PayloadOff
	case KindInt:
		return strconv.FormatInt(int64(v.f), 10)
	default:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	}
}

func (v Value) String() string {
	return v.Payload()
}

// ParseValue parses a bus payload for a channel of the given kind. Numeric payloads are
// multiplied by the multiplier before the kind conversion.
func ParseValue(kind ValueKind, payload string, multiplier float64) (Value, error) {
	s := strings.TrimSpace(payload)
	if kind == KindBool {
		switch strings.ToUpper(s) {
		case PayloadOn:
			return BoolValue(true), nil
		case PayloadOff:
			return BoolValue(false), nil
		default:
			return Value{}, fmt.Errorf("%w: %q is neither %s nor %s", ErrInvalidPayload, payload, PayloadOn, PayloadOff)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q: %v", ErrInvalidPayload, payload, err)
	}
	if kind == KindInt {
		return IntValue(f * multiplier), nil
	}
	return FloatValue(f * multiplier), nil
}
