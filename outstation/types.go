package outstation

import (
	"fmt"
	"time"
)

// PointType identifies the measurement family of a point. Indices are scoped per type.
type PointType uint8

const (
	Binary PointType = iota
	Analog
)

func (t PointType) String() string {
	switch t {
	case Binary:
		return "binary"
	case Analog:
		return "analog"
	default:
		return fmt.Sprintf("PointType(%d)", uint8(t))
	}
}

// EventClass is the class a point reports its events in. Class0 means static only.
type EventClass uint8

const (
	Class0 EventClass = iota
	Class1
	Class2
	Class3
)

// StaticVariation and EventVariation name the object group/variation used on the wire.
type StaticVariation string
type EventVariation string

const (
	Group1Var2  StaticVariation = "Group1Var2"  // binary input with flags
	Group30Var4 StaticVariation = "Group30Var4" // 16-bit analog without flag
	Group30Var5 StaticVariation = "Group30Var5" // single-precision float with flag

	Group2Var2  EventVariation = "Group2Var2"  // binary event with absolute time
	Group32Var4 EventVariation = "Group32Var4" // 16-bit analog event with time
	Group32Var7 EventVariation = "Group32Var7" // single-precision float event with time
)

// Point is one configured slot of the outstation database.
type Point struct {
	Type            PointType
	Index           uint16
	Class           EventClass
	StaticVariation StaticVariation
	EventVariation  EventVariation
}

// EventMode controls event generation when a point is updated.
type EventMode int

const (
	EventModeDetect   EventMode = iota // event only when the value changed
	EventModeForce                     // always record an event
	EventModeSuppress                  // never record an event
)

// OperateType distinguishes select-before-operate from direct operate.
type OperateType int

const (
	OperateTypeSelectBeforeOperate OperateType = iota
	OperateTypeDirectOperate
	OperateTypeDirectOperateNoAck
)

func (o OperateType) String() string {
	switch o {
	case OperateTypeSelectBeforeOperate:
		return "SelectBeforeOperate"
	case OperateTypeDirectOperate:
		return "DirectOperate"
	case OperateTypeDirectOperateNoAck:
		return "DirectOperateNoAck"
	default:
		return fmt.Sprintf("OperateType(%d)", int(o))
	}
}

// CommandStatus is the status code returned to the master for a control request (IEEE 1815 table 11-5).
type CommandStatus uint8

const (
	CommandStatusSuccess CommandStatus = iota
	CommandStatusTimeout
	CommandStatusNoSelect
	CommandStatusFormatError
	CommandStatusNotSupported
	CommandStatusAlreadyActive
	CommandStatusHardwareError
	CommandStatusLocal
	CommandStatusTooManyOps
	CommandStatusNotAuthorized
	CommandStatusAutomationInhibit
	CommandStatusProcessingLimited
	CommandStatusOutOfRange
)

var commandStatusNames = map[CommandStatus]string{
	CommandStatusSuccess:           "SUCCESS",
	CommandStatusTimeout:           "TIMEOUT",
	CommandStatusNoSelect:          "NO_SELECT",
	CommandStatusFormatError:       "FORMAT_ERROR",
	CommandStatusNotSupported:      "NOT_SUPPORTED",
	CommandStatusAlreadyActive:     "ALREADY_ACTIVE",
	CommandStatusHardwareError:     "HARDWARE_ERROR",
	CommandStatusLocal:             "LOCAL",
	CommandStatusTooManyOps:        "TOO_MANY_OPS",
	CommandStatusNotAuthorized:     "NOT_AUTHORIZED",
	CommandStatusAutomationInhibit: "AUTOMATION_INHIBIT",
	CommandStatusProcessingLimited: "PROCESSING_LIMITED",
	CommandStatusOutOfRange:        "OUT_OF_RANGE",
}

func (s CommandStatus) String() string {
	if name, ok := commandStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CommandStatus(%d)", uint8(s))
}

// FunctionCode is an application layer function code.
type FunctionCode uint8

// Update is a single point write inside an update batch.
type Update struct {
	Type   PointType
	Index  uint16
	Binary bool
	Analog float64
	Mode   EventMode
}

// Event is one entry of a per-type event buffer.
type Event struct {
	Type   PointType
	Index  uint16
	Class  EventClass
	Binary bool
	Analog float64
	Time   time.Time
}

func (t PointType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
