package scadabridge

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/dernate/scadabridge/outstation"
)

// CommandState tracks the select-before-operate handshake.
type CommandState int32

const (
	StateIdle CommandState = iota
	StateSelectPending
	StateOperated
)

func (s CommandState) String() string {
	if name, ok := commandStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CommandState(%d)", int32(s))
}

// CommandResult describes one handled Operate request.
type CommandResult struct {
	Index    uint16
	Field    CommandField
	OpType   outstation.OperateType
	Previous float64
	Value    float64
	Status   outstation.CommandStatus
	Err      error
}

func (r CommandResult) Succeeded() bool {
	return r.Err == nil
}

// CommandHandler receives analog output commands from the outstation. Fields are written on
// the caller goroutine; everything else is handed to the dispatcher.
type CommandHandler struct {
	fields     [numCommandFields]atomic.Uint64
	state      atomic.Int32
	dispatcher *Dispatcher
	onResult   func(CommandResult)
}

// NewCommandHandler creates a handler holding initial. onResult runs on the dispatcher once
// per Operate request.
func NewCommandHandler(initial CommandValues, d *Dispatcher, onResult func(CommandResult)) *CommandHandler {
	h := &CommandHandler{dispatcher: d, onResult: onResult}
	for f := CommandField(0); f < numCommandFields; f++ {
		h.store(f, initial.Get(f))
	}
	return h
}

func (h *CommandHandler) load(f CommandField) float64 {
	return math.Float64frombits(h.fields[f].Load())
}

func (h *CommandHandler) store(f CommandField, v float64) {
	h.fields[f].Store(math.Float64bits(v))
}

// Values returns a snapshot. Fields are read one by one, so a concurrent Operate may be seen
// for one field and not yet for another.
func (h *CommandHandler) Values() CommandValues {
	return CommandValues{
		ProductionConstraintSetpoint: h.load(FieldProductionConstraintSetpoint),
		GradientRampUp:               h.load(FieldGradientRampUp),
		GradientRampDown:             h.load(FieldGradientRampDown),
	}
}

func (h *CommandHandler) State() CommandState {
	return CommandState(h.state.Load())
}

func (h *CommandHandler) Begin() {}

func (h *CommandHandler) End() {}

// Select accepts every index; validation happens on Operate.
func (h *CommandHandler) Select(index uint16, value float64) outstation.CommandStatus {
	h.state.Store(int32(StateSelectPending))
	LogInfo(fmt.Sprintf("ao%d", index), "Select", fmt.Sprintf("value=%v", value))
	return outstation.CommandStatusSuccess
}

// Operate validates and stores the commanded value.
func (h *CommandHandler) Operate(index uint16, value float64, opType outstation.OperateType) outstation.CommandStatus {
	res := CommandResult{Index: index, OpType: opType, Value: value}
	field, err := OutputField(index)
	if err == nil {
		res.Field = field
		res.Previous = h.load(field)
		if !validCommandValue(value) {
			err = fmt.Errorf("%w: %s=%v", ErrInvalidSetpoint, field, value)
		}
	}
	if err != nil {
		res.Err = err
		res.Status = StatusFor(err)
		h.state.Store(int32(StateIdle))
		LogWarn(fmt.Sprintf("ao%d", index), "Operate", fmt.Sprintf("%s rejected: %v", opType, err))
		h.deliver(res)
		return res.Status
	}

	h.store(field, value)
	h.state.Store(int32(StateOperated))
	res.Status = outstation.CommandStatusSuccess
	LogInfo(field.String(), "Operate", fmt.Sprintf("%s %v -> %v", opType, res.Previous, value))
	h.deliver(res)
	h.state.Store(int32(StateIdle))
	return res.Status
}

func (h *CommandHandler) PerformFunction(name string, code outstation.FunctionCode) outstation.CommandStatus {
	LogInfo("", "PerformFunction", fmt.Sprintf("%s (function code %d)", name, code))
	return outstation.CommandStatusSuccess
}

func (h *CommandHandler) deliver(res CommandResult) {
	if h.onResult == nil || h.dispatcher == nil {
		return
	}
	if !h.dispatcher.Dispatch(func() { h.onResult(res) }) {
		LogWarn(res.Field.String(), "Operate", "dispatcher stopped, result not relayed")
	}
}
