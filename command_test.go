package scadabridge

import (
	"errors"
	"sync"
	"testing"

	"github.com/dernate/scadabridge/outstation"
)

type resultLog struct {
	mu      sync.Mutex
	results []CommandResult
}

func (l *resultLog) add(r CommandResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
}

func (l *resultLog) all() []CommandResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]CommandResult(nil), l.results...)
}

func newTestHandler(t *testing.T) (*CommandHandler, *Dispatcher, *resultLog) {
	t.Helper()
	d := NewDispatcher(nil)
	d.Start()
	t.Cleanup(d.Stop)
	log := &resultLog{}
	return NewCommandHandler(DefaultCommandValues(), d, log.add), d, log
}

func TestOperateStoresValue(t *testing.T) {
	h, d, log := newTestHandler(t)

	if st := h.Select(0, 42.5); st != outstation.CommandStatusSuccess {
		t.Fatalf("Select = %s", st)
	}
	if h.State() != StateSelectPending {
		t.Errorf("state = %s, want SelectPending", h.State())
	}
	if st := h.Operate(0, 42.5, outstation.OperateTypeSelectBeforeOperate); st != outstation.CommandStatusSuccess {
		t.Fatalf("Operate = %s", st)
	}
	if got := h.Values().ProductionConstraintSetpoint; got != 42.5 {
		t.Errorf("setpoint = %v, want 42.5", got)
	}
	if h.State() != StateIdle {
		t.Errorf("state = %s, want Idle", h.State())
	}

	barrier(t, d)
	res := log.all()
	if len(res) != 1 {
		t.Fatalf("results = %d, want 1", len(res))
	}
	r := res[0]
	if !r.Succeeded() || r.Field != FieldProductionConstraintSetpoint || r.Previous != 100 || r.Value != 42.5 {
		t.Errorf("result = %+v", r)
	}
}

func TestOperateRejects(t *testing.T) {
	tests := []struct {
		name   string
		index  uint16
		value  float64
		status outstation.CommandStatus
		err    error
	}{
		{"above range", 1, 150, outstation.CommandStatusOutOfRange, ErrInvalidSetpoint},
		{"negative", 0, -0.5, outstation.CommandStatusOutOfRange, ErrInvalidSetpoint},
		{"unknown index", 7, 10, outstation.CommandStatusNotSupported, ErrUnsupportedIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, d, log := newTestHandler(t)
			before := h.Values()

			h.Select(tt.index, tt.value)
			if st := h.Operate(tt.index, tt.value, outstation.OperateTypeSelectBeforeOperate); st != tt.status {
				t.Errorf("status = %s, want %s", st, tt.status)
			}
			if h.State() != StateIdle {
				t.Errorf("state = %s after a rejected operate, want Idle", h.State())
			}
			if h.Values() != before {
				t.Errorf("values changed to %+v", h.Values())
			}

			barrier(t, d)
			res := log.all()
			if len(res) != 1 {
				t.Fatalf("results = %d, want 1", len(res))
			}
			if !errors.Is(res[0].Err, tt.err) || res[0].Status != tt.status {
				t.Errorf("result = %+v", res[0])
			}
		})
	}
}

func TestOperateBoundaries(t *testing.T) {
	h, _, _ := newTestHandler(t)
	for _, v := range []float64{0, 100} {
		if st := h.Operate(2, v, outstation.OperateTypeDirectOperate); st != outstation.CommandStatusSuccess {
			t.Errorf("Operate(%v) = %s", v, st)
		}
	}
	if got := h.Values().GradientRampDown; got != 100 {
		t.Errorf("ramp down = %v, want 100", got)
	}
}

func TestHandlerThroughOutstation(t *testing.T) {
	h, _, _ := newTestHandler(t)
	o, err := outstation.New(outstation.DefaultConfig(), nil, h, nil)
	if err != nil {
		t.Fatal(err)
	}
	if st := o.OperateAnalogOutput(1, 20, outstation.OperateTypeDirectOperate); st != outstation.CommandStatusLocal {
		t.Errorf("disabled outstation returned %s", st)
	}
	o.Enable()
	if st := o.OperateAnalogOutput(1, 20, outstation.OperateTypeSelectBeforeOperate); st != outstation.CommandStatusNoSelect {
		t.Errorf("operate without select = %s", st)
	}
	o.SelectAnalogOutput(1, 20)
	if st := o.OperateAnalogOutput(1, 20, outstation.OperateTypeSelectBeforeOperate); st != outstation.CommandStatusSuccess {
		t.Errorf("select before operate = %s", st)
	}
	if got := h.Values().GradientRampUp; got != 20 {
		t.Errorf("ramp up = %v, want 20", got)
	}
}
