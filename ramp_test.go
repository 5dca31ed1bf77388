package scadabridge

import (
	"math"
	"testing"
	"time"
)

func TestPlanRamp(t *testing.T) {
	tests := []struct {
		name            string
		current, target float64
		up, down        float64
		steps           int
		delta           float64
		refresh, direct bool
	}{
		{name: "up", current: 0, target: 100, up: 10, down: 10, steps: 120, delta: 10.0 / 60 * 5},
		{name: "down", current: 100, target: 40, up: 5, down: 60, steps: 12, delta: -5},
		{name: "partial step", current: 0, target: 7, up: 60, down: 60, steps: 1, delta: 5},
		{name: "smaller than one step", current: 50, target: 52, up: 60, down: 60, steps: 0, delta: 5},
		{name: "unchanged", current: 30, target: 30, up: 5, down: 5, refresh: true},
		{name: "zero rate up", current: 30, target: 60, up: 0, down: 5, direct: true},
		{name: "zero rate down", current: 60, target: 30, up: 5, down: 0, direct: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PlanRamp(tt.current, tt.target, tt.up, tt.down, 5*time.Second)
			if p.Refresh != tt.refresh || p.Direct != tt.direct {
				t.Fatalf("refresh=%v direct=%v, want %v %v", p.Refresh, p.Direct, tt.refresh, tt.direct)
			}
			if tt.refresh || tt.direct {
				return
			}
			if p.Steps != tt.steps {
				t.Errorf("steps = %d, want %d", p.Steps, tt.steps)
			}
			if math.Abs(p.Delta-tt.delta) > 1e-12 {
				t.Errorf("delta = %v, want %v", p.Delta, tt.delta)
			}
		})
	}
}

func TestRampPlanValueClamps(t *testing.T) {
	p := PlanRamp(0, 7, 60, 60, 5*time.Second)
	if got := p.Value(1); got != 5 {
		t.Errorf("Value(1) = %v, want 5", got)
	}
	if got := p.Value(2); got != 7 {
		t.Errorf("Value(2) = %v, want 7", got)
	}
	down := PlanRamp(10, 3, 60, 60, 5*time.Second)
	if got := down.Value(2); got != 3 {
		t.Errorf("Value(2) = %v, want 3", got)
	}
}

type rampRecorder struct {
	applied []float64
	settled []float64
}

func newTestRamp(t *testing.T, initial float64) (*RampController, *Dispatcher, *manualClock, *rampRecorder) {
	t.Helper()
	d := NewDispatcher(nil)
	d.Start()
	t.Cleanup(d.Stop)
	clk := &manualClock{}
	rec := &rampRecorder{}
	r := NewRampController(d, clk, 5*time.Second, initial,
		func(v float64) { rec.applied = append(rec.applied, v) },
		func(v float64) { rec.settled = append(rec.settled, v) })
	return r, d, clk, rec
}

func runRamp(t *testing.T, d *Dispatcher, clk *manualClock, max int) int {
	t.Helper()
	n := 0
	for clk.fire() {
		barrier(t, d)
		n++
		if n > max {
			t.Fatalf("ramp did not finish after %d steps", max)
		}
	}
	return n
}

func TestRampReachesTarget(t *testing.T) {
	r, d, clk, rec := newTestRamp(t, 0)
	v := CommandValues{ProductionConstraintSetpoint: 100, GradientRampUp: 10, GradientRampDown: 10}

	var plan RampPlan
	onDispatcher(t, d, func() { plan = r.Command(100, v) })
	if plan.Steps != 120 {
		t.Fatalf("steps = %d, want 120", plan.Steps)
	}
	runRamp(t, d, clk, 200)

	onDispatcher(t, d, func() {
		if n := len(rec.applied); n != 120 {
			t.Errorf("published %d values, want 120", n)
			return
		}
		if last := rec.applied[len(rec.applied)-1]; last != 100 {
			t.Errorf("last published = %v, want exactly 100", last)
		}
		for i := 1; i < len(rec.applied); i++ {
			if rec.applied[i] < rec.applied[i-1] {
				t.Errorf("value decreased at step %d: %v -> %v", i, rec.applied[i-1], rec.applied[i])
				break
			}
		}
		if len(rec.settled) != 1 || rec.settled[0] != 100 {
			t.Errorf("settled = %v, want [100]", rec.settled)
		}
		if r.Active() || r.Current() != 100 {
			t.Errorf("active=%v current=%v", r.Active(), r.Current())
		}
	})
}

func TestRampDirectAndRefresh(t *testing.T) {
	r, d, clk, rec := newTestRamp(t, 80)

	onDispatcher(t, d, func() {
		r.Command(30, CommandValues{ProductionConstraintSetpoint: 30, GradientRampUp: 5, GradientRampDown: 0})
	})
	if clk.fire() {
		t.Fatal("direct apply scheduled a timer")
	}
	onDispatcher(t, d, func() {
		if len(rec.applied) != 1 || rec.applied[0] != 30 {
			t.Errorf("applied = %v, want [30]", rec.applied)
		}
		r.Command(30, CommandValues{ProductionConstraintSetpoint: 30, GradientRampUp: 5, GradientRampDown: 5})
		if len(rec.applied) != 2 || rec.applied[1] != 30 {
			t.Errorf("refresh applied = %v, want [30 30]", rec.applied)
		}
		if len(rec.settled) != 2 {
			t.Errorf("settled = %v, want two entries", rec.settled)
		}
	})
}

func TestRampReplanFromCurrent(t *testing.T) {
	r, d, clk, rec := newTestRamp(t, 0)
	up := CommandValues{ProductionConstraintSetpoint: 100, GradientRampUp: 60, GradientRampDown: 60}

	onDispatcher(t, d, func() { r.Command(100, up) })
	for i := 0; i < 3; i++ {
		clk.fire()
		barrier(t, d)
	}
	stale := clk.all()

	var plan RampPlan
	onDispatcher(t, d, func() {
		if r.Current() != 15 {
			t.Errorf("current = %v, want 15", r.Current())
		}
		plan = r.Command(20, up)
	})
	if plan.Start != 15 || plan.Steps != 1 {
		t.Fatalf("replan = %+v, want start 15 and one step", plan)
	}

	// A timer of the cancelled ramp that fires anyway must not move the setpoint.
	stale[len(stale)-1].f()
	barrier(t, d)
	onDispatcher(t, d, func() {
		if r.Current() != 15 {
			t.Errorf("stale timer moved current to %v", r.Current())
		}
	})

	runRamp(t, d, clk, 10)
	onDispatcher(t, d, func() {
		if r.Current() != 20 {
			t.Errorf("current = %v, want 20", r.Current())
		}
		if len(rec.settled) != 1 || rec.settled[0] != 20 {
			t.Errorf("settled = %v, want [20]", rec.settled)
		}
	})
}

func TestRampCancel(t *testing.T) {
	r, d, clk, rec := newTestRamp(t, 50)
	onDispatcher(t, d, func() {
		r.Command(0, CommandValues{GradientRampUp: 5, GradientRampDown: 5})
		if !r.Active() || r.Target() != 0 {
			t.Errorf("active=%v target=%v", r.Active(), r.Target())
		}
		r.Cancel()
		if r.Active() || r.Target() != 50 {
			t.Errorf("after cancel active=%v target=%v", r.Active(), r.Target())
		}
	})
	if clk.fire() {
		t.Error("cancelled ramp left a timer pending")
	}
	onDispatcher(t, d, func() {
		if len(rec.applied) != 0 || len(rec.settled) != 0 {
			t.Errorf("applied=%v settled=%v", rec.applied, rec.settled)
		}
	})
}
