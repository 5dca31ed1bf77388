package scadabridge

import (
	"fmt"
	"math"
	"time"
)

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

// Clock schedules ramp steps. Tests replace it with a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock uses time.AfterFunc.
var SystemClock Clock = systemClock{}

// stepEpsilon absorbs float error when dividing the distance by the step size.
const stepEpsilon = 1e-9

// RampPlan is the sequence of values that takes the applied setpoint from Start to Target.
type RampPlan struct {
	Start  float64
	Target float64
	Delta  float64 // change per step, signed
	Steps  int

	// Refresh means Start == Target: the value is published again and nothing else happens.
	Refresh bool
	// Direct means the applicable rate is 0: Target is published at once.
	Direct bool
}

// PlanRamp computes the steps for moving from current to target with the given rates in %/min,
// one step per interval.
func PlanRamp(current, target, rampUp, rampDown float64, interval time.Duration) RampPlan {
	p := RampPlan{Start: current, Target: target}
	if target == current {
		p.Refresh = true
		return p
	}
	rate, sign := rampUp, 1.0
	if target < current {
		rate, sign = rampDown, -1.0
	}
	if rate <= 0 {
		p.Direct = true
		return p
	}
	p.Delta = sign * rate / 60 * interval.Seconds()
	p.Steps = int(math.Floor(math.Abs(target-current)/math.Abs(p.Delta) + stepEpsilon))
	return p
}

// Value returns the setpoint after step n, never past the target.
func (p RampPlan) Value(n int) float64 {
	v := p.Start + float64(n)*p.Delta
	if (p.Delta > 0 && v > p.Target) || (p.Delta < 0 && v < p.Target) {
		return p.Target
	}
	return v
}

// RampController applies commanded setpoints at a bounded rate. Every method must be called
// on the dispatcher goroutine; timer expiries are dispatched there as well.
type RampController struct {
	dispatcher *Dispatcher
	clock      Clock
	interval   time.Duration

	apply   func(v float64) // publish one value to the plant
	settled func(v float64) // the target has been reached

	current float64
	plan    RampPlan
	step    int
	active  bool
	gen     uint64
	timer   Timer
}

func NewRampController(d *Dispatcher, clock Clock, interval time.Duration, initial float64, apply, settled func(float64)) *RampController {
	if clock == nil {
		clock = SystemClock
	}
	if interval <= 0 {
		interval = DefaultStepInterval
	}
	return &RampController{
		dispatcher: d,
		clock:      clock,
		interval:   interval,
		apply:      apply,
		settled:    settled,
		current:    initial,
	}
}

// Current is the setpoint last published to the plant.
func (c *RampController) Current() float64 {
	return c.current
}

func (c *RampController) Active() bool {
	return c.active
}

// Target returns the target of the active ramp, or the current value when idle.
func (c *RampController) Target() float64 {
	if c.active {
		return c.plan.Target
	}
	return c.current
}

// Command starts moving toward target. An active ramp is cancelled and the new one starts
// from the last published value.
func (c *RampController) Command(target float64, v CommandValues) RampPlan {
	c.Cancel()
	plan := PlanRamp(c.current, target, v.GradientRampUp, v.GradientRampDown, c.interval)
	switch {
	case plan.Refresh:
		LogInfo(ChannelProductionConstraintSetpoint.String(), "Ramp", "setpoint unchanged, publishing again")
		c.publish(target)
		c.finish(target)
	case plan.Direct, plan.Steps == 0:
		LogInfo(ChannelProductionConstraintSetpoint.String(), "Ramp", "applying target directly")
		c.publish(target)
		c.finish(target)
	default:
		LogInfo(ChannelProductionConstraintSetpoint.String(), "Ramp",
			fmt.Sprintf("%v -> %v in %d steps of %.4f every %s", plan.Start, plan.Target, plan.Steps, plan.Delta, c.interval))
		c.plan = plan
		c.step = 0
		c.active = true
		c.schedule()
	}
	return plan
}

// Cancel stops the active ramp. The current value stays where the last step left it.
func (c *RampController) Cancel() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.active {
		LogInfo(ChannelProductionConstraintSetpoint.String(), "Ramp", "ramp cancelled")
	}
	c.active = false
}

func (c *RampController) schedule() {
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.interval, func() {
		c.dispatcher.Dispatch(func() { c.advance(gen) })
	})
}

func (c *RampController) advance(gen uint64) {
	if gen != c.gen || !c.active {
		return
	}
	c.timer = nil
	c.step++
	c.publish(c.plan.Value(c.step))
	if c.step < c.plan.Steps {
		c.schedule()
		return
	}
	c.active = false
	if c.current != c.plan.Target {
		c.publish(c.plan.Target)
	}
	c.finish(c.plan.Target)
}

func (c *RampController) publish(v float64) {
	c.current = v
	if c.apply != nil {
		c.apply(v)
	}
}

func (c *RampController) finish(v float64) {
	if c.settled != nil {
		c.settled(v)
	}
}
