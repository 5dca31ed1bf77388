package scadabridge

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dernate/scadabridge/metrics"
)

var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Dispatcher runs units of work one at a time on a single goroutine. Dispatch never blocks
// the caller on the execution of the unit.
type Dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	started bool
	done    chan struct{}

	stopOnce sync.Once
	metrics  *metrics.Metrics
}

func NewDispatcher(m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{done: make(chan struct{}), metrics: m}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start launches the coordinating goroutine. Units dispatched before Start are kept.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	go d.run()
}

// Dispatch appends fn to the queue. It returns false once the dispatcher is stopped.
func (d *Dispatcher) Dispatch(fn func()) bool {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	depth := len(d.queue)
	d.cond.Signal()
	d.mu.Unlock()
	d.metrics.SetQueueDepth(depth)
	return true
}

// Do dispatches fn and waits for it to run or for ctx to end.
func (d *Dispatcher) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !d.Dispatch(func() {
		defer close(done)
		fn()
	}) {
		return ErrDispatcherStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued units.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Stop discards queued units and returns once the running unit, if any, has finished.
// It must not be called from a dispatched unit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.queue = nil
		started := d.started
		d.cond.Broadcast()
		d.mu.Unlock()
		if started {
			<-d.done
		} else {
			close(d.done)
		}
		d.metrics.SetQueueDepth(0)
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.stopped {
			d.cond.Wait()
		}
		if d.stopped {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		depth := len(d.queue)
		d.mu.Unlock()

		d.metrics.SetQueueDepth(depth)
		d.execute(fn)
	}
}

func (d *Dispatcher) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("Stack", string(debug.Stack())).Errorf("Recovered panic in dispatched unit: %v", r)
		}
	}()
	fn()
}
