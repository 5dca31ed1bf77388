package scadabridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dernate/scadabridge/config"
	"github.com/dernate/scadabridge/outstation"
)

type published struct {
	topic   string
	payload string
	retain  bool
}

type fakeBus struct {
	mu         sync.Mutex
	messages   []published
	subscribed []string
}

func (b *fakeBus) Publish(topic, payload string, retain bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, published{topic, payload, retain})
	return nil
}

func (b *fakeBus) Subscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = append(b.subscribed, topics...)
	return nil
}

// last returns the newest payload published on topic.
func (b *fakeBus) last(topic string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.messages) - 1; i >= 0; i-- {
		if b.messages[i].topic == topic {
			return b.messages[i].payload, true
		}
	}
	return "", false
}

func (b *fakeBus) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.messages {
		if m.topic == topic {
			n++
		}
	}
	return n
}

type countingWriter struct {
	batches int
	last    outstation.Updates
}

func (w *countingWriter) Apply(u outstation.Updates) error {
	w.batches++
	w.last = u
	return nil
}

type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// manualClock fires timers only when told to.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs the oldest pending timer. It reports false when none is pending.
func (c *manualClock) fire() bool {
	c.mu.Lock()
	var next *manualTimer
	for _, t := range c.timers {
		if !t.stopped {
			next = t
			break
		}
	}
	if next != nil {
		next.stopped = true
	}
	c.mu.Unlock()
	if next == nil {
		return false
	}
	next.f()
	return true
}

func (c *manualClock) all() []*manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*manualTimer(nil), c.timers...)
}

// barrier waits until every unit dispatched so far has run.
func barrier(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Do(ctx, func() {}); err != nil {
		t.Fatalf("barrier: %v", err)
	}
}

func onDispatcher(t *testing.T, d *Dispatcher, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Do(ctx, fn); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

func testOptions() *config.Options {
	return config.Default()
}
