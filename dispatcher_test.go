package scadabridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDispatcherRunsInOrder(t *testing.T) {
	d := NewDispatcher(nil)
	var got []int
	// Units queued before Start are kept.
	for i := 0; i < 5; i++ {
		i := i
		d.Dispatch(func() { got = append(got, i) })
	}
	if d.Pending() != 5 {
		t.Errorf("pending = %d, want 5", d.Pending())
	}
	d.Start()
	defer d.Stop()

	var wg sync.WaitGroup
	for i := 5; i < 100; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(func() { got = append(got, i) })
		}()
	}
	wg.Wait()
	barrier(t, d)

	if len(got) != 100 {
		t.Fatalf("ran %d units, want 100", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i] != i {
			t.Errorf("unit %d ran at position %d", got[i], i)
		}
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := NewDispatcher(nil)
	d.Start()
	defer d.Stop()

	d.Dispatch(func() { panic("boom") })
	ran := false
	onDispatcher(t, d, func() { ran = true })
	if !ran {
		t.Error("unit after a panic did not run")
	}
}

func TestDispatcherDoHonoursContext(t *testing.T) {
	d := NewDispatcher(nil)
	d.Start()
	defer d.Stop()

	release := make(chan struct{})
	d.Dispatch(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Do(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do = %v, want deadline exceeded", err)
	}
}

func TestDispatcherStop(t *testing.T) {
	d := NewDispatcher(nil)
	d.Start()
	barrier(t, d)
	d.Stop()
	d.Stop()

	if d.Dispatch(func() {}) {
		t.Error("Dispatch after Stop returned true")
	}
	if err := d.Do(context.Background(), func() {}); !errors.Is(err, ErrDispatcherStopped) {
		t.Errorf("Do after Stop = %v", err)
	}

	idle := NewDispatcher(nil)
	idle.Dispatch(func() { t.Error("discarded unit ran") })
	idle.Stop()
	if idle.Pending() != 0 {
		t.Errorf("pending after Stop = %d", idle.Pending())
	}
}
