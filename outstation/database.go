package outstation

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrUnknownPoint is returned when an update addresses an index that is not configured.
var ErrUnknownPoint = errors.New("unknown point")

type pointState struct {
	point    Point
	binary   bool
	analog   float64
	reported bool
	events   uint64
}

// eventBuffer is a bounded FIFO; the oldest event is dropped on overflow.
type eventBuffer struct {
	events   []Event
	capacity int
	dropped  uint64
}

func (b *eventBuffer) push(e Event) {
	if b.capacity <= 0 {
		b.dropped++
		return
	}
	if len(b.events) >= b.capacity {
		copy(b.events, b.events[1:])
		b.events = b.events[:len(b.events)-1]
		b.dropped++
	}
	b.events = append(b.events, e)
}

// Database holds the static values and event history of the outstation points.
type Database struct {
	mu      sync.RWMutex
	binary  []pointState
	analog  []pointState
	buffers map[PointType]*eventBuffer
	now     func() time.Time
}

// NewDatabase creates a database for the configured points.
func NewDatabase(cfg Config) *Database {
	db := &Database{
		binary: make([]pointState, len(cfg.Database.Binary)),
		analog: make([]pointState, len(cfg.Database.Analog)),
		buffers: map[PointType]*eventBuffer{
			Binary: {capacity: int(cfg.MaxBinaryEvents)},
			Analog: {capacity: int(cfg.MaxAnalogEvents)},
		},
		now: time.Now,
	}
	for i, p := range cfg.Database.Binary {
		db.binary[i].point = p
	}
	for i, p := range cfg.Database.Analog {
		db.analog[i].point = p
	}
	return db
}

func (db *Database) points(t PointType) []pointState {
	if t == Binary {
		return db.binary
	}
	return db.analog
}

// Apply validates the whole batch, then writes every update in order.
func (db *Database) Apply(u Updates) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, item := range u.items {
		if int(item.Index) >= len(db.points(item.Type)) {
			return fmt.Errorf("%w: %s index %d", ErrUnknownPoint, item.Type, item.Index)
		}
	}
	ts := db.now()
	for _, item := range u.items {
		st := &db.points(item.Type)[item.Index]
		changed := !st.reported
		if item.Type == Binary {
			changed = changed || st.binary != item.Binary
			st.binary = item.Binary
		} else {
			changed = changed || st.analog != item.Analog
			st.analog = item.Analog
		}
		st.reported = true

		record := item.Mode == EventModeForce || (item.Mode == EventModeDetect && changed)
		if !record || st.point.Class == Class0 {
			continue
		}
		st.events++
		db.buffers[item.Type].push(Event{
			Type:   item.Type,
			Index:  item.Index,
			Class:  st.point.Class,
			Binary: item.Binary,
			Analog: item.Analog,
			Time:   ts,
		})
	}
	return nil
}

// EventCount returns how many events the point has generated since start.
func (db *Database) EventCount(t PointType, index uint16) uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	pts := db.points(t)
	if int(index) >= len(pts) {
		return 0
	}
	return pts[index].events
}

// Events returns the buffered events of a point type, oldest first.
func (db *Database) Events(t PointType) []Event {
	db.mu.RLock()
	defer db.mu.RUnlock()
	buf := db.buffers[t]
	out := make([]Event, len(buf.events))
	copy(out, buf.events)
	return out
}

// Dropped returns how many events of the type were discarded on overflow.
func (db *Database) Dropped(t PointType) uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.buffers[t].dropped
}

// PointValue is a static value as reported to the master.
type PointValue struct {
	Type     PointType `json:"type"`
	Index    uint16    `json:"index"`
	Class    uint8     `json:"class"`
	Binary   bool      `json:"binary,omitempty"`
	Analog   float64   `json:"analog,omitempty"`
	Reported bool      `json:"reported"`
	Events   uint64    `json:"events"`
}

// Snapshot returns the static values of all points.
func (db *Database) Snapshot() []PointValue {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]PointValue, 0, len(db.binary)+len(db.analog))
	for _, pts := range [][]pointState{db.binary, db.analog} {
		for _, st := range pts {
			out = append(out, PointValue{
				Type:     st.point.Type,
				Index:    st.point.Index,
				Class:    uint8(st.point.Class),
				Binary:   st.binary,
				Analog:   st.analog,
				Reported: st.reported,
				Events:   st.events,
			})
		}
	}
	return out
}
