package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Record describes one handled control request or applied setpoint.
type Record struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Source   string    `json:"source"` // master or ramp
	Action   string    `json:"action"`
	Point    string    `json:"point"`
	Index    uint16    `json:"index"`
	Previous float64   `json:"previous"`
	Value    float64   `json:"value"`
	Status   string    `json:"status"`
	Detail   string    `json:"detail,omitempty"`
}

// NewRecord stamps a record with a fresh id and the current time.
func NewRecord(source, action, point string, index uint16) Record {
	return Record{
		ID:     uuid.NewString(),
		Time:   time.Now().UTC(),
		Source: source,
		Action: action,
		Point:  point,
		Index:  index,
	}
}

// Sink accepts audit records. Implementations must not block for long.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

type discard struct{}

func (discard) Record(context.Context, Record) error { return nil }

// Discard drops every record.
var Discard Sink = discard{}

type multi []Sink

func (m multi) Record(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Multi fans a record out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	switch len(m) {
	case 0:
		return Discard
	case 1:
		return m[0]
	}
	return m
}
