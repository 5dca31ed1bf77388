package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type recorder struct {
	recs []Record
	err  error
}

func (r *recorder) Record(_ context.Context, rec Record) error {
	r.recs = append(r.recs, rec)
	return r.err
}

func TestNewRecord(t *testing.T) {
	a := NewRecord("master", "operate", "production_constraint_setpoint", 0)
	b := NewRecord("master", "operate", "production_constraint_setpoint", 0)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("record ids must be unique, got %q and %q", a.ID, b.ID)
	}
	if a.Time.IsZero() {
		t.Error("record time not set")
	}
}

func TestMulti(t *testing.T) {
	if Multi() != Discard {
		t.Error("Multi() should be Discard")
	}
	one := &recorder{}
	if Multi(nil, one) != Sink(one) {
		t.Error("Multi with a single sink should return it unchanged")
	}

	failing := &recorder{err: errors.New("disk full")}
	ok := &recorder{}
	err := Multi(failing, ok).Record(context.Background(), NewRecord("http", "operate", "gradient_ramp_up", 1))
	if err == nil || err.Error() != "disk full" {
		t.Errorf("err = %v, want disk full", err)
	}
	if len(ok.recs) != 1 {
		t.Error("a failing sink must not stop the others")
	}
}

func TestKafkaSinkDelivers(t *testing.T) {
	w := &fakeWriter{}
	s, err := newKafkaSinkWithWriter(KafkaConfig{Topic: "scada.commands", Key: "outstation"}, w, w)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Record(context.Background(), Record{}); !errors.Is(err, errSinkNotStarted) {
		t.Fatalf("Record before Start: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec := NewRecord("master", "operate", "production_constraint_setpoint", 0)
	rec.Value = 42.5
	rec.Status = "SUCCESS"
	if err := s.Record(context.Background(), rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		t.Error("writer not closed")
	}
	if len(w.msgs) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "outstation" {
		t.Errorf("key = %q", w.msgs[0].Key)
	}
	var got Record
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != rec.ID || got.Value != 42.5 || got.Status != "SUCCESS" {
		t.Errorf("delivered %+v", got)
	}
}

func TestKafkaSinkStopKeepsAcceptedRecords(t *testing.T) {
	w := &fakeWriter{}
	s, err := newKafkaSinkWithWriter(KafkaConfig{Topic: "scada.commands"}, w, w)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := s.Record(context.Background(), NewRecord("master", "operate", "gradient_ramp_up", 1)); err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	wg.Wait()

	w.mu.Lock()
	delivered := len(w.msgs)
	w.mu.Unlock()
	if delivered != accepted {
		t.Errorf("delivered %d records, accepted %d", delivered, accepted)
	}
	if err := s.Record(context.Background(), NewRecord("master", "operate", "gradient_ramp_up", 1)); err == nil {
		t.Error("Record after Stop succeeded")
	}
}

func TestKafkaSinkConfig(t *testing.T) {
	if _, err := NewKafkaSink(KafkaConfig{Brokers: []string{"k:9092"}}); err == nil {
		t.Error("missing topic accepted")
	}
	if _, err := NewKafkaSink(KafkaConfig{Topic: "t"}); err == nil {
		t.Error("missing brokers accepted")
	}
	if _, err := newKafkaSinkWithWriter(KafkaConfig{Topic: "t"}, nil, nil); !errors.Is(err, errSinkNilWriter) {
		t.Errorf("nil writer: %v", err)
	}
}
