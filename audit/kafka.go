package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// KafkaConfig configures the command audit stream.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Key     string // message key, usually the outstation id
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type writeCloser interface {
	Close() error
}

const (
	kafkaQueueSize    = 256
	kafkaDrainTimeout = 5 * time.Second
)

var (
	errSinkNilWriter  = errors.New("kafka sink requires a writer")
	errSinkNotStarted = errors.New("kafka sink not started")
	errSinkStopped    = errors.New("kafka sink stopped")
	errSinkQueueFull  = errors.New("kafka sink queue full")
)

// KafkaSink publishes audit records asynchronously. Record never waits for the broker.
type KafkaSink struct {
	cfg    KafkaConfig
	writer messageWriter
	closer writeCloser
	queue  chan []byte
	log    *log.Entry

	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool

	// mu orders enqueues against Stop: nothing is queued once closed is set.
	mu     sync.Mutex
	closed bool
}

// NewKafkaSink creates a sink writing to the configured topic.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("audit topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Balancer:               &kafka.Hash{},
	}
	return newKafkaSinkWithWriter(cfg, w, w)
}

func newKafkaSinkWithWriter(cfg KafkaConfig, writer messageWriter, closer writeCloser) (*KafkaSink, error) {
	if writer == nil {
		return nil, errSinkNilWriter
	}
	return &KafkaSink{
		cfg:    cfg,
		writer: writer,
		closer: closer,
		queue:  make(chan []byte, kafkaQueueSize),
		log:    log.WithFields(log.Fields{"Component": "audit", "Topic": cfg.Topic}),
	}, nil
}

// Start launches the delivery loop.
func (s *KafkaSink) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context must not be nil")
	}
	s.startOnce.Do(func() {
		s.runCtx, s.cancel = context.WithCancel(ctx)
		s.started.Store(true)
		s.wg.Add(1)
		go s.run()
		s.log.Info("Audit stream started")
	})
	if !s.started.Load() {
		return errSinkNotStarted
	}
	return nil
}

// Stop ends the delivery loop after the queued records have been written.
func (s *KafkaSink) Stop(ctx context.Context) error {
	var stopErr error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.cancel != nil {
			s.cancel()
		}
		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		if s.closer != nil {
			if err := s.closer.Close(); err != nil {
				s.log.Errorf("Closing writer: %v", err)
			}
		}
		s.log.Info("Audit stream stopped")
	})
	return stopErr
}

// Record queues a record for delivery.
func (s *KafkaSink) Record(ctx context.Context, rec Record) error {
	if !s.started.Load() {
		return errSinkNotStarted
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.runCtx.Err() != nil {
		return errSinkStopped
	}
	select {
	case s.queue <- value:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.log.Warnf("Queue full, dropping record %s", rec.ID)
		return errSinkQueueFull
	}
}

func (s *KafkaSink) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.runCtx.Done():
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			s.drain()
			s.started.Store(false)
			return
		case value := <-s.queue:
			s.deliver(s.runCtx, value)
		}
	}
}

func (s *KafkaSink) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), kafkaDrainTimeout)
	defer cancel()
	for {
		select {
		case value := <-s.queue:
			s.deliver(ctx, value)
		default:
			return
		}
	}
}

func (s *KafkaSink) deliver(ctx context.Context, value []byte) {
	msg := kafka.Message{Value: value}
	if s.cfg.Key != "" {
		msg.Key = []byte(s.cfg.Key)
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.log.Errorf("Publishing audit record: %v", err)
	}
}
