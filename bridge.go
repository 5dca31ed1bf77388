package scadabridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dernate/scadabridge/audit"
	"github.com/dernate/scadabridge/config"
	"github.com/dernate/scadabridge/metrics"
	"github.com/dernate/scadabridge/outstation"
)

const storeTimeout = 5 * time.Second

// SetpointStore retains the setpoint last published to the plant.
type SetpointStore interface {
	LoadSetpoint(ctx context.Context) (float64, bool, error)
	SaveSetpoint(ctx context.Context, v float64) error
}

// PlantWriter receives every setpoint published to the plant. It must not block.
type PlantWriter interface {
	WriteSetpoint(v float64)
}

// Collaborators are the external services the bridge talks to. Only Bus is required.
type Collaborators struct {
	Bus     Bus
	Audit   audit.Sink
	Store   SetpointStore
	Plant   PlantWriter
	Clock   Clock
	Metrics *metrics.Metrics
}

// Bridge connects the outstation with the bus.
type Bridge struct {
	opts *config.Options

	dispatcher *Dispatcher
	channels   *Channels
	handler    *CommandHandler
	db         *outstation.Database
	station    *outstation.Outstation
	syncer     *Synchronizer
	ramp       *RampController

	bus     Bus
	audit   audit.Sink
	store   SetpointStore
	plant   PlantWriter
	metrics *metrics.Metrics

	started  bool
	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// OutstationConfig derives the outstation stack configuration from the options.
func OutstationConfig(opts *config.Options) outstation.Config {
	cfg := outstation.DefaultConfig()
	cfg.ID = "scadabridge"
	cfg.LocalAddress = opts.OutstationAddr
	cfg.RemoteAddress = opts.MasterAddr
	cfg.ListenIP = opts.ListenIP
	cfg.ListenPort = opts.ListenPort
	cfg.Database = PointLayout()
	cfg.MaxBinaryEvents = opts.BinaryEvents()
	cfg.MaxAnalogEvents = opts.AnalogEvents()
	cfg.SelectTimeout = opts.SelectTimeoutDuration()
	return cfg
}

// New wires the bridge. The retained setpoint, if any, becomes the initial applied and
// commanded setpoint.
func New(opts *config.Options, c Collaborators) (*Bridge, error) {
	if c.Bus == nil {
		return nil, errors.New("bridge requires a bus")
	}
	if c.Audit == nil {
		c.Audit = audit.Discard
	}
	b := &Bridge{
		opts:    opts,
		bus:     c.Bus,
		audit:   c.Audit,
		store:   c.Store,
		plant:   c.Plant,
		metrics: c.Metrics,
		stop:    make(chan struct{}),
	}

	channels, err := NewChannels(opts)
	if err != nil {
		return nil, err
	}
	b.channels = channels

	initial := DefaultCommandValues()
	if b.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		v, ok, err := b.store.LoadSetpoint(ctx)
		cancel()
		switch {
		case err != nil:
			LogWarn(ChannelProductionConstraintSetpoint.String(), "Restore", err.Error())
		case ok && validCommandValue(v):
			initial.ProductionConstraintSetpoint = v
			LogInfo(ChannelProductionConstraintSetpoint.String(), "Restore", fmt.Sprintf("applied setpoint %v", v))
		}
	}

	cfg := OutstationConfig(opts)
	b.db = outstation.NewDatabase(cfg)
	b.dispatcher = NewDispatcher(c.Metrics)
	b.handler = NewCommandHandler(initial, b.dispatcher, b.onResult)
	b.station, err = outstation.New(cfg, b.db, b.handler, NewTimeApplication())
	if err != nil {
		return nil, fmt.Errorf("outstation: %w", err)
	}

	b.syncer = NewSynchronizer(channels, b.db, b.bus, b.handler.Values, c.Metrics)
	b.ramp = NewRampController(b.dispatcher, c.Clock, opts.RampStep(),
		initial.ProductionConstraintSetpoint, b.applySetpoint, b.setpointSettled)
	b.syncer.SetRamp(b.ramp)
	return b, nil
}

func (b *Bridge) CommandHandler() *CommandHandler {
	return b.handler
}

func (b *Bridge) Outstation() *outstation.Outstation {
	return b.station
}

func (b *Bridge) Dispatcher() *Dispatcher {
	return b.dispatcher
}

// Points returns the static values reported to the master.
func (b *Bridge) Points() []outstation.PointValue {
	return b.db.Snapshot()
}

// Start runs the dispatcher, enables the outstation and starts the periodic point refresh.
func (b *Bridge) Start(ctx context.Context) error {
	b.started = true
	b.dispatcher.Start()
	if err := b.station.Enable(); err != nil {
		return err
	}
	b.dispatcher.Dispatch(func() { b.syncer.Refresh() })

	interval := b.opts.UpdateInterval()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stop:
				return
			case <-ticker.C:
				b.dispatcher.Dispatch(func() { b.syncer.SyncPoints() })
			}
		}
	}()
	LogInfo("", "Start", fmt.Sprintf("bridge started, outstation %s", b.station.Config().Endpoint()))
	return nil
}

// HandleMessage hands an inbound bus message to the dispatcher.
func (b *Bridge) HandleMessage(topic string, payload []byte) {
	p := append([]byte(nil), payload...)
	b.dispatcher.Dispatch(func() { b.syncer.HandleMessage(topic, p) })
}

// OnConnect republishes discovery, availability and state and resubscribes.
func (b *Bridge) OnConnect() {
	b.dispatcher.Dispatch(func() {
		b.syncer.PublishDiscovery()
		b.syncer.Subscribe()
		b.syncer.PublishAll()
	})
}

// UpdateMeasurement hands a measured value in source units to the dispatcher.
func (b *Bridge) UpdateMeasurement(id ChannelID, units float64) {
	b.dispatcher.Dispatch(func() {
		if err := b.syncer.SetMeasurement(id, units); err != nil {
			LogWarn(id.String(), "Measurement", err.Error())
		}
	})
}

// ChannelStatus is the state of one channel as shown by the status API.
type ChannelStatus struct {
	Name          string   `json:"name"`
	Value         string   `json:"value"`
	Address       string   `json:"address"`
	SourceTopic   string   `json:"source_topic,omitempty"`
	StateTopic    string   `json:"state_topic"`
	CommandTopics []string `json:"command_topics,omitempty"`
}

// Status is a consistent view of the bridge taken on the dispatcher.
type Status struct {
	Enabled         bool            `json:"enabled"`
	CommandState    string          `json:"command_state"`
	Commands        CommandValues   `json:"commands"`
	AppliedSetpoint float64         `json:"applied_setpoint"`
	RampActive      bool            `json:"ramp_active"`
	RampTarget      float64         `json:"ramp_target"`
	RatedKW         float64         `json:"rated_kw"`
	ConstraintKW    float64         `json:"constraint_kw"`
	Channels        []ChannelStatus `json:"channels"`
}

func (b *Bridge) Status(ctx context.Context) (Status, error) {
	var st Status
	err := b.dispatcher.Do(ctx, func() {
		v := b.handler.Values()
		st = Status{
			Enabled:         b.station.Enabled(),
			CommandState:    b.handler.State().String(),
			Commands:        v,
			AppliedSetpoint: b.ramp.Current(),
			RampActive:      b.ramp.Active(),
			RampTarget:      b.ramp.Target(),
			RatedKW:         b.opts.MaxTotalNominalActivePowerKW,
			ConstraintKW:    v.ProductionConstraintSetpoint / 100 * b.opts.MaxTotalNominalActivePowerKW,
		}
		for _, ch := range b.channels.All() {
			st.Channels = append(st.Channels, ChannelStatus{
				Name:          ch.Name(),
				Value:         ch.Value().Payload(),
				Address:       ch.Address().String(),
				SourceTopic:   ch.SourceTopic,
				StateTopic:    ch.DestinationTopic,
				CommandTopics: ch.CommandTopics,
			})
		}
	})
	return st, err
}

// Stop cancels any ramp, shuts the outstation down and stops the dispatcher.
func (b *Bridge) Stop(ctx context.Context) error {
	var err error
	b.stopOnce.Do(func() {
		close(b.stop)
		b.wg.Wait()
		if b.started {
			err = b.dispatcher.Do(ctx, func() { b.ramp.Cancel() })
		} else {
			b.ramp.Cancel()
		}
		b.station.Shutdown()
		b.dispatcher.Stop()
		LogInfo("", "Stop", "bridge stopped")
	})
	return err
}

func (b *Bridge) onResult(res CommandResult) {
	b.metrics.CommandHandled(res.Index, res.Status.String())

	point := res.Field.String()
	if errors.Is(res.Err, ErrUnsupportedIndex) {
		point = fmt.Sprintf("analog_output_%d", res.Index)
	}
	rec := audit.NewRecord("master", res.OpType.String(), point, res.Index)
	rec.Previous = res.Previous
	rec.Value = res.Value
	rec.Status = res.Status.String()
	if res.Err != nil {
		rec.Detail = res.Err.Error()
	}
	b.record(rec)

	if !res.Succeeded() {
		return
	}
	next := b.handler.Values()
	prev := next
	prev.Set(res.Field, res.Previous)
	LogIfConstraintModeChanged(prev, next)
	b.syncer.RelayCommand(res)
}

func (b *Bridge) applySetpoint(v float64) {
	b.syncer.PublishSetpoint(v)
	if b.plant != nil {
		b.plant.WriteSetpoint(v)
	}
	b.metrics.RampStep()
	b.metrics.SetSetpoint(v)
}

func (b *Bridge) setpointSettled(v float64) {
	if b.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := b.store.SaveSetpoint(ctx, v)
		cancel()
		if err != nil {
			LogError(ChannelProductionConstraintSetpoint.String(), "Persist", err.Error())
		}
	}
	rec := audit.NewRecord("ramp", "settled", ChannelProductionConstraintSetpoint.String(), uint16(FieldProductionConstraintSetpoint))
	rec.Value = v
	rec.Status = outstation.CommandStatusSuccess.String()
	b.record(rec)
}

func (b *Bridge) record(rec audit.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := b.audit.Record(ctx, rec); err != nil {
		LogWarn(rec.Point, "Audit", err.Error())
	}
}
