package scadabridge

import (
	"fmt"
	"strconv"

	"github.com/dernate/scadabridge/metrics"
	"github.com/dernate/scadabridge/outstation"
)

// Bus is the pub/sub side of the bridge.
type Bus interface {
	Publish(topic, payload string, retain bool) error
	Subscribe(topics ...string) error
}

// PointWriter applies update batches to the outstation database.
type PointWriter interface {
	Apply(u outstation.Updates) error
}

// Synchronizer maps channel values to outstation points and command values to bus messages.
// It is only used from the dispatcher goroutine.
type Synchronizer struct {
	channels *Channels
	points   PointWriter
	bus      Bus
	values   func() CommandValues
	ramp     *RampController
	metrics  *metrics.Metrics
}

func NewSynchronizer(channels *Channels, points PointWriter, bus Bus, values func() CommandValues, m *metrics.Metrics) *Synchronizer {
	return &Synchronizer{
		channels: channels,
		points:   points,
		bus:      bus,
		values:   values,
		metrics:  m,
	}
}

// SetRamp routes relayed setpoints through r.
func (s *Synchronizer) SetRamp(r *RampController) {
	s.ramp = r
}

// BuildUpdates returns the batch reporting the flag and measured channels plus the echoed
// command values, all with change detection.
func (s *Synchronizer) BuildUpdates(v CommandValues) outstation.Updates {
	b := outstation.NewUpdateBuilder()
	for _, id := range []ChannelID{ChannelFlagProductionConstraint, ChannelFlagGradientConstraint} {
		ch := s.channels.Get(id)
		b.Binary(ch.Value().Bool(), ch.Address().Index, outstation.EventModeDetect)
	}
	for _, id := range []ChannelID{ChannelPlantACPowerGenerated, ChannelGridReactivePower, ChannelGridExportedPower} {
		ch := s.channels.Get(id)
		b.Analog(ch.Value().Float(), ch.Address().Index, outstation.EventModeDetect)
	}
	b.Analog(v.ProductionConstraintSetpoint, AnalogProductionConstraint, outstation.EventModeDetect)
	b.Analog(v.GradientRampUp, AnalogPowerGradientRampUp, outstation.EventModeDetect)
	b.Analog(v.GradientRampDown, AnalogPowerGradientRampDown, outstation.EventModeDetect)
	return b.Build()
}

// SyncPoints writes the current values into the outstation database.
func (s *Synchronizer) SyncPoints() error {
	err := s.points.Apply(s.BuildUpdates(s.values()))
	s.metrics.BatchApplied(err)
	if err != nil {
		LogError("", "SyncPoints", err.Error())
	}
	return err
}

// HandleMessage updates the channel listening on topic, republishes its state and syncs the
// points once.
func (s *Synchronizer) HandleMessage(topic string, payload []byte) error {
	ch, err := s.channels.Lookup(topic)
	if err != nil {
		s.metrics.InboundMessage("unmapped")
		LogWarn("", "Inbound", err.Error())
		return err
	}
	v, err := ch.Update(string(payload))
	if err != nil {
		s.metrics.InboundMessage("invalid")
		LogWarn(ch.Name(), "Inbound", err.Error())
		return err
	}
	s.metrics.InboundMessage("applied")
	LogInfo(ch.Name(), "Inbound", fmt.Sprintf("%s received on %s", v, topic))
	s.publishState(ch)
	return s.SyncPoints()
}

// SetMeasurement stores a measured value given in source units and syncs the points.
func (s *Synchronizer) SetMeasurement(id ChannelID, units float64) error {
	switch id {
	case ChannelPlantACPowerGenerated, ChannelGridReactivePower, ChannelGridExportedPower:
	default:
		return fmt.Errorf("%w: %s is not a measured channel", ErrAddress, id)
	}
	ch := s.channels.Get(id)
	ch.Set(FloatValue(units * ch.Multiplier))
	s.publishState(ch)
	return s.SyncPoints()
}

// RelayCommand publishes the command values after a successful Operate, moves the plant
// setpoint through the ramp, forwards an operated ramp rate to its device topics, refreshes
// the flags and syncs the points.
func (s *Synchronizer) RelayCommand(res CommandResult) {
	v := s.values()
	s.refreshCommands(v)

	if s.ramp != nil {
		s.ramp.Command(v.ProductionConstraintSetpoint, v)
	}
	if res.Field == FieldGradientRampUp || res.Field == FieldGradientRampDown {
		ch := s.channels.Get(commandChannels[res.Field])
		s.publishDevices(ch, v.Get(res.Field))
	}

	s.refreshFlags(v)
	s.SyncPoints()
}

// PublishSetpoint sends one setpoint value to the plant devices.
func (s *Synchronizer) PublishSetpoint(v float64) {
	s.publishDevices(s.channels.Get(ChannelProductionConstraintSetpoint), v)
}

// Refresh copies the command values and derived flags into their channels without publishing
// to the devices, then syncs the points.
func (s *Synchronizer) Refresh() error {
	v := s.values()
	s.refreshCommands(v)
	s.refreshFlags(v)
	return s.SyncPoints()
}

// PublishDiscovery announces every channel and marks the bridge online.
func (s *Synchronizer) PublishDiscovery() {
	for _, ch := range s.channels.All() {
		topic, payload, err := Discovery(ch, s.channels.Base())
		if err != nil {
			LogError(ch.Name(), "Discovery", err.Error())
			continue
		}
		if err := s.bus.Publish(topic, string(payload), true); err != nil {
			LogError(ch.Name(), "Discovery", err.Error())
		}
	}
	if err := s.bus.Publish(s.channels.AvailabilityTopic(), PayloadOnline, true); err != nil {
		LogError("", "Availability", err.Error())
	}
}

// Subscribe subscribes to every source topic.
func (s *Synchronizer) Subscribe() error {
	topics := s.channels.Subscriptions()
	if err := s.bus.Subscribe(topics...); err != nil {
		LogError("", "Subscribe", err.Error())
		return err
	}
	for _, t := range topics {
		LogInfo("", "Subscribe", t)
	}
	return nil
}

// PublishAll republishes the state of every channel.
func (s *Synchronizer) PublishAll() {
	for _, ch := range s.channels.All() {
		s.publishState(ch)
	}
}

func (s *Synchronizer) refreshCommands(v CommandValues) {
	for f := CommandField(0); f < numCommandFields; f++ {
		ch := s.channels.Get(commandChannels[f])
		ch.Set(FloatValue(v.Get(f)))
		s.publishState(ch)
	}
}

func (s *Synchronizer) refreshFlags(v CommandValues) {
	flags := map[ChannelID]bool{
		ChannelFlagProductionConstraint: v.FlagProductionConstraint(),
		ChannelFlagGradientConstraint:   v.FlagGradientConstraint(),
	}
	for _, id := range []ChannelID{ChannelFlagProductionConstraint, ChannelFlagGradientConstraint} {
		ch := s.channels.Get(id)
		ch.Set(BoolValue(flags[id]))
		s.publishState(ch)
	}
}

func (s *Synchronizer) publishState(ch *TelemetryChannel) {
	if err := s.bus.Publish(ch.DestinationTopic, ch.Value().Payload(), true); err != nil {
		LogError(ch.Name(), "PublishState", err.Error())
	}
}

func (s *Synchronizer) publishDevices(ch *TelemetryChannel, v float64) {
	payload := strconv.FormatFloat(v*ch.Multiplier, 'f', -1, 64)
	for _, topic := range ch.CommandTopics {
		if err := s.bus.Publish(topic, payload, true); err != nil {
			LogError(ch.Name(), "PublishDevice", err.Error())
			continue
		}
		LogInfo(ch.Name(), "PublishDevice", fmt.Sprintf("%s on %s", payload, topic))
	}
}
