package scadabridge

import (
	"fmt"
	"strings"

	"github.com/dernate/scadabridge/config"
)

// TelemetryChannel is one value exchanged with the bus.
type TelemetryChannel struct {
	ID         ChannelID
	Kind       ValueKind
	Multiplier float64

	// SourceTopic is subscribed to when set.
	SourceTopic      string
	DestinationTopic string
	// CommandTopics are the set topics of the real devices behind the channel.
	CommandTopics []string

	value Value
}

func (c *TelemetryChannel) Name() string {
	return c.ID.String()
}

func (c *TelemetryChannel) Entity() EntityKind {
	return channelDefs[c.ID].entity
}

func (c *TelemetryChannel) Address() Address {
	return channelDefs[c.ID].address
}

func (c *TelemetryChannel) Value() Value {
	return c.value
}

// Set stores v converted to the channel kind. Multipliers are not applied.
func (c *TelemetryChannel) Set(v Value) {
	switch c.Kind {
	case KindBool:
		c.value = BoolValue(v.Bool())
	case KindInt:
		c.value = IntValue(v.Float())
	default:
		c.value = FloatValue(v.Float())
	}
}

// Update parses an inbound payload and stores it scaled by the multiplier.
func (c *TelemetryChannel) Update(payload string) (Value, error) {
	v, err := ParseValue(c.Kind, payload, c.Multiplier)
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", c.Name(), err)
	}
	c.value = v
	return v, nil
}

// Channels is the fixed set of telemetry channels, indexed by id and by source topic.
type Channels struct {
	base    string
	byID    [numChannels]*TelemetryChannel
	byTopic map[string]*TelemetryChannel
}

func StateTopic(base, entity string) string {
	return base + "/" + entity + "/state"
}

func SetTopic(base, entity string) string {
	return base + "/" + entity + "/set"
}

func AvailabilityTopic(base string) string {
	return base + "/availability"
}

// NewChannels builds the channels from the options. Two channels may not share a source topic.
func NewChannels(opts *config.Options) (*Channels, error) {
	base := strings.TrimSuffix(opts.MQTTBaseTopic, "/")
	cs := &Channels{base: base, byTopic: make(map[string]*TelemetryChannel)}

	for id := ChannelID(0); id < numChannels; id++ {
		def := channelDefs[id]
		ch := &TelemetryChannel{
			ID:               id,
			Kind:             def.kind,
			Multiplier:       1,
			DestinationTopic: StateTopic(base, def.name),
		}
		ch.Set(FloatValue(0))
		cs.byID[id] = ch
	}

	measured := []struct {
		id         ChannelID
		topic      string
		multiplier float64
	}{
		{ChannelPlantACPowerGenerated, opts.PlantACGeneratedTopic, opts.PlantACGeneratedWattsPerUnit},
		{ChannelGridReactivePower, opts.GridReactiveTopic, opts.GridReactiveVarPerUnit},
		{ChannelGridExportedPower, opts.GridExportTopic, opts.GridExportWattsPerUnit},
	}
	for _, m := range measured {
		ch := cs.byID[m.id]
		ch.SourceTopic = m.topic
		ch.Multiplier = m.multiplier
	}

	sp := cs.byID[ChannelProductionConstraintSetpoint]
	sp.Multiplier = opts.ProductionConstraintMultiplier
	sp.CommandTopics = opts.ActivePowerSetTopics()
	if opts.PlantRampUpSetTopic != "" {
		cs.byID[ChannelGradientRampUp].CommandTopics = []string{opts.PlantRampUpSetTopic}
	}
	if opts.PlantRampDownSetTopic != "" {
		cs.byID[ChannelGradientRampDown].CommandTopics = []string{opts.PlantRampDownSetTopic}
	}

	for _, id := range []ChannelID{ChannelFlagProductionConstraint, ChannelFlagGradientConstraint} {
		cs.byID[id].SourceTopic = SetTopic(base, id.String())
	}

	for _, ch := range cs.byID {
		if ch.SourceTopic == "" {
			continue
		}
		if other, ok := cs.byTopic[ch.SourceTopic]; ok {
			return nil, fmt.Errorf("channels %s and %s share source topic %q", other.Name(), ch.Name(), ch.SourceTopic)
		}
		cs.byTopic[ch.SourceTopic] = ch
	}
	return cs, nil
}

func (cs *Channels) Base() string {
	return cs.base
}

func (cs *Channels) Get(id ChannelID) *TelemetryChannel {
	if id >= numChannels {
		return nil
	}
	return cs.byID[id]
}

// Lookup finds the channel listening on a topic.
func (cs *Channels) Lookup(topic string) (*TelemetryChannel, error) {
	ch, ok := cs.byTopic[topic]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnmappedTopic, topic)
	}
	return ch, nil
}

// All returns the channels in id order.
func (cs *Channels) All() []*TelemetryChannel {
	out := make([]*TelemetryChannel, 0, numChannels)
	for _, ch := range cs.byID {
		out = append(out, ch)
	}
	return out
}

// Subscriptions returns every source topic in channel order.
func (cs *Channels) Subscriptions() []string {
	var out []string
	for _, ch := range cs.byID {
		if ch.SourceTopic != "" {
			out = append(out, ch.SourceTopic)
		}
	}
	return out
}

func (cs *Channels) AvailabilityTopic() string {
	return AvailabilityTopic(cs.base)
}
