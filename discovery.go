package scadabridge

import (
	"encoding/json"
)

// Device groups the entities under one device in Home Assistant.
type Device struct {
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
}

// DiscoveryPayload is the retained config message announcing an entity.
type DiscoveryPayload struct {
	Name              string `json:"name"`
	UniqueID          string `json:"unique_id"`
	StateTopic        string `json:"state_topic"`
	AvailabilityTopic string `json:"availability_topic"`
	Device            Device `json:"device"`

	DeviceClass       string `json:"device_class,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	CommandTopic      string `json:"command_topic,omitempty"`
	EnabledByDefault  bool   `json:"enabled_by_default,omitempty"`
	PayloadOn         string `json:"payload_on,omitempty"`
	PayloadOff        string `json:"payload_off,omitempty"`
}

func DiscoveryTopic(kind EntityKind, entity string) string {
	return discoveryPrefix + "/" + string(kind) + "/" + discoveryNode + "/" + entity + "/config"
}

// Discovery builds the discovery message of a channel.
func Discovery(ch *TelemetryChannel, base string) (topic string, payload []byte, err error) {
	def := channelDefs[ch.ID]
	p := DiscoveryPayload{
		Name:              def.name,
		UniqueID:          uniqueIDPrefix + def.name,
		StateTopic:        ch.DestinationTopic,
		AvailabilityTopic: AvailabilityTopic(base),
		Device:            deviceInfo,
		DeviceClass:       def.deviceClass,
		UnitOfMeasurement: def.unit,
	}
	if def.entity == KindSwitch {
		p.CommandTopic = SetTopic(base, def.name)
		p.EnabledByDefault = true
		p.PayloadOn = PayloadOn
		p.PayloadOff = PayloadOff
	}
	payload, err = json.Marshal(p)
	if err != nil {
		return "", nil, err
	}
	return DiscoveryTopic(def.entity, def.name), payload, nil
}
