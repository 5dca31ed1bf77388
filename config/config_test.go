package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	opts, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.OutstationAddr != 101 || opts.MasterAddr != 100 {
		t.Errorf("addresses = %d/%d, want 101/100", opts.OutstationAddr, opts.MasterAddr)
	}
	if opts.MQTTPort != 1884 || opts.MQTTBaseTopic != "scada" {
		t.Errorf("mqtt = %d %q", opts.MQTTPort, opts.MQTTBaseTopic)
	}
	if opts.RampStep() != 5*time.Second {
		t.Errorf("RampStep = %v, want 5s", opts.RampStep())
	}
	if got := opts.ActivePowerSetTopics(); !reflect.DeepEqual(got, []string{"test/active_power/set"}) {
		t.Errorf("ActivePowerSetTopics = %v", got)
	}
}

func TestLoadJSONOptions(t *testing.T) {
	path := writeFile(t, "options.json", `{
  "outstation_addr": 7,
  "mqtt_host": "broker.local",
  "mqtt_base_topic": "plant",
  "plant_ac_generated_watts_per_unit": 1,
  "plant_active_power_set_topics": [{"topic": "inv1/set"}, {"topic": ""}, {"topic": "inv2/set"}],
  "max_total_nominal_active_power_kw": 250
}`)
	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.OutstationAddr != 7 || opts.MQTTHost != "broker.local" || opts.MQTTBaseTopic != "plant" {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.PlantACGeneratedWattsPerUnit != 1 {
		t.Errorf("watts per unit = %v, want 1", opts.PlantACGeneratedWattsPerUnit)
	}
	if got := opts.ActivePowerSetTopics(); !reflect.DeepEqual(got, []string{"inv1/set", "inv2/set"}) {
		t.Errorf("ActivePowerSetTopics = %v", got)
	}
	if opts.MaxTotalNominalActivePowerKW != 250 {
		t.Errorf("rated = %v, want 250", opts.MaxTotalNominalActivePowerKW)
	}
	// untouched keys keep their defaults
	if opts.GridReactiveVarPerUnit != 1000 {
		t.Errorf("reactive multiplier = %v, want default 1000", opts.GridReactiveVarPerUnit)
	}
}

func TestLoadYAMLOptions(t *testing.T) {
	path := writeFile(t, "options.yaml", `
listen_port: 20001
event_buffer_size: 50
max_analog_events: 100
kafka_brokers: ["k1:9092", "k2:9092"]
spoof: true
`)
	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.ListenPort != 20001 || !opts.Spoof {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.BinaryEvents() != 50 || opts.AnalogEvents() != 100 {
		t.Errorf("event buffers = %d/%d, want 50/100", opts.BinaryEvents(), opts.AnalogEvents())
	}
	if len(opts.KafkaBrokers) != 2 {
		t.Errorf("kafka brokers = %v", opts.KafkaBrokers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing options file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCADA_MQTT_HOST", "env-broker")
	t.Setenv("SCADA_MQTT_PORT", "1883")
	t.Setenv("SCADA_OUTSTATION_ADDR", "55")
	t.Setenv("SCADA_KAFKA_BROKERS", "a:1, b:2,")
	t.Setenv("SCADA_SPOOF", "true")

	opts, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.MQTTHost != "env-broker" || opts.MQTTPort != 1883 || opts.OutstationAddr != 55 {
		t.Errorf("overrides not applied: %+v", opts)
	}
	if !reflect.DeepEqual(opts.KafkaBrokers, []string{"a:1", "b:2"}) {
		t.Errorf("kafka brokers = %v", opts.KafkaBrokers)
	}
	if !opts.Spoof {
		t.Error("spoof override not applied")
	}
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("SCADA_MQTT_PORT", "not-a-port")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error for a non-numeric port")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"same link addresses", func(o *Options) { o.MasterAddr = o.OutstationAddr }},
		{"listen port", func(o *Options) { o.ListenPort = 0 }},
		{"mqtt port", func(o *Options) { o.MQTTPort = 70000 }},
		{"event buffer", func(o *Options) { o.EventBufferSize = 0 }},
		{"empty base topic", func(o *Options) { o.MQTTBaseTopic = " " }},
		{"wildcard base topic", func(o *Options) { o.MQTTBaseTopic = "scada/#" }},
		{"multiplier", func(o *Options) { o.ProductionConstraintMultiplier = 0 }},
		{"rated", func(o *Options) { o.MaxTotalNominalActivePowerKW = -1 }},
		{"update interval", func(o *Options) { o.UpdateIntervalSec = 0 }},
		{"ramp step", func(o *Options) { o.RampStepSec = 0 }},
		{"kafka topic", func(o *Options) { o.KafkaBrokers = []string{"k:9092"}; o.KafkaTopic = "" }},
		{"opc interval", func(o *Options) { o.OPCAddr = "10.0.0.1"; o.OPCIntervalSec = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Default()
			tt.mutate(opts)
			if err := opts.Validate(); err == nil {
				t.Errorf("Validate accepted %s", tt.name)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults rejected: %v", err)
	}
}
