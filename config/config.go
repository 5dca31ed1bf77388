package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultPath is where the add-on supervisor places the options file.
const DefaultPath = "/data/options.json"

// Topic is one entry of a topic list option.
type Topic struct {
	Topic string `yaml:"topic"`
}

// OPCItems names the OPC XML-DA items polled for the measured channels and the item the
// applied setpoint is written to.
type OPCItems struct {
	Generated string `yaml:"generated"`
	Reactive  string `yaml:"reactive"`
	Exported  string `yaml:"exported"`
	Setpoint  string `yaml:"setpoint"`
}

// Options holds the add-on options.
type Options struct {
	Server          string `yaml:"server"`
	OutstationAddr  uint16 `yaml:"outstation_addr"`
	MasterAddr      uint16 `yaml:"master_addr"`
	ListenIP        string `yaml:"listen_ip"`
	ListenPort      int    `yaml:"listen_port"`
	EventBufferSize uint   `yaml:"event_buffer_size"`
	MaxBinaryEvents uint   `yaml:"max_binary_events"` // 0 falls back to event_buffer_size
	MaxAnalogEvents uint   `yaml:"max_analog_events"` // 0 falls back to event_buffer_size
	SelectTimeout   int    `yaml:"select_timeout_sec"`

	MQTTHost      string `yaml:"mqtt_host"`
	MQTTPort      int    `yaml:"mqtt_port"`
	MQTTUser      string `yaml:"mqtt_user"`
	MQTTPassword  string `yaml:"mqtt_password"`
	MQTTBaseTopic string `yaml:"mqtt_base_topic"`

	PlantACGeneratedTopic        string  `yaml:"plant_ac_generated_topic"`
	PlantACGeneratedWattsPerUnit float64 `yaml:"plant_ac_generated_watts_per_unit"`
	GridReactiveTopic            string  `yaml:"grid_reactive_topic"`
	GridReactiveVarPerUnit       float64 `yaml:"grid_reactive_var_per_unit"`
	GridExportTopic              string  `yaml:"grid_export_topic"`
	GridExportWattsPerUnit       float64 `yaml:"grid_export_watts_per_unit"`

	PlantActivePowerSetTopics      []Topic `yaml:"plant_active_power_set_topics"`
	PlantRampUpSetTopic            string  `yaml:"plant_ramp_up_set_topic"`
	PlantRampDownSetTopic          string  `yaml:"plant_ramp_down_set_topic"`
	ProductionConstraintMultiplier float64 `yaml:"production_constraint_multiplier"`
	MaxTotalNominalActivePowerKW   float64 `yaml:"max_total_nominal_active_power_kw"`

	UpdateIntervalSec int `yaml:"update_interval_sec"`
	RampStepSec       int `yaml:"ramp_step_sec"`

	HTTPAddr     string   `yaml:"http_addr"`
	JournalPath  string   `yaml:"journal_path"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	OPCAddr        string   `yaml:"opc_addr"`
	OPCPort        string   `yaml:"opc_port"`
	OPCItems       OPCItems `yaml:"opc_items"`
	OPCIntervalSec int      `yaml:"opc_interval_sec"`

	Spoof bool `yaml:"spoof"`

	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
}

// Default returns the options used when nothing is configured.
func Default() *Options {
	return &Options{
		Server:          "vpn.example.com",
		OutstationAddr:  101,
		MasterAddr:      100,
		ListenIP:        "0.0.0.0",
		ListenPort:      20000,
		EventBufferSize: 20,
		SelectTimeout:   10,

		MQTTHost:      "localhost",
		MQTTPort:      1884,
		MQTTUser:      "mqtt-user",
		MQTTPassword:  "mqtt-user",
		MQTTBaseTopic: "scada",

		PlantACGeneratedTopic:        "test/plant/state",
		PlantACGeneratedWattsPerUnit: 1000,
		GridReactiveTopic:            "test/reactive/state",
		GridReactiveVarPerUnit:       1000,
		GridExportTopic:              "test/export/state",
		GridExportWattsPerUnit:       1000,

		PlantActivePowerSetTopics:      []Topic{{Topic: "test/active_power/set"}},
		PlantRampUpSetTopic:            "test/ramp_up/set",
		PlantRampDownSetTopic:          "test/ramp_down/set",
		ProductionConstraintMultiplier: 1,
		MaxTotalNominalActivePowerKW:   125,

		UpdateIntervalSec: 1,
		RampStepSec:       5,

		KafkaTopic:     "scada.commands",
		OPCIntervalSec: 5,

		LogLevel:      "info",
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
		LogMaxAgeDays: 28,
	}
}

// Load reads the options file on top of the defaults, then applies .env and SCADA_* overrides.
// An empty path skips the file. A missing .env is not an error.
func Load(path string) (*Options, error) {
	opts := Default()

	if path != "" {
		if err := loadFromFile(opts, path); err != nil {
			return nil, fmt.Errorf("failed to load options from %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := applyEnvOverrides(opts); err != nil {
		return nil, err
	}

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return opts, nil
}

// loadFromFile parses YAML or JSON; JSON is valid YAML.
func loadFromFile(opts *Options, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, opts)
}

func applyEnvOverrides(opts *Options) error {
	strs := map[string]*string{
		"SCADA_LISTEN_IP":     &opts.ListenIP,
		"SCADA_MQTT_HOST":     &opts.MQTTHost,
		"SCADA_MQTT_USER":     &opts.MQTTUser,
		"SCADA_MQTT_PASSWORD": &opts.MQTTPassword,
		"SCADA_BASE_TOPIC":    &opts.MQTTBaseTopic,
		"SCADA_HTTP_ADDR":     &opts.HTTPAddr,
		"SCADA_JOURNAL_PATH":  &opts.JournalPath,
		"SCADA_KAFKA_TOPIC":   &opts.KafkaTopic,
		"SCADA_OPC_ADDR":      &opts.OPCAddr,
		"SCADA_OPC_PORT":      &opts.OPCPort,
		"SCADA_LOG_LEVEL":     &opts.LogLevel,
		"SCADA_LOG_FILE":      &opts.LogFile,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SCADA_LISTEN_PORT":     &opts.ListenPort,
		"SCADA_MQTT_PORT":       &opts.MQTTPort,
		"SCADA_UPDATE_INTERVAL": &opts.UpdateIntervalSec,
		"SCADA_RAMP_STEP":       &opts.RampStepSec,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("SCADA_OUTSTATION_ADDR"); ok {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("SCADA_OUTSTATION_ADDR: %w", err)
		}
		opts.OutstationAddr = uint16(n)
	}
	if v, ok := os.LookupEnv("SCADA_KAFKA_BROKERS"); ok {
		opts.KafkaBrokers = splitList(v)
	}
	if v, ok := os.LookupEnv("SCADA_SPOOF"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SCADA_SPOOF: %w", err)
		}
		opts.Spoof = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks ranges and cross-field constraints.
func (o *Options) Validate() error {
	if o.OutstationAddr == o.MasterAddr {
		return fmt.Errorf("outstation_addr and master_addr must differ, both are %d", o.OutstationAddr)
	}
	if o.ListenPort <= 0 || o.ListenPort > 65535 {
		return fmt.Errorf("listen_port %d out of range", o.ListenPort)
	}
	if o.MQTTPort <= 0 || o.MQTTPort > 65535 {
		return fmt.Errorf("mqtt_port %d out of range", o.MQTTPort)
	}
	if o.EventBufferSize == 0 && (o.MaxBinaryEvents == 0 || o.MaxAnalogEvents == 0) {
		return errors.New("event_buffer_size must be positive")
	}
	if strings.TrimSpace(o.MQTTBaseTopic) == "" {
		return errors.New("mqtt_base_topic must not be empty")
	}
	if strings.ContainsAny(o.MQTTBaseTopic, "+#") {
		return fmt.Errorf("mqtt_base_topic %q must not contain wildcards", o.MQTTBaseTopic)
	}
	if o.ProductionConstraintMultiplier <= 0 {
		return fmt.Errorf("production_constraint_multiplier must be positive, got %v", o.ProductionConstraintMultiplier)
	}
	if o.MaxTotalNominalActivePowerKW < 0 {
		return fmt.Errorf("max_total_nominal_active_power_kw must not be negative, got %v", o.MaxTotalNominalActivePowerKW)
	}
	if o.UpdateIntervalSec <= 0 {
		return fmt.Errorf("update_interval_sec must be positive, got %d", o.UpdateIntervalSec)
	}
	if o.RampStepSec <= 0 {
		return fmt.Errorf("ramp_step_sec must be positive, got %d", o.RampStepSec)
	}
	if o.SelectTimeout < 0 {
		return fmt.Errorf("select_timeout_sec must not be negative, got %d", o.SelectTimeout)
	}
	if len(o.KafkaBrokers) > 0 && o.KafkaTopic == "" {
		return errors.New("kafka_topic is required when kafka_brokers is set")
	}
	if o.OPCAddr != "" && o.OPCIntervalSec <= 0 {
		return fmt.Errorf("opc_interval_sec must be positive, got %d", o.OPCIntervalSec)
	}
	return nil
}

// BinaryEvents returns the binary event buffer capacity.
func (o *Options) BinaryEvents() uint {
	if o.MaxBinaryEvents > 0 {
		return o.MaxBinaryEvents
	}
	return o.EventBufferSize
}

// AnalogEvents returns the analog event buffer capacity.
func (o *Options) AnalogEvents() uint {
	if o.MaxAnalogEvents > 0 {
		return o.MaxAnalogEvents
	}
	return o.EventBufferSize
}

func (o *Options) UpdateInterval() time.Duration {
	return time.Duration(o.UpdateIntervalSec) * time.Second
}

func (o *Options) RampStep() time.Duration {
	return time.Duration(o.RampStepSec) * time.Second
}

func (o *Options) SelectTimeoutDuration() time.Duration {
	return time.Duration(o.SelectTimeout) * time.Second
}

func (o *Options) OPCInterval() time.Duration {
	return time.Duration(o.OPCIntervalSec) * time.Second
}

// ActivePowerSetTopics returns the non-empty device setpoint topics.
func (o *Options) ActivePowerSetTopics() []string {
	var out []string
	for _, t := range o.PlantActivePowerSetTopics {
		if t.Topic != "" {
			out = append(out, t.Topic)
		}
	}
	return out
}
