// Package config loads the host tools' YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fsrsense/core"
)

// Sources the monitor can read from.
const (
	SourceSerial = "serial"
	SourceBLE    = "ble"
)

// Config represents the application configuration.
type Config struct {
	Source  string        `yaml:"source"`
	Serial  SerialConfig  `yaml:"serial"`
	BLE     BLEConfig     `yaml:"ble"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Sim     SimConfig     `yaml:"sim"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// BLEConfig selects the board to subscribe to over Bluetooth.
type BLEConfig struct {
	Address     string        `yaml:"address"` // empty: first board advertising the service
	ScanTimeout time.Duration `yaml:"scan_timeout"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
	Debug bool   `yaml:"debug"` // forward firmware debug output (simulator only)
}

// MetricsConfig contains the Prometheus exporter configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MQTTConfig contains the republishing configuration.
type MQTTConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	QoS      byte          `yaml:"qos"`
	Retain   bool          `yaml:"retain"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SimConfig configures the simulated board served by fsr-sim.
type SimConfig struct {
	SamplePeriod        time.Duration `yaml:"sample_period"`
	PowerLead           time.Duration `yaml:"power_lead"`
	CalibrationInterval uint32        `yaml:"calibration_interval"`
	Delivery            string        `yaml:"delivery"` // "flag" or "queue"
	Rounding            string        `yaml:"rounding"` // "truncate" or "nearest"
	Speed               float64       `yaml:"speed"`    // virtual seconds per wall second
	Tick                time.Duration `yaml:"tick"`
	Signal              string        `yaml:"signal"` // "constant" or "sine"
	Raw                 []int16       `yaml:"raw"`    // constant codes per channel
	Amplitude           float64       `yaml:"amplitude"`
	SignalPeriod        time.Duration `yaml:"signal_period"`
	BusyPolls           int           `yaml:"busy_polls"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Source: SourceSerial,
		Serial: SerialConfig{
			Port:        "/dev/ttyACM0",
			Baud:        115200,
			ReadTimeout: 100 * time.Millisecond,
		},
		BLE: BLEConfig{
			ScanTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9108",
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "fsr-monitor",
			Topic:    "fsr/insole",
			QoS:      0,
			Timeout:  5 * time.Second,
		},
		Sim: SimConfig{
			SamplePeriod:        time.Duration(core.DefaultSamplePeriodMs) * time.Millisecond,
			PowerLead:           time.Duration(core.DefaultPowerLeadMs) * time.Millisecond,
			CalibrationInterval: core.DefaultCalibrationInterval,
			Delivery:            "flag",
			Rounding:            "truncate",
			Speed:               1,
			Tick:                10 * time.Millisecond,
			Signal:              "constant",
			Raw:                 []int16{512, 256},
			Amplitude:           300,
			SignalPeriod:        20 * time.Second,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the fields that have no usable zero value.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceSerial, SourceBLE:
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}
	if c.MQTT.Enabled && c.MQTT.Topic == "" {
		return fmt.Errorf("mqtt enabled without a topic")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos %d out of range", c.MQTT.QoS)
	}
	if _, err := c.Sim.CoreConfig(); err != nil {
		return fmt.Errorf("sim: %w", err)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Source == "" {
		c.Source = def.Source
	}
	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.BLE.ScanTimeout == 0 {
		c.BLE.ScanTimeout = def.BLE.ScanTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = def.Metrics.Listen
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = def.MQTT.Broker
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Timeout == 0 {
		c.MQTT.Timeout = def.MQTT.Timeout
	}

	if c.Sim.SamplePeriod == 0 {
		c.Sim.SamplePeriod = def.Sim.SamplePeriod
	}
	if c.Sim.PowerLead == 0 {
		c.Sim.PowerLead = def.Sim.PowerLead
	}
	if c.Sim.Delivery == "" {
		c.Sim.Delivery = def.Sim.Delivery
	}
	if c.Sim.Rounding == "" {
		c.Sim.Rounding = def.Sim.Rounding
	}
	if c.Sim.Speed == 0 {
		c.Sim.Speed = def.Sim.Speed
	}
	if c.Sim.Tick == 0 {
		c.Sim.Tick = def.Sim.Tick
	}
	if c.Sim.Signal == "" {
		c.Sim.Signal = def.Sim.Signal
	}
	if len(c.Sim.Raw) == 0 {
		c.Sim.Raw = def.Sim.Raw
	}
	if c.Sim.SignalPeriod == 0 {
		c.Sim.SignalPeriod = def.Sim.SignalPeriod
	}
}

// CoreConfig builds the firmware configuration the simulator runs with.
// A zero calibration interval is kept: it disables calibration.
func (s SimConfig) CoreConfig() (core.Config, error) {
	cfg := core.DefaultConfig()
	cfg.Timebase.SamplePeriodMs = uint32(s.SamplePeriod / time.Millisecond)
	cfg.Timebase.PowerLeadMs = uint32(s.PowerLead / time.Millisecond)
	cfg.CalibrationInterval = s.CalibrationInterval

	switch s.Delivery {
	case "flag":
		cfg.Delivery = core.DeliveryFlag
	case "queue":
		cfg.Delivery = core.DeliveryQueue
	default:
		return core.Config{}, fmt.Errorf("unknown delivery %q", s.Delivery)
	}
	switch s.Rounding {
	case "truncate":
		cfg.Rounding = core.RoundTruncate
	case "nearest":
		cfg.Rounding = core.RoundNearest
	default:
		return core.Config{}, fmt.Errorf("unknown rounding %q", s.Rounding)
	}
	switch s.Signal {
	case "constant", "sine":
	default:
		return core.Config{}, fmt.Errorf("unknown signal %q", s.Signal)
	}

	if err := cfg.Validate(); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}
