// internal/config/config.go
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Interval    time.Duration  `yaml:"interval"`
	Policy      string         `yaml:"policy"`  // sticky | sentinel
	Overlap     string         `yaml:"overlap"` // coalesce | skip
	RetryWindow int            `yaml:"retry_window"`
	LogLevel    string         `yaml:"log_level"`
	Sensors     []SensorConfig `yaml:"sensors"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	MQTT        MQTTConfig     `yaml:"mqtt"`
	Journal     JournalConfig  `yaml:"journal"`
	Stress      StressConfig   `yaml:"stress"`
}

// ---- SENSOR ----

type SensorConfig struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Model  string `yaml:"model"`  // dht11 | dht22 | am2302
	Source string `yaml:"source"` // sim | sysfs
	Device string `yaml:"device"` // sysfs IIO device directory

	// Retries is the driver retry budget; nil means the default.
	Retries *int `yaml:"retries"`

	// Simulator knobs
	FailRate float64       `yaml:"fail_rate"`
	Latency  time.Duration `yaml:"latency"`
	Seed     int64         `yaml:"seed"`
}

// ---- OUTPUTS (all optional, empty disables) ----

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// ---- CPU LOAD EMULATION ----

type StressConfig struct {
	Enabled bool `yaml:"enabled"`
	Workers int  `yaml:"workers"` // 0 means one per core
}

// Load reads a YAML config file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(b)
}

// Parse decodes YAML config. Keys left out keep their zero value until
// Normalize fills them in.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode config")
	}
	return &cfg, nil
}
