// internal/config/normalize.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/luki/dhtmon/internal/sensor"
	"github.com/luki/dhtmon/internal/stats"
)

// Fixed defaults of the demo application.
const (
	DefaultInterval = time.Second
	DefaultLogLevel = "info"
	DefaultTopic    = "dhtmon"
)

// Default is the single-sensor demo: one DHT11 polled once a second with
// the last good value kept on screen after a failed read.
func Default() *Config {
	return &Config{
		Sensors: []SensorConfig{
			{ID: "dht-1", Model: string(sensor.DHT11), Source: string(sensor.SourceSim), FailRate: 0.25},
		},
	}
}

// Demo returns a named preset: "single" or "multi". The multi preset mirrors
// the three-sensor page (two DHT22 and one DHT11) and flags failed reads
// with the sentinel value.
func Demo(name string) (*Config, error) {
	switch strings.ToLower(name) {
	case "", "single":
		return Default(), nil
	case "multi":
		sim := string(sensor.SourceSim)
		return &Config{
			Sensors: []SensorConfig{
				{ID: "dht-1", Model: string(sensor.DHT22), Source: sim, FailRate: 0.1},
				{ID: "dht-2", Model: string(sensor.DHT22), Source: sim, FailRate: 0.1},
				{ID: "dht-3", Model: string(sensor.DHT11), Source: sim, FailRate: 0.3},
			},
		}, nil
	default:
		return nil, errors.Errorf("config: unknown demo %q", name)
	}
}

// Normalize applies defaults to keys left empty.
// It MUST be called before Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RetryWindow == 0 {
		cfg.RetryWindow = stats.DefaultWindow
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Overlap == "" {
		cfg.Overlap = "coalesce"
	}

	// One sensor keeps the last good value on screen; several flag errors.
	if cfg.Policy == "" {
		if len(cfg.Sensors) > 1 {
			cfg.Policy = stats.PolicySentinel.String()
		} else {
			cfg.Policy = stats.PolicySticky.String()
		}
	}

	for i := range cfg.Sensors {
		s := &cfg.Sensors[i]
		if s.ID == "" {
			s.ID = fmt.Sprintf("dht-%d", i+1)
		}
		if s.Name == "" {
			s.Name = s.ID
		}
		if s.Model == "" {
			s.Model = string(sensor.DHT11)
		}
		if s.Source == "" {
			s.Source = string(sensor.SourceSim)
		}
		if s.Retries == nil {
			r := sensor.DefaultRetries
			s.Retries = &r
		}
	}

	if cfg.MQTT.Broker != "" && cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = DefaultTopic
	}
}
