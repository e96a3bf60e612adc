// internal/config/validate.go
package config

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/luki/dhtmon/internal/poller"
	"github.com/luki/dhtmon/internal/sensor"
	"github.com/luki/dhtmon/internal/stats"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be > 0, got %s", cfg.Interval)
	}
	if cfg.RetryWindow < 0 {
		return fmt.Errorf("retry_window must be >= 0, got %d", cfg.RetryWindow)
	}
	if _, err := stats.ParsePolicy(cfg.Policy); err != nil {
		return err
	}
	if _, err := poller.ParseOverlap(cfg.Overlap); err != nil {
		return err
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %v", err)
	}

	// ------------------------------------------------------------
	// SENSORS
	// ------------------------------------------------------------

	if len(cfg.Sensors) == 0 {
		return fmt.Errorf("at least one sensor is required")
	}

	seen := make(map[string]int)
	devices := make(map[string]string)

	for i, s := range cfg.Sensors {
		if s.ID == "" {
			return fmt.Errorf("sensor #%d: id is required", i+1)
		}
		if prev, exists := seen[s.ID]; exists {
			return fmt.Errorf("sensor id %q used by sensors #%d and #%d", s.ID, prev+1, i+1)
		}
		seen[s.ID] = i

		if _, err := sensor.ParseModel(s.Model); err != nil {
			return fmt.Errorf("sensor %q: %v", s.ID, err)
		}

		switch sensor.Source(s.Source) {
		case sensor.SourceSim:
			if s.FailRate < 0 || s.FailRate > 1 {
				return fmt.Errorf("sensor %q: fail_rate must be within 0..1, got %g", s.ID, s.FailRate)
			}
			if s.Latency < 0 {
				return fmt.Errorf("sensor %q: latency must be >= 0", s.ID)
			}
		case sensor.SourceSysfs:
			// One kernel device serves one sensor; two handles on the same
			// pin would interleave conversions.
			if s.Device != "" {
				if owner, exists := devices[s.Device]; exists {
					return fmt.Errorf("device %s claimed by sensors %q and %q", s.Device, owner, s.ID)
				}
				devices[s.Device] = s.ID
			}
		default:
			return fmt.Errorf("sensor %q: unknown source %q", s.ID, s.Source)
		}

		if s.Retries != nil && *s.Retries < 0 {
			return fmt.Errorf("sensor %q: retries must be >= 0", s.ID)
		}
	}

	// ------------------------------------------------------------
	// OUTPUTS
	// ------------------------------------------------------------

	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	if cfg.Stress.Workers < 0 {
		return fmt.Errorf("stress: workers must be >= 0")
	}

	return nil
}

// Warnings lists settings that are valid but likely to misbehave.
func Warnings(cfg *Config) []string {
	var out []string
	for _, s := range cfg.Sensors {
		m, err := sensor.ParseModel(s.Model)
		if err != nil {
			continue
		}
		if cfg.Interval < m.MinInterval() {
			out = append(out, fmt.Sprintf(
				"sensor %q: interval %s is shorter than the %s minimum of %s; the driver may return cached or failed reads",
				s.ID, cfg.Interval, sensor.FriendlyName(s.Model), m.MinInterval(),
			))
		}
	}
	return out
}
