// internal/config/build.go
package config

import (
	"github.com/luki/dhtmon/internal/poller"
	"github.com/luki/dhtmon/internal/sensor"
	"github.com/luki/dhtmon/internal/stats"
)

// Poller converts the validated config into runtime poller settings.
func (c *Config) Poller() (poller.Config, error) {
	policy, err := stats.ParsePolicy(c.Policy)
	if err != nil {
		return poller.Config{}, err
	}
	overlap, err := poller.ParseOverlap(c.Overlap)
	if err != nil {
		return poller.Config{}, err
	}
	return poller.Config{
		Interval: c.Interval,
		Policy:   policy,
		Overlap:  overlap,
		Window:   c.RetryWindow,
	}, nil
}

// Options converts one sensor entry into handle options.
func (s SensorConfig) Options() (sensor.Options, error) {
	model, err := sensor.ParseModel(s.Model)
	if err != nil {
		return sensor.Options{}, err
	}
	retries := sensor.DefaultRetries
	if s.Retries != nil {
		retries = *s.Retries
	}
	return sensor.Options{
		Model:   model,
		Source:  sensor.Source(s.Source),
		Device:  s.Device,
		Retries: retries,
		Seed:    s.Seed,
		Fail:    s.FailRate,
		Latency: s.Latency,
	}, nil
}
