package main

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luki/dhtmon/internal/config"
	"github.com/luki/dhtmon/internal/sensor"
)

func TestOpenSensors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "iio:device9")

	tests := []struct {
		name    string
		sensors []config.SensorConfig
		want    []string
		errors  int
		noneErr bool
	}{
		{
			name: "missing device is left out",
			sensors: []config.SensorConfig{
				{ID: "porch", Model: "dht22", Source: "sysfs", Device: missing},
				{ID: "shed", Model: "dht11", Source: "sim"},
			},
			want:   []string{"shed"},
			errors: 1,
		},
		{
			name: "all sensors present",
			sensors: []config.SensorConfig{
				{ID: "a", Source: "sim"},
				{ID: "b", Source: "sim"},
			},
			want: []string{"a", "b"},
		},
		{
			name: "no sensor left",
			sensors: []config.SensorConfig{
				{ID: "porch", Model: "dht22", Source: "sysfs", Device: missing},
			},
			errors:  1,
			noneErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook := test.NewGlobal()
			defer hook.Reset()

			cfg := &config.Config{Sensors: tt.sensors}
			config.Normalize(cfg)

			got, err := openSensors(cfg)

			failures := 0
			for _, e := range hook.AllEntries() {
				if e.Level == log.ErrorLevel {
					failures++
				}
			}
			assert.Equal(t, tt.errors, failures, "missing controller reported once")

			if tt.noneErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, sensor.ErrNoController))
				return
			}
			require.NoError(t, err)

			var ids []string
			for _, s := range got {
				ids = append(ids, s.ID)
				assert.NotNil(t, s.Handle)
				assert.Equal(t, sensor.DefaultRetries, s.Retries)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
