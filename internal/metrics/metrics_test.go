package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luki/dhtmon/internal/poller"
	"github.com/luki/dhtmon/internal/sensor"
	"github.com/luki/dhtmon/internal/stats"
)

func update(t0 time.Time) poller.Update {
	s := stats.New(stats.PolicySentinel, 0)
	s.Start(t0)
	s.Record(s.Begin(), sensor.Valid(21.5, 48, 2), t0.Add(time.Second))
	s.Record(s.Begin(), sensor.Invalid(20), t0.Add(2*time.Second))
	return poller.Update{
		Sensor:   "dht-1",
		Name:     "Porch",
		Model:    sensor.DHT22,
		Snapshot: s.Snapshot(t0.Add(4 * time.Second)),
	}
}

func TestStatsChangedSetsGauges(t *testing.T) {
	m := New(nil)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	m.StatsChanged(update(t0))

	lv := []string{"dht-1", "Porch", "dht22"}
	assert.Equal(t, -1.0, testutil.ToFloat64(m.temperature.WithLabelValues(lv...)))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.percentSuccess.WithLabelValues(lv...)))
	assert.Equal(t, 11.0, testutil.ToFloat64(m.avgRetries.WithLabelValues(lv...)))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.lastRetries.WithLabelValues(lv...)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.lastValid.WithLabelValues(lv...)))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.readRate.WithLabelValues(lv...)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues(lv...)))
	assert.Equal(t, float64(t0.Add(time.Second).Unix()), testutil.ToFloat64(m.lastUpdated.WithLabelValues(lv...)))
}

func TestSkippedCollector(t *testing.T) {
	statuses := func() []poller.Status {
		return []poller.Status{{Sensor: "dht-1", Name: "Porch", Model: sensor.DHT11, Skipped: 3}}
	}
	m := New(statuses)

	expected := `
# HELP dht_skipped_ticks_total Ticks dropped or merged because the previous read was still running
# TYPE dht_skipped_ticks_total counter
dht_skipped_ticks_total{model="dht11",name="Porch",sensor="dht-1"} 3
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "dht_skipped_ticks_total"))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New(nil)
	m.StatsChanged(update(time.Now()))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "dht_humidity_percent")
}
