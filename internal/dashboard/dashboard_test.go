package dashboard

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luki/dhtmon/internal/chart"
	"github.com/luki/dhtmon/internal/poller"
	"github.com/luki/dhtmon/internal/sensor"
	"github.com/luki/dhtmon/internal/stats"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func clock(d *time.Duration) func() time.Time {
	return func() time.Time { return t0.Add(*d) }
}

func recordUpdate(s *stats.Stats, id string, r sensor.Reading, at time.Time) poller.Update {
	attempt := s.Begin()
	changes := s.Record(attempt, r, at)
	return poller.Update{
		Session:  "3f1c9a2e-0000",
		Sensor:   id,
		Name:     "Porch",
		Model:    sensor.DHT22,
		Attempt:  attempt,
		Reading:  r,
		Changes:  changes,
		Snapshot: s.Snapshot(at),
	}
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 60})
	return next.(Model)
}

func TestWaitingBeforeData(t *testing.T) {
	m := New(Options{Policy: stats.PolicySticky})
	assert.Equal(t, "  Initializing...", m.View())

	m = sized(m)
	assert.Contains(t, m.View(), "Waiting for sensor data")
}

func TestStatusesSeedPanels(t *testing.T) {
	var elapsed time.Duration
	statuses := func() []poller.Status {
		s := stats.New(stats.PolicySticky, 0)
		return []poller.Status{{Sensor: "dht-1", Name: "Porch", Model: sensor.DHT11, Snapshot: s.Snapshot(t0)}}
	}
	m := sized(New(Options{Statuses: statuses, Now: clock(&elapsed)}))

	view := m.View()
	assert.Contains(t, view, "DHT11")
	assert.Contains(t, view, "Porch")
	assert.Contains(t, view, "waiting")
	assert.Contains(t, view, "never")
}

func TestUpdateRendersStatistics(t *testing.T) {
	var elapsed time.Duration
	m := sized(New(Options{Policy: stats.PolicySticky, Now: clock(&elapsed), JournalDir: "/tmp/j"}))

	s := stats.New(stats.PolicySticky, 0)
	s.Start(t0)
	next, _ := m.Update(updateMsg(recordUpdate(s, "dht-1", sensor.Valid(21.5, 48, 2), t0.Add(time.Second))))
	next, _ = next.Update(updateMsg(recordUpdate(s, "dht-1", sensor.Invalid(20), t0.Add(2*time.Second))))
	m = next.(Model)

	view := m.View()
	assert.Contains(t, view, "DHT22")
	assert.Contains(t, view, "21.5 °C", "sticky keeps the last good value")
	assert.Contains(t, view, "48.0% RH")
	assert.Contains(t, view, "50.0%")
	assert.Contains(t, view, "FAIL")
	assert.Contains(t, view, "session 3f1c9a2…")
	assert.Contains(t, view, "REC")

	require.NotNil(t, m.retries.Get("dht-1"))
	assert.Equal(t, 2, m.retries.Get("dht-1").Len())
	assert.Equal(t, 1, m.temps.Get("dht-1").Len(), "failed reads are not charted")
}

func TestTickRefreshesRelativeTime(t *testing.T) {
	var elapsed time.Duration
	s := stats.New(stats.PolicySticky, 0)
	s.Start(t0)
	s.Record(s.Begin(), sensor.Valid(20, 50, 0), t0)

	now := clock(&elapsed)
	statuses := func() []poller.Status {
		return []poller.Status{{Sensor: "dht-1", Name: "Porch", Model: sensor.DHT11, Snapshot: s.Snapshot(now())}}
	}
	m := sized(New(Options{Statuses: statuses, Now: now}))
	assert.Contains(t, m.View(), "just now")

	elapsed = 3 * time.Minute
	next, cmd := m.Update(tickMsg(t0.Add(elapsed)))
	require.NotNil(t, cmd)
	assert.Contains(t, next.View(), "3 minutes ago")
}

func TestPauseFreezesPanels(t *testing.T) {
	var elapsed time.Duration
	m := sized(New(Options{Now: clock(&elapsed)}))
	s := stats.New(stats.PolicySentinel, 0)
	s.Start(t0)

	next, _ := m.Update(updateMsg(recordUpdate(s, "dht-1", sensor.Valid(19, 40, 0), t0)))
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	next, _ = next.Update(updateMsg(recordUpdate(s, "dht-1", sensor.Invalid(20), t0.Add(time.Second))))
	m = next.(Model)

	view := m.View()
	assert.Contains(t, view, "PAUSED")
	assert.Contains(t, view, "19.0 °C")
	assert.False(t, strings.Contains(view, "-1.0 °C"))
	assert.Equal(t, 2, m.retries.Get("dht-1").Len(), "history keeps recording while paused")
}

func TestQuitKey(t *testing.T) {
	m := New(Options{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestSensorOrderIsStable(t *testing.T) {
	m := New(Options{})
	s := stats.New(stats.PolicySticky, 0)
	for _, id := range []string{"b", "a", "b", "c"} {
		next, _ := m.Update(updateMsg(recordUpdate(s, id, sensor.Valid(20, 50, 0), t0)))
		m = next.(Model)
	}
	assert.Equal(t, []string{"b", "a", "c"}, m.order)
}

func TestFmtDuration(t *testing.T) {
	assert.Equal(t, "0m05s", fmtDuration(5*time.Second))
	assert.Equal(t, "1h02m03s", fmtDuration(time.Hour+2*time.Minute+3*time.Second))
}

func TestRetryChartScalesToSensorBudget(t *testing.T) {
	assert.Equal(t, 5.0, retryScale(5))
	assert.Equal(t, float64(sensor.DefaultRetries), retryScale(0))

	m := New(Options{})
	s := stats.New(stats.PolicySticky, 0)
	u := recordUpdate(s, "dht-1", sensor.Valid(20, 50, 5), t0.Add(30*time.Second))
	u.Retries = 5
	next, _ := m.Update(updateMsg(u))
	m = next.(Model)
	assert.Equal(t, 5, m.status["dht-1"].Retries)

	// A full-budget retry count reaches the top block of a 5-retry chart.
	spark := chart.RenderSparklinePoints(m.retries.Get("dht-1").LastNPoints(1), 1, 0, retryScale(m.status["dht-1"].Retries), chart.RetryThresholds)
	assert.Contains(t, spark, "█")
}
