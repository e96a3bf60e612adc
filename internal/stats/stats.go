// Package stats accumulates per-sensor poll outcomes and derives the
// reliability figures shown to the user: success percentage, average retry
// count, reading rate and time since the last good reading.
package stats

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/luki/dhtmon/internal/history"
	"github.com/luki/dhtmon/internal/sensor"
)

// DefaultWindow is the number of recent retry counts kept for trend display.
const DefaultWindow = 600

// Stats is the reliability record of one sensor for one polling session.
// It is mutated only by the poller that owns it; presenters read Snapshots.
type Stats struct {
	mu sync.RWMutex

	policy    Policy
	startedAt time.Time

	totalAttempts uint64
	totalSuccess  uint64

	// Whole-session retry mean as a streaming count/sum pair; recent keeps
	// a bounded window for trends.
	retrySum   uint64
	retryCount uint64
	recent     *history.Buffer
	lastRetry  int
	lastValid  bool

	lastGoodTemp float64
	lastGoodHum  float64
	lastUpdated  time.Time

	displayTemp float64
	displayHum  float64

	applied     bool
	lastAttempt uint64
}

// New creates an empty record. window bounds the recent retry trend; values
// below 1 use DefaultWindow.
func New(policy Policy, window int) *Stats {
	if window < 1 {
		window = DefaultWindow
	}
	return &Stats{
		policy: policy,
		recent: history.NewBuffer(window),
	}
}

// Start sets the rate epoch. Only the first call has an effect.
func (s *Stats) Start(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		s.startedAt = now
	}
}

// Begin opens a new attempt: it returns the attempt index (the number of
// attempts before this one) and counts the attempt.
func (s *Stats) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.totalAttempts
	s.totalAttempts++
	return idx
}

// Record applies the outcome of attempt. Counters and retry history always
// take the reading; displayed values only move forward, so a result older
// than one already applied cannot overwrite it. It returns the fields that
// changed.
func (s *Stats) Record(attempt uint64, r sensor.Reading, now time.Time) Field {
	s.mu.Lock()
	defer s.mu.Unlock()

	retries := r.RetryCount
	if retries < 0 {
		retries = 0
	}
	s.retrySum += uint64(retries)
	s.retryCount++
	s.recent.Push(float64(retries), now)

	changes := FieldTotalAttempts | FieldAverageRetries | FieldPercentSuccess | FieldLastUpdated
	if r.Valid {
		s.totalSuccess++
		changes |= FieldSuccessRate
	}

	if s.applied && attempt <= s.lastAttempt {
		return changes
	}
	s.applied = true
	s.lastAttempt = attempt
	s.lastRetry = retries
	s.lastValid = r.Valid

	if r.Valid {
		s.lastUpdated = now
		changes |= s.setLastGood(r.Temperature, r.Humidity)
		return changes
	}

	if s.policy == PolicySentinel {
		changes |= s.setDisplay(Sentinel, Sentinel)
	}
	return changes
}

// setLastGood is the sticky path. Under PolicySentinel it refuses the
// sentinel value so an error marker never becomes a last-good value.
func (s *Stats) setLastGood(temp, hum float64) Field {
	if s.policy == PolicySentinel {
		if temp == Sentinel {
			temp = s.lastGoodTemp
		}
		if hum == Sentinel {
			hum = s.lastGoodHum
		}
	}
	s.lastGoodTemp = temp
	s.lastGoodHum = hum
	return s.setDisplay(temp, hum)
}

func (s *Stats) setDisplay(temp, hum float64) Field {
	var changes Field
	if s.displayTemp != temp {
		s.displayTemp = temp
		changes |= FieldTemperature
	}
	if s.displayHum != hum {
		s.displayHum = hum
		changes |= FieldHumidity
	}
	return changes
}

// ── Derived values ───────────────────────────────────────────────────

// PercentSuccess is 100·success/attempts with one decimal.
func (s *Stats) PercentSuccess() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return percentSuccess(s.totalSuccess, s.totalAttempts)
}

func percentSuccess(success, attempts uint64) string {
	if attempts == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(success)/float64(attempts))
}

// AverageRetries is the floor of the mean retry count over the session.
func (s *Stats) AverageRetries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.averageRetries()
}

func (s *Stats) averageRetries() int {
	if s.retryCount == 0 {
		return 0
	}
	return int(s.retrySum / s.retryCount)
}

// AverageRetriesDisplay renders AverageRetries.
func (s *Stats) AverageRetriesDisplay() string {
	return strconv.Itoa(s.AverageRetries())
}

// Rate returns successful readings per second since Start. ok is false
// before the session has a measurable age or a first success.
func (s *Stats) Rate(now time.Time) (rate float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate(now)
}

func (s *Stats) rate(now time.Time) (float64, bool) {
	if s.startedAt.IsZero() || s.totalSuccess == 0 {
		return 0, false
	}
	elapsed := now.Sub(s.startedAt).Seconds()
	if elapsed <= 0 {
		return 0, false
	}
	return float64(s.totalSuccess) / elapsed, true
}

// SuccessRate renders the rate as seconds per reading when slower than one
// reading a second, readings per second otherwise.
func (s *Stats) SuccessRate(now time.Time) string {
	rate, ok := s.Rate(now)
	return formatRate(rate, ok)
}

func formatRate(rate float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	if rate < 1 {
		return fmt.Sprintf("%.2f seconds/reading", 1/rate)
	}
	return fmt.Sprintf("%.2f readings/sec", rate)
}

// TemperatureDisplay renders the displayed temperature.
func (s *Stats) TemperatureDisplay() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("%.1f °C", s.displayTemp)
}

// HumidityDisplay renders the displayed humidity.
func (s *Stats) HumidityDisplay() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("%.1f%% RH", s.displayHum)
}

// LastUpdatedDisplay renders the age of the last good reading.
func (s *Stats) LastUpdatedDisplay(now time.Time) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return HumanRelativeTime(s.lastUpdated, now)
}

// HumanRelativeTime renders how long ago t was. A zero t means never.
func HumanRelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	elapsed := now.Sub(t)
	switch {
	case elapsed < time.Minute:
		secs := int(elapsed.Seconds())
		if secs < 2 {
			return "just now"
		}
		return ago(secs, "second")
	case elapsed < time.Hour:
		return ago(atLeastOne(elapsed.Minutes()), "minute")
	case elapsed < 24*time.Hour:
		return ago(atLeastOne(elapsed.Hours()), "hour")
	default:
		return "a long time ago"
	}
}

func atLeastOne(v float64) int {
	n := int(math.Floor(v))
	if n < 1 {
		return 1
	}
	return n
}

func ago(n int, unit string) string {
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s ago", n, unit)
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is an immutable copy of a record with every derived value
// evaluated at one instant.
type Snapshot struct {
	Policy    Policy
	At        time.Time
	StartedAt time.Time

	TotalAttempts uint64
	TotalSuccess  uint64

	AverageRetries       int
	RecentAverageRetries int
	LastRetryCount       int
	LastValid            bool

	Temperature         float64 // displayed
	Humidity            float64 // displayed
	LastGoodTemperature float64
	LastGoodHumidity    float64
	LastUpdatedAt       time.Time // zero means never

	Rate    float64
	HasRate bool

	PercentSuccess        string
	AverageRetriesDisplay string
	SuccessRate           string
	TemperatureDisplay    string
	HumidityDisplay       string
	LastUpdatedDisplay    string
}

// Snapshot evaluates the record at now.
func (s *Stats) Snapshot(now time.Time) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rate, ok := s.rate(now)
	avg := s.averageRetries()
	return Snapshot{
		Policy:    s.policy,
		At:        now,
		StartedAt: s.startedAt,

		TotalAttempts: s.totalAttempts,
		TotalSuccess:  s.totalSuccess,

		AverageRetries:       avg,
		RecentAverageRetries: int(math.Floor(s.recent.Avg())),
		LastRetryCount:       s.lastRetry,
		LastValid:            s.lastValid,

		Temperature:         s.displayTemp,
		Humidity:            s.displayHum,
		LastGoodTemperature: s.lastGoodTemp,
		LastGoodHumidity:    s.lastGoodHum,
		LastUpdatedAt:       s.lastUpdated,

		Rate:    rate,
		HasRate: ok,

		PercentSuccess:        percentSuccess(s.totalSuccess, s.totalAttempts),
		AverageRetriesDisplay: strconv.Itoa(avg),
		SuccessRate:           formatRate(rate, ok),
		TemperatureDisplay:    fmt.Sprintf("%.1f °C", s.displayTemp),
		HumidityDisplay:       fmt.Sprintf("%.1f%% RH", s.displayHum),
		LastUpdatedDisplay:    HumanRelativeTime(s.lastUpdated, now),
	}
}
