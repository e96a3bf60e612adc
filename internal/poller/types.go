package poller

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/luki/dhtmon/internal/sensor"
	"github.com/luki/dhtmon/internal/stats"
)

// Overlap decides what a tick does while the previous read of the same
// sensor has not completed.
type Overlap int

const (
	// OverlapCoalesce queues at most one pending tick per sensor.
	OverlapCoalesce Overlap = iota
	// OverlapSkip drops the tick.
	OverlapSkip
)

// ParseOverlap parses "coalesce" or "skip".
func ParseOverlap(s string) (Overlap, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coalesce", "":
		return OverlapCoalesce, nil
	case "skip":
		return OverlapSkip, nil
	default:
		return OverlapCoalesce, errors.Errorf("poller: unknown overlap policy %q", s)
	}
}

func (o Overlap) String() string {
	if o == OverlapSkip {
		return "skip"
	}
	return "coalesce"
}

// Sensor is one monitored sensor.
type Sensor struct {
	ID      string
	Name    string
	Model   sensor.Model
	Retries int // retry budget of Handle, 0 means sensor.DefaultRetries
	Handle  sensor.Handle
}

// Config is the runtime config the poller needs.
type Config struct {
	Interval time.Duration
	Policy   stats.Policy
	Overlap  Overlap
	Window   int              // recent retry window, see stats.New
	Now      func() time.Time // defaults to time.Now
}

// Update is emitted after every applied poll attempt.
type Update struct {
	Session  string
	Sensor   string
	Name     string
	Model    sensor.Model
	Retries  int
	Attempt  uint64
	Reading  sensor.Reading
	Changes  stats.Field
	Snapshot stats.Snapshot
}

// Status is the on-demand view of one sensor.
type Status struct {
	Session  string
	Sensor   string
	Name     string
	Model    sensor.Model
	Retries  int
	Skipped  uint64
	Snapshot stats.Snapshot
}

// Observer is notified of statistics changes. Updates for different
// sensors may arrive concurrently; updates for one sensor arrive in order.
type Observer interface {
	StatsChanged(u Update)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(u Update)

func (f ObserverFunc) StatsChanged(u Update) { f(u) }

// Observers fans an update out to every observer in order.
type Observers []Observer

func (o Observers) StatsChanged(u Update) {
	for _, obs := range o {
		if obs != nil {
			obs.StatsChanged(u)
		}
	}
}
