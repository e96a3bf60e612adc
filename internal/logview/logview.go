// Package logview presents sensor statistics as structured log lines for
// headless runs.
package logview

import (
	log "github.com/sirupsen/logrus"

	"github.com/luki/dhtmon/internal/poller"
	"github.com/luki/dhtmon/internal/stats"
)

// Logger is a poller observer that logs every applied attempt.
type Logger struct {
	logger log.FieldLogger
	// Every logs one line per Every attempts per sensor; failed reads are
	// always logged. Values below 1 log every attempt.
	Every uint64
}

// New returns a Logger writing to l, or to the standard logger when l is nil.
func New(l log.FieldLogger) *Logger {
	if l == nil {
		l = log.StandardLogger()
	}
	return &Logger{logger: l, Every: 1}
}

// StatsChanged implements poller.Observer.
func (l *Logger) StatsChanged(u poller.Update) {
	every := l.Every
	if every < 1 {
		every = 1
	}
	if u.Reading.Valid && u.Attempt%every != 0 {
		return
	}

	entry := l.logger.WithFields(fields(u.Sensor, u.Name, u.Snapshot)).
		WithField("changed", u.Changes.String())

	if !u.Reading.Valid {
		entry.Warn("read failed")
		return
	}
	entry.Info("reading")
}

// Summary logs the final statistics of every sensor.
func (l *Logger) Summary(statuses []poller.Status) {
	for _, st := range statuses {
		l.logger.WithFields(fields(st.Sensor, st.Name, st.Snapshot)).
			WithField("skipped", st.Skipped).
			Info("session summary")
	}
}

func fields(id, name string, s stats.Snapshot) log.Fields {
	return log.Fields{
		"sensor":      id,
		"name":        name,
		"temperature": s.TemperatureDisplay,
		"humidity":    s.HumidityDisplay,
		"attempts":    s.TotalAttempts,
		"success":     s.PercentSuccess,
		"avg_retries": s.AverageRetriesDisplay,
		"rate":        s.SuccessRate,
		"updated":     s.LastUpdatedDisplay,
	}
}
