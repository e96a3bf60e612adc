// Package metrics exposes sensor reliability statistics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luki/dhtmon/internal/poller"
)

var labels = []string{"sensor", "name", "model"}

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dht",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// Metrics is a poller observer that mirrors every update into gauges.
type Metrics struct {
	reg *prometheus.Registry

	temperature    *prometheus.GaugeVec
	humidity       *prometheus.GaugeVec
	percentSuccess *prometheus.GaugeVec
	avgRetries     *prometheus.GaugeVec
	lastRetries    *prometheus.GaugeVec
	readRate       *prometheus.GaugeVec
	lastValid      *prometheus.GaugeVec
	lastUpdated    *prometheus.GaugeVec
	attempts       *prometheus.GaugeVec
	successes      *prometheus.GaugeVec
}

// StatusFunc returns the current status of every sensor.
type StatusFunc func() []poller.Status

// New registers the sensor gauges on a fresh registry. statuses may be nil;
// when set it backs the skipped tick counter.
func New(statuses StatusFunc) *Metrics {
	m := &Metrics{
		reg:            prometheus.NewRegistry(),
		temperature:    newGauge("temperature_celsius", "Displayed temperature (units: degrees Celsius, -1 marks a failed read)"),
		humidity:       newGauge("humidity_percent", "Displayed relative humidity (units: %, -1 marks a failed read)"),
		percentSuccess: newGauge("success_ratio", "Successful reads over total attempts (0..1)"),
		avgRetries:     newGauge("average_retries", "Average driver retries per reading over the session"),
		lastRetries:    newGauge("last_retries", "Driver retries used by the most recent reading"),
		readRate:       newGauge("readings_per_second", "Successful readings per second since polling started"),
		lastValid:      newGauge("last_read_ok", "1 when the most recent reading was valid"),
		lastUpdated:    newGauge("last_success_timestamp_seconds", "Unix time of the most recent valid reading"),
		attempts:       newGauge("attempts", "Poll attempts since polling started"),
		successes:      newGauge("successes", "Valid readings since polling started"),
	}

	m.reg.MustRegister(
		m.temperature,
		m.humidity,
		m.percentSuccess,
		m.avgRetries,
		m.lastRetries,
		m.readRate,
		m.lastValid,
		m.lastUpdated,
		m.attempts,
		m.successes,
	)
	if statuses != nil {
		m.reg.MustRegister(&skippedCollector{statuses: statuses})
	}
	// Add Go module build info.
	m.reg.MustRegister(prometheus.NewBuildInfoCollector())

	return m
}

// Registry returns the registry the gauges live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry, opting into OpenMetrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.reg,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	)
}

// StatsChanged implements poller.Observer.
func (m *Metrics) StatsChanged(u poller.Update) {
	lv := []string{u.Sensor, u.Name, string(u.Model)}
	s := u.Snapshot

	m.temperature.WithLabelValues(lv...).Set(s.Temperature)
	m.humidity.WithLabelValues(lv...).Set(s.Humidity)
	if s.TotalAttempts > 0 {
		m.percentSuccess.WithLabelValues(lv...).Set(float64(s.TotalSuccess) / float64(s.TotalAttempts))
	}
	m.avgRetries.WithLabelValues(lv...).Set(float64(s.AverageRetries))
	m.lastRetries.WithLabelValues(lv...).Set(float64(s.LastRetryCount))
	if s.HasRate {
		m.readRate.WithLabelValues(lv...).Set(s.Rate)
	}
	if s.LastValid {
		m.lastValid.WithLabelValues(lv...).Set(1)
	} else {
		m.lastValid.WithLabelValues(lv...).Set(0)
	}
	if !s.LastUpdatedAt.IsZero() {
		m.lastUpdated.WithLabelValues(lv...).Set(float64(s.LastUpdatedAt.Unix()))
	}
	m.attempts.WithLabelValues(lv...).Set(float64(s.TotalAttempts))
	m.successes.WithLabelValues(lv...).Set(float64(s.TotalSuccess))
}

// skippedCollector reads skipped tick counts on scrape, since skips never
// produce an update.
type skippedCollector struct {
	statuses StatusFunc
}

var skippedDesc = prometheus.NewDesc(
	"dht_skipped_ticks_total",
	"Ticks dropped or merged because the previous read was still running",
	labels, nil,
)

func (c *skippedCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- skippedDesc
}

func (c *skippedCollector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.statuses() {
		ch <- prometheus.MustNewConstMetric(
			skippedDesc,
			prometheus.CounterValue,
			float64(st.Skipped),
			st.Sensor, st.Name, string(st.Model),
		)
	}
}
