package sensor

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Model identifies the sensor part behind a handle.
type Model string

const (
	DHT11 Model = "dht11"
	DHT22 Model = "dht22"
)

// modelIdentityMap maps model name prefixes to friendly part names.
var modelIdentityMap = []struct {
	prefix string
	model  Model
	name   string
}{
	{"dht11", DHT11, "DHT11"},
	{"dht22", DHT22, "DHT22"},
	{"am2302", DHT22, "DHT22 (AM2302)"},
	{"am2301", DHT22, "DHT21 (AM2301)"},
	{"dht21", DHT22, "DHT21 (AM2301)"},
}

// ParseModel resolves a configured model name. AM2301/AM2302 parts speak the
// DHT22 protocol and report DHT22 ranges.
func ParseModel(s string) (Model, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "" {
		return DHT11, nil
	}
	for _, entry := range modelIdentityMap {
		if strings.HasPrefix(lower, entry.prefix) {
			return entry.model, nil
		}
	}
	return "", errors.Errorf("sensor: unknown model %q", s)
}

// FriendlyName returns a human-readable part name for a model string.
func FriendlyName(model string) string {
	lower := strings.ToLower(model)
	for _, entry := range modelIdentityMap {
		if strings.HasPrefix(lower, entry.prefix) {
			return entry.name
		}
	}
	return "Sensor"
}

// Limits is the measuring range of a part. Values outside it are treated as
// a failed read.
type Limits struct {
	MinTemp, MaxTemp         float64
	MinHumidity, MaxHumidity float64
}

// Contains reports whether both values are within range.
func (l Limits) Contains(temperature, humidity float64) bool {
	return temperature >= l.MinTemp && temperature <= l.MaxTemp &&
		humidity >= l.MinHumidity && humidity <= l.MaxHumidity
}

// Limits returns the datasheet range of the model.
func (m Model) Limits() Limits {
	if m == DHT22 {
		return Limits{MinTemp: -40, MaxTemp: 80, MinHumidity: 0, MaxHumidity: 100}
	}
	return Limits{MinTemp: 0, MaxTemp: 50, MinHumidity: 20, MaxHumidity: 90}
}

// MinInterval is the shortest spacing between two conversions the part
// supports.
func (m Model) MinInterval() time.Duration {
	if m == DHT22 {
		return 2 * time.Second
	}
	return time.Second
}
