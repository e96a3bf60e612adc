package stats

import (
	"strings"

	"github.com/pkg/errors"
)

// Field identifies a derived value a presenter may re-render. Fields
// combine into a bitset describing what one mutation changed.
type Field uint16

const (
	FieldPercentSuccess Field = 1 << iota
	FieldAverageRetries
	FieldTotalAttempts
	FieldSuccessRate
	FieldTemperature
	FieldHumidity
	FieldLastUpdated

	fieldEnd
)

// AllFields is every field set.
const AllFields = fieldEnd - 1

var fieldNames = map[Field]string{
	FieldPercentSuccess: "percentSuccess",
	FieldAverageRetries: "averageRetriesDisplay",
	FieldTotalAttempts:  "totalAttempts",
	FieldSuccessRate:    "successRate",
	FieldTemperature:    "temperatureDisplay",
	FieldHumidity:       "humidityDisplay",
	FieldLastUpdated:    "lastUpdatedDisplay",
}

// Has reports whether every field in f2 is set in f.
func (f Field) Has(f2 Field) bool {
	return f2 != 0 && f&f2 == f2
}

// Fields splits a set into its single fields, in declaration order.
func (f Field) Fields() []Field {
	var out []Field
	for bit := Field(1); bit < fieldEnd; bit <<= 1 {
		if f&bit != 0 {
			out = append(out, bit)
		}
	}
	return out
}

func (f Field) String() string {
	if f == 0 {
		return "none"
	}
	names := make([]string, 0, len(fieldNames))
	for _, bit := range f.Fields() {
		names = append(names, fieldNames[bit])
	}
	return strings.Join(names, "|")
}

// Policy decides what is displayed after a failed read.
type Policy int

const (
	// PolicySticky keeps the last good temperature/humidity on screen.
	PolicySticky Policy = iota
	// PolicySentinel shows Sentinel after a failed read so the error is
	// evident.
	PolicySentinel
)

// Sentinel is the displayed temperature/humidity after a failed read under
// PolicySentinel. A genuine reading of exactly -1 is indistinguishable from
// it and is not accepted as a last-good value.
const Sentinel = -1.0

// ParsePolicy parses "sticky" or "sentinel".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sticky", "":
		return PolicySticky, nil
	case "sentinel":
		return PolicySentinel, nil
	default:
		return PolicySticky, errors.Errorf("stats: unknown display policy %q", s)
	}
}

func (p Policy) String() string {
	if p == PolicySentinel {
		return "sentinel"
	}
	return "sticky"
}
