// Package sensor describes the outcome of a single temperature/humidity poll
// and the handles that produce them: the Linux kernel DHT driver, a random
// simulator and a scripted test double.
package sensor

import (
	"context"
	"fmt"
)

// Reading is the outcome of one poll attempt. Temperature and Humidity are
// only meaningful when Valid is set.
type Reading struct {
	Valid       bool
	Temperature float64 // degrees Celsius
	Humidity    float64 // % relative humidity
	RetryCount  int     // retries the driver performed before success or final failure
}

// Invalid returns a failed reading after the given number of retries.
func Invalid(retries int) Reading {
	if retries < 0 {
		retries = 0
	}
	return Reading{RetryCount: retries}
}

// Valid returns a successful reading.
func Valid(temperature, humidity float64, retries int) Reading {
	if retries < 0 {
		retries = 0
	}
	return Reading{Valid: true, Temperature: temperature, Humidity: humidity, RetryCount: retries}
}

func (r Reading) String() string {
	if !r.Valid {
		return fmt.Sprintf("invalid (retries=%d)", r.RetryCount)
	}
	return fmt.Sprintf("%.1f°C %.1f%%RH (retries=%d)", r.Temperature, r.Humidity, r.RetryCount)
}

// Handle is anything that can be asked for a reading. Read never fails:
// no response, checksum errors and timeouts all come back as an invalid
// Reading carrying the retry count. Implementations may also implement
// io.Closer; callers must stop reading before closing.
type Handle interface {
	Read(ctx context.Context) Reading
}
