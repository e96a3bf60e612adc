package sensor

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Simulated produces DHT-like readings without hardware. Each conversion
// fails with probability fail; the handle retries up to retries times and
// every attempt takes latency.
type Simulated struct {
	mu      sync.Mutex
	rng     *rand.Rand
	model   Model
	fail    float64
	retries int
	latency time.Duration

	temp float64
	hum  float64
}

// NewSimulated returns a simulated sensor. A zero seed picks one from the clock.
func NewSimulated(model Model, seed int64, fail float64, retries int, latency time.Duration) *Simulated {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if retries < 0 {
		retries = 0
	}
	rng := rand.New(rand.NewSource(seed))
	return &Simulated{
		rng:     rng,
		model:   model,
		fail:    math.Max(0, math.Min(1, fail)),
		retries: retries,
		latency: latency,
		temp:    18 + rng.Float64()*10, // 18–28°C
		hum:     30 + rng.Float64()*40, // 30–70%
	}
}

func (s *Simulated) Read(ctx context.Context) Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt <= s.retries; attempt++ {
		if s.latency > 0 {
			select {
			case <-ctx.Done():
				return Invalid(attempt)
			case <-time.After(s.latency):
			}
		}
		if s.rng.Float64() < s.fail {
			continue
		}
		s.drift()
		return Valid(round1(s.temp), round1(s.hum), attempt)
	}
	return Invalid(s.retries)
}

// drift walks the simulated climate slowly and keeps it inside the part's range.
func (s *Simulated) drift() {
	l := s.model.Limits()
	s.temp = math.Max(l.MinTemp, math.Min(l.MaxTemp, s.temp+(s.rng.Float64()-0.5)*0.4))
	s.hum = math.Max(l.MinHumidity, math.Min(l.MaxHumidity, s.hum+(s.rng.Float64()-0.5)*1.0))
}

// DHT11 only resolves whole units; rounding to one decimal suits both parts.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ── Scripted test double ─────────────────────────────────────────────

// Step is one scripted read: the reading to return and how long to take.
type Step struct {
	Reading Reading
	Delay   time.Duration
}

// Scripted replays a fixed sequence of readings, repeating the last step
// once the script is exhausted. It records reads issued after Close.
type Scripted struct {
	mu        sync.Mutex
	steps     []Step
	next      int
	calls     int
	closed    bool
	afterDone int
	inFlight  int
	maxFlight int
}

// NewScripted returns a handle replaying steps.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Script returns a handle replaying readings with no delay.
func Script(readings ...Reading) *Scripted {
	steps := make([]Step, len(readings))
	for i, r := range readings {
		steps[i] = Step{Reading: r}
	}
	return NewScripted(steps...)
}

func (s *Scripted) Read(ctx context.Context) Reading {
	s.mu.Lock()
	s.calls++
	if s.closed {
		s.afterDone++
	}
	s.inFlight++
	if s.inFlight > s.maxFlight {
		s.maxFlight = s.inFlight
	}
	var step Step
	if len(s.steps) > 0 {
		idx := s.next
		if idx >= len(s.steps) {
			idx = len(s.steps) - 1
		} else {
			s.next++
		}
		step = s.steps[idx]
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if step.Delay > 0 {
		select {
		case <-ctx.Done():
			return Invalid(step.Reading.RetryCount)
		case <-time.After(step.Delay):
		}
	}
	return step.Reading
}

// Close marks the handle released.
func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls returns how many reads were issued.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ReadsAfterClose returns how many reads were issued on a released handle.
func (s *Scripted) ReadsAfterClose() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.afterDone
}

// MaxInFlight returns the highest number of concurrent reads observed.
func (s *Scripted) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxFlight
}
