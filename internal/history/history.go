// Package history provides a fixed-capacity ring buffer of timestamped
// values with min/peak tracking and an O(1) windowed average.
package history

import (
	"math"
	"time"
)

// Point is a single data point in a history buffer.
type Point struct {
	Value float64
	Time  time.Time
}

// Buffer stores the most recent Max points for one series. Older points are
// overwritten once the buffer is full. Min and Peak cover every value ever
// pushed, not just the retained window.
type Buffer struct {
	Max  int // capacity
	Min  float64
	Peak float64

	points []Point
	head   int // index of the oldest point once full
	sum    float64
}

// NewBuffer creates a new history ring buffer with the given capacity.
// A capacity below 1 is raised to 1.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		Max:    capacity,
		Min:    math.MaxFloat64,
		Peak:   -math.MaxFloat64,
		points: make([]Point, 0, capacity),
	}
}

// Push adds a new value to the history.
func (b *Buffer) Push(v float64, t time.Time) {
	p := Point{Value: v, Time: t}
	if len(b.points) < b.Max {
		b.points = append(b.points, p)
	} else {
		b.sum -= b.points[b.head].Value
		b.points[b.head] = p
		b.head = (b.head + 1) % b.Max
	}
	b.sum += v

	if v < b.Min {
		b.Min = v
	}
	if v > b.Peak {
		b.Peak = v
	}
}

// Len returns the number of retained points.
func (b *Buffer) Len() int {
	return len(b.points)
}

// at returns the i-th retained point, oldest first.
func (b *Buffer) at(i int) Point {
	return b.points[(b.head+i)%len(b.points)]
}

// Last returns the most recent value, or 0 if empty.
func (b *Buffer) Last() float64 {
	if len(b.points) == 0 {
		return 0
	}
	return b.at(len(b.points) - 1).Value
}

// Avg returns the average of the retained values.
func (b *Buffer) Avg() float64 {
	if len(b.points) == 0 {
		return 0
	}
	return b.sum / float64(len(b.points))
}

// LastN returns the last n values, oldest first (for chart rendering).
func (b *Buffer) LastN(n int) []float64 {
	pts := b.LastNPoints(n)
	if pts == nil {
		return nil
	}
	vals := make([]float64, len(pts))
	for i, p := range pts {
		vals[i] = p.Value
	}
	return vals
}

// LastNPoints returns a copy of the last n Points (with timestamps).
func (b *Buffer) LastNPoints(n int) []Point {
	if n <= 0 || len(b.points) == 0 {
		return nil
	}
	if n > len(b.points) {
		n = len(b.points)
	}
	out := make([]Point, n)
	start := len(b.points) - n
	for i := range out {
		out[i] = b.at(start + i)
	}
	return out
}

// Store manages one buffer per series key.
type Store struct {
	Data     map[string]*Buffer
	Capacity int
}

// NewStore creates a new store with the given per-series capacity.
func NewStore(capacity int) *Store {
	return &Store{
		Data:     make(map[string]*Buffer),
		Capacity: capacity,
	}
}

// Record adds a value for the given series key.
func (s *Store) Record(key string, v float64, t time.Time) {
	b, ok := s.Data[key]
	if !ok {
		b = NewBuffer(s.Capacity)
		s.Data[key] = b
	}
	b.Push(v, t)
}

// Get returns the history buffer for a series key, or nil.
func (s *Store) Get(key string) *Buffer {
	return s.Data[key]
}
