// Package history keeps a short ring buffer of readings for every
// graph-enabled sensor, with min/peak/avg statistics for chart rendering.
package history

import (
	"math"
	"sync"
	"time"

	"github.com/Guliveer/spectrometer/internal/models"
)

// DefaultCapacity is the number of points kept per sensor.
const DefaultCapacity = 30

// Point is a single data point in a sensor's history.
type Point struct {
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

// Buffer stores a ring buffer of readings for one sensor.
type Buffer struct {
	Points []Point
	Max    int // capacity
	Min    float64
	Peak   float64
}

// NewBuffer creates a new history ring buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		Points: make([]Point, 0, capacity),
		Max:    capacity,
		Min:    math.MaxFloat64,
		Peak:   -math.MaxFloat64,
	}
}

// Push adds a new reading to the history.
func (b *Buffer) Push(v float64, t time.Time) {
	p := Point{Value: v, Time: t}
	if len(b.Points) >= b.Max {
		copy(b.Points, b.Points[1:])
		b.Points[len(b.Points)-1] = p
	} else {
		b.Points = append(b.Points, p)
	}

	if v < b.Min {
		b.Min = v
	}
	if v > b.Peak {
		b.Peak = v
	}
}

// Last returns the most recent reading, or 0 if empty.
func (b *Buffer) Last() float64 {
	if len(b.Points) == 0 {
		return 0
	}
	return b.Points[len(b.Points)-1].Value
}

// Avg returns the average across all stored points.
func (b *Buffer) Avg() float64 {
	if len(b.Points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range b.Points {
		sum += p.Value
	}
	return sum / float64(len(b.Points))
}

// LastN returns the last n values.
func (b *Buffer) LastN(n int) []float64 {
	if n <= 0 || len(b.Points) == 0 {
		return nil
	}
	start := len(b.Points) - n
	if start < 0 {
		start = 0
	}
	vals := make([]float64, 0, len(b.Points)-start)
	for _, p := range b.Points[start:] {
		vals = append(vals, p.Value)
	}
	return vals
}

func (b *Buffer) clone() *Buffer {
	out := *b
	out.Points = make([]Point, len(b.Points), b.Max)
	copy(out.Points, b.Points)
	return &out
}

// Store manages histories for all graph-enabled sensors. It is safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	data     map[string]*Buffer
	capacity int
}

// NewStore creates a new store with the given per-sensor capacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		data:     make(map[string]*Buffer),
		capacity: capacity,
	}
}

// Record pushes the value of every graph-enabled record in c and drops the
// buffers of sensors that are no longer graph-enabled. Records without a
// value are skipped but keep their buffer.
func (s *Store) Record(c models.Collection, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]struct{})
	for _, r := range c {
		if !r.IsGraphEnabled {
			continue
		}
		keep[r.Identifier] = struct{}{}
		if r.Value == nil {
			continue
		}
		b, ok := s.data[r.Identifier]
		if !ok {
			b = NewBuffer(s.capacity)
			s.data[r.Identifier] = b
		}
		b.Push(*r.Value, t)
	}

	for id := range s.data {
		if _, ok := keep[id]; !ok {
			delete(s.data, id)
		}
	}
}

// Get returns a copy of the history for a sensor, or nil.
func (s *Store) Get(id string) *Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[id]
	if !ok {
		return nil
	}
	return b.clone()
}

// Len returns the number of sensors with history.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
