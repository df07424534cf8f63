package telemetry

import (
	"time"

	"github.com/gammazero/deque"
)

type timedValue struct {
	at    time.Time
	value float64
}

// Smoother keeps a trailing time window of readings and reports their mean.
// Not safe for concurrent use.
type Smoother struct {
	window time.Duration
	values *deque.Deque[timedValue]
}

func NewSmoother(window time.Duration) *Smoother {
	if window <= 0 {
		panic("Smoother: window must be > 0")
	}
	return &Smoother{
		window: window,
		values: deque.New[timedValue](0, 64),
	}
}

// Add records value at the given time and returns the mean of the window ending there.
func (s *Smoother) Add(at time.Time, value float64) float64 {
	s.values.PushBack(timedValue{at: at, value: value})
	s.removeOld(at)
	return s.mean()
}

// Reset forgets every reading, used when the sensor stops streaming.
func (s *Smoother) Reset() {
	s.values.Clear()
}

func (s *Smoother) Len() int {
	return s.values.Len()
}

func (s *Smoother) removeOld(now time.Time) {
	cutoff := now.Add(-s.window)
	for s.values.Len() > 0 && !s.values.Front().at.After(cutoff) {
		s.values.PopFront()
	}
}

func (s *Smoother) mean() float64 {
	if s.values.Len() == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < s.values.Len(); i++ {
		sum += s.values.At(i).value
	}
	return sum / float64(s.values.Len())
}
