package timer

import (
	"sync"
	"time"
)

// Stated periodically replaces a value with fn(value). Transitions must build
// a new value rather than mutate the one they are given: readers receive the
// published value itself.
type Stated[T any] struct {
	*Timer

	mu    sync.RWMutex
	state T
}

// NewStated starts a Stated timer holding initial.
func NewStated[T any](initial T, period time.Duration, fn func(T) T, opts ...Option) *Stated[T] {
	s := &Stated[T]{state: initial}
	s.Timer = New(period, func() {
		s.set(fn(s.Get()))
	}, opts...)

	return s
}

// Get returns the most recently published value.
func (s *Stated[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

func (s *Stated[T]) set(state T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
}
