package timer

import (
	"time"

	"codeberg.org/mutker/tomography/internal/perfect"
)

// Perfected is a Stated timer whose transition also receives a Provider bound
// to the timer's period. Transitions should call Provider.Next on every tick
// they want measured; skipping it stretches the next measured interval.
type Perfected[T any] struct {
	*Stated[T]
}

// NewPerfected starts a Perfected timer holding initial.
func NewPerfected[T any](initial T, period time.Duration, fn func(T, *perfect.Provider) T, opts ...Option) *Perfected[T] {
	s := newSettings(opts)
	provider := perfect.NewProvider(period, perfect.WithClock(s.clock))

	return &Perfected[T]{
		Stated: NewStated(initial, period, func(state T) T {
			return fn(state, provider)
		}, opts...),
	}
}
