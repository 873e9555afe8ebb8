// Package sampler turns a fallible counter snapshot into a rate that is
// rescaled to the configured interval. Every adapter goes through the same
// three phases: Unprimed until the first good snapshot, Primed while only one
// snapshot is known, and Ready once a delta between two consecutive snapshots
// has been derived.
package sampler

import (
	"time"

	"codeberg.org/mutker/tomography/internal/logger"
	"codeberg.org/mutker/tomography/internal/perfect"
	"codeberg.org/mutker/tomography/internal/timer"
)

type Phase int

const (
	Unprimed Phase = iota
	Primed
	Ready
)

func (p Phase) String() string {
	switch p {
	case Unprimed:
		return "unprimed"
	case Primed:
		return "primed"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// State is the value published after every tick. Prev is meaningful in the
// Primed and Ready phases, Derived only in Ready.
type State[S, D any] struct {
	Phase   Phase
	Prev    S
	Derived D
}

// SnapshotFunc reads the raw counters.
type SnapshotFunc[S any] func() (S, error)

// DeriveFunc computes rescaled deltas between two consecutive snapshots. It
// returns false when the snapshots cannot be compared, for instance because
// the number of entities changed.
type DeriveFunc[S, D any] func(prev, next S, p perfect.Perfecter) (D, bool)

// Transition builds the per-tick state function shared by all adapters.
func Transition[S, D any](snapshot SnapshotFunc[S], derive DeriveFunc[S, D], log logger.Logger) func(State[S, D], *perfect.Provider) State[S, D] {
	return func(state State[S, D], provider *perfect.Provider) State[S, D] {
		if state.Phase == Unprimed {
			provider.Next()

			raw, err := snapshot()
			if err != nil {
				log.Debug().Err(err).Msg("Snapshot failed while unprimed")
				return State[S, D]{Phase: Unprimed}
			}

			return State[S, D]{Phase: Primed, Prev: raw}
		}

		raw, err := snapshot()
		if err != nil {
			log.Debug().Err(err).Str("phase", state.Phase.String()).Msg("Snapshot failed, discarding baseline")
			return State[S, D]{Phase: Unprimed}
		}

		p, ok := provider.Next()
		if !ok {
			return State[S, D]{Phase: Primed, Prev: raw}
		}

		derived, ok := derive(state.Prev, raw, p)
		if !ok {
			log.Debug().Msg("Snapshot shape changed, rebuilding baseline")
			return State[S, D]{Phase: Primed, Prev: raw}
		}

		return State[S, D]{Phase: Ready, Prev: raw, Derived: derived}
	}
}

// Config describes one sampler.
type Config[S, D any] struct {
	Interval time.Duration
	Snapshot SnapshotFunc[S]
	Derive   DeriveFunc[S, D]
	Log      logger.Logger
	Clock    func() time.Time
}

// Sampler runs a Transition on its own goroutine.
type Sampler[S, D any] struct {
	t *timer.Perfected[State[S, D]]
}

// New starts a Sampler.
func New[S, D any](cfg Config[S, D]) *Sampler[S, D] {
	if cfg.Log == nil {
		cfg.Log = logger.Component("sampler")
	}

	opts := []timer.Option{timer.WithLogger(cfg.Log)}
	if cfg.Clock != nil {
		opts = append(opts, timer.WithClock(cfg.Clock))
	}

	return &Sampler[S, D]{
		t: timer.NewPerfected(
			State[S, D]{Phase: Unprimed},
			cfg.Interval,
			Transition(cfg.Snapshot, cfg.Derive, cfg.Log),
			opts...,
		),
	}
}

// State returns the most recently published state.
func (s *Sampler[S, D]) State() State[S, D] {
	return s.t.Get()
}

// Latest returns the derived payload, or false when no rate is available yet.
func (s *Sampler[S, D]) Latest() (D, bool) {
	state := s.t.Get()
	if state.Phase != Ready {
		var zero D
		return zero, false
	}

	return state.Derived, true
}

func (s *Sampler[S, D]) Interval() time.Duration {
	return s.t.Period()
}

func (s *Sampler[S, D]) Stop()           { s.t.Stop() }
func (s *Sampler[S, D]) Join()           { s.t.Join() }
func (s *Sampler[S, D]) Close()          { s.t.Close() }
func (s *Sampler[S, D]) IsRunning() bool { return s.t.IsRunning() }
