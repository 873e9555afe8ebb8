// Package timer runs work on a fixed cadence in a background goroutine.
//
// Timer is the bare periodic executor, Stated keeps the result of a state
// transition readable from any goroutine, and Perfected additionally hands the
// transition a perfect.Provider so it can rescale counter deltas to the
// configured period.
package timer

import (
	"time"

	"codeberg.org/mutker/tomography/internal/logger"
	"github.com/frostbyte73/core"
	"go.uber.org/atomic"
)

// Runner is the lifecycle surface shared by every timer type.
type Runner interface {
	Stop()
	Join()
	IsRunning() bool
}

type settings struct {
	log   logger.Logger
	clock func() time.Time
}

// Option configures a timer.
type Option func(*settings)

// WithLogger sets the logger used for recovered panics.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		s.log = l
	}
}

// WithClock sets the time source of the Provider handed to a Perfected
// transition. The Timer itself always sleeps on the real clock.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.clock = now
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		log:   logger.Component("timer"),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}

	return s
}

// Timer calls fn once per period until stopped. Sleeps are shortened by the
// time fn took, so starts stay roughly period apart; an overrunning call is
// followed immediately by the next one, never by a burst.
type Timer struct {
	period time.Duration
	fn     func()
	log    logger.Logger

	stop    core.Fuse
	done    chan struct{}
	running atomic.Bool
}

// New starts a Timer.
func New(period time.Duration, fn func(), opts ...Option) *Timer {
	s := newSettings(opts)

	t := &Timer{
		period: period,
		fn:     fn,
		log:    s.log,
		done:   make(chan struct{}),
	}
	t.running.Store(true)

	go t.run()

	return t
}

func (t *Timer) run() {
	defer func() {
		t.running.Store(false)
		close(t.done)
	}()

	lastStart := time.Now()
	for {
		t.invoke()

		if t.stop.IsBroken() {
			return
		}

		if wait := t.period - time.Since(lastStart); wait > 0 {
			time.Sleep(wait)
		}
		lastStart = time.Now()
	}
}

func (t *Timer) invoke() {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Msg("Recovered from panic in timer action")
		}
	}()

	t.fn()
}

// Period returns the configured cadence.
func (t *Timer) Period() time.Duration {
	return t.period
}

// Stop asks the loop to exit after the current action returns. It does not
// block and may be called more than once.
func (t *Timer) Stop() {
	t.stop.Break()
}

// Join blocks until the background goroutine has exited.
func (t *Timer) Join() {
	<-t.done
}

// Done is closed once the background goroutine has exited.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

// Close stops the timer and waits for it.
func (t *Timer) Close() {
	t.Stop()
	t.Join()
}

func (t *Timer) IsRunning() bool {
	return t.running.Load()
}
