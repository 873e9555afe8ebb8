// Package cpu samples per-core CPU time and publishes it as ticks spent per
// configured interval.
package cpu

import (
	"slices"
	"time"

	"codeberg.org/mutker/tomography/internal/logger"
	"codeberg.org/mutker/tomography/internal/perfect"
	"codeberg.org/mutker/tomography/internal/sampler"
)

const DefaultInterval = time.Second

// Core holds time spent by one core in clock ticks. Raw snapshots carry
// cumulative counters; published values carry ticks per interval.
type Core struct {
	System uint64
	User   uint64
	Idle   uint64
}

// Percent returns the share of non-idle time, 0 when no time was accounted.
func (c Core) Percent() float64 {
	used := c.System + c.User
	total := used + c.Idle
	if total == 0 {
		return 0
	}

	return 100 * float64(used) / float64(total)
}

// Sum adds up all cores.
func Sum(cores []Core) Core {
	var total Core
	for _, c := range cores {
		total.System += c.System
		total.User += c.User
		total.Idle += c.Idle
	}

	return total
}

type options struct {
	source   Source
	interval time.Duration
	log      logger.Logger
	clock    func() time.Time
}

// Option configures a CPU sampler.
type Option func(*options)

func WithSource(s Source) Option {
	return func(o *options) {
		o.source = s
	}
}

func WithInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithClock replaces the clock used to measure elapsed time between ticks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// CPU publishes per-core load rescaled to the configured interval.
type CPU struct {
	s *sampler.Sampler[[]Core, []Core]
}

// New starts sampling. The first load is available after two ticks.
func New(opts ...Option) *CPU {
	o := options{
		source:   NewSystemSource(),
		interval: DefaultInterval,
		log:      logger.Component("cpu"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &CPU{
		s: sampler.New(sampler.Config[[]Core, []Core]{
			Interval: o.interval,
			Snapshot: o.source.Cores,
			Derive:   derive,
			Log:      o.log,
			Clock:    o.clock,
		}),
	}
}

func derive(prev, next []Core, p perfect.Perfecter) ([]Core, bool) {
	if len(prev) != len(next) {
		return nil, false
	}

	out := make([]Core, len(next))
	for i := range next {
		a, b := prev[i], next[i]
		// counters reset; treat it like a topology change
		if b.System < a.System || b.User < a.User || b.Idle < a.Idle {
			return nil, false
		}

		out[i] = Core{
			System: perfect.Int(p, b.System-a.System),
			User:   perfect.Int(p, b.User-a.User),
			Idle:   perfect.Int(p, b.Idle-a.Idle),
		}
	}

	return out, true
}

// Load returns per-core ticks for the last interval, or false while the
// sampler has no rate yet.
func (c *CPU) Load() ([]Core, bool) {
	cores, ok := c.s.Latest()
	if !ok {
		return nil, false
	}

	return slices.Clone(cores), true
}

// Total returns the sum over all cores for the last interval.
func (c *CPU) Total() (Core, bool) {
	cores, ok := c.s.Latest()
	if !ok {
		return Core{}, false
	}

	return Sum(cores), true
}

func (c *CPU) Phase() sampler.Phase {
	return c.s.State().Phase
}

func (c *CPU) Interval() time.Duration {
	return c.s.Interval()
}

// Close stops the sampler and waits for its goroutine.
func (c *CPU) Close() {
	c.s.Close()
}
