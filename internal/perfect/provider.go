package perfect

import (
	"sync"
	"time"
)

// Provider hands out one Perfecter per tick, measuring the real time elapsed
// since the previous call to Next.
type Provider struct {
	expected time.Duration
	now      func() time.Time

	mu     sync.Mutex
	prev   time.Time
	primed bool
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithClock replaces time.Now as the Provider's time source.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.now = now
	}
}

// NewProvider returns a Provider for the given configured period.
func NewProvider(expected time.Duration, opts ...ProviderOption) *Provider {
	p := &Provider{
		expected: expected,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Expected returns the configured period.
func (p *Provider) Expected() time.Duration {
	return p.expected
}

// Next records the current instant. The first call only primes the Provider
// and returns false; every later call returns a Perfecter for the time since
// the previous call. Skipped ticks widen the measured interval.
func (p *Provider) Next() (Perfecter, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	if !p.primed {
		p.prev = now
		p.primed = true
		return Perfecter{}, false
	}

	elapsed := now.Sub(p.prev)
	p.prev = now

	return New(p.expected, elapsed), true
}

// Reset forgets the stored instant so the next call primes again.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prev = time.Time{}
	p.primed = false
}
