// Package network samples per-interface byte counters and publishes them as
// bytes transferred per configured interval.
package network

import (
	"slices"
	"strings"
	"time"

	"codeberg.org/mutker/tomography/internal/logger"
	"codeberg.org/mutker/tomography/internal/perfect"
	"codeberg.org/mutker/tomography/internal/sampler"
)

const DefaultInterval = time.Second

type Kind int

const (
	Wired Kind = iota
	WiFi
)

func (k Kind) String() string {
	if k == WiFi {
		return "wifi"
	}
	return "wired"
}

// Interface describes one network interface. Sent and Recv are cumulative in
// snapshots and per-interval in published values.
type Interface struct {
	Name         string
	Kind         Kind
	Up           bool
	HardwareAddr string
	Sent         uint64
	Recv         uint64
}

// Snapshot maps interface names to their cumulative counters.
type Snapshot map[string]Interface

type options struct {
	source   Source
	interval time.Duration
	log      logger.Logger
	clock    func() time.Time
}

// Option configures a Network sampler.
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

// Network publishes per-interface throughput rescaled to the configured
// interval.
type Network struct {
	s *sampler.Sampler[Snapshot, []Interface]
}

// New starts sampling. The first rates are available after two ticks.
func New(opts ...Option) *Network {
	o := options{
		source:   NewSystemSource(),
		interval: DefaultInterval,
		log:      logger.Component("network"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Network{
		s: sampler.New(sampler.Config[Snapshot, []Interface]{
			Interval: o.interval,
			Snapshot: o.source.Interfaces,
			Derive:   derive,
			Log:      o.log,
			Clock:    o.clock,
		}),
	}
}

// derive keeps only interfaces present in both snapshots. An interface whose
// counters went backwards was recreated between the two reads and is left
// out until it has a fresh baseline.
func derive(prev, next Snapshot, p perfect.Perfecter) ([]Interface, bool) {
	out := make([]Interface, 0, len(next))
	for name, cur := range next {
		old, ok := prev[name]
		if !ok || cur.Sent < old.Sent || cur.Recv < old.Recv {
			continue
		}

		iface := cur
		iface.Sent = perfect.Int(p, cur.Sent-old.Sent)
		iface.Recv = perfect.Int(p, cur.Recv-old.Recv)
		out = append(out, iface)
	}

	slices.SortFunc(out, func(a, b Interface) int {
		return strings.Compare(a.Name, b.Name)
	})

	return out, true
}

// Interfaces returns the per-interval counters sorted by name, or false while
// the sampler has no rate yet.
func (n *Network) Interfaces() ([]Interface, bool) {
	ifaces, ok := n.s.Latest()
	if !ok {
		return nil, false
	}

	return slices.Clone(ifaces), true
}

// Interface returns the counters of a single interface.
func (n *Network) Interface(name string) (Interface, bool) {
	ifaces, ok := n.s.Latest()
	if !ok {
		return Interface{}, false
	}

	for _, iface := range ifaces {
		if iface.Name == name {
			return iface, true
		}
	}

	return Interface{}, false
}

func (n *Network) Phase() sampler.Phase {
	return n.s.State().Phase
}

func (n *Network) Interval() time.Duration {
	return n.s.Interval()
}

// Close stops the sampler and waits for its goroutine.
func (n *Network) Close() {
	n.s.Close()
}
