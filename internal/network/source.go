package network

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	"codeberg.org/mutker/tomography/internal/errors"
	gonet "github.com/shirou/gopsutil/v4/net"
)

// Source reads cumulative per-interface counters.
type Source interface {
	Interfaces() (Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (Snapshot, error)

func (f SourceFunc) Interfaces() (Snapshot, error) {
	return f()
}

// SystemSource reads counters and link state from the operating system.
type SystemSource struct {
	ctx      context.Context
	sysfs    string
	counters func(ctx context.Context, pernic bool) ([]gonet.IOCountersStat, error)
	links    func(ctx context.Context) (gonet.InterfaceStatList, error)
}

func NewSystemSource() *SystemSource {
	return &SystemSource{
		ctx:      context.Background(),
		sysfs:    "/sys/class/net",
		counters: gonet.IOCountersWithContext,
		links:    gonet.InterfacesWithContext,
	}
}

func (s *SystemSource) Interfaces() (Snapshot, error) {
	counters, err := s.counters(s.ctx, true)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrNetCounters, err)
	}

	links, err := s.links(s.ctx)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrNetCounters, err)
	}

	byName := make(map[string]gonet.InterfaceStat, len(links))
	for _, l := range links {
		byName[l.Name] = l
	}

	snap := make(Snapshot, len(counters))
	for _, c := range counters {
		iface := Interface{
			Name: c.Name,
			Kind: s.kind(c.Name),
			Sent: c.BytesSent,
			Recv: c.BytesRecv,
		}
		if l, ok := byName[c.Name]; ok {
			iface.Up = slices.Contains(l.Flags, "up")
			iface.HardwareAddr = l.HardwareAddr
		}
		snap[c.Name] = iface
	}

	return snap, nil
}

// kind reports WiFi for interfaces the kernel exposes a wireless directory for.
func (s *SystemSource) kind(name string) Kind {
	if s.sysfs == "" {
		return Wired
	}
	if _, err := os.Stat(filepath.Join(s.sysfs, name, "wireless")); err == nil {
		return WiFi
	}

	return Wired
}
