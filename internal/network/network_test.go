package network

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "codeberg.org/mutker/tomography/internal/errors"
	"codeberg.org/mutker/tomography/internal/perfect"
	gonet "github.com/shirou/gopsutil/v4/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeepsCommonInterfaces(t *testing.T) {
	p := perfect.New(time.Second, 2*time.Second)
	prev := Snapshot{
		"eth0": {Name: "eth0", Sent: 1000, Recv: 2000},
		"gone": {Name: "gone", Sent: 1, Recv: 1},
	}
	next := Snapshot{
		"wlan0": {Name: "wlan0", Kind: WiFi, Sent: 10, Recv: 10},
		"eth0":  {Name: "eth0", Up: true, Sent: 1400, Recv: 2001},
	}

	got, ok := derive(prev, next, p)
	require.True(t, ok)
	assert.Equal(t, []Interface{{Name: "eth0", Up: true, Sent: 200, Recv: 1}}, got)
}

func TestDeriveSortsByName(t *testing.T) {
	p := perfect.New(time.Second, time.Second)
	snap := Snapshot{
		"wlan0": {Name: "wlan0"},
		"eth0":  {Name: "eth0"},
		"lo":    {Name: "lo"},
	}

	got, ok := derive(snap, snap, p)
	require.True(t, ok)
	require.Len(t, got, 3)
	assert.Equal(t, "eth0", got[0].Name)
	assert.Equal(t, "lo", got[1].Name)
	assert.Equal(t, "wlan0", got[2].Name)
}

func TestDeriveSkipsResetCounters(t *testing.T) {
	p := perfect.New(time.Second, time.Second)
	prev := Snapshot{"eth0": {Name: "eth0", Sent: 500, Recv: 500}}
	next := Snapshot{"eth0": {Name: "eth0", Sent: 10, Recv: 600}}

	got, ok := derive(prev, next, p)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "wired", Wired.String())
	assert.Equal(t, "wifi", WiFi.String())
}

func TestSystemSource(t *testing.T) {
	sysfs := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(sysfs, "wlan0", "wireless"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(sysfs, "eth0"), 0o755))

	s := &SystemSource{
		ctx:   context.Background(),
		sysfs: sysfs,
		counters: func(_ context.Context, pernic bool) ([]gonet.IOCountersStat, error) {
			assert.True(t, pernic)
			return []gonet.IOCountersStat{
				{Name: "eth0", BytesSent: 10, BytesRecv: 20},
				{Name: "wlan0", BytesSent: 30, BytesRecv: 40},
			}, nil
		},
		links: func(context.Context) (gonet.InterfaceStatList, error) {
			return gonet.InterfaceStatList{
				{Name: "eth0", HardwareAddr: "aa:bb:cc:dd:ee:ff", Flags: []string{"up", "broadcast"}},
				{Name: "wlan0", Flags: []string{"broadcast"}},
			}, nil
		},
	}

	snap, err := s.Interfaces()
	require.NoError(t, err)
	assert.Equal(t, Snapshot{
		"eth0":  {Name: "eth0", Kind: Wired, Up: true, HardwareAddr: "aa:bb:cc:dd:ee:ff", Sent: 10, Recv: 20},
		"wlan0": {Name: "wlan0", Kind: WiFi, Up: false, Sent: 30, Recv: 40},
	}, snap)
}

func TestSystemSourceErrors(t *testing.T) {
	failure := errors.New("netlink")
	s := &SystemSource{
		ctx: context.Background(),
		counters: func(context.Context, bool) ([]gonet.IOCountersStat, error) {
			return nil, failure
		},
		links: func(context.Context) (gonet.InterfaceStatList, error) {
			return nil, nil
		},
	}

	_, err := s.Interfaces()
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNetCounters))
	assert.ErrorIs(t, err, failure)

	s.counters = func(context.Context, bool) ([]gonet.IOCountersStat, error) {
		return nil, nil
	}
	s.links = func(context.Context) (gonet.InterfaceStatList, error) {
		return nil, failure
	}
	_, err = s.Interfaces()
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNetCounters))
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
	d   time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(c.d)
	return c.now
}

func TestNetworkPublishesRates(t *testing.T) {
	const interval = 5 * time.Millisecond

	var (
		mu sync.Mutex
		n  uint64
	)
	source := SourceFunc(func() (Snapshot, error) {
		mu.Lock()
		defer mu.Unlock()

		n++
		snap := Snapshot{
			"eth0": {Name: "eth0", Up: true, Sent: 100 * n, Recv: 1000 * n},
		}
		// hot-plugged interface only visible on odd reads
		if n%2 == 1 {
			snap["usb0"] = Interface{Name: "usb0", Sent: n, Recv: n}
		}
		return snap, nil
	})

	clock := &stepClock{now: time.Unix(0, 0), d: interval}
	nw := New(WithSource(source), WithInterval(interval), WithClock(clock.Now))
	defer nw.Close()

	require.Eventually(t, func() bool {
		_, ok := nw.Interfaces()
		return ok
	}, time.Second, time.Millisecond)

	ifaces, ok := nw.Interfaces()
	require.True(t, ok)
	require.Len(t, ifaces, 1)
	assert.Equal(t, Interface{Name: "eth0", Up: true, Sent: 100, Recv: 1000}, ifaces[0])

	eth, ok := nw.Interface("eth0")
	require.True(t, ok)
	assert.Equal(t, uint64(100), eth.Sent)

	_, ok = nw.Interface("usb0")
	assert.False(t, ok)
	assert.Equal(t, interval, nw.Interval())
}
