package exporter

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/tomography/internal/cpu"
	"codeberg.org/mutker/tomography/internal/logger"
	"codeberg.org/mutker/tomography/internal/mem"
	"codeberg.org/mutker/tomography/internal/network"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCPU struct {
	cores []cpu.Core
	ok    bool
}

func (f fakeCPU) Load() ([]cpu.Core, bool) { return f.cores, f.ok }

type fakeNetwork struct {
	ifaces []network.Interface
	ok     bool
}

func (f fakeNetwork) Interfaces() ([]network.Interface, bool) { return f.ifaces, f.ok }

type fakeMemory struct {
	err error
}

func (f fakeMemory) RAM(context.Context) (mem.RAM, error) {
	return mem.RAM{Used: 1024, Total: 4096}, f.err
}

func (f fakeMemory) Swap(context.Context) (mem.Swap, error) {
	return mem.Swap{Used: 0, Free: 2048, Total: 2048}, f.err
}

func TestCollector(t *testing.T) {
	c := NewCollector(time.Second,
		WithCPU(fakeCPU{cores: []cpu.Core{{System: 10, User: 15, Idle: 75}}, ok: true}),
		WithNetwork(fakeNetwork{ifaces: []network.Interface{{Name: "wlan0", Kind: network.WiFi, Up: true, Sent: 100, Recv: 2000}}, ok: true}),
		WithMemory(fakeMemory{}),
		WithLoadAverage(func() (cpu.LoadAverage, error) {
			return cpu.LoadAverage{One: 0.5, Five: 0.25, Fifteen: 0.125}, nil
		}),
	)

	expected := `
# HELP tomography_cpu_ticks Clock ticks spent per interval, by core and mode.
# TYPE tomography_cpu_ticks gauge
tomography_cpu_ticks{core="0",mode="idle"} 75
tomography_cpu_ticks{core="0",mode="system"} 10
tomography_cpu_ticks{core="0",mode="user"} 15
# HELP tomography_cpu_usage_percent Share of non-idle time during the last interval.
# TYPE tomography_cpu_usage_percent gauge
tomography_cpu_usage_percent{core="0"} 25
tomography_cpu_usage_percent{core="all"} 25
# HELP tomography_interval_seconds Interval that published rates are normalized to.
# TYPE tomography_interval_seconds gauge
tomography_interval_seconds 1
# HELP tomography_load_average System load average.
# TYPE tomography_load_average gauge
tomography_load_average{period="15m"} 0.125
tomography_load_average{period="1m"} 0.5
tomography_load_average{period="5m"} 0.25
# HELP tomography_memory_bytes Memory usage in bytes.
# TYPE tomography_memory_bytes gauge
tomography_memory_bytes{state="total",type="ram"} 4096
tomography_memory_bytes{state="total",type="swap"} 2048
tomography_memory_bytes{state="used",type="ram"} 1024
tomography_memory_bytes{state="used",type="swap"} 0
# HELP tomography_network_bytes Bytes transferred per interval, by interface and direction.
# TYPE tomography_network_bytes gauge
tomography_network_bytes{direction="received",interface="wlan0",kind="wifi"} 2000
tomography_network_bytes{direction="sent",interface="wlan0",kind="wifi"} 100
# HELP tomography_network_up Whether the interface is administratively up.
# TYPE tomography_network_up gauge
tomography_network_up{interface="wlan0"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestCollectorSkipsUnavailableSources(t *testing.T) {
	c := NewCollector(time.Second,
		WithCPU(fakeCPU{}),
		WithNetwork(fakeNetwork{}),
		WithMemory(fakeMemory{err: errors.New("no meminfo")}),
		WithLoadAverage(func() (cpu.LoadAverage, error) {
			return cpu.LoadAverage{}, errors.New("unsupported")
		}),
	)

	assert.Equal(t, 1, testutil.CollectAndCount(c))
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(2 * time.Second))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, reg, logger.Default())
	}()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, body, "tomography_interval_seconds 2")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
