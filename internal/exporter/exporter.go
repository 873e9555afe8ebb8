// Package exporter exposes published rates as Prometheus metrics.
package exporter

import (
	"context"
	"strconv"
	"time"

	"codeberg.org/mutker/tomography/internal/cpu"
	"codeberg.org/mutker/tomography/internal/logger"
	"codeberg.org/mutker/tomography/internal/mem"
	"codeberg.org/mutker/tomography/internal/network"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tomography"

type CPUReader interface {
	Load() ([]cpu.Core, bool)
}

type NetworkReader interface {
	Interfaces() ([]network.Interface, bool)
}

type MemoryReader interface {
	RAM(ctx context.Context) (mem.RAM, error)
	Swap(ctx context.Context) (mem.Swap, error)
}

// Collector reads the latest published values on every scrape. Sources that
// have nothing to publish are left out of the scrape.
type Collector struct {
	interval time.Duration
	cpu      CPUReader
	net      NetworkReader
	mem      MemoryReader
	loadAvg  func() (cpu.LoadAverage, error)
	log      logger.Logger

	intervalDesc *prometheus.Desc
	cpuTicks     *prometheus.Desc
	cpuUsage     *prometheus.Desc
	netBytes     *prometheus.Desc
	netUp        *prometheus.Desc
	memBytes     *prometheus.Desc
	load         *prometheus.Desc
}

type Option func(*Collector)

func WithCPU(r CPUReader) Option {
	return func(c *Collector) {
		c.cpu = r
	}
}

func WithNetwork(r NetworkReader) Option {
	return func(c *Collector) {
		c.net = r
	}
}

func WithMemory(r MemoryReader) Option {
	return func(c *Collector) {
		c.mem = r
	}
}

func WithLoadAverage(fn func() (cpu.LoadAverage, error)) Option {
	return func(c *Collector) {
		c.loadAvg = fn
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Collector) {
		c.log = l
	}
}

// NewCollector builds a Collector for rates normalized to interval.
func NewCollector(interval time.Duration, opts ...Option) *Collector {
	c := &Collector{
		interval: interval,
		log:      logger.Component("exporter"),

		intervalDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "interval_seconds"),
			"Interval that published rates are normalized to.",
			nil, nil,
		),
		cpuTicks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cpu", "ticks"),
			"Clock ticks spent per interval, by core and mode.",
			[]string{"core", "mode"}, nil,
		),
		cpuUsage: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cpu", "usage_percent"),
			"Share of non-idle time during the last interval.",
			[]string{"core"}, nil,
		),
		netBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "bytes"),
			"Bytes transferred per interval, by interface and direction.",
			[]string{"interface", "kind", "direction"}, nil,
		),
		netUp: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "up"),
			"Whether the interface is administratively up.",
			[]string{"interface"}, nil,
		),
		memBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "memory", "bytes"),
			"Memory usage in bytes.",
			[]string{"type", "state"}, nil,
		),
		load: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "load_average"),
			"System load average.",
			[]string{"period"}, nil,
		),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.intervalDesc
	ch <- c.cpuTicks
	ch <- c.cpuUsage
	ch <- c.netBytes
	ch <- c.netUp
	ch <- c.memBytes
	ch <- c.load
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.intervalDesc, prometheus.GaugeValue, c.interval.Seconds())

	c.collectCPU(ch)
	c.collectNetwork(ch)
	c.collectMemory(ch)
	c.collectLoad(ch)
}

func (c *Collector) collectCPU(ch chan<- prometheus.Metric) {
	if c.cpu == nil {
		return
	}
	cores, ok := c.cpu.Load()
	if !ok {
		return
	}

	for i, core := range cores {
		label := strconv.Itoa(i)
		ch <- prometheus.MustNewConstMetric(c.cpuTicks, prometheus.GaugeValue, float64(core.System), label, "system")
		ch <- prometheus.MustNewConstMetric(c.cpuTicks, prometheus.GaugeValue, float64(core.User), label, "user")
		ch <- prometheus.MustNewConstMetric(c.cpuTicks, prometheus.GaugeValue, float64(core.Idle), label, "idle")
		ch <- prometheus.MustNewConstMetric(c.cpuUsage, prometheus.GaugeValue, core.Percent(), label)
	}
	ch <- prometheus.MustNewConstMetric(c.cpuUsage, prometheus.GaugeValue, cpu.Sum(cores).Percent(), "all")
}

func (c *Collector) collectNetwork(ch chan<- prometheus.Metric) {
	if c.net == nil {
		return
	}
	ifaces, ok := c.net.Interfaces()
	if !ok {
		return
	}

	for _, iface := range ifaces {
		kind := iface.Kind.String()
		ch <- prometheus.MustNewConstMetric(c.netBytes, prometheus.GaugeValue, float64(iface.Sent), iface.Name, kind, "sent")
		ch <- prometheus.MustNewConstMetric(c.netBytes, prometheus.GaugeValue, float64(iface.Recv), iface.Name, kind, "received")
		ch <- prometheus.MustNewConstMetric(c.netUp, prometheus.GaugeValue, boolToFloat(iface.Up), iface.Name)
	}
}

func (c *Collector) collectMemory(ch chan<- prometheus.Metric) {
	if c.mem == nil {
		return
	}
	ctx := context.Background()

	if ram, err := c.mem.RAM(ctx); err == nil {
		ch <- prometheus.MustNewConstMetric(c.memBytes, prometheus.GaugeValue, float64(ram.Used), "ram", "used")
		ch <- prometheus.MustNewConstMetric(c.memBytes, prometheus.GaugeValue, float64(ram.Total), "ram", "total")
	} else {
		c.log.Debug().Err(err).Msg("Skipping RAM metrics")
	}

	if swap, err := c.mem.Swap(ctx); err == nil {
		ch <- prometheus.MustNewConstMetric(c.memBytes, prometheus.GaugeValue, float64(swap.Used), "swap", "used")
		ch <- prometheus.MustNewConstMetric(c.memBytes, prometheus.GaugeValue, float64(swap.Total), "swap", "total")
	} else {
		c.log.Debug().Err(err).Msg("Skipping swap metrics")
	}
}

func (c *Collector) collectLoad(ch chan<- prometheus.Metric) {
	if c.loadAvg == nil {
		return
	}

	avg, err := c.loadAvg()
	if err != nil {
		c.log.Debug().Err(err).Msg("Skipping load average")
		return
	}

	ch <- prometheus.MustNewConstMetric(c.load, prometheus.GaugeValue, avg.One, "1m")
	ch <- prometheus.MustNewConstMetric(c.load, prometheus.GaugeValue, avg.Five, "5m")
	ch <- prometheus.MustNewConstMetric(c.load, prometheus.GaugeValue, avg.Fifteen, "15m")
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
