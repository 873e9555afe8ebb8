package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/tomography/internal/config"
	"codeberg.org/mutker/tomography/internal/cpu"
	"codeberg.org/mutker/tomography/internal/errors"
	"codeberg.org/mutker/tomography/internal/exporter"
	"codeberg.org/mutker/tomography/internal/fs"
	"codeberg.org/mutker/tomography/internal/gpu"
	"codeberg.org/mutker/tomography/internal/logger"
	"codeberg.org/mutker/tomography/internal/mem"
	"codeberg.org/mutker/tomography/internal/network"
	"codeberg.org/mutker/tomography/internal/pid"
	"codeberg.org/mutker/tomography/internal/power"
	"codeberg.org/mutker/tomography/internal/recorder"
	"codeberg.org/mutker/tomography/internal/thermal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

type app struct {
	cfg     *config.Config
	cpu     *cpu.CPU
	network *network.Network
	memory  *mem.Memory
	thermal *thermal.Thermal
	gpu     *gpu.Sensors
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Dur("interval", cfg.Interval).Msg("Config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("Exiting with error")
		} else {
			logger.Error().Err(err).Msg("Exiting with error")
		}
		stop()
		os.Exit(1)
	}

	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context, cfg *config.Config) error {
	a := newApp(cfg)
	defer a.close()

	if cfg.Once {
		return a.once(ctx, os.Stdout)
	}

	if err := pid.Write(cfg.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	rec, err := recorder.New(recorder.Config{
		Enabled:      cfg.Recorder.Enabled,
		DBPath:       cfg.Recorder.DBPath,
		BatchSize:    cfg.Recorder.BatchSize,
		BatchTimeout: cfg.Recorder.BatchTimeout,
	}, logger.Component("recorder"))
	if err != nil {
		return errors.New().Wrap(errors.ErrInitRecorder, err)
	}
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close recorder")
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			exporter.NewCollector(cfg.Interval,
				exporter.WithCPU(a.cpu),
				exporter.WithNetwork(a.network),
				exporter.WithMemory(a.memory),
				exporter.WithLoadAverage(cpu.Average),
			),
		)

		g.Go(func() error {
			return exporter.ListenAndServe(ctx, cfg.Listen, reg, logger.Component("exporter"))
		})
	}

	g.Go(func() error {
		return a.loop(ctx, rec)
	})

	return g.Wait()
}

func newApp(cfg *config.Config) *app {
	a := &app{
		cfg:     cfg,
		cpu:     cpu.New(cpu.WithInterval(cfg.Interval)),
		network: network.New(network.WithInterval(cfg.Interval)),
		memory:  mem.New(),
	}

	var thermalOpts []thermal.Option
	if cfg.GPU {
		sensors, err := gpu.Open()
		if err != nil {
			logger.Warn().Err(err).Msg("GPU sensors unavailable")
		} else {
			a.gpu = sensors
			thermalOpts = append(thermalOpts, thermal.WithGPU(sensors))
		}
	}
	a.thermal = thermal.New(thermalOpts...)

	return a
}

func (a *app) close() {
	a.cpu.Close()
	a.network.Close()

	if a.gpu != nil {
		if err := a.gpu.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to shut down NVML")
		}
	}
}

// loop logs and records the published rates once per interval.
func (a *app) loop(ctx context.Context, rec recorder.Recorder) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", a.cfg.Interval).Msg("Sampling started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			sample := a.sample(now)
			logSample(sample)

			if len(sample.Cores) == 0 && len(sample.Interfaces) == 0 {
				continue
			}
			if err := rec.Record(ctx, sample); err != nil {
				logger.Warn().Err(err).Msg("Failed to record sample")
			}
		}
	}
}

func (a *app) sample(now time.Time) *recorder.Sample {
	s := &recorder.Sample{
		Timestamp: now,
		Interval:  a.cfg.Interval,
	}
	if cores, ok := a.cpu.Load(); ok {
		s.Cores = cores
	}
	if ifaces, ok := a.network.Interfaces(); ok {
		s.Interfaces = ifaces
	}

	return s
}

func logSample(s *recorder.Sample) {
	var sent, recv uint64
	for _, iface := range s.Interfaces {
		sent += iface.Sent
		recv += iface.Recv
	}

	ev := logger.Debug().
		Int("cores", len(s.Cores)).
		Uint64("net_sent", sent).
		Uint64("net_recv", recv)
	if len(s.Cores) > 0 {
		ev = ev.Float64("cpu_percent", cpu.Sum(s.Cores).Percent())
	}
	ev.Msg("Sample")
}

// once waits for the first rates and prints a single report.
func (a *app) once(ctx context.Context, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 3*a.cfg.Interval+time.Second)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		_, cpuOK := a.cpu.Load()
		_, netOK := a.network.Interfaces()
		if cpuOK && netOK {
			break
		}

		select {
		case <-ctx.Done():
			return errors.New().WithMessage(errors.ErrTimeout, "no rates published before the deadline")
		case <-ticker.C:
		}
	}

	r := report{interval: a.cfg.Interval}
	r.cores, _ = a.cpu.Load()
	r.interfaces, _ = a.network.Interfaces()
	r.collect(context.Background(), a.memory, a.thermal, fs.New(), power.New())

	return r.render(w)
}
