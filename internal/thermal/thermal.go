// Package thermal reports fan speeds and temperatures.
package thermal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/tomography/internal/errors"
	"codeberg.org/mutker/tomography/internal/gpu"
	"codeberg.org/mutker/tomography/internal/logger"
	"github.com/shirou/gopsutil/v4/sensors"
)

const defaultHwmonPath = "/sys/class/hwmon"

// cpuSensorPrefixes match the sensor keys of the common CPU temperature drivers.
var cpuSensorPrefixes = []string{
	"coretemp_core",
	"coretemp_package",
	"k10temp",
	"zenpower",
	"cpu_thermal",
}

// Fan is one fan's speed range. Motherboard fans report RPM, GPU fans report
// percent of their maximum.
type Fan struct {
	Min     float64
	Current float64
	Max     float64
}

// RPM returns the speed above the fan's minimum, never negative.
func (f Fan) RPM() float64 {
	rpm := f.Current - f.Min
	if rpm < 0 {
		return 0
	}
	return rpm
}

// Percent places the current speed within the fan's range.
func (f Fan) Percent() float64 {
	span := f.Max - f.Min
	if span <= 0 {
		return 0
	}
	return f.RPM() / span * 100
}

// Fans maps a fan's name to its reading.
type Fans map[string]Fan

// GPU is the subset of gpu.Sensors used for GPU fans and temperatures.
type GPU interface {
	Read() ([]gpu.Reading, error)
}

type Thermal struct {
	hwmon string
	temps func(ctx context.Context) ([]sensors.TemperatureStat, error)
	gpu   GPU
	log   logger.Logger
}

type Option func(*Thermal)

// WithGPU merges GPU fans and temperatures into the readings.
func WithGPU(g GPU) Option {
	return func(t *Thermal) {
		t.gpu = g
	}
}

func WithLogger(l logger.Logger) Option {
	return func(t *Thermal) {
		t.log = l
	}
}

func New(opts ...Option) *Thermal {
	t := &Thermal{
		hwmon: defaultHwmonPath,
		temps: sensors.TemperaturesWithContext,
		log:   logger.Component("thermal"),
	}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Fans returns motherboard fans from hwmon and, when configured, GPU fans.
func (t *Thermal) Fans() (Fans, error) {
	fans, err := t.hwmonFans()
	if err != nil {
		return nil, err
	}

	if t.gpu == nil {
		return fans, nil
	}

	readings, err := t.gpu.Read()
	if err != nil {
		t.log.Debug().Err(err).Msg("Skipping GPU fans")
		return fans, nil
	}
	for _, r := range readings {
		for i, speed := range r.Fans {
			fans[fmt.Sprintf("gpu%d/fan%d", r.Index, i)] = Fan{
				Min:     float64(r.FanLimits.Min),
				Current: float64(speed),
				Max:     float64(r.FanLimits.Max),
			}
		}
	}

	return fans, nil
}

func (t *Thermal) hwmonFans() (Fans, error) {
	inputs, err := filepath.Glob(filepath.Join(t.hwmon, "*", "fan*_input"))
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrSensorRead, err)
	}

	fans := make(Fans, len(inputs))
	for _, input := range inputs {
		dir := filepath.Dir(input)
		prefix := strings.TrimSuffix(filepath.Base(input), "_input")

		current, err := readFloat(input)
		if err != nil {
			t.log.Debug().Err(err).Str("path", input).Msg("Skipping unreadable fan")
			continue
		}

		fan := Fan{Current: current}
		if v, err := readFloat(filepath.Join(dir, prefix+"_min")); err == nil {
			fan.Min = v
		}
		if v, err := readFloat(filepath.Join(dir, prefix+"_max")); err == nil {
			fan.Max = v
		}

		fans[fanName(dir, prefix)] = fan
	}

	return fans, nil
}

// fanName prefers the driver-provided label and falls back to the fan index.
func fanName(dir, prefix string) string {
	chip := filepath.Base(dir)
	if b, err := os.ReadFile(filepath.Join(dir, "name")); err == nil {
		chip = strings.TrimSpace(string(b))
	}

	if b, err := os.ReadFile(filepath.Join(dir, prefix+"_label")); err == nil {
		if label := strings.TrimSpace(string(b)); label != "" {
			return chip + "/" + label
		}
	}

	return chip + "/" + prefix
}

func readFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
}

// CPUs returns CPU package and core temperatures in degrees Celsius.
func (t *Thermal) CPUs(ctx context.Context) ([]float64, error) {
	stats, err := t.read(ctx)
	if err != nil {
		return nil, err
	}

	var temps []float64
	for _, st := range stats {
		if isCPUSensor(st.SensorKey) {
			temps = append(temps, st.Temperature)
		}
	}
	if len(temps) == 0 {
		return nil, errors.New().WithMessage(errors.ErrResourceNotFound, "no CPU temperature sensors")
	}

	return temps, nil
}

// GPUs returns the core temperature of every GPU.
func (t *Thermal) GPUs() ([]float64, error) {
	if t.gpu == nil {
		return nil, errors.New().WithMessage(errors.ErrUnavailable, "GPU sensors not enabled")
	}

	readings, err := t.gpu.Read()
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrSensorRead, err)
	}

	temps := make([]float64, len(readings))
	for i, r := range readings {
		temps[i] = float64(r.Temperature)
	}

	return temps, nil
}

// Custom returns the temperature of a single sensor by key.
func (t *Thermal) Custom(ctx context.Context, key string) (float64, error) {
	stats, err := t.read(ctx)
	if err != nil {
		return 0, err
	}

	for _, st := range stats {
		if st.SensorKey == key {
			return st.Temperature, nil
		}
	}

	return 0, errors.New().WithData(errors.ErrResourceNotFound, key)
}

// read tolerates partial results: some drivers fail while others report.
func (t *Thermal) read(ctx context.Context) ([]sensors.TemperatureStat, error) {
	stats, err := t.temps(ctx)
	if len(stats) > 0 {
		if err != nil {
			t.log.Debug().Err(err).Msg("Partial sensor readings")
		}
		return stats, nil
	}
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrSensorRead, err)
	}

	return nil, nil
}

func isCPUSensor(key string) bool {
	for _, p := range cpuSensorPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
