// Package gpu reads NVIDIA GPU sensors through NVML. It never changes device
// settings.
package gpu

import (
	"sync"

	"codeberg.org/mutker/tomography/internal/errors"
	"codeberg.org/mutker/tomography/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const milliWattsToWatts = 1000

type device struct {
	Device
	index int
	name  string
	uuid  string
}

// Sensors holds open handles to every NVML device.
type Sensors struct {
	lib     library
	devices []device
	log     logger.Logger
	mu      sync.Mutex
	closed  bool
}

type Option func(*Sensors)

func WithLogger(l logger.Logger) Option {
	return func(s *Sensors) {
		s.log = l
	}
}

func withLibrary(lib library) Option {
	return func(s *Sensors) {
		s.lib = lib
	}
}

// Open initializes NVML and enumerates devices.
func Open(opts ...Option) (*Sensors, error) {
	s := &Sensors{
		lib: &nvmlWrapper{},
		log: logger.Component("gpu"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.lib.Initialize(); err != nil {
		return nil, err
	}

	count, err := s.lib.GetDeviceCount()
	if err != nil {
		_ = s.lib.Shutdown()
		return nil, err
	}

	for i := 0; i < count; i++ {
		dev, err := s.lib.GetDevice(i)
		if err != nil {
			_ = s.lib.Shutdown()
			return nil, err
		}

		d := device{Device: dev, index: i}
		if name, ret := dev.GetName(); IsNVMLSuccess(ret) {
			d.name = name
		} else {
			s.log.Warn().Int("nvml_return", int(ret)).Msg("Failed to get GPU name")
		}
		if uuid, ret := dev.GetUUID(); IsNVMLSuccess(ret) {
			d.uuid = uuid
		}

		s.log.Info().Msgf("Detected GPU: %v", d.name)
		s.devices = append(s.devices, d)
	}

	return s, nil
}

// Count returns the number of devices found by Open.
func (s *Sensors) Count() int {
	return len(s.devices)
}

// Read samples every device. A device whose temperature cannot be read fails
// the whole call; missing fan or power readings are left at zero.
func (s *Sensors) Read() ([]Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New().New(ErrNotInitialized)
	}

	readings := make([]Reading, 0, len(s.devices))
	for _, d := range s.devices {
		r, err := s.read(d)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}

	return readings, nil
}

func (s *Sensors) read(d device) (Reading, error) {
	r := Reading{Index: d.index, Name: d.name, UUID: d.uuid}

	temp, ret := d.GetTemperature(nvml.TEMPERATURE_GPU)
	if !IsNVMLSuccess(ret) {
		return Reading{}, errors.New().Wrap(ErrTemperatureReadFailed, newNVMLError(ret)).WithData(d.index)
	}
	r.Temperature = Temperature(temp)

	r.Fans = s.fanSpeeds(d)
	if minSpeed, maxSpeed, ret := d.GetMinMaxFanSpeed(); IsNVMLSuccess(ret) {
		r.FanLimits = FanSpeedLimits{Min: FanSpeed(minSpeed), Max: FanSpeed(maxSpeed)}
	}

	if usage, ret := d.GetPowerUsage(); IsNVMLSuccess(ret) {
		r.PowerUsage = Watts(usage) / milliWattsToWatts
	} else {
		s.log.Debug().Int("nvml_return", int(ret)).Msg("Failed to get power usage")
	}
	if limit, ret := d.GetPowerManagementLimit(); IsNVMLSuccess(ret) {
		r.PowerLimit = Watts(limit) / milliWattsToWatts
	}

	if util, ret := d.GetUtilizationRates(); IsNVMLSuccess(ret) {
		r.Utilization = int(util.Gpu)
	}

	return r, nil
}

func (s *Sensors) fanSpeeds(d device) []FanSpeed {
	count, ret := d.GetNumFans()
	if !IsNVMLSuccess(ret) {
		s.log.Debug().Int("nvml_return", int(ret)).Msg("Failed to get fan count")
		return nil
	}

	speeds := make([]FanSpeed, 0, count)
	for i := 0; i < count; i++ {
		speed, ret := d.GetFanSpeed_v2(i)
		if !IsNVMLSuccess(ret) {
			s.log.Debug().Int("fan", i).Int("nvml_return", int(ret)).Msg("Failed to get fan speed")
			continue
		}
		speeds = append(speeds, FanSpeed(speed))
	}

	return speeds
}

// Close releases NVML. Further reads fail.
func (s *Sensors) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.lib.Shutdown()
}
