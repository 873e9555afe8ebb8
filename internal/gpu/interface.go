package gpu

import "github.com/NVIDIA/go-nvml/pkg/nvml"

// Device is the read-only part of nvml.Device used for sensor readings.
type Device interface {
	GetName() (string, nvml.Return)
	GetUUID() (string, nvml.Return)
	GetTemperature(sensor nvml.TemperatureSensors) (uint32, nvml.Return)
	GetNumFans() (int, nvml.Return)
	GetFanSpeed_v2(fan int) (uint32, nvml.Return)
	GetMinMaxFanSpeed() (int, int, nvml.Return)
	GetPowerUsage() (uint32, nvml.Return)
	GetPowerManagementLimit() (uint32, nvml.Return)
	GetUtilizationRates() (nvml.Utilization, nvml.Return)
}

// library abstracts NVML lifecycle and discovery for testing
type library interface {
	Initialize() error
	Shutdown() error
	GetDeviceCount() (int, error)
	GetDevice(index int) (Device, error)
}

// Domain types for sensor readings
type (
	Temperature int
	FanSpeed    int
	Watts       float64

	FanSpeedLimits struct {
		Min, Max FanSpeed
	}
)

// Reading is one sample of a device's sensors. Fan speeds are percentages of
// the fan's maximum as reported by the driver.
type Reading struct {
	Index       int
	Name        string
	UUID        string
	Temperature Temperature
	Fans        []FanSpeed
	FanLimits   FanSpeedLimits
	PowerUsage  Watts
	PowerLimit  Watts
	Utilization int
}
