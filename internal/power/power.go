// Package power reports batteries and external power from the kernel's
// power_supply class.
package power

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/tomography/internal/errors"
)

const defaultRoot = "/sys/class/power_supply"

// Type is the source currently powering the system.
type Type int

const (
	AC Type = iota
	UPS
	BatteryPower
)

func (t Type) String() string {
	switch t {
	case UPS:
		return "ups"
	case BatteryPower:
		return "battery"
	default:
		return "ac"
	}
}

// Battery values use watt-hours and watts.
type Battery struct {
	Name             string
	Model            string
	Serial           string
	Technology       string
	Present          bool
	Status           string
	Capacity         int
	Cycles           int
	EnergyNow        float64
	EnergyFull       float64
	EnergyFullDesign float64
	PowerNow         float64
}

func (b Battery) Charging() bool {
	return b.Status == "Charging"
}

func (b Battery) Charged() bool {
	return b.Status == "Full" || b.Capacity >= 100
}

// Health is the remaining full capacity against the design capacity, in
// percent. It is 0 when the battery does not report a design capacity.
func (b Battery) Health() float64 {
	if b.EnergyFullDesign <= 0 {
		return 0
	}
	return 100 * b.EnergyFull / b.EnergyFullDesign
}

// TimeRemaining estimates time to empty while discharging or time to full
// while charging. It returns false when the current draw is unknown.
func (b Battery) TimeRemaining() (time.Duration, bool) {
	if b.PowerNow <= 0 {
		return 0, false
	}

	var hours float64
	switch b.Status {
	case "Discharging":
		hours = b.EnergyNow / b.PowerNow
	case "Charging":
		hours = (b.EnergyFull - b.EnergyNow) / b.PowerNow
	default:
		return 0, false
	}
	if hours < 0 {
		return 0, false
	}

	return time.Duration(hours * float64(time.Hour)), true
}

// Adapter is an external power supply.
type Adapter struct {
	Name    string
	Online  bool
	Voltage float64
	Current float64
}

func (a Adapter) Watts() float64 {
	return a.Voltage * a.Current
}

type Sources struct {
	Batteries []Battery
	Type      Type
	Adapter   *Adapter
}

type Power struct {
	root string
}

func New() *Power {
	return &Power{root: defaultRoot}
}

// Sources lists every power supply. Systems without a power_supply class
// report AC power and no batteries.
func (p *Power) Sources() (Sources, error) {
	entries, err := os.ReadDir(p.root)
	if errors.Is(err, fs.ErrNotExist) {
		return Sources{Type: AC}, nil
	}
	if err != nil {
		return Sources{}, errors.New().Wrap(errors.ErrPowerSupply, err)
	}

	var (
		src     Sources
		onMains bool
		onUPS   bool
	)
	for _, e := range entries {
		dir := filepath.Join(p.root, e.Name())
		switch readString(dir, "type") {
		case "Battery":
			if readString(dir, "scope") == "Device" {
				// peripherals such as mice and headsets
				continue
			}
			src.Batteries = append(src.Batteries, readBattery(dir, e.Name()))
		case "Mains", "USB", "USB_C", "USB_PD":
			online := readInt(dir, "online") == 1
			if src.Adapter == nil || (online && !src.Adapter.Online) {
				src.Adapter = &Adapter{
					Name:    e.Name(),
					Online:  online,
					Voltage: micro(readInt(dir, "voltage_now")),
					Current: micro(readInt(dir, "current_now")),
				}
			}
			onMains = onMains || online
		case "UPS":
			onUPS = onUPS || readInt(dir, "online") == 1
		}
	}

	sort.Slice(src.Batteries, func(i, j int) bool {
		return src.Batteries[i].Name < src.Batteries[j].Name
	})

	switch {
	case onMains:
		src.Type = AC
	case onUPS:
		src.Type = UPS
	case len(src.Batteries) > 0:
		src.Type = BatteryPower
	default:
		src.Type = AC
	}

	return src, nil
}

func readBattery(dir, name string) Battery {
	b := Battery{
		Name:       name,
		Model:      readString(dir, "model_name"),
		Serial:     readString(dir, "serial_number"),
		Technology: readString(dir, "technology"),
		Present:    readInt(dir, "present") == 1,
		Status:     readString(dir, "status"),
		Capacity:   int(readInt(dir, "capacity")),
		Cycles:     int(readInt(dir, "cycle_count")),
	}

	// Batteries report either energy (µWh, µW) or charge (µAh, µA); charge is
	// converted with the present voltage.
	if exists(dir, "energy_now") {
		b.EnergyNow = micro(readInt(dir, "energy_now"))
		b.EnergyFull = micro(readInt(dir, "energy_full"))
		b.EnergyFullDesign = micro(readInt(dir, "energy_full_design"))
		b.PowerNow = micro(readInt(dir, "power_now"))
	} else {
		volts := micro(readInt(dir, "voltage_now"))
		b.EnergyNow = micro(readInt(dir, "charge_now")) * volts
		b.EnergyFull = micro(readInt(dir, "charge_full")) * volts
		b.EnergyFullDesign = micro(readInt(dir, "charge_full_design")) * volts
		b.PowerNow = micro(readInt(dir, "current_now")) * volts
	}
	if b.PowerNow < 0 {
		b.PowerNow = -b.PowerNow
	}

	return b
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

func readString(dir, name string) string {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readInt(dir, name string) int64 {
	v, err := strconv.ParseInt(readString(dir, name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func micro(v int64) float64 {
	return float64(v) / 1e6
}
