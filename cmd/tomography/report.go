package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"codeberg.org/mutker/tomography/internal/cpu"
	"codeberg.org/mutker/tomography/internal/fs"
	"codeberg.org/mutker/tomography/internal/host"
	"codeberg.org/mutker/tomography/internal/logger"
	"codeberg.org/mutker/tomography/internal/mem"
	"codeberg.org/mutker/tomography/internal/network"
	"codeberg.org/mutker/tomography/internal/power"
	"codeberg.org/mutker/tomography/internal/thermal"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// report is a one-shot view of every reading. Sections whose source failed
// are omitted.
type report struct {
	interval    time.Duration
	cores       []cpu.Core
	interfaces  []network.Interface
	load        *cpu.LoadAverage
	ram         *mem.RAM
	swap        *mem.Swap
	uptime      time.Duration
	filesystems []fs.FileSystem
	fans        thermal.Fans
	cpuTemps    []float64
	gpuTemps    []float64
	power       *power.Sources
}

func (r *report) collect(ctx context.Context, m *mem.Memory, th *thermal.Thermal, files *fs.FS, pw *power.Power) {
	if avg, err := cpu.Average(); err == nil {
		r.load = &avg
	} else {
		logger.Debug().Err(err).Msg("Load average unavailable")
	}

	if ram, err := m.RAM(ctx); err == nil {
		r.ram = &ram
	}
	if swap, err := m.Swap(ctx); err == nil {
		r.swap = &swap
	}

	if up, err := host.Uptime(ctx); err == nil {
		r.uptime = up
	}

	if all, err := files.All(ctx); err == nil {
		r.filesystems = all
	} else {
		logger.Debug().Err(err).Msg("Filesystems unavailable")
	}

	if fans, err := th.Fans(); err == nil {
		r.fans = fans
	}
	if temps, err := th.CPUs(ctx); err == nil {
		r.cpuTemps = temps
	}
	if temps, err := th.GPUs(); err == nil {
		r.gpuTemps = temps
	}

	if src, err := pw.Sources(); err == nil {
		r.power = &src
	} else {
		logger.Debug().Err(err).Msg("Power sources unavailable")
	}
}

func (r *report) render(w io.Writer) error {
	if r.uptime > 0 {
		fmt.Fprintf(w, "Uptime: %s\n", r.uptime)
	}
	if r.load != nil {
		fmt.Fprintf(w, "Load average: %.2f %.2f %.2f\n", r.load.One, r.load.Five, r.load.Fifteen)
	}

	r.renderCPU(w)
	r.renderNetwork(w)
	r.renderMemory(w)
	r.renderFilesystems(w)
	r.renderThermal(w)
	r.renderPower(w)

	return nil
}

func newTable(w io.Writer, title string, header ...string) *tablewriter.Table {
	fmt.Fprintf(w, "\n%s\n", title)

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	return table
}

func (r *report) renderCPU(w io.Writer) {
	if len(r.cores) == 0 {
		return
	}

	table := newTable(w, fmt.Sprintf("CPU (ticks per %s)", r.interval), "Core", "System", "User", "Idle", "Usage")
	for i, c := range r.cores {
		table.Append([]string{
			strconv.Itoa(i),
			strconv.FormatUint(c.System, 10),
			strconv.FormatUint(c.User, 10),
			strconv.FormatUint(c.Idle, 10),
			percent(c.Percent()),
		})
	}

	total := cpu.Sum(r.cores)
	table.SetFooter([]string{
		"All",
		strconv.FormatUint(total.System, 10),
		strconv.FormatUint(total.User, 10),
		strconv.FormatUint(total.Idle, 10),
		percent(total.Percent()),
	})
	table.Render()
}

func (r *report) renderNetwork(w io.Writer) {
	if len(r.interfaces) == 0 {
		return
	}

	table := newTable(w, "Network", "Interface", "Kind", "State", "Sent", "Received")
	for _, iface := range r.interfaces {
		state := "down"
		if iface.Up {
			state = "up"
		}
		table.Append([]string{
			iface.Name,
			iface.Kind.String(),
			state,
			r.perSecond(iface.Sent),
			r.perSecond(iface.Recv),
		})
	}
	table.Render()
}

// perSecond converts a per-interval byte count for display.
func (r *report) perSecond(v uint64) string {
	secs := r.interval.Seconds()
	if secs <= 0 {
		return humanize.IBytes(v)
	}
	return humanize.IBytes(uint64(float64(v)/secs)) + "/s"
}

func (r *report) renderMemory(w io.Writer) {
	if r.ram == nil && r.swap == nil {
		return
	}

	table := newTable(w, "Memory", "Type", "Used", "Total", "Usage")
	if r.ram != nil {
		table.Append([]string{"RAM", humanize.IBytes(r.ram.Used), humanize.IBytes(r.ram.Total), percent(r.ram.Percent())})
	}
	if r.swap != nil {
		table.Append([]string{"Swap", humanize.IBytes(r.swap.Used), humanize.IBytes(r.swap.Total), percent(r.swap.Percent())})
	}
	table.Render()
}

func (r *report) renderFilesystems(w io.Writer) {
	if len(r.filesystems) == 0 {
		return
	}

	table := newTable(w, "Filesystems", "Mountpoint", "Device", "Type", "Label", "Used", "Total", "Usage")
	for _, f := range r.filesystems {
		table.Append([]string{
			f.Mountpoint,
			f.Device,
			f.Type,
			f.Label,
			humanize.IBytes(f.Used),
			humanize.IBytes(f.Total),
			percent(f.Percent()),
		})
	}
	table.Render()
}

func (r *report) renderThermal(w io.Writer) {
	if len(r.fans) > 0 {
		names := make([]string, 0, len(r.fans))
		for name := range r.fans {
			names = append(names, name)
		}
		sort.Strings(names)

		table := newTable(w, "Fans", "Fan", "Current", "Min", "Max", "Load")
		for _, name := range names {
			f := r.fans[name]
			table.Append([]string{
				name,
				strconv.FormatFloat(f.Current, 'f', 0, 64),
				strconv.FormatFloat(f.Min, 'f', 0, 64),
				strconv.FormatFloat(f.Max, 'f', 0, 64),
				percent(f.Percent()),
			})
		}
		table.Render()
	}

	if len(r.cpuTemps) == 0 && len(r.gpuTemps) == 0 {
		return
	}

	table := newTable(w, "Temperatures", "Sensor", "°C")
	for i, t := range r.cpuTemps {
		table.Append([]string{fmt.Sprintf("cpu%d", i), strconv.FormatFloat(t, 'f', 1, 64)})
	}
	for i, t := range r.gpuTemps {
		table.Append([]string{fmt.Sprintf("gpu%d", i), strconv.FormatFloat(t, 'f', 1, 64)})
	}
	table.Render()
}

func (r *report) renderPower(w io.Writer) {
	if r.power == nil {
		return
	}

	fmt.Fprintf(w, "\nPower source: %s\n", r.power.Type)
	if len(r.power.Batteries) == 0 {
		return
	}

	table := newTable(w, "Batteries", "Battery", "Status", "Charge", "Health", "Cycles", "Remaining")
	for _, b := range r.power.Batteries {
		remaining := "-"
		if d, ok := b.TimeRemaining(); ok {
			remaining = d.Truncate(time.Minute).String()
		}
		table.Append([]string{
			b.Name,
			b.Status,
			strconv.Itoa(b.Capacity) + "%",
			percent(b.Health()),
			strconv.Itoa(b.Cycles),
			remaining,
		})
	}
	table.Render()
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}
