package cpu

import (
	"context"
	"math"

	"codeberg.org/mutker/tomography/internal/errors"
	gocpu "github.com/shirou/gopsutil/v4/cpu"
)

// ticksPerSecond matches USER_HZ, the unit the kernel reports in /proc/stat.
const ticksPerSecond = 100

// Source reads cumulative per-core counters.
type Source interface {
	Cores() ([]Core, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() ([]Core, error)

func (f SourceFunc) Cores() ([]Core, error) {
	return f()
}

// SystemSource reads counters from the operating system.
type SystemSource struct {
	ctx   context.Context
	times func(ctx context.Context, percpu bool) ([]gocpu.TimesStat, error)
}

func NewSystemSource() *SystemSource {
	return &SystemSource{
		ctx:   context.Background(),
		times: gocpu.TimesWithContext,
	}
}

func (s *SystemSource) Cores() ([]Core, error) {
	stats, err := s.times(s.ctx, true)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrCPUTimes, err)
	}
	if len(stats) == 0 {
		return nil, errors.New().WithMessage(errors.ErrCPUTimes, "no CPU times reported")
	}

	cores := make([]Core, len(stats))
	for i, st := range stats {
		cores[i] = fromTimes(st)
	}

	return cores, nil
}

// fromTimes folds the kernel's accounting buckets into the three counters
// tracked here. Guest time is already included in user time.
func fromTimes(st gocpu.TimesStat) Core {
	return Core{
		System: ticks(st.System + st.Irq + st.Softirq + st.Steal),
		User:   ticks(st.User + st.Nice),
		Idle:   ticks(st.Idle + st.Iowait),
	}
}

func ticks(seconds float64) uint64 {
	if seconds <= 0 {
		return 0
	}

	return uint64(math.Round(seconds * ticksPerSecond))
}
