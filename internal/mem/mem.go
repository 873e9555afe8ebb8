// Package mem reports physical memory and swap usage.
package mem

import (
	"context"

	"codeberg.org/mutker/tomography/internal/errors"
	gomem "github.com/shirou/gopsutil/v4/mem"
)

// RAM is physical memory in bytes.
type RAM struct {
	Used  uint64
	Total uint64
}

func (r RAM) Percent() float64 {
	if r.Total == 0 {
		return 0
	}
	return 100 * float64(r.Used) / float64(r.Total)
}

// Swap is swap space in bytes.
type Swap struct {
	Used  uint64
	Free  uint64
	Total uint64
}

// Percent returns 0 on systems without swap.
func (s Swap) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return 100 * float64(s.Used) / float64(s.Total)
}

// Memory reads memory statistics on demand.
type Memory struct {
	virtual func(ctx context.Context) (*gomem.VirtualMemoryStat, error)
	swap    func(ctx context.Context) (*gomem.SwapMemoryStat, error)
}

func New() *Memory {
	return &Memory{
		virtual: gomem.VirtualMemoryWithContext,
		swap:    gomem.SwapMemoryWithContext,
	}
}

func (m *Memory) RAM(ctx context.Context) (RAM, error) {
	st, err := m.virtual(ctx)
	if err != nil {
		return RAM{}, errors.New().Wrap(errors.ErrMemoryStats, err)
	}

	return RAM{Used: st.Used, Total: st.Total}, nil
}

func (m *Memory) Swap(ctx context.Context) (Swap, error) {
	st, err := m.swap(ctx)
	if err != nil {
		return Swap{}, errors.New().Wrap(errors.ErrMemoryStats, err)
	}

	return Swap{Used: st.Used, Free: st.Free, Total: st.Total}, nil
}
