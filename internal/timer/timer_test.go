package timer_test

import (
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/tomography/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const period = 10 * time.Millisecond

func TestTimerRunsUntilStopped(t *testing.T) {
	var calls atomic.Int64
	tm := timer.New(period, func() { calls.Inc() })

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, tm.IsRunning())

	tm.Stop()
	tm.Join()
	assert.False(t, tm.IsRunning())

	n := calls.Load()
	time.Sleep(3 * period)
	assert.Equal(t, n, calls.Load())
}

func TestTimerStopCheckedAfterAction(t *testing.T) {
	var (
		calls atomic.Int64
		tm    *timer.Timer
		ready = make(chan struct{})
	)
	tm = timer.New(period, func() {
		<-ready
		if calls.Inc() == 3 {
			tm.Stop()
		}
	})
	close(ready)

	select {
	case <-tm.Done():
	case <-time.After(time.Second):
		t.Fatal("timer did not exit")
	}
	assert.Equal(t, int64(3), calls.Load())
}

func TestTimerStopIsIdempotent(t *testing.T) {
	tm := timer.New(period, func() {})

	tm.Stop()
	tm.Stop()
	tm.Join()
	tm.Join()
	tm.Close()
	assert.False(t, tm.IsRunning())
}

func TestTimerNoCatchUpBurst(t *testing.T) {
	var (
		mu     sync.Mutex
		starts []time.Time
	)
	tm := timer.New(period, func() {
		mu.Lock()
		starts = append(starts, time.Now())
		first := len(starts) == 1
		mu.Unlock()

		if first {
			time.Sleep(4 * period)
		}
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(starts) >= 4
	}, time.Second, time.Millisecond)
	tm.Close()

	mu.Lock()
	defer mu.Unlock()

	// the overrun is followed by exactly one immediate call
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), 4*period)
	for i := 2; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), period-2*time.Millisecond, "gap %d", i)
	}
}

func TestTimerCadence(t *testing.T) {
	var (
		mu     sync.Mutex
		starts []time.Time
	)
	tm := timer.New(period, func() {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		time.Sleep(period / 2)
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(starts) >= 11
	}, 2*time.Second, time.Millisecond)
	tm.Close()

	mu.Lock()
	defer mu.Unlock()

	// the action's own duration is absorbed by the sleep
	avg := starts[10].Sub(starts[0]) / 10
	assert.GreaterOrEqual(t, avg, period-time.Millisecond)
	assert.Less(t, avg, 3*period)
}

func TestTimerRecoversFromPanic(t *testing.T) {
	var calls atomic.Int64
	tm := timer.New(period, func() {
		if calls.Inc() == 1 {
			panic("boom")
		}
	})
	defer tm.Close()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, tm.IsRunning())
}

func TestTimerPeriod(t *testing.T) {
	tm := timer.New(period, func() {})
	defer tm.Close()

	assert.Equal(t, period, tm.Period())
}
