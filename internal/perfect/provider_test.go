package perfect_test

import (
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/tomography/internal/perfect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestProviderFirstCallPrimes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	p := perfect.NewProvider(time.Second, perfect.WithClock(clock.Now))

	_, ok := p.Next()
	assert.False(t, ok)

	clock.Advance(1100 * time.Millisecond)
	pf, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, time.Second, pf.Expected())
	assert.Equal(t, 1100*time.Millisecond, pf.Actual())

	clock.Advance(900 * time.Millisecond)
	pf, ok = p.Next()
	require.True(t, ok)
	assert.Equal(t, 900*time.Millisecond, pf.Actual())
}

func TestProviderSkippedTickWidensInterval(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := perfect.NewProvider(time.Second, perfect.WithClock(clock.Now))

	p.Next()
	clock.Advance(time.Second)
	clock.Advance(time.Second) // no call on this tick

	pf, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, pf.Actual())
	assert.Equal(t, uint64(100), pf.Uint64(200))
}

func TestProviderBackToBackIsNearZero(t *testing.T) {
	p := perfect.NewProvider(time.Second)

	p.Next()
	pf, ok := p.Next()
	require.True(t, ok)
	assert.GreaterOrEqual(t, pf.Actual(), time.Duration(0))
	assert.Less(t, pf.Actual(), 50*time.Millisecond)
}

func TestProviderReset(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := perfect.NewProvider(time.Second, perfect.WithClock(clock.Now))

	p.Next()
	p.Reset()
	_, ok := p.Next()
	assert.False(t, ok)
}

func TestProviderConcurrentNext(t *testing.T) {
	p := perfect.NewProvider(time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if pf, ok := p.Next(); ok {
					assert.GreaterOrEqual(t, pf.Actual(), time.Duration(0))
				}
			}
		}()
	}
	wg.Wait()
}
