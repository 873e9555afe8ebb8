package host

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "codeberg.org/mutker/tomography/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stub(t *testing.T, boot uint64, err error, at time.Time) {
	t.Helper()
	origBoot, origNow := bootTime, now
	t.Cleanup(func() { bootTime, now = origBoot, origNow })

	bootTime = func(context.Context) (uint64, error) { return boot, err }
	now = func() time.Time { return at }
}

func TestBootTimeAndUptime(t *testing.T) {
	stub(t, 1_700_000_000, nil, time.Unix(1_700_003_661, 500))

	boot, err := BootTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1_700_000_000, 0), boot)

	up, err := Uptime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Hour+time.Minute+time.Second, up)
}

func TestUptimeClockSkew(t *testing.T) {
	stub(t, 1_700_000_000, nil, time.Unix(1_600_000_000, 0))

	up, err := Uptime(context.Background())
	require.NoError(t, err)
	assert.Zero(t, up)
}

func TestBootTimeError(t *testing.T) {
	stub(t, 0, errors.New("no /proc/stat"), time.Now())

	_, err := BootTime(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBootTime))

	_, err = Uptime(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBootTime))
}
