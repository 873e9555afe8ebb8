// Package host reports boot time and uptime.
package host

import (
	"context"
	"time"

	"codeberg.org/mutker/tomography/internal/errors"
	gohost "github.com/shirou/gopsutil/v4/host"
)

var (
	bootTime = gohost.BootTimeWithContext
	now      = time.Now
)

// BootTime returns when the system was started.
func BootTime(ctx context.Context) (time.Time, error) {
	secs, err := bootTime(ctx)
	if err != nil {
		return time.Time{}, errors.New().Wrap(errors.ErrBootTime, err)
	}

	return time.Unix(int64(secs), 0), nil
}

// Uptime returns the time since boot, truncated to whole seconds.
func Uptime(ctx context.Context) (time.Duration, error) {
	boot, err := BootTime(ctx)
	if err != nil {
		return 0, err
	}

	up := now().Sub(boot).Truncate(time.Second)
	if up < 0 {
		return 0, nil
	}

	return up, nil
}
