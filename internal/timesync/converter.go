package timesync

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Converter handles conversion from boot clock timestamps to wall-clock time.
type Converter struct {
	bootTime time.Time
}

// NewConverter creates a new time converter anchored at the current boot
// time.
func NewConverter() (*Converter, error) {
	bootTime, err := systemBootTime()
	if err != nil {
		return nil, err
	}
	return &Converter{bootTime: bootTime}, nil
}

// NewConverterAt creates a converter for a known boot time.
func NewConverterAt(bootTime time.Time) *Converter {
	return &Converter{bootTime: bootTime}
}

// BootToWallClock converts nanoseconds since boot to wall-clock time.
func (c *Converter) BootToWallClock(bootNanos uint64) time.Time {
	//nolint:gosec // uint64 to int64 conversion for time.Duration is safe for reasonable timestamps
	return c.bootTime.Add(time.Duration(bootNanos))
}

// BootTime returns the system boot time used for conversions.
func (c *Converter) BootTime() time.Time {
	return c.bootTime
}

func systemBootTime() (time.Time, error) {
	var boot, wall unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &boot); err != nil {
		return time.Time{}, fmt.Errorf("reading CLOCK_BOOTTIME: %w", err)
	}
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &wall); err != nil {
		return time.Time{}, fmt.Errorf("reading CLOCK_REALTIME: %w", err)
	}
	return time.Unix(wall.Unix()).Add(-time.Duration(boot.Nano())), nil
}
