package system

import "time"

// Clock is a monotonic instant. It is unaffected by wall-clock adjustments
// and is what timers and timeouts should be measured against.
type Clock struct {
	t time.Time
}

// ClockNow records the current monotonic instant.
func ClockNow() Clock {
	return Clock{t: time.Now()}
}

// Elapsed returns the time since c was recorded.
func (c Clock) Elapsed() time.Duration {
	return time.Since(c.t)
}

// ElapsedUs returns the microseconds elapsed since c was recorded.
func (c Clock) ElapsedUs() uint64 {
	return uint64(c.Elapsed() / time.Microsecond)
}

// ElapsedMs returns the milliseconds elapsed since c was recorded.
func (c Clock) ElapsedMs() uint64 {
	return uint64(c.Elapsed() / time.Millisecond)
}

// ElapsedS returns the whole seconds elapsed since c was recorded.
func (c Clock) ElapsedS() uint64 {
	return uint64(c.Elapsed() / time.Second)
}

// Time is a wall-clock instant. Unlike Clock it follows system time changes,
// so elapsed values can jump; use it for timestamps, not for timeouts.
type Time struct {
	t time.Time
}

// TimeNow records the current wall-clock time.
func TimeNow() Time {
	// Round(0) strips the monotonic reading.
	return Time{t: time.Now().Round(0)}
}

// Unix returns the instant as a time.Time in UTC.
func (t Time) Unix() time.Time {
	return t.t.UTC()
}

// Elapsed returns the wall-clock time since t was recorded. It is negative
// if the system clock was set backwards in between.
func (t Time) Elapsed() time.Duration {
	return time.Now().Round(0).Sub(t.t)
}

// ElapsedUs returns the microseconds elapsed since t, clamped at zero.
func (t Time) ElapsedUs() uint64 {
	return clamp(t.Elapsed() / time.Microsecond)
}

// ElapsedMs returns the milliseconds elapsed since t, clamped at zero.
func (t Time) ElapsedMs() uint64 {
	return clamp(t.Elapsed() / time.Millisecond)
}

// ElapsedS returns the whole seconds elapsed since t, clamped at zero.
func (t Time) ElapsedS() uint64 {
	return clamp(t.Elapsed() / time.Second)
}

func clamp(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d)
}
