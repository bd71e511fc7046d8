package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_Elapsed(t *testing.T) {
	start := ClockNow()
	SleepMs(20)

	assert.GreaterOrEqual(t, start.ElapsedMs(), uint64(20))
	assert.GreaterOrEqual(t, start.ElapsedUs(), uint64(20_000))
	assert.Equal(t, uint64(0), start.ElapsedS())
}

func TestTime_Elapsed(t *testing.T) {
	start := TimeNow()
	SleepUs(5_000)

	assert.GreaterOrEqual(t, start.ElapsedUs(), uint64(5_000))
	assert.WithinDuration(t, time.Now(), start.Unix(), time.Second)
}

func TestTime_ElapsedClampsNegative(t *testing.T) {
	future := Time{t: time.Now().Add(time.Hour).Round(0)}

	assert.Equal(t, uint64(0), future.ElapsedMs())
	assert.Equal(t, uint64(0), future.ElapsedS())
}
