package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodicFiresOncePerPeriod(t *testing.T) {
	p := NewPeriodic(30 * time.Second)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var fired []time.Time
	for now := start; now.Before(start.Add(5 * time.Minute)); now = now.Add(10 * time.Millisecond) {
		if due, _ := p.Due(now); due {
			p.Fired(now)
			fired = append(fired, now)
		}
	}

	assert.Len(t, fired, 10)
	assert.Equal(t, start, fired[0])
	for i := 1; i < len(fired); i++ {
		gap := fired[i].Sub(fired[i-1])
		assert.True(t, gap >= 30*time.Second, "gap %v", gap)
		assert.True(t, gap <= 30*time.Second+10*time.Millisecond, "gap %v", gap)
	}
}

func TestPeriodicClockJumpBack(t *testing.T) {
	p := NewPeriodic(30 * time.Second)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.Fired(start)

	back := start.Add(-time.Hour)
	due, misfired := p.Due(back)
	assert.False(t, due)
	assert.True(t, misfired)
	assert.Equal(t, back.Add(30*time.Second), p.Next())

	due, misfired = p.Due(back.Add(30 * time.Second))
	assert.True(t, due)
	assert.False(t, misfired)
}

func TestDailyOncePerDayAnyTickRate(t *testing.T) {
	for _, step := range []time.Duration{250 * time.Millisecond, time.Second, 7 * time.Minute} {
		start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		d := NewDaily(6, 30, time.UTC, start)

		var fired []time.Time
		for now := start; now.Before(start.Add(72 * time.Hour)); now = now.Add(step) {
			if d.Due(now) {
				d.Fired(now)
				fired = append(fired, now)
			}
		}

		if assert.Len(t, fired, 3, "step %v", step) {
			for i, f := range fired {
				assert.Equal(t, 1+i, f.Day())
				assert.True(t, f.Hour()*60+f.Minute() >= 6*60+30)
			}
		}
	}
}

func TestDailyStartedLateWaitsForTomorrow(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	d := NewDaily(6, 30, time.UTC, start)

	for now := start; now.Before(time.Date(2024, 5, 1, 23, 59, 59, 0, time.UTC)); now = now.Add(time.Minute) {
		assert.False(t, d.Due(now))
	}
	assert.False(t, d.Due(time.Date(2024, 5, 2, 6, 29, 0, 0, time.UTC)))
	assert.True(t, d.Due(time.Date(2024, 5, 2, 6, 30, 0, 0, time.UTC)))
}

func TestDailyClockBackwards(t *testing.T) {
	start := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	d := NewDaily(6, 30, time.UTC, start)

	fireAt := time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC)
	assert.True(t, d.Due(fireAt))
	d.Fired(fireAt)

	// same day again, and the previous day after the threshold
	assert.False(t, d.Due(time.Date(2024, 5, 2, 6, 45, 0, 0, time.UTC)))
	assert.False(t, d.Due(time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)))

	y, m, day := d.LastFired()
	assert.Equal(t, []int{2024, 5, 2}, []int{y, int(m), day})
}

func TestDailyUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	start := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC) // 05:00 local
	d := NewDaily(6, 30, loc, start)

	assert.False(t, d.Due(time.Date(2024, 5, 1, 4, 0, 0, 0, time.UTC)))
	assert.True(t, d.Due(time.Date(2024, 5, 1, 4, 30, 0, 0, time.UTC)))
}

func TestBlinkOn(t *testing.T) {
	base := time.Unix(1000, 0)
	assert.True(t, BlinkOn(base))
	assert.True(t, BlinkOn(base.Add(149*time.Millisecond)))
	assert.False(t, BlinkOn(base.Add(150*time.Millisecond)))
	assert.False(t, BlinkOn(base.Add(time.Second)))
	assert.True(t, BlinkOn(base.Add(2*time.Second)))
}
