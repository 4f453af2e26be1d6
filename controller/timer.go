package controller

import (
	"time"
)

//Periodic fires at most once per period
type Periodic struct {
	Period time.Duration
	next   time.Time
}

//NewPeriodic due on the first check
func NewPeriodic(period time.Duration) *Periodic {
	return &Periodic{Period: period}
}

//Due whether the timer expired; misfired reports a clock jump that rescheduled it
func (p *Periodic) Due(now time.Time) (due bool, misfired bool) {
	if p.next.IsZero() {
		return true, false
	}
	// clock went backwards past a whole period, start counting again from now
	if p.next.Sub(now) > p.Period {
		p.next = now.Add(p.Period)
		return false, true
	}
	return !now.Before(p.next), false
}

//Fired reschedule relative to the firing time
func (p *Periodic) Fired(now time.Time) {
	p.next = now.Add(p.Period)
}

//Next when the timer fires next
func (p *Periodic) Next() time.Time {
	return p.next
}

type date struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) date {
	y, m, d := t.Date()
	return date{y, m, d}
}

func (a date) after(b date) bool {
	if a.year != b.year {
		return a.year > b.year
	}
	if a.month != b.month {
		return a.month > b.month
	}
	return a.day > b.day
}

//Daily fires once per calendar day at or after a time of day
type Daily struct {
	Hour     int
	Minute   int
	Location *time.Location

	lastFired date
}

//NewDaily a process started after the threshold waits for the next day
func NewDaily(hour, minute int, loc *time.Location, now time.Time) *Daily {
	if loc == nil {
		loc = time.Local
	}
	d := &Daily{Hour: hour, Minute: minute, Location: loc}
	if d.passed(now) {
		d.lastFired = dateOf(now.In(loc))
	}
	return d
}

func (d *Daily) passed(now time.Time) bool {
	local := now.In(d.Location)
	return local.Hour()*60+local.Minute() >= d.Hour*60+d.Minute
}

//Due the threshold was crossed and nothing fired yet today. A clock set back
//to an earlier date does not fire again.
func (d *Daily) Due(now time.Time) bool {
	return d.passed(now) && dateOf(now.In(d.Location)).after(d.lastFired)
}

//Fired remember today as done
func (d *Daily) Fired(now time.Time) {
	d.lastFired = dateOf(now.In(d.Location))
}

//LastFired the calendar day of the last firing, zero when never fired
func (d *Daily) LastFired() (year int, month time.Month, day int) {
	return d.lastFired.year, d.lastFired.month, d.lastFired.day
}
