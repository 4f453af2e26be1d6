package controller

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charles-d-burton/iot-printer/button"
	"github.com/charles-d-burton/iot-printer/printer"
	"github.com/charles-d-burton/iot-printer/queue"
)

const (
	//DefaultTick how often the button is sampled
	DefaultTick = 10 * time.Millisecond
	blinkOn     = 150 * time.Millisecond
)

//ErrShutdown the hold action ran and the process is expected to exit
var ErrShutdown = errors.New("shutdown requested by hold")

//Loop the only consumer of the queue and the only user of the device
type Loop struct {
	Monitor    *button.Monitor
	Dispatcher *Dispatcher
	Queue      *queue.Queue
	Device     printer.Device
	LED        Output
	Periodic   *Periodic //nil disables the periodic action
	Daily      *Daily    //nil disables the daily action
	Tick       time.Duration
	Log        *logrus.Entry
	Now        func() time.Time

	led      bool
	ledKnown bool //false after the dispatcher drove the LED
}

//Run loop until the context ends or the hold action fires
func (l *Loop) Run(ctx context.Context) error {
	tick := l.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	l.Log.WithField("tick", tick).Info("Starting control loop")
	for {
		if err := l.Step(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			l.Log.Info("Stopping control loop")
			l.setLED(false)
			return nil
		case <-ticker.C:
		}
	}
}

//Step one iteration: button, timers, queue, idle blink
func (l *Loop) Step(ctx context.Context) error {
	now := l.now()

	if l.Monitor != nil {
		_, ev, err := l.Monitor.Poll(now)
		if err != nil {
			l.Log.WithError(err).Warn("Button poll failed")
		}
		switch ev {
		case button.Tap:
			l.Log.Info("Button tapped")
			l.Dispatcher.Tap(ctx)
			l.ledKnown = false
		case button.HoldStart:
			l.Log.Info("Button held")
			l.Dispatcher.Hold(ctx)
			l.ledKnown = false
			// print whatever the hold queued before giving up the device
			l.drain(ctx)
			l.setLED(true)
			return ErrShutdown
		}
	}

	l.checkTimers(ctx, l.now())
	l.drain(ctx)
	l.blink(l.now())
	return nil
}

func (l *Loop) checkTimers(ctx context.Context, now time.Time) {
	if l.Periodic != nil {
		due, misfired := l.Periodic.Due(now)
		if misfired {
			l.Log.WithField("next", l.Periodic.Next()).Warn("Clock jumped, periodic timer rescheduled")
		}
		if due {
			l.Periodic.Fired(now)
			l.Dispatcher.Periodic(ctx)
			l.ledKnown = false
		}
	}
	if l.Daily != nil && l.Daily.Due(now) {
		l.Daily.Fired(now)
		l.Dispatcher.Daily(ctx)
		l.ledKnown = false
	}
}

func (l *Loop) drain(ctx context.Context) {
	if l.Queue.Empty() {
		return
	}
	printed, failed := l.Queue.Drain(ctx, l.Device)
	l.Log.WithFields(logrus.Fields{"printed": printed, "failed": failed}).Debug("Drained print queue")
}

//BlinkOn idle indication: lit briefly at the start of every even second
func BlinkOn(t time.Time) bool {
	return t.Unix()%2 == 0 && time.Duration(t.Nanosecond()) < blinkOn
}

func (l *Loop) blink(now time.Time) {
	l.setLED(BlinkOn(now))
}

func (l *Loop) setLED(on bool) {
	if l.LED == nil || (l.ledKnown && l.led == on) {
		return
	}
	if err := l.LED.Write(on); err != nil {
		l.Log.WithError(err).Warn("Unable to drive status LED")
		return
	}
	l.led, l.ledKnown = on, true
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
