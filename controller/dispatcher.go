package controller

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tevino/abool"
)

//Action names reported in logs and events
const (
	ActionTap      = "tap"
	ActionFace     = "face"
	ActionHold     = "hold"
	ActionPeriodic = "periodic"
	ActionDaily    = "daily"
)

//Output digital output, the status LED
type Output interface {
	Write(on bool) error
}

//Action externally supplied work triggered by the button or a timer
type Action func(ctx context.Context) error

//PeriodicAction receives the cursor returned by its previous run
type PeriodicAction func(ctx context.Context, cursor string) (string, error)

//Actions the closed set of things the dispatcher can trigger, nil entries are skipped
type Actions struct {
	Tap      Action
	Face     Action
	Hold     Action
	Periodic PeriodicAction
	Daily    Action
}

//ActionEvents receives the outcome of every dispatched action
type ActionEvents interface {
	SendActionEvent(action string, errMsg string)
}

//ActionError an action failed or panicked
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s action: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

//Dispatcher runs actions one at a time with the busy LED lit
type Dispatcher struct {
	actions Actions
	led     Output
	events  ActionEvents
	log     *logrus.Entry

	busy   *abool.AtomicBool
	cursor string
}

//NewDispatcher cursor seeds the first periodic run
func NewDispatcher(actions Actions, led Output, events ActionEvents, cursor string, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		actions: actions,
		led:     led,
		events:  events,
		log:     log,
		busy:    abool.New(),
		cursor:  cursor,
	}
}

//Busy an action is executing
func (d *Dispatcher) Busy() bool {
	return d.busy.IsSet()
}

//Cursor state handed to the next periodic run
func (d *Dispatcher) Cursor() string {
	return d.cursor
}

//Tap tap action then the confirmation face, whatever the tap returned
func (d *Dispatcher) Tap(ctx context.Context) {
	d.run(ctx, ActionTap, d.actions.Tap)
	d.run(ctx, ActionFace, d.actions.Face)
}

//Hold terminal action, the caller stops the loop afterwards
func (d *Dispatcher) Hold(ctx context.Context) error {
	return d.run(ctx, ActionHold, d.actions.Hold)
}

//Periodic threads the cursor, a failed run keeps the previous one
func (d *Dispatcher) Periodic(ctx context.Context) {
	if d.actions.Periodic == nil {
		return
	}
	cursor := d.cursor
	err := d.run(ctx, ActionPeriodic, func(ctx context.Context) error {
		next, err := d.actions.Periodic(ctx, cursor)
		if err != nil {
			return err
		}
		if next != "" {
			cursor = next
		}
		return nil
	})
	if err == nil {
		d.cursor = cursor
	}
}

//Daily once a day action
func (d *Dispatcher) Daily(ctx context.Context) {
	d.run(ctx, ActionDaily, d.actions.Daily)
}

func (d *Dispatcher) run(ctx context.Context, name string, fn Action) (err error) {
	if fn == nil {
		return nil
	}
	d.busy.Set()
	d.setLED(true)
	log := d.log.WithField("action", name)
	log.Debug("Running action")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = &ActionError{Action: name, Err: err}
			log.WithError(err).Error("Action failed")
		}
		d.setLED(false)
		d.busy.UnSet()
		if d.events != nil {
			msg := ""
			if err != nil {
				msg = err.Error()
			}
			d.events.SendActionEvent(name, msg)
		}
	}()
	return fn(ctx)
}

func (d *Dispatcher) setLED(on bool) {
	if d.led == nil {
		return
	}
	if err := d.led.Write(on); err != nil {
		d.log.WithError(err).Warn("Unable to drive status LED")
	}
}
