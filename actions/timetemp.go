package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charles-d-burton/iot-printer/queue"
	"github.com/charles-d-burton/iot-printer/sensor"
)

//ErrNoTemperature neither a probe nor the weather service answered
var ErrNoTemperature = errors.New("no temperature source")

//TimeTemp the tap printout: date, time and a temperature
type TimeTemp struct {
	Queue   Enqueuer
	Probe   sensor.Probe //nil uses the weather service only
	Weather *Weather
	Now     func() time.Time
	Log     *logrus.Entry
}

func (t *TimeTemp) Tap(ctx context.Context) error {
	now := time.Now()
	if t.Now != nil {
		now = t.Now()
	}

	jobs := []queue.Job{
		queue.PrintText(queue.Text{Text: center(now.Format("Monday, January 2"), LineWidth), Bold: true}, 0),
		queue.PrintText(queue.Text{Text: center(now.Format("3:04 PM"), LineWidth)}, 0),
	}

	line, tempErr := t.temperature(ctx)
	if tempErr == nil {
		jobs = append(jobs, queue.PrintText(queue.Text{Text: center(line, LineWidth)}, 0))
	} else {
		t.Log.WithError(tempErr).Warn("Printing time without temperature")
	}
	jobs = append(jobs, queue.FeedLines(1))

	if err := enqueue(t.Queue, jobs...); err != nil {
		return err
	}
	return tempErr
}

func (t *TimeTemp) temperature(ctx context.Context) (string, error) {
	var errs []error
	if t.Probe != nil {
		c, err := t.Probe.Celsius()
		if err == nil {
			return fmt.Sprintf("Indoor %.1f%sC", c, degree), nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", t.Probe.Name(), err))
	}
	if t.Weather != nil {
		c, desc, err := t.Weather.Current(ctx)
		if err == nil {
			return fmt.Sprintf("Outside %.0f%sC %s", c, degree, desc), nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrNoTemperature
	}
	return "", fmt.Errorf("%w: %v", ErrNoTemperature, errs)
}
