package button

import (
	"fmt"
	"time"
)

const (
	//DefaultDebounce minimum time a level has to be stable before it counts
	DefaultDebounce = 10 * time.Millisecond
	//DefaultHold press duration that turns a press into a hold
	DefaultHold = 2 * time.Second
)

//Input raw digital input the button is wired to
type Input interface {
	Read() (bool, error)
}

//Event classified result of a sample
type Event int

const (
	None Event = iota
	Tap
	HoldStart
)

func (e Event) String() string {
	switch e {
	case Tap:
		return "tap"
	case HoldStart:
		return "hold"
	default:
		return "none"
	}
}

//Sample one reading of the pin
type Sample struct {
	Raw bool
	At  time.Time
}

//Config thresholds for the monitor
type Config struct {
	Debounce time.Duration
	Hold     time.Duration
	//ActiveLow the pin reads low while pressed (pull-up wiring)
	ActiveLow bool
}

//Monitor discriminates taps from holds on a polled input
type Monitor struct {
	in  Input
	cfg Config

	pressed   bool
	changedAt time.Time
	active    bool //a debounced press is in progress
	held      bool //hold already fired for the active press
}

//NewMonitor creates a monitor in the released state
func NewMonitor(in Input, cfg Config) *Monitor {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Hold <= cfg.Debounce {
		cfg.Hold = DefaultHold
	}
	return &Monitor{in: in, cfg: cfg}
}

//Poll read the input and classify it
func (m *Monitor) Poll(now time.Time) (Sample, Event, error) {
	raw, err := m.in.Read()
	if err != nil {
		return Sample{}, None, fmt.Errorf("read button: %w", err)
	}
	s := Sample{Raw: raw, At: now}
	return s, m.Classify(s), nil
}

//Classify advance the state machine by one sample
func (m *Monitor) Classify(s Sample) Event {
	pressed := s.Raw != m.cfg.ActiveLow
	if pressed != m.pressed {
		m.pressed = pressed
		m.changedAt = s.At
		return None
	}

	elapsed := s.At.Sub(m.changedAt)
	if elapsed < m.cfg.Debounce {
		return None
	}

	if pressed {
		if !m.active {
			m.active = true
			m.held = false
		}
		if elapsed >= m.cfg.Hold && !m.held {
			m.held = true
			return HoldStart
		}
		return None
	}

	if !m.active {
		return None
	}
	m.active = false
	if m.held {
		return None
	}
	return Tap
}

//Pressed debounced-or-not current level as a press
func (m *Monitor) Pressed() bool {
	return m.pressed
}
