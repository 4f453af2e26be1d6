package gpio

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

var (
	//ErrPinNotFound the pin name is unknown to the host drivers
	ErrPinNotFound = errors.New("gpio pin not found")
)

//Init load all the host drivers, must run before pins are looked up
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("initialize gpio host: %w", err)
	}
	return nil
}

//ParsePull maps the config value to a pull resistor
func ParsePull(s string) (gpio.Pull, error) {
	switch strings.ToLower(s) {
	case "up", "":
		return gpio.PullUp, nil
	case "down":
		return gpio.PullDown, nil
	case "none", "float":
		return gpio.Float, nil
	}
	return gpio.PullNoChange, fmt.Errorf("unknown pull %q (valid: up, down, none)", s)
}

//Input a button pin, Read reports the raw level
type Input struct {
	pin gpio.PinIO
}

//OpenInput look up a pin such as GPIO23 and configure it as input
func OpenInput(name string, pull gpio.Pull) (*Input, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	if err := p.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure %s as input: %w", name, err)
	}
	return &Input{pin: p}, nil
}

//Read true when the pin is high
func (i *Input) Read() (bool, error) {
	return i.pin.Read() == gpio.High, nil
}

//Output an LED pin
type Output struct {
	pin gpio.PinIO
}

//OpenOutput look up a pin and drive it low
func OpenOutput(name string) (*Output, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configure %s as output: %w", name, err)
	}
	return &Output{pin: p}, nil
}

//Write drive the pin high when on
func (o *Output) Write(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	return o.pin.Out(level)
}

//Memory a pin that lives in memory, used without hardware and in tests
type Memory struct {
	mu    sync.Mutex
	level bool
}

//NewMemory pin starting at level
func NewMemory(level bool) *Memory {
	return &Memory{level: level}
}

func (m *Memory) Read() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level, nil
}

func (m *Memory) Write(on bool) error {
	m.mu.Lock()
	m.level = on
	m.mu.Unlock()
	return nil
}
