package sensor

import (
	"errors"
	"fmt"

	"github.com/yryz/ds18b20"
)

//ErrNoSensor nothing found on the 1-wire bus
var ErrNoSensor = errors.New("no ds18b20 sensors found")

//Probe a temperature source read on demand
type Probe interface {
	Celsius() (float64, error)
	Name() string
}

//DS18B20 1-wire probe, also used by MAX31850 thermocouple boards
type DS18B20 struct {
	ID   string
	read func(id string) (float64, error)
}

//NewDS18B20 an empty id or "auto" picks the first sensor on the bus
func NewDS18B20(id string) (*DS18B20, error) {
	if id == "" || id == "auto" {
		sensors, err := ds18b20.Sensors()
		if err != nil {
			return nil, fmt.Errorf("scan 1-wire bus: %w", err)
		}
		if len(sensors) == 0 {
			return nil, ErrNoSensor
		}
		id = sensors[0]
	}
	return &DS18B20{ID: id, read: ds18b20.Temperature}, nil
}

func (d *DS18B20) Celsius() (float64, error) {
	return d.read(d.ID)
}

func (d *DS18B20) Name() string {
	return "ds18b20 " + d.ID
}
