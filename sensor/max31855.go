package sensor

import (
	"errors"
	"fmt"

	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
)

var (
	ErrOpenCircuit = errors.New("max31855: thermocouple open circuit")
	ErrShortGND    = errors.New("max31855: thermocouple shorted to ground")
	ErrShortVCC    = errors.New("max31855: thermocouple shorted to VCC")
	ErrFault       = errors.New("max31855: fault")
)

//MAX31855 SPI thermocouple amplifier
type MAX31855 struct {
	port spi.PortCloser
	conn spi.Conn
}

//OpenMAX31855 an empty port name opens the first SPI bus
func OpenMAX31855(port string) (*MAX31855, error) {
	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", port, err)
	}
	c, err := p.Connect(physic.MegaHertz, spi.Mode3, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("connect max31855: %w", err)
	}
	return &MAX31855{port: p, conn: c}, nil
}

func (m *MAX31855) Celsius() (float64, error) {
	var w, r [4]byte
	if err := m.conn.Tx(w[:], r[:]); err != nil {
		return 0, fmt.Errorf("max31855: txn error: %w", err)
	}
	thermo, _, err := Decode(r)
	return thermo, err
}

func (m *MAX31855) Name() string {
	return "max31855"
}

func (m *MAX31855) Close() error {
	return m.port.Close()
}

//Decode one 32 bit frame into thermocouple and cold junction temperatures
func Decode(b [4]byte) (thermocouple, internal float64, err error) {
	switch {
	case b[3]&1 != 0:
		return 0, 0, ErrOpenCircuit
	case b[3]&2 != 0:
		return 0, 0, ErrShortGND
	case b[3]&4 != 0:
		return 0, 0, ErrShortVCC
	case b[1]&1 != 0:
		return 0, 0, ErrFault
	}
	// sign extension comes from the int16 conversion
	thermo := int16(uint16(b[0])<<8 | uint16(b[1]&0xfc))
	intern := int16(uint16(b[2])<<8 | uint16(b[3]&0xf0))
	return float64(thermo) / 16, float64(intern) / 256, nil
}
