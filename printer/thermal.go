package printer

import (
	"image"
	"io"
	"strings"
	"time"

	"github.com/tarm/serial"
)

const (
	esc = 0x1b
	gs  = 0x1d
	dc2 = 0x12

	//bitmap rows are sent in chunks that fit the printer's 256 byte buffer
	maxChunkRows = 255
	bufferBytes  = 256
)

//Config serial settings and timing of the mechanism
type Config struct {
	Port     string
	Baud     int
	Timeout  time.Duration
	HeatDots byte
	HeatTime byte
	HeatGap  byte
	DotPrint time.Duration //time to burn one dot row
	DotFeed  time.Duration //time to advance one dot row
	LineDots int           //dot rows per text line
	MaxWidth int
}

//DefaultConfig settings for the Adafruit mini thermal printer
func DefaultConfig() Config {
	return Config{
		Port:     "/dev/serial0",
		Baud:     19200,
		Timeout:  5 * time.Second,
		HeatDots: 11,
		HeatTime: 120,
		HeatGap:  40,
		DotPrint: 30 * time.Millisecond,
		DotFeed:  2100 * time.Microsecond,
		LineDots: 24,
		MaxWidth: MaxWidth,
	}
}

//Thermal ESC/POS style receipt printer on a serial line
type Thermal struct {
	w      io.WriteCloser
	cfg    Config
	sleep  func(time.Duration)
	closed bool
}

//Open open the serial port and reset the printer
func Open(cfg Config) (*Thermal, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.Timeout,
	})
	if err != nil {
		return nil, deviceErr("open", err)
	}
	t := NewThermal(port, cfg)
	if err := t.Reset(); err != nil {
		port.Close()
		return nil, err
	}
	return t, nil
}

//NewThermal wrap an already open line
func NewThermal(w io.WriteCloser, cfg Config) *Thermal {
	if cfg.MaxWidth <= 0 || cfg.MaxWidth > MaxWidth {
		cfg.MaxWidth = MaxWidth
	}
	if cfg.LineDots <= 0 {
		cfg.LineDots = 24
	}
	return &Thermal{w: w, cfg: cfg, sleep: time.Sleep}
}

func (t *Thermal) write(op string, b ...byte) error {
	if t.closed {
		return deviceErr(op, ErrClosed)
	}
	_, err := t.w.Write(b)
	return deviceErr(op, err)
}

//Reset initialize the printer and configure heating
func (t *Thermal) Reset() error {
	if err := t.write("reset", esc, '@'); err != nil {
		return err
	}
	return t.write("configure", esc, '7', t.cfg.HeatDots, t.cfg.HeatTime, t.cfg.HeatGap)
}

//PrintImage print a bitmap, scaled to the paper width
func (t *Thermal) PrintImage(img image.Image) error {
	if img == nil || img.Bounds().Empty() {
		return deviceErr("print image", ErrEmptyImage)
	}
	rowBytes, rows := Bitmap(Fit(img, t.cfg.MaxWidth))

	chunk := bufferBytes / rowBytes
	if chunk > maxChunkRows {
		chunk = maxChunkRows
	}
	if chunk < 1 {
		chunk = 1
	}
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		if err := t.write("print image", dc2, '*', byte(end-start), byte(rowBytes)); err != nil {
			return err
		}
		for _, row := range rows[start:end] {
			if err := t.write("print image", row...); err != nil {
				return err
			}
		}
		t.sleep(time.Duration(end-start) * t.cfg.DotPrint)
	}
	return nil
}

//PrintText print text, a trailing newline is added if missing
func (t *Thermal) PrintText(text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if err := t.write("print text", []byte(text)...); err != nil {
		return err
	}
	t.sleep(time.Duration(strings.Count(text, "\n")*t.cfg.LineDots) * t.cfg.DotPrint / 8)
	return nil
}

//Feed advance the paper by whole text lines
func (t *Thermal) Feed(lines int) error {
	for lines > 0 {
		n := lines
		if n > 255 {
			n = 255
		}
		if err := t.write("feed", esc, 'd', byte(n)); err != nil {
			return err
		}
		t.sleep(time.Duration(n*t.cfg.LineDots) * t.cfg.DotFeed)
		lines -= n
	}
	return nil
}

//SetBold toggle emphasized text
func (t *Thermal) SetBold(on bool) error {
	return t.write("bold", esc, 'E', flag(on))
}

//SetInverse toggle white on black text
func (t *Thermal) SetInverse(on bool) error {
	return t.write("inverse", gs, 'B', flag(on))
}

//SetUnderline toggle underlined text
func (t *Thermal) SetUnderline(on bool) error {
	return t.write("underline", esc, '-', flag(on))
}

//Close release the serial line
func (t *Thermal) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.w.Close()
}

func flag(on bool) byte {
	if on {
		return 1
	}
	return 0
}
