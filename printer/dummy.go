package printer

import (
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

//Dummy pretends to print, for running without the hardware
type Dummy struct {
	log   *logrus.Entry
	delay time.Duration

	mu     sync.Mutex
	images int
	lines  []string
	fed    int
}

//NewDummy the delay simulates the time the mechanism takes
func NewDummy(log *logrus.Entry, delay time.Duration) *Dummy {
	return &Dummy{log: log, delay: delay}
}

func (d *Dummy) PrintImage(img image.Image) error {
	if img == nil || img.Bounds().Empty() {
		return deviceErr("print image", ErrEmptyImage)
	}
	time.Sleep(d.delay)
	d.mu.Lock()
	d.images++
	d.mu.Unlock()
	b := img.Bounds()
	d.log.WithField("width", b.Dx()).WithField("height", b.Dy()).Info("Image printed!")
	return nil
}

func (d *Dummy) PrintText(text string) error {
	time.Sleep(d.delay / 2)
	d.mu.Lock()
	d.lines = append(d.lines, text)
	d.mu.Unlock()
	d.log.Info(text)
	return nil
}

func (d *Dummy) Feed(lines int) error {
	d.mu.Lock()
	d.fed += lines
	d.mu.Unlock()
	return nil
}

//Printed what went through the dummy so far
func (d *Dummy) Printed() (images int, lines []string, fed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.images, append([]string(nil), d.lines...), d.fed
}
