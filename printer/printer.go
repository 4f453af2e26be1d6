package printer

import (
	"errors"
	"fmt"
	"image"
)

var (
	//ErrClosed device was used after Close
	ErrClosed = errors.New("printer is closed")
	//ErrEmptyImage image has no pixels
	ErrEmptyImage = errors.New("image is empty")
	//ErrImageTooLarge declared dimensions exceed MaxPixels
	ErrImageTooLarge = errors.New("image is too large")
)

//Device the physical sink, only ever driven by the control loop
type Device interface {
	PrintImage(img image.Image) error
	PrintText(text string) error
	Feed(lines int) error
}

//Styler optional text styling supported by the thermal printer
type Styler interface {
	SetBold(on bool) error
	SetInverse(on bool) error
	SetUnderline(on bool) error
}

//DeviceError I/O failure talking to the printer
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("printer %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func deviceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Op: op, Err: err}
}
