package queue

import (
	"context"
	"fmt"
	"image"

	"github.com/charles-d-burton/iot-printer/printer"
)

//ImageFeed lines fed after a pushed image so it clears the tear bar
const ImageFeed = 7

//PrintImage job that prints an image followed by feed lines
func PrintImage(img image.Image, feed int) Job {
	return Job{
		Payload: Image{Image: img},
		Action: func(_ context.Context, dev printer.Device, p Payload) error {
			img, ok := p.(Image)
			if !ok {
				return fmt.Errorf("print image: unexpected payload %s", p.Kind())
			}
			if err := dev.PrintImage(img.Image); err != nil {
				return err
			}
			return dev.Feed(feed)
		},
	}
}

//PrintText job that prints styled text followed by feed lines
func PrintText(text Text, feed int) Job {
	return Job{
		Payload: text,
		Action: func(_ context.Context, dev printer.Device, p Payload) error {
			t, ok := p.(Text)
			if !ok {
				return fmt.Errorf("print text: unexpected payload %s", p.Kind())
			}
			if err := printStyled(dev, t); err != nil {
				return err
			}
			if feed > 0 {
				return dev.Feed(feed)
			}
			return nil
		},
	}
}

//FeedLines job that only advances the paper
func FeedLines(n int) Job {
	return Job{
		Payload: Feed{Lines: n},
		Action: func(_ context.Context, dev printer.Device, p Payload) error {
			return dev.Feed(p.(Feed).Lines)
		},
	}
}

func printStyled(dev printer.Device, t Text) error {
	s, styled := dev.(printer.Styler)
	if !styled || (!t.Bold && !t.Inverse && !t.Underline) {
		return dev.PrintText(t.Text)
	}
	err := setStyle(s, t, true)
	if err == nil {
		err = dev.PrintText(t.Text)
	}
	// styles stay latched on the mechanism, clear them even after a failure
	if resetErr := setStyle(s, t, false); err == nil {
		err = resetErr
	}
	return err
}

func setStyle(s printer.Styler, t Text, on bool) error {
	if t.Bold {
		if err := s.SetBold(on); err != nil {
			return err
		}
	}
	if t.Inverse {
		if err := s.SetInverse(on); err != nil {
			return err
		}
	}
	if t.Underline {
		if err := s.SetUnderline(on); err != nil {
			return err
		}
	}
	return nil
}
