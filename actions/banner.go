package actions

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/charles-d-burton/iot-printer/printer"
	"github.com/charles-d-burton/iot-printer/queue"
)

const (
	//LineWidth characters per line at the default font
	LineWidth   = 32
	degree      = "\xf8" //degree sign in the printer code page
	bannerFeed  = 3
	goodbyeFeed = 9
)

//ErrNoNetwork no route to the outside world at startup
var ErrNoNetwork = errors.New("network is unreachable")

//Enqueuer where actions put their print work, satisfied by *queue.Queue
type Enqueuer interface {
	Enqueue(job queue.Job) error
}

func enqueue(q Enqueuer, jobs ...queue.Job) error {
	for _, job := range jobs {
		if err := q.Enqueue(job); err != nil {
			return err
		}
	}
	return nil
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	pad := (width - len(s)) / 2
	return strings.Repeat(" ", pad) + s + strings.Repeat(" ", width-len(s)-pad)
}

//Graphics loads images from disk once, scaled to the paper width
type Graphics struct {
	width int

	mu    sync.Mutex
	cache map[string]image.Image
}

func NewGraphics(width int) *Graphics {
	if width <= 0 {
		width = printer.MaxWidth
	}
	return &Graphics{width: width, cache: make(map[string]image.Image)}
}

func (g *Graphics) Get(path string) (image.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if img, ok := g.cache[path]; ok {
		return img, nil
	}
	img, err := printer.Load(path)
	if err != nil {
		return nil, err
	}
	img = printer.Fit(img, g.width)
	g.cache[path] = img
	return img, nil
}

//LocalIP the address used for outbound traffic, no packets are sent
func LocalIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoNetwork, err)
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return nil, ErrNoNetwork
	}
	return addr.IP, nil
}

//Banner the greeting, face and goodbye printouts
type Banner struct {
	Queue    Enqueuer
	Graphics *Graphics
	Hello    string
	Face     string
	Goodbye  string
	LocalIP  func() (net.IP, error)
	Log      *logrus.Entry
}

//Greeting the IP address, or how to troubleshoot without one, then the hello graphic
func (b *Banner) Greeting(ctx context.Context) error {
	lookup := b.LocalIP
	if lookup == nil {
		lookup = LocalIP
	}
	ip, ipErr := lookup()
	if ipErr != nil {
		b.Log.WithError(ipErr).Warn("No network at startup")
		if err := enqueue(b.Queue,
			queue.PrintText(queue.Text{Text: "Network is unreachable.", Bold: true}, 0),
			queue.PrintText(queue.Text{Text: "Connect display and keyboard\nfor network troubleshooting."}, bannerFeed),
		); err != nil {
			return err
		}
		return ipErr
	}

	b.Log.WithField("ip", ip.String()).Info("Printing greeting")
	if err := enqueue(b.Queue,
		queue.PrintText(queue.Text{Text: "My IP address is " + ip.String(), Bold: true}, bannerFeed),
	); err != nil {
		return err
	}
	img, err := b.Graphics.Get(b.Hello)
	if err != nil {
		return fmt.Errorf("hello graphic: %w", err)
	}
	return b.Queue.Enqueue(queue.PrintImage(img, bannerFeed))
}

//PrintFace the graphic that follows every tap
func (b *Banner) PrintFace(ctx context.Context) error {
	img, err := b.Graphics.Get(b.Face)
	if err != nil {
		return fmt.Errorf("face graphic: %w", err)
	}
	return b.Queue.Enqueue(queue.PrintImage(img, queue.ImageFeed))
}

//PrintGoodbye the last printout before power off, falls back to text without the graphic
func (b *Banner) PrintGoodbye(ctx context.Context) error {
	img, err := b.Graphics.Get(b.Goodbye)
	if err != nil {
		b.Log.WithError(err).Warn("Goodbye graphic missing")
		return b.Queue.Enqueue(queue.PrintText(queue.Text{Text: center("Goodbye!", LineWidth), Bold: true}, goodbyeFeed))
	}
	return b.Queue.Enqueue(queue.PrintImage(img, goodbyeFeed))
}
