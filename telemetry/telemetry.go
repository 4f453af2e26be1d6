package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jeffchao/backoff"
	nats "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const queuelen = 100

//Event one record published for queue and button activity
type Event struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"` //queue or action
	Type      string `json:"type"`
	Kind      string `json:"kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

//Conn the part of a NATS connection the publisher needs
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

//Dialer opens a connection, swapped in tests
type Dialer func(url string) (Conn, error)

//DialNATS connect to a NATS server
func DialNATS(url string) (Conn, error) {
	nc, err := nats.Connect(url, nats.Name("iot-printer"))
	if err != nil {
		return nil, err
	}
	return nc, nil
}

//StreamDialer connect and make sure a JetStream stream keeps the subject for a day
func StreamDialer(stream, subject string, log *logrus.Entry) Dialer {
	return func(url string) (Conn, error) {
		nc, err := nats.Connect(url, nats.Name("iot-printer"))
		if err != nil {
			return nil, err
		}
		if err := ensureStream(nc, stream, subject, log); err != nil {
			nc.Close()
			return nil, err
		}
		return nc, nil
	}
}

func ensureStream(nc *nats.Conn, stream, subject string, log *logrus.Entry) error {
	js, err := nc.JetStream()
	if err != nil {
		return err
	}
	config := &nats.StreamConfig{
		Name:     stream,
		Subjects: []string{subject},
		MaxAge:   24 * time.Hour,
	}
	info, err := js.StreamInfo(stream)
	if err != nil {
		log.WithError(err).Debug("Stream lookup failed")
	}
	if info == nil {
		log.WithField("stream", stream).Info("Creating stream")
		_, err = js.AddStream(config)
		return err
	}
	log.WithField("stream", stream).Info("Updating stream")
	_, err = js.UpdateStream(config)
	return err
}

//Publisher forwards events to NATS, never blocking the caller
type Publisher struct {
	URL      string
	Subject  string
	Dial     Dialer
	Interval time.Duration //first backoff step
	Retries  int
	log      *logrus.Entry
	messages chan Event
	now      func() time.Time
}

//NewPublisher for nats://host:port, publishing on subject
func NewPublisher(host string, port int, subject string, log *logrus.Entry) *Publisher {
	return &Publisher{
		URL:      fmt.Sprintf("nats://%s:%d", host, port),
		Subject:  subject,
		Dial:     DialNATS,
		Interval: 100 * time.Millisecond,
		Retries:  10,
		log:      log,
		messages: make(chan Event, queuelen),
		now:      time.Now,
	}
}

//SendJobEvent report a print job transition
func (p *Publisher) SendJobEvent(event, kind, errMsg string) {
	p.send(Event{Source: "queue", Type: event, Kind: kind, Error: errMsg})
}

//SendActionEvent report a finished action
func (p *Publisher) SendActionEvent(action, errMsg string) {
	p.send(Event{Source: "action", Type: action, Error: errMsg})
}

func (p *Publisher) send(e Event) {
	e.ID = uuid.New().String()
	e.Timestamp = p.now().UnixNano() / int64(time.Millisecond)
	select {
	case p.messages <- e:
	default:
		p.log.WithField("type", e.Type).Warn("Telemetry queue full, dropping event")
	}
}

//Run connect with Fibonacci backoff and publish until the context ends
func (p *Publisher) Run(ctx context.Context) error {
	f := backoff.Fibonacci()
	f.Interval = p.Interval
	f.MaxRetries = p.Retries
	for {
		connect := func() error {
			if ctx.Err() != nil {
				return nil
			}
			p.log.WithField("url", p.URL).Info("Connecting to NATS")
			nc, err := p.Dial(p.URL)
			if err != nil {
				p.log.WithError(err).Warn("NATS connection failed")
				return err
			}
			defer nc.Close()
			p.log.Info("NATS Connected")
			return p.publish(ctx, nc)
		}
		if err := f.Retry(connect); err != nil {
			p.log.WithError(err).Error("Unable to reach NATS, will keep trying")
		}
		if ctx.Err() != nil {
			return nil
		}
		f.Reset()
	}
}

func (p *Publisher) publish(ctx context.Context, nc Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-p.messages:
			data, err := json.Marshal(e)
			if err != nil {
				p.log.WithError(err).Error("Unable to encode event")
				continue
			}
			if err := nc.Publish(p.Subject, data); err != nil {
				// keep the event for the next connection if there is room
				select {
				case p.messages <- e:
				default:
				}
				return fmt.Errorf("publish stopped: %w", err)
			}
		}
	}
}
