package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	data     [][]byte
	closed   bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	c.data = append(c.data, data)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func quietLog() *logrus.Entry {
	log := logrus.New()
	log.Out = io.Discard
	return logrus.NewEntry(log)
}

func TestPublisherRetriesAndPublishes(t *testing.T) {
	conn := &fakeConn{}
	dials := 0
	p := NewPublisher("nats.local", 4222, "iot-printer.events", quietLog())
	assert.Equal(t, "nats://nats.local:4222", p.URL)
	p.Interval = time.Millisecond
	p.Dial = func(url string) (Conn, error) {
		dials++
		if dials == 1 {
			return nil, errors.New("connection refused")
		}
		return conn, nil
	}

	p.SendJobEvent("job_printed", "image", "")
	p.SendActionEvent("tap", "tap action: no sensor")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return conn.count() == 2 }, 2*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not stop")
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.True(t, conn.closed)
	assert.Equal(t, []string{"iot-printer.events", "iot-printer.events"}, conn.subjects)

	var first, second Event
	require.NoError(t, json.Unmarshal(conn.data[0], &first))
	require.NoError(t, json.Unmarshal(conn.data[1], &second))
	assert.Equal(t, "queue", first.Source)
	assert.Equal(t, "job_printed", first.Type)
	assert.Equal(t, "image", first.Kind)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "action", second.Source)
	assert.Equal(t, "tap action: no sensor", second.Error)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSendNeverBlocks(t *testing.T) {
	p := NewPublisher("nats.local", 4222, "events", quietLog())
	finished := make(chan struct{})
	go func() {
		for i := 0; i < queuelen*2; i++ {
			p.SendJobEvent("job_enqueued", "text", "")
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("send blocked without a connection")
	}
	assert.Len(t, p.messages, queuelen)
}
