package queue

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/charles-d-burton/iot-printer/printer"
)

var (
	//ErrInvalidJob job without payload or action
	ErrInvalidJob = errors.New("invalid print job")
)

//Job events reported to an EventSender
const (
	EventEnqueued = "job_enqueued"
	EventPrinted  = "job_printed"
	EventFailed   = "job_failed"
)

//Payload the printable content of a job
type Payload interface {
	Kind() string
}

//Image a renderable bitmap
type Image struct {
	Image image.Image
}

//Text a block of text
type Text struct {
	Text      string
	Bold      bool
	Inverse   bool
	Underline bool
}

//Feed blank paper
type Feed struct {
	Lines int
}

func (Image) Kind() string { return "image" }
func (Text) Kind() string  { return "text" }
func (Feed) Kind() string  { return "feed" }

//Action renders a payload on the device, only called by the consumer
type Action func(ctx context.Context, dev printer.Device, p Payload) error

//Job one unit of printable work
type Job struct {
	Payload Payload
	Action  Action
}

//EventSender receives job lifecycle events
type EventSender interface {
	SendJobEvent(event string, kind string, errMsg string)
}

//Stats counters since start
type Stats struct {
	Enqueued int64 `json:"enqueued"`
	Printed  int64 `json:"printed"`
	Failed   int64 `json:"failed"`
	Pending  int   `json:"pending"`
}

//Queue unbounded FIFO, many producers, one consumer
type Queue struct {
	mu   sync.Mutex
	jobs []Job

	log    *logrus.Entry
	events EventSender

	enqueued int64
	printed  int64
	failed   int64
}

//New creates an empty queue, events may be nil
func New(log *logrus.Entry, events EventSender) *Queue {
	return &Queue{log: log, events: events}
}

//Enqueue append a job, never blocks
func (q *Queue) Enqueue(job Job) error {
	if job.Payload == nil || job.Action == nil {
		return ErrInvalidJob
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	atomic.AddInt64(&q.enqueued, 1)
	q.send(EventEnqueued, job, "")
	return nil
}

//Len number of jobs waiting
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

//Empty no job is waiting
func (q *Queue) Empty() bool {
	return q.Len() == 0
}

//DequeueOne remove the oldest job
func (q *Queue) DequeueOne() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs[0] = Job{}
	q.jobs = q.jobs[1:]
	return job, true
}

//TakeAll remove every job waiting right now
func (q *Queue) TakeAll() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.jobs
	q.jobs = nil
	return jobs
}

//Execute run one job, failures are logged and returned but never panic
func (q *Queue) Execute(ctx context.Context, dev printer.Device, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("print job panicked: %v", r)
			q.log.WithField("stack", string(debug.Stack())).Error(err)
		}
		if err != nil {
			atomic.AddInt64(&q.failed, 1)
			q.log.WithField("kind", job.Payload.Kind()).WithError(err).Error("Print job failed")
			q.send(EventFailed, job, err.Error())
			return
		}
		atomic.AddInt64(&q.printed, 1)
		q.send(EventPrinted, job, "")
	}()
	return job.Action(ctx, dev, job.Payload)
}

//Drain execute the jobs queued at call time, later arrivals wait for the next drain
func (q *Queue) Drain(ctx context.Context, dev printer.Device) (printed, failed int) {
	if q.Empty() {
		return 0, 0
	}
	for _, job := range q.TakeAll() {
		if err := q.Execute(ctx, dev, job); err != nil {
			failed++
			continue
		}
		printed++
	}
	return printed, failed
}

//Stats snapshot of the counters
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued: atomic.LoadInt64(&q.enqueued),
		Printed:  atomic.LoadInt64(&q.printed),
		Failed:   atomic.LoadInt64(&q.failed),
		Pending:  q.Len(),
	}
}

func (q *Queue) send(event string, job Job, errMsg string) {
	if q.events == nil {
		return
	}
	q.events.SendJobEvent(event, job.Payload.Kind(), errMsg)
}
