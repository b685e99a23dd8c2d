package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
)

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// ProcessorFunc adapts a function to JobProcessor.
type ProcessorFunc func(ctx context.Context) error

func (f ProcessorFunc) ProcessJobs(ctx context.Context) error {
	return f(ctx)
}

// Schedule yields the next run time after t.
type Schedule interface {
	Next(t time.Time) time.Time
}

// IntervalSchedule runs at a fixed interval.
type IntervalSchedule time.Duration

func (s IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(time.Duration(s))
}

type cronSchedule struct {
	expr *cronexpr.Expression
}

func (s cronSchedule) Next(t time.Time) time.Time {
	return s.expr.Next(t)
}

// ParseSchedule returns a cron schedule when expr is set and an interval
// schedule otherwise.
func ParseSchedule(expr string, interval time.Duration) (Schedule, error) {
	if expr != "" {
		parsed, err := cronexpr.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		return cronSchedule{expr: parsed}, nil
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	return IntervalSchedule(interval), nil
}

// Worker runs a processor on a schedule. The first run happens after the
// settle delay.
type Worker struct {
	name      string
	processor JobProcessor
	schedule  Schedule
	settle    time.Duration
	stopChan  chan struct{}
	doneChan  chan struct{}
	stopOnce  sync.Once
}

// NewWorker creates a new Worker instance
func NewWorker(name string, processor JobProcessor, schedule Schedule, settle time.Duration) *Worker {
	return &Worker{
		name:      name,
		processor: processor,
		schedule:  schedule,
		settle:    settle,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start blocks running the worker loop until ctx is cancelled or Stop is
// called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	timer := time.NewTimer(w.settle)
	defer timer.Stop()

	log.Printf("jobs: %s worker started, first run in %s", w.name, w.settle)

	for {
		select {
		case <-ctx.Done():
			log.Printf("jobs: %s worker stopped: context cancelled", w.name)
			return
		case <-w.stopChan:
			log.Printf("jobs: %s worker stopped: stop signal received", w.name)
			return
		case <-timer.C:
			if err := w.processor.ProcessJobs(ctx); err != nil {
				log.Printf("jobs: %s failed: %v", w.name, err)
			}
			now := time.Now()
			next := w.schedule.Next(now)
			if next.IsZero() {
				log.Printf("jobs: %s schedule has no further runs", w.name)
				return
			}
			timer.Reset(next.Sub(now))
		}
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
	log.Printf("jobs: %s worker shutdown complete", w.name)
}
