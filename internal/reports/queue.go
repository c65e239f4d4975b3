package reports

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/pulse/internal/logging"
)

var (
	// ErrQueueFull is returned by Submit when no slot is free.
	ErrQueueFull = errors.New("report queue is full")
	// ErrQueueClosed is returned by Submit after Close.
	ErrQueueClosed = errors.New("report queue is closed")
)

type job struct {
	report *Report
	spec   Spec
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	Workers int
	Size    int
	// Notify is called once per finished job from a worker goroutine.
	Notify func(Completion)
	Logger *zap.Logger
}

// Queue hands report jobs to a fixed set of workers. Submit never waits for
// generation; outcomes arrive through Notify.
type Queue struct {
	gen    *Generator
	jobs   chan job
	notify func(Completion)
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewQueue starts opts.Workers workers serving gen.
func NewQueue(gen *Generator, opts QueueOptions) *Queue {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Size < 1 {
		opts.Size = 1
	}
	opts.Logger = logging.OrNop(opts.Logger)
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		gen:    gen,
		jobs:   make(chan job, opts.Size),
		notify: opts.Notify,
		logger: opts.Logger.Named("report-queue"),
		ctx:    ctx,
		cancel: cancel,
		group:  new(errgroup.Group),
	}
	for range opts.Workers {
		q.group.Go(q.work)
	}
	return q
}

// Submit creates a Pending report for spec and enqueues it. The report id is
// returned as soon as the job is queued.
func (q *Queue) Submit(ctx context.Context, spec Spec) (string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	r, err := q.gen.Create(ctx, spec)
	if err != nil {
		return "", err
	}
	select {
	case q.jobs <- job{report: r, spec: spec}:
		return r.ID, nil
	default:
		if ferr := q.gen.store.Fail(ctx, r.ID, ErrQueueFull.Error(), 0); ferr != nil {
			q.logger.Error("recording rejected report", zap.String("report_id", r.ID), zap.Error(ferr))
		}
		return "", fmt.Errorf("report %s: %w", r.ID, ErrQueueFull)
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	_ = q.group.Wait()
	q.cancel()
}

func (q *Queue) work() error {
	for j := range q.jobs {
		err := q.gen.Run(q.ctx, j.report, j.spec)
		if q.notify != nil {
			q.notify(Completion{
				ReportID:  j.report.ID,
				CompanyID: j.report.CompanyID,
				Status:    j.report.Status,
				Err:       err,
			})
		}
	}
	return nil
}
