package document

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueClosed is returned by Enqueue after Shutdown.
	ErrQueueClosed = errors.New("queue closed")
)

// Job asks a worker to process one document. Attempt starts at 1.
type Job struct {
	ID         string
	DocumentID string
	Attempt    int
}

// Handler processes a job. Returning an error wrapped with Permanent stops
// further attempts.
type Handler func(ctx context.Context, job Job) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Queue runs jobs on a fixed pool of workers and retries failures with a
// linear backoff.
type Queue struct {
	handler     Handler
	logger      *slog.Logger
	workers     int
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration

	ch     chan Job
	wg     sync.WaitGroup
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay. The wait after attempt n is n times d.
func WithBackoff(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.backoff = d
		}
	}
}

// NewQueue creates a queue and starts its workers.
func NewQueue(handler Handler, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		handler:     handler,
		logger:      logger,
		workers:     4,
		timeout:     3 * time.Minute,
		maxAttempts: 3,
		backoff:     2 * time.Second,
		ch:          make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) run(workerID int, job Job) {
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		job.Attempt = attempt

		ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
		err := q.handler(ctx, job)
		cancel()

		if err == nil {
			q.logger.Info("processed document", "worker_id", workerID, "document_id", job.DocumentID, "attempt", attempt)
			return
		}
		if isPermanent(err) || attempt == q.maxAttempts {
			q.logger.Error("processing failed", "worker_id", workerID, "document_id", job.DocumentID, "attempt", attempt, "error", err)
			return
		}

		wait := q.backoff * time.Duration(attempt)
		q.logger.Warn("processing failed, retrying", "document_id", job.DocumentID, "attempt", attempt, "backoff", wait, "error", err)
		select {
		case <-q.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Enqueue schedules documentID for processing and returns the job ID. It
// never blocks.
func (q *Queue) Enqueue(_ context.Context, documentID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}

	job := Job{ID: uuid.NewString(), DocumentID: documentID}
	select {
	case q.ch <- job:
		q.logger.Debug("queued document", "document_id", documentID, "job_id", job.ID)
		return job.ID, nil
	default:
		q.logger.Warn("queue full", "document_id", documentID)
		return "", ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to drain. When ctx
// ends first, in-flight handlers and backoff waits are cancelled.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
		q.cancel()
		<-done
	case <-done:
		q.cancel()
		q.logger.Info("queue drained, shutdown complete")
	}
}
