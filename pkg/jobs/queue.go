package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned by Enqueue before Start or after Stop.
	ErrNotStarted = errors.New("queue not running")
	// ErrQueueFull is returned when the buffer has no free slot.
	ErrQueueFull = errors.New("queue buffer full")
	// ErrNoHandler is returned for job types nobody registered.
	ErrNoHandler = errors.New("no handler for job type")
)

// Job is one unit of background work. Attempt counts prior failures.
type Job struct {
	ID       string
	Type     string
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures the worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the first backoff; it doubles per attempt up to MaxDelay.
	RetryDelay time.Duration
	MaxDelay   time.Duration
	Logger     *zap.Logger
}

// Stats is a point-in-time view of queue activity.
type Stats struct {
	Pending   int
	Processed uint64
	Failed    uint64
	Dropped   uint64
}

// Queue dispatches jobs to per-type handlers on a fixed goroutine pool.
type Queue struct {
	name     string
	cfg      QueueConfig
	logger   *zap.Logger
	handlers map[string]Handler

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	retries sync.WaitGroup
	mu      sync.RWMutex
	running bool

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewQueue builds a stopped queue.
func NewQueue(name string, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxDelay < cfg.RetryDelay {
		cfg.MaxDelay = 30 * cfg.RetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		name:     name,
		cfg:      cfg,
		logger:   cfg.Logger.With(zap.String("queue", name)),
		handlers: map[string]Handler{},
		jobs:     make(chan Job, cfg.BufferSize),
	}
}

// Register binds handler to jobType. Register before Start.
func (q *Queue) Register(jobType string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.running = true
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels in-flight work and waits for workers and pending retries.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.retries.Wait()
	q.logger.Info("queue stopped", zap.Uint64("processed", q.processed.Load()), zap.Uint64("failed", q.failed.Load()))
}

// Enqueue adds job without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return fmt.Errorf("%s: %w", q.name, ErrNotStarted)
	}
	if _, ok := q.handlers[job.Type]; !ok {
		return fmt.Errorf("%s: %w %q", q.name, ErrNoHandler, job.Type)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		q.dropped.Add(1)
		return fmt.Errorf("%s: %w", q.name, ErrQueueFull)
	}
}

// Stats reports counters since construction.
func (q *Queue) Stats() Stats {
	return Stats{
		Pending:   len(q.jobs),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(job)
		}
	}
}

func (q *Queue) run(job Job) {
	q.mu.RLock()
	handler := q.handlers[job.Type]
	q.mu.RUnlock()

	err := q.safeCall(handler, job)
	if err == nil {
		q.processed.Add(1)
		return
	}
	if job.Attempt >= q.cfg.MaxRetries || q.ctx.Err() != nil {
		q.failed.Add(1)
		q.logger.Error("job failed", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt), zap.Error(err))
		return
	}
	job.Attempt++
	delay := q.backoff(job.Attempt)
	q.logger.Warn("job failed, retrying", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt), zap.Duration("delay", delay), zap.Error(err))

	q.retries.Add(1)
	go func() {
		defer q.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if err := q.Enqueue(job); err != nil {
				q.failed.Add(1)
				q.logger.Error("failed to requeue job", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}()
}

func (q *Queue) safeCall(handler Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return handler(q.ctx, job)
}

func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for i := 1; i < attempt && delay < q.cfg.MaxDelay; i++ {
		delay *= 2
	}
	if delay > q.cfg.MaxDelay {
		delay = q.cfg.MaxDelay
	}
	return delay
}
