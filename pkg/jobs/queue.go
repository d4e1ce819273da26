package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Offer when every buffer slot is taken.
	ErrQueueFull = errors.New("queue full")
	// ErrNotRunning is returned when work is submitted before Start or after Stop.
	ErrNotRunning = errors.New("queue not running")
)

// Task wraps a payload with its delivery bookkeeping.
type Task[T any] struct {
	ID       string
	Payload  T
	Attempt  int
	Enqueued time.Time
}

// Handler processes one task. A non-nil error schedules a retry.
type Handler[T any] func(ctx context.Context, task Task[T]) error

// Options tunes a queue. Zero values fall back to sane defaults.
type Options[T any] struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
	// OnGiveUp is called once a task exhausts its retries.
	OnGiveUp func(task Task[T], err error)
}

// Queue fans typed tasks out to a fixed set of goroutines. Retries back off
// linearly: RetryDelay times the attempt number.
type Queue[T any] struct {
	name    string
	handler Handler[T]
	opts    Options[T]
	log     *zap.SugaredLogger

	tasks chan Task[T]

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// New builds a stopped queue; call Start before submitting.
func New[T any](name string, handler Handler[T], opts Options[T]) *Queue[T] {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = opts.Workers * 16
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Queue[T]{
		name:    name,
		handler: handler,
		opts:    opts,
		log:     opts.Logger.Sugar().With("queue", name),
		tasks:   make(chan Task[T], opts.BufferSize),
	}
}

// Start spawns the workers. Subsequent calls are no-ops.
func (q *Queue[T]) Start(parent context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(parent)
	q.running = true
	q.wg.Add(q.opts.Workers)
	for i := 0; i < q.opts.Workers; i++ {
		go q.consume()
	}
	q.log.Infow("queue started", "workers", q.opts.Workers)
}

// Stop cancels in-flight work and blocks until every goroutine has returned.
// Buffered tasks that were never picked up are discarded.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	q.log.Infow("queue stopped", "pending", len(q.tasks))
}

// Submit enqueues a task, waiting for room in the buffer.
func (q *Queue[T]) Submit(id string, payload T) error {
	return q.push(Task[T]{ID: id, Payload: payload}, true)
}

// Offer enqueues a task or fails fast with ErrQueueFull.
func (q *Queue[T]) Offer(id string, payload T) error {
	return q.push(Task[T]{ID: id, Payload: payload}, false)
}

func (q *Queue[T]) push(task Task[T], wait bool) error {
	q.mu.Lock()
	ctx, running := q.ctx, q.running
	q.mu.Unlock()
	if !running {
		return fmt.Errorf("%s: %w", q.name, ErrNotRunning)
	}
	if task.Enqueued.IsZero() {
		task.Enqueued = time.Now().UTC()
	}

	if !wait {
		select {
		case q.tasks <- task:
			return nil
		default:
			return fmt.Errorf("%s: %w", q.name, ErrQueueFull)
		}
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", q.name, ErrNotRunning)
	}
}

func (q *Queue[T]) consume() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case task := <-q.tasks:
			if err := q.handler(q.ctx, task); err != nil {
				q.retry(task, err)
			}
		}
	}
}

func (q *Queue[T]) retry(task Task[T], err error) {
	task.Attempt++
	if task.Attempt > q.opts.MaxRetries {
		q.log.Errorw("task abandoned", "task_id", task.ID, "attempts", task.Attempt, "error", err)
		if q.opts.OnGiveUp != nil {
			q.opts.OnGiveUp(task, err)
		}
		return
	}
	q.log.Warnw("task failed", "task_id", task.ID, "attempt", task.Attempt, "error", err)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(q.opts.RetryDelay * time.Duration(task.Attempt))
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if err := q.push(task, true); err != nil {
				q.log.Errorw("task requeue failed", "task_id", task.ID, "error", err)
			}
		}
	}()
}
