// Package detached implements the bounded worker pool that runs the
// Redirect Handler's post-response work: enrich, count, enqueue. It is the
// concrete primitive behind the spec's "detached task" — work whose
// completion is not a precondition of the HTTP response — grounded on the
// teacher's internal/analytics.Worker / internal/webhook.Worker run-loop
// shape, but draining an in-process channel instead of a Redis stream,
// since nothing about this work needs to survive a process restart.
package detached

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clickplane/core/internal/metrics"
)

// Task is one unit of post-response work. It receives a context bounded by
// the pool's per-task deadline; implementations must respect ctx.Done().
type Task func(ctx context.Context)

// Pool is a fixed-size worker pool draining a bounded channel of Tasks. If
// the channel is full, Submit drops the task and increments a metric
// instead of blocking the caller — this preserves the redirect response's
// independence from downstream load at the cost of tracking fidelity,
// which is the correct trade-off on this path.
type Pool struct {
	tasks    chan Task
	deadline time.Duration
	logger   *slog.Logger
	metrics  metrics.Recorder

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Pool draining a channel sized queueSize. The workers argument
// is only clamped to at least 1 and is not stored; the number of goroutines
// is the count passed to Run. Call Run to start the workers and Shutdown to
// drain them.
func New(workers, queueSize int, deadline time.Duration, logger *slog.Logger, recorder metrics.Recorder) *Pool {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		tasks:    make(chan Task, queueSize),
		deadline: deadline,
		logger:   logger.With("component", "detached.pool"),
		metrics:  recorder,
	}
}

// Run starts the worker goroutines. It returns immediately; workers run
// until the context passed to Run is cancelled and the channel drains.
func (p *Pool) Run(ctx context.Context, workers int) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx)
	}
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Finish whatever is already queued before exiting.
			for {
				select {
				case task, ok := <-p.tasks:
					if !ok {
						return
					}
					p.execute(task)
				default:
					return
				}
			}
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.execute(task)
		}
	}
}

func (p *Pool) execute(task Task) {
	taskCtx, cancel := context.WithTimeout(context.Background(), p.deadline)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("detached task panicked", "recovered", r)
		}
	}()

	task(taskCtx)
}

// Submit enqueues a task for a worker to pick up. It never blocks: if the
// channel is full the task is dropped and a metric is incremented, since a
// slow or stuck downstream must never propagate backpressure onto the
// redirect path that already committed its response.
func (p *Pool) Submit(task Task) {
	select {
	case p.tasks <- task:
	default:
		p.metrics.IncDetachedTaskDropped()
		p.logger.Warn("detached task queue full, dropping task")
	}
}

// Shutdown stops accepting new work's processing once ctx is done or all
// queued tasks finish, whichever comes first.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
