// Package background runs fire-and-forget work, such as evidence uploads
// and notifications, on a bounded worker pool so camera pipelines never
// block on slow external services.
package background

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

type task struct {
	name string
	fn   func() error
}

// Runner executes submitted tasks on a fixed set of workers. The queue is
// bounded; when it is full new tasks are dropped and counted rather than
// blocking the submitter.
type Runner struct {
	tasks chan task
	wg    sync.WaitGroup
	log   *slog.Logger

	mu     sync.Mutex
	closed bool

	dropped atomic.Int64
}

// NewRunner starts a runner with the given worker count and queue depth.
func NewRunner(workers, depth int, log *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}

	r := &Runner{
		tasks: make(chan task, depth),
		log:   log,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for t := range r.tasks {
		if err := t.fn(); err != nil {
			r.log.Warn("background task failed", "task", t.name, "error", err)
		}
	}
}

// Submit queues a task, returning false when the runner is closed or the
// queue is full.
func (r *Runner) Submit(name string, fn func() error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}

	select {
	case r.tasks <- task{name: name, fn: fn}:
		return true
	default:
		r.dropped.Add(1)
		r.log.Warn("background queue full, dropping task", "task", name)
		return false
	}
}

// Dropped returns the number of tasks rejected because the queue was full.
func (r *Runner) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting tasks and waits for queued work to finish.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.tasks)
	r.mu.Unlock()

	r.wg.Wait()
}
