package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned when the pending-job queue cannot accept more work.
var ErrQueueFull = errors.New("job queue full")

// Pool is a fixed-size worker pool. A job body runs synchronously on one
// worker; submissions beyond the worker count queue until a worker frees
// up, which bounds total concurrent upstream pressure.
type Pool struct {
	tasks chan func(context.Context)
	wg    sync.WaitGroup
}

// NewPool starts workers goroutines that run submitted tasks until ctx is
// cancelled and the queue is drained.
func NewPool(ctx context.Context, workers, queueSize int) *Pool {
	p := &Pool{tasks: make(chan func(context.Context), queueSize)}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return p
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker shutting down", "worker", id)
			return
		case task := <-p.tasks:
			task(ctx)
		}
	}
}

// Submit enqueues a task without blocking.
func (p *Pool) Submit(task func(context.Context)) error {
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}
