package pipeline

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

type Task func(ctx context.Context) Result

type Result struct {
	Key string
	Err error
}

// WorkerPool fans tasks out to a fixed number of goroutines. Submit blocks
// once the buffer is full, so Run must be called before submitting.
type WorkerPool struct {
	workers int
	tasks   chan Task
	wg      sync.WaitGroup
	limiter *rate.Limiter
}

func NewWorkerPool(workers, buffer int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &WorkerPool{
		workers: workers,
		tasks:   make(chan Task, buffer),
	}
}

// SetLimiter paces task starts across all workers. A nil limiter disables
// pacing. Call it before Run.
func (p *WorkerPool) SetLimiter(l *rate.Limiter) {
	if p == nil {
		return
	}
	p.limiter = l
}

func (p *WorkerPool) Submit(ctx context.Context, t Task) bool {
	if p == nil || t == nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case p.tasks <- t:
		return true
	}
}

// Close stops accepting tasks. Queued tasks still run.
func (p *WorkerPool) Close() {
	if p == nil {
		return
	}
	close(p.tasks)
}

// Run starts the workers. The returned channel is closed after Close once
// every queued task has finished, or as soon as ctx is done.
func (p *WorkerPool) Run(ctx context.Context) <-chan Result {
	if p == nil {
		out := make(chan Result)
		close(out)
		return out
	}
	out := make(chan Result, p.workers)

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-p.tasks:
					if !ok {
						return
					}
					if p.limiter != nil {
						if err := p.limiter.Wait(ctx); err != nil {
							return
						}
					}
					res := t(ctx)
					select {
					case <-ctx.Done():
						return
					case out <- res:
					}
				}
			}
		}()
	}

	go func() {
		p.wg.Wait()
		close(out)
	}()

	return out
}

// Each runs fn for every item with at most workers in flight and returns the
// results in completion order. A non-nil limiter paces item starts.
func Each[T any](ctx context.Context, workers int, limiter *rate.Limiter, items []T, fn func(ctx context.Context, item T) Result) []Result {
	pool := NewWorkerPool(workers, workers)
	pool.SetLimiter(limiter)
	results := pool.Run(ctx)

	go func() {
		defer pool.Close()
		for _, it := range items {
			it := it
			if !pool.Submit(ctx, func(ctx context.Context) Result { return fn(ctx, it) }) {
				return
			}
		}
	}()

	out := make([]Result, 0, len(items))
	for r := range results {
		out = append(out, r)
	}
	return out
}
