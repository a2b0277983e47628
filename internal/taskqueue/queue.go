// Package taskqueue implements a bounded-concurrency FIFO work pool: tasks
// are admitted in submission order, at most N run concurrently, and each
// resolves an individual Future.
package taskqueue

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Future is the per-task promise returned by Enqueue.
type Future[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// Wait blocks until the task completes, returning its result or error.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) resolve(v T, err error) {
	f.result, f.err = v, err
	close(f.done)
}

type job[T any] struct {
	ctx    context.Context
	run    func(context.Context) (T, error)
	future *Future[T]
}

// Queue bounds concurrent execution of no-arg async producers to a fixed
// limit, admitting them FIFO. The cache engine keeps two: a build queue
// (concurrency 2) and a repair queue (concurrency 5),
type Queue[T any] struct {
	sem     *semaphore.Weighted
	jobs    chan job[T]
	pending atomic.Int64
}

// New creates a queue that runs at most limit tasks concurrently. A single
// dispatcher goroutine pulls jobs off the FIFO channel and acquires a
// concurrency slot before spawning the task, so admission order is
// preserved even when the pool is saturated.
func New[T any](limit int64) *Queue[T] {
	q := &Queue[T]{
		sem:  semaphore.NewWeighted(limit),
		jobs: make(chan job[T], 4096),
	}
	go q.dispatch()
	return q
}

func (q *Queue[T]) dispatch() {
	for j := range q.jobs {
		if err := q.sem.Acquire(j.ctx, 1); err != nil {
			q.pending.Add(-1)
			var zero T
			j.future.resolve(zero, err)
			continue
		}
		q.pending.Add(-1)
		go func(j job[T]) {
			defer q.sem.Release(1)
			v, err := j.run(j.ctx)
			j.future.resolve(v, err)
		}(j)
	}
}

// Enqueue admits task, returning a Future immediately. The task itself
// does not start running until a concurrency slot is free and every
// earlier-enqueued task has been dispatched.
func (q *Queue[T]) Enqueue(ctx context.Context, task func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	q.pending.Add(1)
	q.jobs <- job[T]{ctx: ctx, run: task, future: f}
	return f
}

// GetQueueLength reports the number of tasks admitted but not yet started
// (i.e. still waiting on a concurrency slot or sitting in the FIFO).
func (q *Queue[T]) GetQueueLength() int {
	return int(q.pending.Load())
}
