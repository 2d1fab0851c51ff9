package watcher

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// workQueue runs queued jobs on a fixed pool of workers. Jobs are dropped
// rather than queued unboundedly when the buffer is full.
type workQueue struct {
	jobs    chan func()
	workers int
	wg      sync.WaitGroup
}

func newWorkQueue(workers int) *workQueue {
	if workers < 1 {
		workers = 1
	}
	return &workQueue{
		jobs:    make(chan func(), 64),
		workers: workers,
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (q *workQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.worker(ctx)
		}()
	}
}

func (q *workQueue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.run(job)
		}
	}
}

func (q *workQueue) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Queued job panicked")
		}
	}()
	job()
}

// Enqueue adds a job to the queue, dropping it when the buffer is full.
func (q *workQueue) Enqueue(job func()) {
	select {
	case q.jobs <- job:
	default:
		log.Warn().Msg("Work queue full, dropping job")
	}
}

// Wait blocks until all workers have exited.
func (q *workQueue) Wait() {
	q.wg.Wait()
}
