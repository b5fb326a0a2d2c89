// Package workerpool provides a bounded goroutine pool for executing jobs
// with controlled concurrency.
package workerpool

import (
	"sync"
)

// Pool manages a fixed number of goroutines that drain a shared job queue.
// Submit blocks once the queue buffer is full, applying back-pressure to
// producers. Stop closes the queue and waits for every in-flight job to
// finish before returning.
type Pool struct {
	workerCount int
	jobQueue    chan func()
	wg          sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a Pool with workerCount goroutines and a job buffer of
// queueSize. Workers are not running until Start is called.
func New(workerCount, queueSize int) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize <= 0 {
		queueSize = workerCount * 4
	}
	return &Pool{
		workerCount: workerCount,
		jobQueue:    make(chan func(), queueSize),
	}
}

// Start launches the worker goroutines. It must be called exactly once
// before any jobs are submitted.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobQueue {
				job()
			}
		}()
	}
}

// Submit enqueues job for execution by one of the pool's goroutines. It
// blocks while the buffer is full. Submit must not be called after Stop.
func (p *Pool) Submit(job func()) {
	p.jobQueue <- job
}

// TrySubmit enqueues job without blocking. It returns false when the buffer
// is full and the job was not accepted.
func (p *Pool) TrySubmit(job func()) bool {
	select {
	case p.jobQueue <- job:
		return true
	default:
		return false
	}
}

// Stop signals the pool to finish all queued jobs and waits for all worker
// goroutines to exit. No new jobs may be submitted after Stop.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.jobQueue)
	p.wg.Wait()
}

// QueueDepth returns the number of jobs waiting in the buffer.
func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}
