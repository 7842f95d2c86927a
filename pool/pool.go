package pool

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueFull = errors.New("job queue is full")

// Job is one unit of queued work.
type Job func(ctx context.Context)

// Limiter caps the number of parses in flight across sync requests and
// pool workers.
type Limiter struct {
	sem chan struct{}
}

func NewLimiter(max int) *Limiter {
	return &Limiter{sem: make(chan struct{}, max)}
}

func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire grabs a slot without waiting. Sync endpoints use it to
// reject rather than queue when the server is at capacity.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l *Limiter) Release() {
	<-l.sem
}

// WorkerPool runs queued jobs on a fixed set of goroutines. Submission
// is non-blocking: once the queue buffer is full, TrySubmit reports
// backpressure instead of growing unbounded.
type WorkerPool struct {
	jobs   chan Job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// mu fences submissions against closing the jobs channel.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func NewWorkerPool(workers, queueSize int) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		jobs:   make(chan Job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *WorkerPool) run() {
	defer p.wg.Done()
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job(p.ctx)
		case <-p.ctx.Done():
			return
		}
	}
}

// TrySubmit enqueues a job, returning ErrQueueFull when the buffer is
// saturated or the pool has shut down.
func (p *WorkerPool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrQueueFull
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting work and waits for in-flight jobs.
func (p *WorkerPool) Shutdown() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()

		p.wg.Wait()
		p.cancel()
	})
}
