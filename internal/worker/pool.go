package worker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-risk-analysis/backend/pkg/logger"

	"github.com/panjf2000/ants/v2"
)

// ErrSchedulerBusy is returned by Submit when the backlog is full.
var ErrSchedulerBusy = errors.New("analysis scheduler is at capacity")

// ErrSchedulerClosed is returned by Submit after Shutdown.
var ErrSchedulerClosed = errors.New("analysis scheduler is shut down")

// Scheduler runs tasks out of band.
type Scheduler interface {
	Submit(task func()) error
}

// Pool runs tasks on a fixed number of ants workers fed from a bounded backlog.
// Submit never blocks: once the backlog is full it fails with ErrSchedulerBusy.
type Pool struct {
	pool    *ants.Pool
	backlog chan func()
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	log     *logger.Logger
}

// NewPool starts a pool of size workers with room for maxPending queued tasks.
func NewPool(size, maxPending int, log *logger.Logger) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	if maxPending < 0 {
		maxPending = 0
	}
	log = log.WithComponent("worker-pool")

	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(r any) {
		log.Error("task panicked outside its own recovery", "panic", fmt.Sprintf("%v", r))
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	p := &Pool{
		pool:    pool,
		backlog: make(chan func(), maxPending),
		done:    make(chan struct{}),
		log:     log,
	}
	go p.dispatch()
	return p, nil
}

func (p *Pool) dispatch() {
	defer close(p.done)
	for task := range p.backlog {
		// Blocks until a worker is free.
		if err := p.pool.Submit(task); err != nil {
			p.log.LogError(err, "dropping task, worker pool released")
		}
	}
}

// Submit queues task. It returns ErrSchedulerBusy when the backlog is full.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrSchedulerClosed
	}
	select {
	case p.backlog <- task:
		return nil
	default:
		return ErrSchedulerBusy
	}
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Pending returns the number of tasks waiting in the backlog.
func (p *Pool) Pending() int {
	return len(p.backlog)
}

// Capacity returns the backlog size.
func (p *Pool) Capacity() int {
	return cap(p.backlog)
}

// Shutdown stops accepting tasks and waits up to timeout for queued and
// running tasks to finish.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.backlog)
	p.mu.Unlock()

	deadline := time.Now().Add(timeout)
	select {
	case <-p.done:
	case <-time.After(timeout):
		p.pool.Release()
		return fmt.Errorf("worker pool drain timed out after %s with %d queued", timeout, len(p.backlog))
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	if err := p.pool.ReleaseTimeout(remaining); err != nil {
		return fmt.Errorf("worker pool drain: %w", err)
	}
	p.log.Info("worker pool drained")
	return nil
}
