package service

import (
	"context"
	"sync"
	"sync/atomic"

	appErr "judgebox/pkg/errors"
	"judgebox/pkg/utils/logger"

	"go.uber.org/zap"
)

// Task is one unit of background work run by the pool.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of workers behind a bounded queue.
// Admission is a non-blocking token grab, so a full queue rejects instead of waiting.
type Pool struct {
	tokens  chan struct{}
	tasks   chan Task
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	running atomic.Int64
}

// NewPool starts workers goroutines serving a queue of queueSize.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tokens:  make(chan struct{}, queueSize),
		tasks:   make(chan Task, queueSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for task := range p.tasks {
		<-p.tokens
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	p.running.Add(1)
	defer p.running.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			logger.Error(p.ctx, "pool task panicked", zap.Any("panic", r))
		}
	}()
	task(p.ctx)
}

// Reservation holds one queue slot until it is submitted or cancelled.
type Reservation struct {
	pool *Pool
	used atomic.Bool
}

// Reserve claims a queue slot without blocking.
func (p *Pool) Reserve() (*Reservation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, appErr.New(appErr.ServiceUnavailable).WithMessage("judge is shutting down")
	}
	select {
	case p.tokens <- struct{}{}:
		return &Reservation{pool: p}, nil
	default:
		return nil, appErr.New(appErr.JudgeQueueFull)
	}
}

// Submit enqueues task on the reserved slot. It never blocks.
func (r *Reservation) Submit(task Task) error {
	if !r.used.CompareAndSwap(false, true) {
		return appErr.New(appErr.InternalServerError).WithMessage("reservation already used")
	}
	p := r.pool
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		<-p.tokens
		return appErr.New(appErr.ServiceUnavailable).WithMessage("judge is shutting down")
	}
	p.tasks <- task
	return nil
}

// Cancel gives the slot back. It is a no-op after Submit.
func (r *Reservation) Cancel() {
	if r.used.CompareAndSwap(false, true) {
		<-r.pool.tokens
	}
}

// Shutdown stops admission and waits for queued and running tasks.
// When ctx expires first, running tasks see their context cancelled and
// Shutdown returns without waiting for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

// Queued is the number of reserved or waiting slots.
func (p *Pool) Queued() int {
	return len(p.tokens)
}

// Capacity is the queue size.
func (p *Pool) Capacity() int {
	return cap(p.tokens)
}

// Running is the number of tasks being executed.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

func (p *Pool) Workers() int {
	return p.workers
}
