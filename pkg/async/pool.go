// Package async runs detached background work on a bounded worker pool with
// per-task timeouts and panic recovery.
package async

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/platinummonkey/studiodesk/pkg/observability"
)

var (
	// ErrPoolClosed is returned when submitting to a pool that is shutting down
	ErrPoolClosed = errors.New("worker pool shut down")
	// ErrPoolFull is returned by TrySubmit when the queue has no free slot
	ErrPoolFull = errors.New("worker pool queue full")
)

// Task is a unit of work. ctx is cancelled when the task timeout elapses or
// the pool is force-stopped.
type Task func(ctx context.Context) error

// WorkerPool manages a fixed set of workers draining a bounded queue.
// Task errors are logged, never returned to the submitter.
type WorkerPool struct {
	taskName string
	timeout  time.Duration
	logger   *observability.Logger

	workCh chan Task
	doneCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// PoolConfig configures a WorkerPool
type PoolConfig struct {
	Workers   int
	QueueSize int
	TaskName  string
	Timeout   time.Duration
	Logger    *observability.Logger
}

// NewWorkerPool starts cfg.Workers goroutines.
//
// Example:
//
//	pool := async.NewWorkerPool(ctx, async.PoolConfig{Workers: 2, QueueSize: 256, TaskName: "sheet mirror", Timeout: 10 * time.Second})
//	defer pool.Shutdown(context.Background())
//
//	pool.TrySubmit(func(ctx context.Context) error {
//	    return mirror.Mirror(ctx, record)
//	})
func NewWorkerPool(ctx context.Context, cfg PoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	ctx, cancel := context.WithCancel(ctx)
	pool := &WorkerPool{
		taskName: cfg.TaskName,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.WithField("pool", cfg.TaskName),
		workCh:   make(chan Task, cfg.QueueSize),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			pool.worker(id)
		}(i)
	}
	go func() {
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// TrySubmit enqueues fn without blocking. It returns ErrPoolFull when the
// queue is at capacity.
func (p *WorkerPool) TrySubmit(fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- fn:
		return nil
	default:
		return ErrPoolFull
	}
}

// Shutdown stops accepting work and waits for queued tasks to drain. If ctx
// expires first, running tasks are cancelled and ctx.Err() is returned.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.workCh)
		p.mu.Unlock()
	})

	select {
	case <-p.doneCh:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.doneCh
		return ctx.Err()
	}
}

func (p *WorkerPool) worker(id int) {
	for fn := range p.workCh {
		p.run(id, fn)
	}
}

func (p *WorkerPool) run(id int, fn Task) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	defer observability.RecoverPanic(p.logger.WithField("worker", id), p.taskName)

	if err := fn(ctx); err != nil {
		p.logger.WithField("worker", id).WithError(err).Warn("task failed")
	}
}
