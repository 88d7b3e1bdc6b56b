package pools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Task represents a unit of work
type Task func()

var (
	ErrInvalidWorkerCount = errors.New("pools: worker count must be positive")
	ErrPoolClosed         = errors.New("pools: pool is closed")
	ErrNilTask            = errors.New("pools: nil task")
)

// WorkerPool runs submitted tasks on a fixed set of goroutines fed from one
// shared, unbounded FIFO queue.
type WorkerPool struct {
	numWorkers int
	logger     *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool

	wg sync.WaitGroup

	// Statistics
	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
		tasksPanicked  atomic.Uint64
		activeWorkers  atomic.Int64
	}
}

// Option configures a WorkerPool
type Option func(*WorkerPool)

// WithLogger sets the logger used to report recovered task panics
func WithLogger(logger *slog.Logger) Option {
	return func(p *WorkerPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewWorkerPool starts numWorkers workers. A pool without workers could never
// make progress, so numWorkers <= 0 is rejected.
func NewWorkerPool(numWorkers int, opts ...Option) (*WorkerPool, error) {
	if numWorkers <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkerCount, numWorkers)
	}

	pool := &WorkerPool{
		numWorkers: numWorkers,
		logger:     slog.Default(),
	}
	pool.cond = sync.NewCond(&pool.mu)

	for _, opt := range opts {
		opt(pool)
	}

	pool.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.work(i)
	}

	return pool, nil
}

// Submit enqueues a task for execution by some worker. It never blocks and
// fails only once the pool has been closed.
func (p *WorkerPool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.queue = append(p.queue, task)
	p.stats.tasksSubmitted.Add(1)
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

// next blocks until a task is available. It returns false once the pool is
// closed and the queue has been drained.
func (p *WorkerPool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}

	task := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return task, true
}

// work is the main loop for a worker goroutine
func (p *WorkerPool) work(id int) {
	defer p.wg.Done()

	for {
		task, ok := p.next()
		if !ok {
			return
		}
		p.run(id, task)
	}
}

// run executes a single task, containing any panic to this task
func (p *WorkerPool) run(id int, task Task) {
	p.stats.activeWorkers.Add(1)
	defer func() {
		p.stats.activeWorkers.Add(-1)
		p.stats.tasksCompleted.Add(1)
		if r := recover(); r != nil {
			p.stats.tasksPanicked.Add(1)
			p.logger.Error("task panicked", "worker", id, "panic", r)
		}
	}()

	task()
}

// Close stops accepting new tasks. Tasks already queued still run; workers
// exit once the queue is empty.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
}

// Wait blocks until every worker has exited
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Shutdown closes the pool and waits for the workers to finish, or for ctx
// to be done, whichever comes first.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	p.mu.Lock()
	pending := len(p.queue)
	p.mu.Unlock()

	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		ActiveWorkers:  int(p.stats.activeWorkers.Load()),
		TasksSubmitted: p.stats.tasksSubmitted.Load(),
		TasksCompleted: p.stats.tasksCompleted.Load(),
		TasksPanicked:  p.stats.tasksPanicked.Load(),
		TasksPending:   uint64(pending),
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int
	ActiveWorkers  int
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksPanicked  uint64
	TasksPending   uint64
}
