package enrichment

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// PoolConfig configures the enrichment worker pool
type PoolConfig struct {
	MaxConcurrent int // Maximum concurrent provider calls (default: 4)
}

// DefaultPoolConfig returns the default pool bounds
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxConcurrent: 4}
}

// Pool runs independent enrichment calls with bounded parallelism. A
// semaphore caps outstanding calls and a new call starts as soon as a slot
// frees up.
type Pool struct {
	config PoolConfig
	logger *zap.Logger
}

// NewPool creates a worker pool
func NewPool(config PoolConfig, logger *zap.Logger) *Pool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = DefaultPoolConfig().MaxConcurrent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		config: config,
		logger: logger.Named("worker-pool"),
	}
}

// MaxConcurrent returns the concurrency bound
func (p *Pool) MaxConcurrent() int {
	return p.config.MaxConcurrent
}

// Task is a unit of work
type Task[T any] struct {
	ID      string                               // For logging
	Execute func(ctx context.Context) (T, error) // The work to run
}

// TaskResult is the outcome of a Task
type TaskResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// Run executes every task and returns results in submission order.
// Failures do not stop the remaining tasks. Tasks still waiting for a slot
// when ctx ends are reported with ctx's error.
func Run[T any](ctx context.Context, pool *Pool, tasks []Task[T], onProgress func(completed, total int)) []TaskResult[T] {
	if len(tasks) == 0 {
		return nil
	}

	results := make([]TaskResult[T], len(tasks))
	sem := make(chan struct{}, pool.config.MaxConcurrent)
	done := make(chan struct{}, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task[T]) {
			defer wg.Done()
			defer func() { done <- struct{}{} }()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = TaskResult[T]{ID: task.ID, Err: ctx.Err()}
				return
			}

			v, err := task.Execute(ctx)
			results[i] = TaskResult[T]{ID: task.ID, Result: v, Err: err}
		}(i, task)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	completed := 0
	for range done {
		completed++
		if onProgress != nil {
			onProgress(completed, len(tasks))
		}
	}

	pool.logger.Debug("pool finished", zap.Int("tasks", len(tasks)))
	return results
}
