package starlark

import (
	"context"
	"sync"

	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"
)

// ThreadPool bounds the number of interpreter threads alive at once.
// Threads are not reused: a thread carries step counters and cancellation
// state that must not leak into the next run.
type ThreadPool struct {
	mu      sync.Mutex
	slots   chan struct{}
	inUse   int
	maxSize int
}

// NewThreadPool creates a new thread pool with the specified maximum size.
func NewThreadPool(maxSize int) *ThreadPool {
	if maxSize <= 0 {
		maxSize = 10 // default pool size
	}
	return &ThreadPool{
		slots:   make(chan struct{}, maxSize),
		maxSize: maxSize,
	}
}

// Get waits for a free slot and returns a fresh thread. The thread name is
// used for error reporting.
func (p *ThreadPool) Get(ctx context.Context, name string) (*starlark.Thread, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}

	p.mu.Lock()
	p.inUse++
	p.mu.Unlock()

	return &starlark.Thread{Name: name}, nil
}

// Put releases the slot held by thread.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	if thread == nil {
		return
	}
	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()
	<-p.slots
}

// Size returns the number of threads currently checked out.
func (p *ThreadPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// MaxSize returns the pool capacity.
func (p *ThreadPool) MaxSize() int {
	return p.maxSize
}

// ParallelExecutor runs independent tasks concurrently, each on its own
// thread and Runtime so scope records never cross goroutines.
type ParallelExecutor struct {
	pool *ThreadPool
	cfg  Config
}

// NewParallelExecutor creates an executor. cfg is the template for every
// task's runtime; its Thread and Name are set per task.
func NewParallelExecutor(maxConcurrency int, cfg Config) *ParallelExecutor {
	return &ParallelExecutor{
		pool: NewThreadPool(maxConcurrency),
		cfg:  cfg,
	}
}

// Execute runs every task and collects the results in task order. A failing
// task does not stop the others; cancelling ctx does.
func (e *ParallelExecutor) Execute(ctx context.Context, tasks []EvalTask) []EvalResult {
	results := make([]EvalResult, len(tasks))
	g, ctx := errgroup.WithContext(ctx)

	for i, task := range tasks {
		g.Go(func() error {
			results[i] = e.run(ctx, task)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (e *ParallelExecutor) run(ctx context.Context, task EvalTask) EvalResult {
	result := EvalResult{Name: task.Name}

	thread, err := e.pool.Get(ctx, task.Name)
	if err != nil {
		result.Error = err
		return result
	}
	defer e.pool.Put(thread)

	cfg := e.cfg
	cfg.Thread = thread
	cfg.Name = task.Name
	if task.Configure != nil {
		task.Configure(&cfg)
	}
	rt := NewRuntime(cfg)

	result.Value, result.Error = task.Run(ctx, rt)
	if err := rt.Close(); result.Error == nil {
		result.Error = err
	}
	return result
}

// EvalTask represents a single unit of work for the executor.
type EvalTask struct {
	Name string // Identifier for this task (used for error reporting)
	// Configure adjusts the runtime configuration for this task.
	Configure func(*Config)
	// Run executes the task on a dedicated runtime. The executor closes
	// the runtime afterwards.
	Run func(ctx context.Context, rt *Runtime) (starlark.Value, error)
}

// EvalResult represents the result of an evaluation task.
type EvalResult struct {
	Name  string
	Value starlark.Value
	Error error
}
