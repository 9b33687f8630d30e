package orchestrator

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

// TaskFunc executes one task. It records its own outcome; dispatchers only
// decide when and where it runs.
type TaskFunc func(ctx context.Context, task taskgraph.Task)

// Dispatcher runs a wave of ready tasks. Every task in a wave has all of its
// dependencies completed, so the tasks in a wave may run in any order or
// concurrently. Dispatch returns once every started task has finished.
type Dispatcher interface {
	Dispatch(ctx context.Context, wave []taskgraph.Task, run TaskFunc)
}

// SequentialDispatcher runs the wave one task at a time in the order given,
// which is the ready frontier's priority order. Tasks not yet started when
// ctx is cancelled are skipped.
type SequentialDispatcher struct{}

// Dispatch implements Dispatcher.
func (SequentialDispatcher) Dispatch(ctx context.Context, wave []taskgraph.Task, run TaskFunc) {
	for _, task := range wave {
		if ctx.Err() != nil {
			return
		}
		run(ctx, task)
	}
}

// PoolDispatcher runs the wave on a bounded goroutine pool. The task graph
// and project state are mutex-protected, so tasks can finish in any order.
type PoolDispatcher struct {
	// MaxParallel bounds the number of concurrently running tasks.
	// Values below 1 are treated as 1.
	MaxParallel int
}

// Dispatch implements Dispatcher.
func (d PoolDispatcher) Dispatch(ctx context.Context, wave []taskgraph.Task, run TaskFunc) {
	p := pool.New().WithMaxGoroutines(max(d.MaxParallel, 1))
	for _, task := range wave {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			run(ctx, task)
		})
	}
	p.Wait()
}

// NewDispatcher returns the sequential dispatcher for maxParallel <= 1 and a
// pool dispatcher otherwise.
func NewDispatcher(maxParallel int) Dispatcher {
	if maxParallel <= 1 {
		return SequentialDispatcher{}
	}
	return PoolDispatcher{MaxParallel: maxParallel}
}
