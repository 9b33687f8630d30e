package orchestrator

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

func waveOf(ids ...string) []taskgraph.Task {
	wave := make([]taskgraph.Task, 0, len(ids))
	for _, id := range ids {
		wave = append(wave, taskgraph.Task{ID: id, Kind: taskgraph.KindCoding})
	}
	return wave
}

func TestNewDispatcher(t *testing.T) {
	if _, ok := NewDispatcher(0).(SequentialDispatcher); !ok {
		t.Error("NewDispatcher(0) should be sequential")
	}
	if _, ok := NewDispatcher(1).(SequentialDispatcher); !ok {
		t.Error("NewDispatcher(1) should be sequential")
	}
	d, ok := NewDispatcher(4).(PoolDispatcher)
	if !ok || d.MaxParallel != 4 {
		t.Errorf("NewDispatcher(4) = %#v, want PoolDispatcher{4}", d)
	}
}

func TestSequentialDispatcher(t *testing.T) {
	t.Run("runs in order", func(t *testing.T) {
		var got []string
		SequentialDispatcher{}.Dispatch(context.Background(), waveOf("a", "b", "c"), func(_ context.Context, task taskgraph.Task) {
			got = append(got, task.ID)
		})
		if !slices.Equal(got, []string{"a", "b", "c"}) {
			t.Errorf("order = %v, want [a b c]", got)
		}
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var got []string
		SequentialDispatcher{}.Dispatch(ctx, waveOf("a", "b", "c"), func(_ context.Context, task taskgraph.Task) {
			got = append(got, task.ID)
			cancel()
		})
		if !slices.Equal(got, []string{"a"}) {
			t.Errorf("ran = %v, want [a]", got)
		}
	})
}

func TestPoolDispatcher_BoundsConcurrency(t *testing.T) {
	const limit = 3
	var (
		running atomic.Int32
		peak    atomic.Int32
		mu      sync.Mutex
		seen    []string
	)

	PoolDispatcher{MaxParallel: limit}.Dispatch(context.Background(), waveOf("a", "b", "c", "d", "e", "f", "g"),
		func(_ context.Context, task taskgraph.Task) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)

			mu.Lock()
			seen = append(seen, task.ID)
			mu.Unlock()
		})

	if len(seen) != 7 {
		t.Errorf("ran %d tasks, want 7", len(seen))
	}
	if peak.Load() > limit {
		t.Errorf("peak concurrency = %d, want <= %d", peak.Load(), limit)
	}
}

func TestPoolDispatcher_ZeroMeansOne(t *testing.T) {
	var running, peak atomic.Int32
	PoolDispatcher{}.Dispatch(context.Background(), waveOf("a", "b", "c"), func(context.Context, taskgraph.Task) {
		n := running.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
	})
	if peak.Load() != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak.Load())
	}
}
