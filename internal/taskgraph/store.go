package taskgraph

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/codecrew/internal/errors"
)

// Store manages the tasks of one run with dependency-aware readiness.
// All methods are safe for concurrent use via an internal mutex.
type Store struct {
	mu    sync.Mutex
	tasks map[string]*Task // taskID -> task
	order []string         // task IDs in insertion order
	now   func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		tasks: make(map[string]*Task),
		now:   time.Now,
	}
}

// newFromTasks creates a Store from pre-built task maps and order.
// Used internally for loading persisted state.
func newFromTasks(tasks map[string]*Task, order []string) *Store {
	s := NewStore()
	for _, id := range order {
		if task, ok := tasks[id]; ok {
			s.tasks[id] = task
			s.order = append(s.order, id)
		}
	}
	return s
}

// Add inserts a single task. It is equivalent to AddBatch with one task.
func (s *Store) Add(task Task) error {
	return s.AddBatch([]Task{task})
}

// AddBatch inserts tasks atomically. The batch is rejected, and nothing is
// inserted, when a task has an empty ID or unknown kind, when an ID already
// exists in the store or repeats inside the batch, or when the batch together
// with the existing tasks contains a dependency cycle.
//
// Inserted tasks start pending unless they carry an explicit status; missing
// timestamps are set to the current time.
func (s *Store) AddBatch(tasks []Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tasks) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		if t.ID == "" {
			return errors.NewValidationError("task id cannot be empty").
				WithField("id").WithValue(fmt.Sprintf("batch[%d]", i))
		}
		if !t.Kind.Valid() {
			return errors.NewValidationError(fmt.Sprintf("task %s has unknown kind", t.ID)).
				WithField("kind").WithValue(t.Kind)
		}
		if t.Status != "" && t.Status.rank() < 0 {
			return errors.NewValidationError(fmt.Sprintf("task %s has unknown status", t.ID)).
				WithField("status").WithValue(t.Status)
		}
		if _, exists := s.tasks[t.ID]; exists || seen[t.ID] {
			return errors.NewDuplicateTaskIDError(t.ID)
		}
		seen[t.ID] = true
	}

	if err := s.validateAcyclic(tasks); err != nil {
		return err
	}

	now := s.now()
	for i := range tasks {
		t := tasks[i].Clone()
		if t.Status == "" {
			t.Status = StatusPending
		}
		if t.DependsOn == nil {
			t.DependsOn = []string{}
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
		s.tasks[t.ID] = &t
		s.order = append(s.order, t.ID)
	}
	return nil
}

// Get returns a copy of the task with the given ID and whether it exists.
func (s *Store) Get(taskID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return task.Clone(), true
}

// Lookup is Get for callers that want an UnknownTaskIDError instead of a flag.
func (s *Store) Lookup(taskID string) (Task, error) {
	task, ok := s.Get(taskID)
	if !ok {
		return Task{}, errors.NewUnknownTaskIDError(taskID)
	}
	return task, nil
}

// UpdateStatus moves a task to a new status. An unknown ID is a no-op and
// returns nil: callers obtain IDs from the store itself.
//
// Moving a pending task to in_progress or completed requires every dependency
// to be completed, otherwise ErrDependenciesUnmet is returned. Transitions that
// CanTransition rejects return ErrInvalidTransition. The result payload is
// attached only when the new status is completed or failed.
func (s *Store) UpdateStatus(taskID string, status Status, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	if !CanTransition(task.Status, status) {
		return fmt.Errorf("%w: cannot transition %s from %s to %s",
			errors.ErrInvalidTransition, taskID, task.Status, status)
	}
	if task.Status == StatusPending && (status == StatusInProgress || status == StatusCompleted) {
		if unmet := s.unmetDependencies(task); len(unmet) > 0 {
			return fmt.Errorf("%w: task %s waits on %v", errors.ErrDependenciesUnmet, taskID, unmet)
		}
	}

	task.Status = status
	task.UpdatedAt = s.now()
	if status.IsTerminal() && result != nil {
		task.Result = maps.Clone(result)
	}
	return nil
}

// Assign records the contributor responsible for a task. Unknown IDs are ignored.
func (s *Store) Assign(taskID, contributor string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task, ok := s.tasks[taskID]; ok {
		task.AssignedTo = contributor
		task.UpdatedAt = s.now()
	}
}

// ReadyTasks returns every pending task whose dependencies are all completed,
// ordered by ascending priority with ties broken by insertion order.
func (s *Store) ReadyTasks() []Task {
	return s.ReadyTasksOfKind()
}

// ReadyTasksOfKind returns the ready frontier restricted to the given kinds.
// With no kinds it behaves like ReadyTasks.
func (s *Store) ReadyTasksOfKind(kinds ...Kind) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []*Task
	for _, id := range s.order {
		task := s.tasks[id]
		if len(kinds) > 0 && !slices.Contains(kinds, task.Kind) {
			continue
		}
		if s.isReady(task) {
			ready = append(ready, task)
		}
	}
	sortByPriority(ready)

	out := make([]Task, len(ready))
	for i, task := range ready {
		out[i] = task.Clone()
	}
	return out
}

// Progress returns the completed share of all tasks as a percentage, or 0
// when the store is empty.
func (s *Store) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		return 0
	}
	completed := 0
	for _, task := range s.tasks {
		if task.Status == StatusCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(s.tasks)) * 100
}

// Tasks returns copies of all tasks in insertion order.
func (s *Store) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Clone())
	}
	return out
}

// Len returns the number of tasks in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Status returns a snapshot of the current per-status counts.
func (s *Store) Status() StatusCounts {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c StatusCounts
	c.Total = len(s.tasks)
	for _, task := range s.tasks {
		switch task.Status {
		case StatusPending:
			c.Pending++
		case StatusInProgress:
			c.InProgress++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		case StatusBlocked:
			c.Blocked++
		}
	}
	return c
}
