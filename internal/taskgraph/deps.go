package taskgraph

import (
	"github.com/Iron-Ham/codecrew/internal/errors"
)

// isReady returns true if the task can start: it must be pending and all of
// its dependencies must be in the completed state. Unknown dependency IDs are
// never satisfied.
func (s *Store) isReady(task *Task) bool {
	if task.Status != StatusPending {
		return false
	}
	return len(s.unmetDependencies(task)) == 0
}

// unmetDependencies returns the dependency IDs of task that are not completed.
func (s *Store) unmetDependencies(task *Task) []string {
	var unmet []string
	for _, depID := range task.DependsOn {
		dep, ok := s.tasks[depID]
		if !ok || dep.Status != StatusCompleted {
			unmet = append(unmet, depID)
		}
	}
	return unmet
}

// Stranded returns the pending tasks that can never become ready because a
// dependency failed, is missing, or is itself stranded. Statuses are left
// untouched; this is a diagnostic view.
func (s *Store) Stranded() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	memo := make(map[string]bool, len(s.tasks))
	var stranded func(id string) bool
	stranded = func(id string) bool {
		if v, ok := memo[id]; ok {
			return v
		}
		task, ok := s.tasks[id]
		if !ok || task.Status == StatusFailed {
			memo[id] = true
			return true
		}
		// Cycles are rejected on insert, so this recursion terminates.
		memo[id] = false
		if task.Status != StatusPending && task.Status != StatusBlocked {
			return false
		}
		for _, depID := range task.DependsOn {
			if stranded(depID) {
				memo[id] = true
				return true
			}
		}
		return false
	}

	var out []Task
	for _, id := range s.order {
		task := s.tasks[id]
		if task.Status == StatusPending && stranded(id) {
			out = append(out, task.Clone())
		}
	}
	return out
}

// UnresolvedDependencies maps each task ID to the dependency IDs that do not
// exist in the store. Tasks with no unresolved dependencies are omitted.
func (s *Store) UnresolvedDependencies() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]string)
	for _, id := range s.order {
		for _, depID := range s.tasks[id].DependsOn {
			if _, ok := s.tasks[depID]; !ok {
				out[id] = append(out[id], depID)
			}
		}
	}
	return out
}

// sortByPriority sorts tasks by their priority value (lower first), using
// insertion sort since the slices are typically small. Insertion sort is
// stable, so equal priorities keep insertion order.
func sortByPriority(tasks []*Task) {
	for i := 1; i < len(tasks); i++ {
		key := tasks[i]
		j := i - 1
		for j >= 0 && tasks[j].Priority > key.Priority {
			tasks[j+1] = tasks[j]
			j--
		}
		tasks[j+1] = key
	}
}

// depGraph is the combined dependency graph of the stored tasks plus a
// candidate batch, indexed by insertion position. Edges point from a task to
// the tasks it depends on; edges to unknown IDs are dropped.
type depGraph struct {
	ids   []string
	edges [][]int
}

func (s *Store) buildGraph(batch []Task) depGraph {
	ids := make([]string, 0, len(s.order)+len(batch))
	deps := make([][]string, 0, cap(ids))
	for _, id := range s.order {
		ids = append(ids, id)
		deps = append(deps, s.tasks[id].DependsOn)
	}
	for i := range batch {
		ids = append(ids, batch[i].ID)
		deps = append(deps, batch[i].DependsOn)
	}

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	g := depGraph{ids: ids, edges: make([][]int, len(ids))}
	for i, list := range deps {
		for _, depID := range list {
			if j, ok := index[depID]; ok {
				g.edges[i] = append(g.edges[i], j)
			}
		}
	}
	return g
}

// validateAcyclic proves the combined graph has no cycles using Kahn's
// algorithm. If a cycle exists, one cycle path is extracted deterministically
// for the error.
func (s *Store) validateAcyclic(batch []Task) error {
	g := s.buildGraph(batch)

	// Kahn over the reversed edges: a task is emitted once all of its
	// dependencies have been emitted.
	pending := make([]int, len(g.ids))
	dependents := make([][]int, len(g.ids))
	for i, deps := range g.edges {
		pending[i] = len(deps)
		for _, j := range deps {
			dependents[j] = append(dependents[j], i)
		}
	}

	var queue []int
	for i, n := range pending {
		if n == 0 {
			queue = append(queue, i)
		}
	}
	emitted := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		emitted++
		for _, m := range dependents[n] {
			pending[m]--
			if pending[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	if emitted == len(g.ids) {
		return nil
	}
	return errors.NewDependencyCycleError(g.findCycle())
}

// findCycle runs a DFS in insertion order and returns the first cycle found as
// a closed path of IDs, e.g. [a b a] for "a depends on b depends on a".
func (g depGraph) findCycle() []string {
	const (
		unvisited = iota
		onStack
		done
	)

	state := make([]int, len(g.ids))
	var stack []int
	var cycle []string

	var visit func(u int) bool
	visit = func(u int) bool {
		state[u] = onStack
		stack = append(stack, u)
		for _, v := range g.edges[u] {
			switch state[v] {
			case unvisited:
				if visit(v) {
					return true
				}
			case onStack:
				start := len(stack) - 1
				for stack[start] != v {
					start--
				}
				for _, idx := range stack[start:] {
					cycle = append(cycle, g.ids[idx])
				}
				cycle = append(cycle, g.ids[v])
				return true
			}
		}
		stack = stack[:len(stack)-1]
		state[u] = done
		return false
	}

	for i := range g.ids {
		if state[i] == unvisited && visit(i) {
			break
		}
	}
	return cycle
}
