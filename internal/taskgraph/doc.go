// Package taskgraph holds the tasks of a single run and answers the question
// "what can run now".
//
// A [Store] owns every [Task] for a run. Tasks declare the IDs they depend on;
// a pending task becomes ready once every one of those IDs resolves to a
// completed task. Dependency IDs that do not exist in the store are treated as
// unmet forever, and a task whose dependency failed stays pending. Both cases
// are reported by [Store.Stranded] rather than silently resolved.
//
// Batches are validated before insertion: duplicate IDs and dependency cycles
// are rejected and nothing from the batch is stored.
//
// Usage:
//
//	store := taskgraph.NewStore()
//	if err := store.AddBatch(plan.Tasks); err != nil {
//	    return err
//	}
//
//	for _, task := range store.ReadyTasks() {
//	    _ = store.UpdateStatus(task.ID, taskgraph.StatusInProgress, nil)
//	    // ... execute task ...
//	    _ = store.UpdateStatus(task.ID, taskgraph.StatusCompleted, result)
//	}
//
// All [Store] methods are safe for concurrent use.
package taskgraph
