package orchestrator

import (
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

// Reporter receives human-facing progress notifications. Implementations must
// be safe for concurrent use when tasks are dispatched to a pool.
type Reporter interface {
	// PhaseChanged is called after every phase transition.
	PhaseChanged(from, to Phase)

	// TaskStarted is called when a task is handed to the coder.
	TaskStarted(task taskgraph.Task)

	// TaskFinished is called when a task completes or fails. err is nil on success.
	TaskFinished(task taskgraph.Task, artifacts []state.Artifact, err error)

	// ReviewSummary is called with the reviewer's outcomes, or with no
	// outcomes when the review phase was skipped.
	ReviewSummary(outcomes []state.ReviewOutcome, skipped bool)

	// RunFinished is called once per run with the final snapshot.
	RunFinished(snap state.ProjectState, err error)
}

// NopReporter discards all notifications.
type NopReporter struct{}

func (NopReporter) PhaseChanged(Phase, Phase) {}
func (NopReporter) TaskStarted(taskgraph.Task) {}
func (NopReporter) TaskFinished(taskgraph.Task, []state.Artifact, error) {}
func (NopReporter) ReviewSummary([]state.ReviewOutcome, bool) {}
func (NopReporter) RunFinished(state.ProjectState, error) {}
