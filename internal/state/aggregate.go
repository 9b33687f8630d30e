package state

import (
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/codecrew/internal/bus"
)

// Aggregate is the single mutable record of a run.
// All methods are safe for concurrent use via an internal mutex.
type Aggregate struct {
	mu          sync.Mutex
	initialized bool
	state       ProjectState
	now         func() time.Time
}

// NewAggregate creates an uninitialized aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{now: time.Now}
}

// Initialize resets the aggregate for a new run.
func (a *Aggregate) Initialize(runID, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.state = ProjectState{
		RunID:     runID,
		Name:      name,
		Status:    StatusInitializing,
		Artifacts: []Artifact{},
		Reviews:   []ReviewOutcome{},
		Messages:  []bus.Message{},
		Errors:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.initialized = true
}

// mutate runs fn under the lock when the aggregate is initialized.
func (a *Aggregate) mutate(fn func(s *ProjectState)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return
	}
	fn(&a.state)
	a.state.UpdatedAt = a.now()
}

// SetPlan stores a copy of the plan, deriving Dependencies when absent.
func (a *Aggregate) SetPlan(plan *Plan) {
	if plan == nil {
		return
	}
	cp := plan.Clone()
	if cp.Dependencies == nil {
		cp.DeriveDependencies()
	}
	a.mutate(func(s *ProjectState) {
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = a.now()
		}
		s.Plan = cp
	})
}

// AddArtifact stores an artifact, replacing any prior artifact with the same
// path in place.
func (a *Aggregate) AddArtifact(artifact Artifact) {
	a.mutate(func(s *ProjectState) {
		if artifact.CreatedAt.IsZero() {
			artifact.CreatedAt = a.now()
		}
		for i := range s.Artifacts {
			if s.Artifacts[i].Path == artifact.Path {
				s.Artifacts[i] = artifact
				return
			}
		}
		s.Artifacts = append(s.Artifacts, artifact)
	})
}

// AddReview appends a review outcome.
func (a *Aggregate) AddReview(outcome ReviewOutcome) {
	outcome = outcome.Clone()
	a.mutate(func(s *ProjectState) {
		s.Reviews = append(s.Reviews, outcome)
	})
}

// AddMessage appends a message to the message log.
func (a *Aggregate) AddMessage(msg bus.Message) {
	msg = msg.Clone()
	a.mutate(func(s *ProjectState) {
		s.Messages = append(s.Messages, msg)
	})
}

// SetPhase records the phase the run has reached.
func (a *Aggregate) SetPhase(phase string) {
	a.mutate(func(s *ProjectState) {
		s.CurrentPhase = phase
	})
}

// SetProgress records progress, clamped to [0, 100].
func (a *Aggregate) SetProgress(progress float64) {
	a.mutate(func(s *ProjectState) {
		s.Progress = min(max(progress, 0), 100)
	})
}

// SetStatus records the overall run status.
func (a *Aggregate) SetStatus(status Status) {
	a.mutate(func(s *ProjectState) {
		s.Status = status
	})
}

// AddError appends a line to the error log.
func (a *Aggregate) AddError(text string) {
	a.mutate(func(s *ProjectState) {
		s.Errors = append(s.Errors, text)
	})
}

// Snapshot returns a deep copy of the current state, or false when the
// aggregate has not been initialized.
func (a *Aggregate) Snapshot() (ProjectState, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return ProjectState{}, false
	}

	cp := a.state
	cp.Plan = a.state.Plan.Clone()
	cp.Artifacts = slices.Clone(a.state.Artifacts)
	cp.Errors = slices.Clone(a.state.Errors)
	cp.Reviews = make([]ReviewOutcome, len(a.state.Reviews))
	for i, r := range a.state.Reviews {
		cp.Reviews[i] = r.Clone()
	}
	cp.Messages = make([]bus.Message, len(a.state.Messages))
	for i, m := range a.state.Messages {
		cp.Messages[i] = m.Clone()
	}
	return cp, true
}
