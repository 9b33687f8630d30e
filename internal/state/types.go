// Package state holds the single mutable record of a run: the plan, the
// artifacts produced, review outcomes, the message log, phase, progress and
// error log.
//
// All mutation goes through [Aggregate] methods; readers get deep copies via
// [Aggregate.Snapshot]. No operation errors or panics, and every operation is
// a no-op until [Aggregate.Initialize] has been called.
package state

import (
	"maps"
	"slices"
	"time"

	"github.com/Iron-Ham/codecrew/internal/bus"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

// Status is the overall status of a run.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Plan is the planner's output for a requirement.
type Plan struct {
	Name          string              `json:"name" yaml:"name"`
	Description   string              `json:"description,omitempty" yaml:"description,omitempty"`
	Architecture  map[string]any      `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	TechStack     map[string][]string `json:"tech_stack,omitempty" yaml:"tech_stack,omitempty"`
	FileStructure []string            `json:"file_structure,omitempty" yaml:"file_structure,omitempty"`
	Tasks         []taskgraph.Task    `json:"tasks" yaml:"tasks"`
	Dependencies  map[string][]string `json:"dependencies,omitempty" yaml:"-"`
	CreatedAt     time.Time           `json:"created_at" yaml:"-"`
}

// DeriveDependencies rebuilds Dependencies from the tasks' DependsOn lists.
func (p *Plan) DeriveDependencies() {
	p.Dependencies = make(map[string][]string, len(p.Tasks))
	for _, t := range p.Tasks {
		if len(t.DependsOn) > 0 {
			p.Dependencies[t.ID] = slices.Clone(t.DependsOn)
		}
	}
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Architecture = maps.Clone(p.Architecture)
	cp.FileStructure = slices.Clone(p.FileStructure)
	if p.TechStack != nil {
		cp.TechStack = make(map[string][]string, len(p.TechStack))
		for k, v := range p.TechStack {
			cp.TechStack[k] = slices.Clone(v)
		}
	}
	if p.Dependencies != nil {
		cp.Dependencies = make(map[string][]string, len(p.Dependencies))
		for k, v := range p.Dependencies {
			cp.Dependencies[k] = slices.Clone(v)
		}
	}
	if p.Tasks != nil {
		cp.Tasks = make([]taskgraph.Task, len(p.Tasks))
		for i, t := range p.Tasks {
			cp.Tasks[i] = t.Clone()
		}
	}
	return &cp
}

// Artifact is a generated file.
type Artifact struct {
	Path        string    `json:"path"`
	Content     string    `json:"content"`
	Language    string    `json:"language,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// IssueSeverity grades a review finding.
type IssueSeverity string

const (
	IssueError   IssueSeverity = "error"
	IssueWarning IssueSeverity = "warning"
	IssueInfo    IssueSeverity = "info"
)

// Issue is a single review finding. Line is 1-based; 0 means the whole file.
type Issue struct {
	Severity   IssueSeverity `json:"severity"`
	Line       int           `json:"line,omitempty"`
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// ReviewOutcome is the reviewer's verdict on one artifact.
type ReviewOutcome struct {
	TargetPath  string   `json:"target_path"`
	Passed      bool     `json:"passed"`
	Score       float64  `json:"score"`
	Issues      []Issue  `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Clone returns a copy of r with its own slices.
func (r ReviewOutcome) Clone() ReviewOutcome {
	r.Issues = slices.Clone(r.Issues)
	r.Suggestions = slices.Clone(r.Suggestions)
	return r
}

// ProjectState is a point-in-time copy of the aggregate.
type ProjectState struct {
	RunID        string          `json:"run_id"`
	Name         string          `json:"name"`
	Status       Status          `json:"status"`
	Plan         *Plan           `json:"plan,omitempty"`
	Artifacts    []Artifact      `json:"artifacts"`
	Reviews      []ReviewOutcome `json:"reviews"`
	Messages     []bus.Message   `json:"messages"`
	CurrentPhase string          `json:"current_phase"`
	Progress     float64         `json:"progress"`
	Errors       []string        `json:"errors"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Artifact returns the artifact stored at path.
func (s ProjectState) Artifact(path string) (Artifact, bool) {
	for _, a := range s.Artifacts {
		if a.Path == path {
			return a, true
		}
	}
	return Artifact{}, false
}

// PassedReviews returns how many review outcomes passed.
func (s ProjectState) PassedReviews() int {
	n := 0
	for _, r := range s.Reviews {
		if r.Passed {
			n++
		}
	}
	return n
}
