package taskgraph

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/codecrew/internal/errors"
)

// Kind classifies the work a task represents.
type Kind string

const (
	KindPlanning      Kind = "planning"
	KindCoding        Kind = "coding"
	KindReview        Kind = "review"
	KindTesting       Kind = "testing"
	KindDocumentation Kind = "documentation"
)

// Kinds returns every task kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindPlanning, KindCoding, KindReview, KindTesting, KindDocumentation}
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds(), k)
}

// ParseKind maps a planner's task type onto a Kind. Besides the canonical
// names it accepts "code_generation", "architecture" and "requirement".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coding", "code_generation":
		return KindCoding, nil
	case "planning", "architecture", "requirement":
		return KindPlanning, nil
	case "review":
		return KindReview, nil
	case "testing":
		return KindTesting, nil
	case "documentation":
		return KindDocumentation, nil
	default:
		return "", errors.NewValidationError("unknown task kind").WithField("kind").WithValue(s)
	}
}

// UnmarshalText lets plan files and snapshots use any accepted kind alias.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k), nil
}

// Status represents the current state of a task.
type Status string

const (
	// StatusPending indicates the task is waiting for its dependencies or a worker.
	StatusPending Status = "pending"

	// StatusInProgress indicates a contributor is executing the task.
	StatusInProgress Status = "in_progress"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the task finished with an error. Failed tasks
	// are kept for audit and are never retried by the store.
	StatusFailed Status = "failed"

	// StatusBlocked indicates an operator hold on a pending task.
	StatusBlocked Status = "blocked"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// rank orders statuses along the forward lifecycle. Pending and blocked share
// the lowest rank.
func (s Status) rank() int {
	switch s {
	case StatusPending, StatusBlocked:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether a task may move from one status to another,
// ignoring dependency state. Statuses only move forward
// (pending -> in_progress -> completed|failed, skipping in_progress is
// allowed) and pending <-> blocked is the single sideways move. A blocked task
// must be released to pending before it can start.
func CanTransition(from, to Status) bool {
	if from.rank() < 0 || to.rank() < 0 || from == to {
		return false
	}
	if from == StatusBlocked {
		return to == StatusPending
	}
	if from == StatusPending && to == StatusBlocked {
		return true
	}
	return to.rank() > from.rank()
}

// Task is a unit of work tracked by the store.
type Task struct {
	ID          string         `json:"id" yaml:"id"`
	Kind        Kind           `json:"kind" yaml:"kind"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Status      Status         `json:"status" yaml:"status,omitempty"`
	Priority    int            `json:"priority" yaml:"priority"`
	DependsOn   []string       `json:"depends_on" yaml:"depends_on,omitempty"`
	AssignedTo  string         `json:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`
	CreatedAt   time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"-"`
	Input       map[string]any `json:"input,omitempty" yaml:"input,omitempty"`
	Result      map[string]any `json:"result,omitempty" yaml:"-"`
}

// Clone returns a copy of t that shares no slices or top-level maps with it.
// Nested values inside Input and Result are shared.
func (t Task) Clone() Task {
	t.DependsOn = slices.Clone(t.DependsOn)
	t.Input = maps.Clone(t.Input)
	t.Result = maps.Clone(t.Result)
	return t
}

// StatusCounts is a snapshot of the store's per-status task counts.
type StatusCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Blocked    int `json:"blocked"`
}
