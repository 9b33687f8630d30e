package orchestrator

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/codecrew/internal/errors"
)

// Phase represents a discrete stage of a run.
type Phase string

const (
	// PhasePlanning is the initial phase where the requirement is turned
	// into a plan and its tasks are loaded into the task graph.
	PhasePlanning Phase = "planning"

	// PhaseDevelopment dispatches ready coding, testing and documentation
	// tasks to the coder until the ready frontier is empty.
	PhaseDevelopment Phase = "development"

	// PhaseReview hands the produced artifacts to the reviewer.
	PhaseReview Phase = "review"

	// PhaseOutput persists every artifact through the artifact writer.
	PhaseOutput Phase = "output"

	// PhaseCompleted indicates successful completion of all phases.
	PhaseCompleted Phase = "completed"

	// PhaseFailed indicates the run aborted on a fatal error.
	PhaseFailed Phase = "failed"
)

// AllPhases returns all defined phases in lifecycle order.
func AllPhases() []Phase {
	return []Phase{
		PhasePlanning,
		PhaseDevelopment,
		PhaseReview,
		PhaseOutput,
		PhaseCompleted,
		PhaseFailed,
	}
}

// IsTerminal returns true if the phase is a terminal state (Completed or Failed).
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// ValidTransitions defines which phase transitions are allowed.
// Failed is reachable from every non-terminal phase.
var ValidTransitions = map[Phase][]Phase{
	PhasePlanning:    {PhaseDevelopment, PhaseFailed},
	PhaseDevelopment: {PhaseReview, PhaseFailed},
	PhaseReview:      {PhaseOutput, PhaseFailed},
	PhaseOutput:      {PhaseCompleted, PhaseFailed},

	// Terminal states: no transitions out
	PhaseCompleted: {},
	PhaseFailed:    {},
}

// CanTransition checks whether a transition from one phase to another is valid
// according to the ValidTransitions map.
func CanTransition(from, to Phase) bool {
	validTargets, exists := ValidTransitions[from]
	if !exists {
		return false
	}
	return slices.Contains(validTargets, to)
}

// PhaseTransition captures metadata about a single phase transition.
type PhaseTransition struct {
	// From is the source phase. Empty for the initial entry into planning.
	From Phase `json:"from,omitempty"`

	// To is the destination phase.
	To Phase `json:"to"`

	// Timestamp records when the transition occurred.
	Timestamp time.Time `json:"timestamp"`

	// Reason is set for transitions into Failed.
	Reason string `json:"reason,omitempty"`
}

// TransitionError reports a transition the state machine does not allow.
type TransitionError struct {
	From Phase
	To   Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition from %s to %s", e.From, e.To)
}

// Is matches the shared ErrInvalidTransition sentinel.
func (e *TransitionError) Is(target error) bool {
	return target == errors.ErrInvalidTransition
}

// phaseMachine tracks the current phase and its history.
type phaseMachine struct {
	mu      sync.Mutex
	current Phase
	history []PhaseTransition
	now     func() time.Time
}

func newPhaseMachine(now func() time.Time) *phaseMachine {
	return &phaseMachine{now: now}
}

// start enters the initial phase, discarding any previous history.
func (m *phaseMachine) start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = PhasePlanning
	m.history = []PhaseTransition{{To: PhasePlanning, Timestamp: m.now()}}
}

// transition moves to the target phase, returning the phase it left.
func (m *phaseMachine) transition(to Phase, reason string) (Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if !CanTransition(from, to) {
		return from, &TransitionError{From: from, To: to}
	}
	m.current = to
	m.history = append(m.history, PhaseTransition{
		From:      from,
		To:        to,
		Timestamp: m.now(),
		Reason:    reason,
	})
	return from, nil
}

func (m *phaseMachine) phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *phaseMachine) transitions() []PhaseTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}
