// Package errors provides the error taxonomy for codecrew runs. It defines
// sentinel errors, typed errors carrying run context, and classification
// helpers used by the orchestrator to decide whether a failure is contained
// to a single task or aborts the whole run.
//
// # Error Types
//
// Fatal errors abort a run after being recorded in the project state:
//   - AgentNotRegisteredError: a phase needs a collaborator that was never registered
//   - DependencyCycleError: a task batch contains a dependency cycle
//   - DuplicateTaskIDError: a task identifier is already present in the graph
//
// Contained errors are recorded and the run continues:
//   - TaskExecutionError: a single coding task failed
//
// Store-level precondition errors:
//   - UnknownTaskIDError: a lookup for a task identifier that is not in the graph
//   - ValidationError: invalid input (empty IDs, unknown task kinds, unsafe paths)
//
// # Usage
//
//	err := errors.NewAgentNotRegisteredError("reviewer")
//	if errors.Is(err, errors.ErrAgentNotRegistered) { ... }
//
//	var cycle *errors.DependencyCycleError
//	if errors.As(err, &cycle) {
//	    fmt.Println(strings.Join(cycle.Path, " -> "))
//	}
//
//	if errors.IsFatal(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that abort a run.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Orchestration sentinel errors
var (
	// ErrAgentNotRegistered indicates that a phase needs a collaborator role
	// that has no registered handle.
	ErrAgentNotRegistered = New("agent not registered")
	// ErrTaskExecution indicates that a collaborator failed on a single task.
	ErrTaskExecution = New("task execution failed")
)

// Task graph sentinel errors
var (
	// ErrDuplicateTaskID indicates that a task identifier already exists.
	ErrDuplicateTaskID = New("duplicate task id")
	// ErrUnknownTaskID indicates that a task identifier is not in the graph.
	ErrUnknownTaskID = New("unknown task id")
	// ErrDependencyCycle indicates a circular dependency between tasks.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrInvalidTransition indicates a status change the task lifecycle forbids.
	ErrInvalidTransition = New("invalid status transition")
	// ErrDependenciesUnmet indicates an attempt to start a task before all of
	// its dependencies completed.
	ErrDependenciesUnmet = New("dependencies not completed")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// CrewError is the base interface for all codecrew errors.
type CrewError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsFatal returns true if the error must abort the run.
	IsFatal() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
	fatal    bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsFatal returns whether the error aborts the run.
func (e *baseError) IsFatal() bool {
	return e.fatal
}

// -----------------------------------------------------------------------------
// Orchestration Errors
// -----------------------------------------------------------------------------

// AgentNotRegisteredError is returned when a phase runs without the
// collaborator it needs.
//
// Example:
//
//	err := errors.NewAgentNotRegisteredError("planner")
//	fmt.Println(err) // "agent not registered [role=planner]"
type AgentNotRegisteredError struct {
	baseError
	Role string
}

// NewAgentNotRegisteredError creates a new AgentNotRegisteredError.
func NewAgentNotRegisteredError(role string) *AgentNotRegisteredError {
	return &AgentNotRegisteredError{
		baseError: baseError{
			message:  "agent not registered",
			severity: SeverityCritical,
			fatal:    true,
		},
		Role: role,
	}
}

// Error returns the formatted error message.
func (e *AgentNotRegisteredError) Error() string {
	return fmt.Sprintf("agent not registered [role=%s]", e.Role)
}

// Is checks if this error matches the target.
func (e *AgentNotRegisteredError) Is(target error) bool {
	if _, ok := target.(*AgentNotRegisteredError); ok {
		return true
	}
	return target == ErrAgentNotRegistered
}

// TaskExecutionError wraps a collaborator failure for a single task.
// It is contained: the task is marked failed and the run continues.
//
// Example:
//
//	err := errors.NewTaskExecutionError("task-2", cause)
//	fmt.Println(err) // "task execution failed [task=task-2]: <cause>"
type TaskExecutionError struct {
	baseError
	TaskID string
}

// NewTaskExecutionError creates a new TaskExecutionError.
func NewTaskExecutionError(taskID string, cause error) *TaskExecutionError {
	return &TaskExecutionError{
		baseError: baseError{
			message:  "task execution failed",
			cause:    cause,
			severity: SeverityError,
		},
		TaskID: taskID,
	}
}

// Error returns the formatted error message.
func (e *TaskExecutionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("task execution failed [task=%s]: %v", e.TaskID, e.cause)
	}
	return fmt.Sprintf("task execution failed [task=%s]", e.TaskID)
}

// Is checks if this error matches the target.
func (e *TaskExecutionError) Is(target error) bool {
	if _, ok := target.(*TaskExecutionError); ok {
		return true
	}
	return target == ErrTaskExecution
}

// -----------------------------------------------------------------------------
// Task Graph Errors
// -----------------------------------------------------------------------------

// DuplicateTaskIDError is returned when inserting a task whose identifier
// already exists.
type DuplicateTaskIDError struct {
	baseError
	TaskID string
}

// NewDuplicateTaskIDError creates a new DuplicateTaskIDError.
func NewDuplicateTaskIDError(taskID string) *DuplicateTaskIDError {
	return &DuplicateTaskIDError{
		baseError: baseError{
			message:  "duplicate task id",
			severity: SeverityError,
			fatal:    true,
		},
		TaskID: taskID,
	}
}

// Error returns the formatted error message.
func (e *DuplicateTaskIDError) Error() string {
	return fmt.Sprintf("duplicate task id '%s'", e.TaskID)
}

// Is checks if this error matches the target.
func (e *DuplicateTaskIDError) Is(target error) bool {
	if _, ok := target.(*DuplicateTaskIDError); ok {
		return true
	}
	return target == ErrDuplicateTaskID
}

// UnknownTaskIDError is returned by lookups for identifiers not in the graph.
type UnknownTaskIDError struct {
	baseError
	TaskID string
}

// NewUnknownTaskIDError creates a new UnknownTaskIDError.
func NewUnknownTaskIDError(taskID string) *UnknownTaskIDError {
	return &UnknownTaskIDError{
		baseError: baseError{
			message:  "unknown task id",
			severity: SeverityWarning,
		},
		TaskID: taskID,
	}
}

// Error returns the formatted error message.
func (e *UnknownTaskIDError) Error() string {
	return fmt.Sprintf("unknown task id '%s'", e.TaskID)
}

// Is checks if this error matches the target.
func (e *UnknownTaskIDError) Is(target error) bool {
	if _, ok := target.(*UnknownTaskIDError); ok {
		return true
	}
	return target == ErrUnknownTaskID
}

// DependencyCycleError is returned when a task batch would introduce a
// dependency cycle. Path holds one cycle, closed on its first element.
//
// Example:
//
//	err := errors.NewDependencyCycleError([]string{"a", "b", "a"})
//	fmt.Println(err) // "dependency cycle detected: a -> b -> a"
type DependencyCycleError struct {
	baseError
	Path []string
}

// NewDependencyCycleError creates a new DependencyCycleError.
func NewDependencyCycleError(path []string) *DependencyCycleError {
	return &DependencyCycleError{
		baseError: baseError{
			message:  "dependency cycle detected",
			severity: SeverityCritical,
			fatal:    true,
		},
		Path: path,
	}
}

// Error returns the formatted error message.
func (e *DependencyCycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle detected"
	}
	return "dependency cycle detected: " + strings.Join(e.Path, " -> ")
}

// Is checks if this error matches the target.
func (e *DependencyCycleError) Is(target error) bool {
	if _, ok := target.(*DependencyCycleError); ok {
		return true
	}
	return target == ErrDependencyCycle
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("task id cannot be empty")
//	err = err.WithField("id").WithValue("")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
		},
	}
}

// WithField sets the field name that failed validation.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue sets the invalid value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// WithFatal marks the validation failure as aborting the run.
func (e *ValidationError) WithFatal(fatal bool) *ValidationError {
	e.fatal = fatal
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	msg := "validation error"
	if e.Field != "" {
		msg = fmt.Sprintf("validation error [field=%s]", e.Field)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.message)
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsFatal returns true if the error must abort a run. Errors that do not
// implement CrewError are considered fatal: the orchestrator cannot reason
// about them, so it stops rather than guessing.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var crewErr CrewError
	if As(err, &crewErr) {
		return crewErr.IsFatal()
	}
	return true
}

// IsContained returns true if the error is a per-task failure that must not
// escape the development loop.
func IsContained(err error) bool {
	var execErr *TaskExecutionError
	return As(err, &execErr)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement CrewError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var crewErr CrewError
	if As(err, &crewErr) {
		return crewErr.Severity()
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "planning failed")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "write artifact %s", path)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
