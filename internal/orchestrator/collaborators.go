package orchestrator

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/codecrew/internal/bus"
	"github.com/Iron-Ham/codecrew/internal/errors"
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

// Role names a collaborator slot on the orchestrator.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleCoder    Role = "coder"
	RoleReviewer Role = "reviewer"
)

// roleWriter is only used for error reporting; the writer is configured with
// WithWriter rather than registered.
const roleWriter = "writer"

// Roles returns every registrable role.
func Roles() []Role {
	return []Role{RolePlanner, RoleCoder, RoleReviewer}
}

// Planner turns a requirement into a plan. Failure is fatal to the run.
type Planner interface {
	CreatePlan(ctx context.Context, requirement string) (*state.Plan, error)
}

// Coder produces the artifacts for one task. Failure is contained to the task.
type Coder interface {
	GenerateCode(ctx context.Context, task taskgraph.Task, snap state.ProjectState) ([]state.Artifact, error)
}

// Reviewer grades the artifacts in a snapshot. Failure is fatal to the run.
type Reviewer interface {
	ReviewProject(ctx context.Context, snap state.ProjectState) ([]state.ReviewOutcome, error)
}

// ArtifactWriter persists one artifact under destRoot, creating parent
// directories as needed.
type ArtifactWriter interface {
	WriteArtifact(ctx context.Context, path, content, destRoot string) error
}

// registration is a registered collaborator and its bus subscription.
type registration struct {
	handle         any
	subscriptionID string
}

// Register installs handle under role. The handle must implement the role's
// interface (Planner, Coder or Reviewer), otherwise a ValidationError is
// returned and nothing changes. A handle that also implements bus.Receiver is
// subscribed to messages addressed to the role name. Registering a role again
// replaces the previous handle and its subscription.
func (o *Orchestrator) Register(role Role, handle any) error {
	if handle == nil {
		return errors.NewValidationError("collaborator cannot be nil").WithField("handle").WithValue(role)
	}

	var ok bool
	switch role {
	case RolePlanner:
		_, ok = handle.(Planner)
	case RoleCoder:
		_, ok = handle.(Coder)
	case RoleReviewer:
		_, ok = handle.(Reviewer)
	default:
		return errors.NewValidationError("unknown collaborator role").WithField("role").WithValue(role)
	}
	if !ok {
		return errors.NewValidationError(fmt.Sprintf("%T does not implement the %s interface", handle, role)).
			WithField("handle").WithValue(role)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if prev, exists := o.agents[role]; exists && prev.subscriptionID != "" {
		o.bus.Unsubscribe(prev.subscriptionID)
	}

	reg := registration{handle: handle}
	if recv, isReceiver := handle.(bus.Receiver); isReceiver {
		reg.subscriptionID = o.bus.SubscribeReceiver(string(role), recv)
	}
	o.agents[role] = reg
	o.logger.Debug("collaborator registered", "role", string(role), "type", fmt.Sprintf("%T", handle))
	return nil
}

// Registered reports whether a collaborator is installed for role.
func (o *Orchestrator) Registered(role Role) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.agents[role]
	return ok
}

func (o *Orchestrator) collaborator(role Role) (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	reg, ok := o.agents[role]
	return reg.handle, ok
}

func (o *Orchestrator) planner() (Planner, error) {
	h, ok := o.collaborator(RolePlanner)
	if !ok {
		return nil, errors.NewAgentNotRegisteredError(string(RolePlanner))
	}
	return h.(Planner), nil
}

func (o *Orchestrator) coder() (Coder, error) {
	h, ok := o.collaborator(RoleCoder)
	if !ok {
		return nil, errors.NewAgentNotRegisteredError(string(RoleCoder))
	}
	return h.(Coder), nil
}

func (o *Orchestrator) reviewer() (Reviewer, error) {
	h, ok := o.collaborator(RoleReviewer)
	if !ok {
		return nil, errors.NewAgentNotRegisteredError(string(RoleReviewer))
	}
	return h.(Reviewer), nil
}
