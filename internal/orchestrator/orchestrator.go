// Package orchestrator drives a run through its phases: planning,
// development, review and output.
//
// The [Orchestrator] owns the task graph and project state of the current
// run. Collaborators are installed with [Orchestrator.Register] and invoked
// one phase at a time. Failures inside a single development task are
// contained: the task is marked failed, the error is logged in the project
// state, and the run continues. Every other failure is fatal: it is recorded,
// the state machine moves to [PhaseFailed], and [Orchestrator.Run] returns the
// partial project state together with the error.
package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/codecrew/internal/bus"
	"github.com/Iron-Ham/codecrew/internal/errors"
	"github.com/Iron-Ham/codecrew/internal/logging"
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

// Sender is the sender name on messages the orchestrator publishes.
const Sender = "orchestrator"

// IDs of the tasks the orchestrator adds to every plan.
const (
	PipelineReviewTaskID = "pipeline-review"
	PipelineOutputTaskID = "pipeline-output"
)

// DefaultProjectName is used when WithName is not given.
const DefaultProjectName = "generated_project"

// developmentKinds are the task kinds dispatched to the coder.
var developmentKinds = []taskgraph.Kind{taskgraph.KindCoding, taskgraph.KindTesting, taskgraph.KindDocumentation}

// developmentWave returns the ready tasks the coder should run next. The
// pipeline tasks are driven by their own phases and never reach the coder.
func developmentWave(store *taskgraph.Store) []taskgraph.Task {
	return slices.DeleteFunc(store.ReadyTasksOfKind(developmentKinds...), func(t taskgraph.Task) bool {
		return isPipelineTask(t.ID)
	})
}

func isPipelineTask(id string) bool {
	return id == PipelineReviewTaskID || id == PipelineOutputTaskID
}

// Orchestrator coordinates collaborators through the phases of a run.
// A single Orchestrator runs one requirement at a time.
type Orchestrator struct {
	mu     sync.Mutex
	agents map[Role]registration

	bus        *bus.Bus
	logger     *logging.Logger
	reporter   Reporter
	dispatcher Dispatcher
	writer     ArtifactWriter
	auditDir   string
	name       string
	newRunID   func() string
	now        func() time.Time

	running atomic.Bool
	store   *taskgraph.Store
	agg     *state.Aggregate
	machine *phaseMachine
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBus sets the notification bus. By default a private bus is created.
func WithBus(b *bus.Bus) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.bus = b
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithDispatcher sets how development waves are executed.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) {
		if d != nil {
			o.dispatcher = d
		}
	}
}

// WithWriter sets the artifact writer used by the output phase.
func WithWriter(w ArtifactWriter) Option {
	return func(o *Orchestrator) {
		o.writer = w
	}
}

// WithAuditDir makes the output phase save a task graph snapshot in dir.
// A relative dir is resolved against the run's destination root.
func WithAuditDir(dir string) Option {
	return func(o *Orchestrator) {
		o.auditDir = dir
	}
}

// WithName sets the project display name.
func WithName(name string) Option {
	return func(o *Orchestrator) {
		if name != "" {
			o.name = name
		}
	}
}

// WithRunIDFunc overrides run ID generation.
func WithRunIDFunc(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newRunID = fn
		}
	}
}

// New creates an Orchestrator with no collaborators registered.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		agents:     make(map[Role]registration),
		logger:     logging.NopLogger(),
		reporter:   NopReporter{},
		dispatcher: SequentialDispatcher{},
		name:       DefaultProjectName,
		newRunID:   func() string { return uuid.New().String() },
		now:        time.Now,
		store:      taskgraph.NewStore(),
		agg:        state.NewAggregate(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bus == nil {
		o.bus = bus.New(bus.WithLogger(o.logger))
	}
	o.machine = newPhaseMachine(o.now)

	// Every message on the bus lands in the project state's message log.
	o.bus.Subscribe(bus.Broadcast, func(msg bus.Message) {
		o.currentAggregate().AddMessage(msg)
	})
	return o
}

// Bus returns the notification bus.
func (o *Orchestrator) Bus() *bus.Bus {
	return o.bus
}

// Store returns the task graph of the current or most recent run.
func (o *Orchestrator) Store() *taskgraph.Store {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store
}

// CurrentPhase returns the phase of the current or most recent run.
func (o *Orchestrator) CurrentPhase() Phase {
	return o.machine.phase()
}

// PhaseHistory returns the phase transitions of the current or most recent run.
func (o *Orchestrator) PhaseHistory() []PhaseTransition {
	return o.machine.transitions()
}

// Snapshot returns the project state of the current or most recent run.
func (o *Orchestrator) Snapshot() (state.ProjectState, bool) {
	return o.currentAggregate().Snapshot()
}

func (o *Orchestrator) currentAggregate() *state.Aggregate {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.agg
}

// run carries the per-run context shared by the phases.
type run struct {
	id          string
	requirement string
	destRoot    string
	store       *taskgraph.Store
	agg         *state.Aggregate
	logger      *logging.Logger
}

// Run executes requirement through every phase and writes the artifacts
// under destRoot. On success the final project state is returned. On a fatal
// error the partial project state is returned together with the error; its
// Errors always contain the error text and CurrentPhase is the last phase
// reached. Cancelling ctx is fatal.
func (o *Orchestrator) Run(ctx context.Context, requirement, destRoot string) (state.ProjectState, error) {
	if !o.running.CompareAndSwap(false, true) {
		return state.ProjectState{}, errors.New("orchestrator: a run is already in progress")
	}
	defer o.running.Store(false)

	r := &run{
		id:          o.newRunID(),
		requirement: requirement,
		destRoot:    destRoot,
		store:       taskgraph.NewStore(),
		agg:         state.NewAggregate(),
	}
	r.logger = o.logger.WithRun(r.id)

	o.mu.Lock()
	o.store = r.store
	o.agg = r.agg
	o.mu.Unlock()

	r.agg.Initialize(r.id, o.name)
	r.agg.SetStatus(state.StatusRunning)
	o.machine.start()
	r.agg.SetPhase(PhasePlanning.String())
	o.reporter.PhaseChanged("", PhasePlanning)
	r.logger.Info("run started", "destination", destRoot)

	phases := []struct {
		phase Phase
		exec  func(context.Context, *run) error
	}{
		{PhasePlanning, o.runPlanning},
		{PhaseDevelopment, o.runDevelopment},
		{PhaseReview, o.runReview},
		{PhaseOutput, o.runOutput},
	}

	for i, p := range phases {
		if i > 0 {
			if err := o.enter(r, p.phase); err != nil {
				return o.fail(r, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return o.fail(r, errors.Wrapf(err, "%s phase", p.phase))
		}
		if err := p.exec(ctx, r); err != nil {
			return o.fail(r, err)
		}
	}

	if err := o.enter(r, PhaseCompleted); err != nil {
		return o.fail(r, err)
	}
	r.agg.SetProgress(r.store.Progress())
	r.agg.SetStatus(state.StatusCompleted)

	snap, _ := r.agg.Snapshot()
	o.publish(bus.Message{
		Kind:          bus.KindCompletion,
		Receiver:      bus.Broadcast,
		CorrelationID: r.id,
		Content: map[string]any{
			"artifacts": len(snap.Artifacts),
			"reviews":   len(snap.Reviews),
			"errors":    len(snap.Errors),
			"progress":  snap.Progress,
		},
	})

	snap, _ = r.agg.Snapshot()
	r.logger.Info("run completed",
		"artifacts", len(snap.Artifacts),
		"errors", len(snap.Errors),
		"progress", snap.Progress,
	)
	o.reporter.RunFinished(snap, nil)
	return snap, nil
}

// enter transitions the state machine and mirrors the phase into the
// project state. Failed is never mirrored, see fail.
func (o *Orchestrator) enter(r *run, to Phase) error {
	from, err := o.machine.transition(to, "")
	if err != nil {
		return err
	}
	r.agg.SetPhase(to.String())
	o.publish(bus.Message{
		Kind:          bus.KindStatusUpdate,
		Receiver:      bus.Broadcast,
		CorrelationID: r.id,
		Content:       map[string]any{"from": from.String(), "to": to.String()},
	})
	r.logger.Info("phase changed", "from", from.String(), "to", to.String())
	o.reporter.PhaseChanged(from, to)
	return nil
}

// fail records a fatal error and moves the run to Failed. The project
// state keeps the last phase reached as CurrentPhase and reports the failure
// through its status.
func (o *Orchestrator) fail(r *run, err error) (state.ProjectState, error) {
	phase := o.machine.phase()
	r.agg.AddError(err.Error())
	r.agg.SetProgress(r.store.Progress())
	r.agg.SetStatus(state.StatusFailed)

	if _, terr := o.machine.transition(PhaseFailed, err.Error()); terr != nil {
		r.logger.Error("cannot enter failed phase", "error", terr.Error())
	} else {
		o.reporter.PhaseChanged(phase, PhaseFailed)
	}

	o.publish(bus.Message{
		Kind:          bus.KindError,
		Receiver:      bus.Broadcast,
		CorrelationID: r.id,
		Content: map[string]any{
			"phase": phase.String(),
			"error": err.Error(),
			"fatal": true,
		},
	})

	r.logger.WithPhase(phase.String()).Error("run failed",
		"error", err.Error(),
		"severity", errors.GetSeverity(err).String(),
	)

	snap, _ := r.agg.Snapshot()
	o.reporter.RunFinished(snap, err)
	return snap, err
}

func (o *Orchestrator) publish(msg bus.Message) bus.Message {
	if msg.Sender == "" {
		msg.Sender = Sender
	}
	return o.bus.Publish(msg)
}

// pipelineTasks are appended to every plan. Review has no dependencies so a
// failed development task cannot strand it; output follows review.
func pipelineTasks() []taskgraph.Task {
	return []taskgraph.Task{
		{
			ID:       PipelineReviewTaskID,
			Kind:     taskgraph.KindReview,
			Title:    "Review generated artifacts",
			Priority: 100,
		},
		{
			ID:        PipelineOutputTaskID,
			Kind:      taskgraph.KindDocumentation,
			Title:     "Write artifacts to the destination",
			Priority:  100,
			DependsOn: []string{PipelineReviewTaskID},
		},
	}
}

func taskFailure(taskID string, err error) string {
	return fmt.Sprintf("task %s failed: %v", taskID, err)
}
