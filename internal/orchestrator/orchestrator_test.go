package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/Iron-Ham/codecrew/internal/bus"
	"github.com/Iron-Ham/codecrew/internal/errors"
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, *memWriter) {
	t.Helper()
	w := newMemWriter()
	opts = append([]Option{WithWriter(w), WithRunIDFunc(func() string { return "run-1" })}, opts...)
	return New(opts...), w
}

func mustRegister(t *testing.T, o *Orchestrator, role Role, handle any) {
	t.Helper()
	if err := o.Register(role, handle); err != nil {
		t.Fatalf("Register(%s): %v", role, err)
	}
}

func TestRun_ContainedTaskFailure(t *testing.T) {
	o, w := newTestOrchestrator(t)
	coder := &fakeCoder{fail: map[string]error{"task-2": errors.New("generator exploded")}}
	mustRegister(t, o, RolePlanner, planOf(
		codingTask("task-1", 1),
		codingTask("task-2", 2),
		codingTask("task-3", 3),
	))
	mustRegister(t, o, RoleCoder, coder)
	mustRegister(t, o, RoleReviewer, &fakeReviewer{})

	snap, err := o.Run(context.Background(), "build it", "/out")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(snap.Errors) != 1 {
		t.Fatalf("Errors = %v, want exactly one entry", snap.Errors)
	}
	if want := "task task-2 failed: generator exploded"; snap.Errors[0] != want {
		t.Errorf("Errors[0] = %q, want %q", snap.Errors[0], want)
	}

	var paths []string
	for _, a := range snap.Artifacts {
		paths = append(paths, a.Path)
	}
	if !slices.Equal(paths, []string{"src/task-1.go", "src/task-3.go"}) {
		t.Errorf("artifact paths = %v, want task-1 and task-3 only", paths)
	}

	task2, _ := o.Store().Get("task-2")
	if task2.Status != taskgraph.StatusFailed {
		t.Errorf("task-2 status = %s, want failed", task2.Status)
	}
	if task1, _ := o.Store().Get("task-1"); task1.Result["files"] == nil {
		t.Errorf("task-1 result = %v, want files", task1.Result)
	}

	if snap.CurrentPhase != PhaseCompleted.String() {
		t.Errorf("CurrentPhase = %q, want %q", snap.CurrentPhase, PhaseCompleted)
	}
	if snap.Status != state.StatusCompleted {
		t.Errorf("Status = %s, want completed", snap.Status)
	}
	if o.CurrentPhase() != PhaseCompleted {
		t.Errorf("machine phase = %s, want completed", o.CurrentPhase())
	}
	if !slices.Equal(coder.Calls(), []string{"task-1", "task-2", "task-3"}) {
		t.Errorf("dispatch order = %v, want priority order", coder.Calls())
	}
	if len(w.files) != 2 {
		t.Errorf("written files = %d, want 2", len(w.files))
	}
	if len(snap.Reviews) != 2 {
		t.Errorf("Reviews = %d, want 2", len(snap.Reviews))
	}
	// 3 of 5 tasks completed plus both pipeline tasks: task-1, task-3, review, output.
	if snap.Progress != 80 {
		t.Errorf("Progress = %v, want 80", snap.Progress)
	}
}

func TestRun_CoderPanicIsContained(t *testing.T) {
	dispatchers := map[string]Dispatcher{
		"sequential": SequentialDispatcher{},
		"pool":       PoolDispatcher{MaxParallel: 3},
	}
	for name, d := range dispatchers {
		t.Run(name, func(t *testing.T) {
			o, w := newTestOrchestrator(t, WithDispatcher(d))
			coder := &fakeCoder{before: func(task taskgraph.Task) {
				if task.ID == "task-2" {
					panic("generator exploded")
				}
			}}
			mustRegister(t, o, RolePlanner, planOf(
				codingTask("task-1", 1),
				codingTask("task-2", 2),
				codingTask("task-3", 3),
			))
			mustRegister(t, o, RoleCoder, coder)
			mustRegister(t, o, RoleReviewer, &fakeReviewer{})

			snap, err := o.Run(context.Background(), "build it", "/out")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if want := []string{"task task-2 failed: coder panicked: generator exploded"}; !slices.Equal(snap.Errors, want) {
				t.Errorf("Errors = %v, want %v", snap.Errors, want)
			}
			task2, _ := o.Store().Get("task-2")
			if task2.Status != taskgraph.StatusFailed {
				t.Errorf("task-2 status = %s, want failed", task2.Status)
			}
			if snap.Status != state.StatusCompleted {
				t.Errorf("Status = %s, want completed", snap.Status)
			}
			if len(w.files) != 2 {
				t.Errorf("written = %d, want 2", len(w.files))
			}
		})
	}
}

func TestRun_MissingReviewerWithArtifacts(t *testing.T) {
	o, w := newTestOrchestrator(t)
	mustRegister(t, o, RolePlanner, planOf(codingTask("task-1", 1)))
	mustRegister(t, o, RoleCoder, &fakeCoder{})

	snap, err := o.Run(context.Background(), "build it", "/out")

	if !errors.Is(err, errors.ErrAgentNotRegistered) {
		t.Fatalf("Run error = %v, want ErrAgentNotRegistered", err)
	}
	var anr *errors.AgentNotRegisteredError
	if !errors.As(err, &anr) || anr.Role != string(RoleReviewer) {
		t.Errorf("error role = %v, want reviewer", err)
	}
	if !slices.Contains(snap.Errors, err.Error()) {
		t.Errorf("Errors = %v, want to contain %q", snap.Errors, err.Error())
	}
	if len(snap.Reviews) != 0 {
		t.Errorf("Reviews = %v, want none", snap.Reviews)
	}
	if snap.Status != state.StatusFailed {
		t.Errorf("Status = %s, want failed", snap.Status)
	}
	if snap.CurrentPhase != PhaseReview.String() {
		t.Errorf("CurrentPhase = %q, want last phase reached (review)", snap.CurrentPhase)
	}
	if o.CurrentPhase() != PhaseFailed {
		t.Errorf("machine phase = %s, want failed", o.CurrentPhase())
	}
	if len(w.files) != 0 {
		t.Errorf("files written after abort: %v", w.files)
	}
	if len(snap.Artifacts) != 1 {
		t.Errorf("completed development work lost: artifacts = %d", len(snap.Artifacts))
	}
}

func TestRun_ReviewSkippedWithoutArtifacts(t *testing.T) {
	rep := newCaptureReporter()
	o, w := newTestOrchestrator(t, WithReporter(rep))
	mustRegister(t, o, RolePlanner, planOf())
	mustRegister(t, o, RoleCoder, &fakeCoder{})

	snap, err := o.Run(context.Background(), "nothing to do", "/out")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if snap.CurrentPhase != PhaseCompleted.String() || snap.Status != state.StatusCompleted {
		t.Errorf("phase/status = %s/%s, want completed/completed", snap.CurrentPhase, snap.Status)
	}
	if len(snap.Errors) != 0 {
		t.Errorf("Errors = %v, want none", snap.Errors)
	}
	if !rep.skipped {
		t.Error("reporter was not told the review was skipped")
	}
	if len(w.files) != 0 {
		t.Errorf("files written = %v, want none", w.files)
	}
	if review, _ := o.Store().Get(PipelineReviewTaskID); review.Status != taskgraph.StatusCompleted {
		t.Errorf("pipeline review status = %s, want completed", review.Status)
	}
}

func TestRun_MissingPlanner(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	mustRegister(t, o, RoleCoder, &fakeCoder{})

	snap, err := o.Run(context.Background(), "req", "/out")

	if !errors.Is(err, errors.ErrAgentNotRegistered) {
		t.Fatalf("Run error = %v, want ErrAgentNotRegistered", err)
	}
	if snap.CurrentPhase != PhasePlanning.String() {
		t.Errorf("CurrentPhase = %q, want planning", snap.CurrentPhase)
	}
	if len(snap.Errors) != 1 || !strings.Contains(snap.Errors[0], "planner") {
		t.Errorf("Errors = %v, want the missing planner", snap.Errors)
	}
	history := o.PhaseHistory()
	if len(history) != 2 || history[1].To != PhaseFailed || history[1].Reason == "" {
		t.Errorf("PhaseHistory() = %+v, want planning then failed with reason", history)
	}
}

func TestRun_FatalPlanningErrors(t *testing.T) {
	tests := []struct {
		name    string
		planner *fakePlanner
		want    error
	}{
		{
			name:    "planner error",
			planner: &fakePlanner{err: errors.New("model unavailable")},
		},
		{
			name:    "nil plan",
			planner: &fakePlanner{},
			want:    errors.ErrInvalidInput,
		},
		{
			name:    "dependency cycle",
			planner: planOf(codingTask("a", 1, "b"), codingTask("b", 1, "a")),
			want:    errors.ErrDependencyCycle,
		},
		{
			name:    "duplicate ids",
			planner: planOf(codingTask("a", 1), codingTask("a", 2)),
			want:    errors.ErrDuplicateTaskID,
		},
		{
			name:    "collides with pipeline task",
			planner: planOf(codingTask(PipelineReviewTaskID, 1)),
			want:    errors.ErrDuplicateTaskID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(t)
			coder := &fakeCoder{}
			mustRegister(t, o, RolePlanner, tt.planner)
			mustRegister(t, o, RoleCoder, coder)
			mustRegister(t, o, RoleReviewer, &fakeReviewer{})

			snap, err := o.Run(context.Background(), "req", "/out")
			if err == nil {
				t.Fatal("Run succeeded, want fatal planning error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Run error = %v, want %v", err, tt.want)
			}
			if snap.Status != state.StatusFailed || len(snap.Errors) != 1 {
				t.Errorf("status=%s errors=%v, want failed with one error", snap.Status, snap.Errors)
			}
			if len(coder.Calls()) != 0 {
				t.Errorf("coder called after fatal planning error: %v", coder.Calls())
			}
		})
	}
}

func TestRun_MissingCoder(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	mustRegister(t, o, RolePlanner, planOf(codingTask("a", 1)))

	snap, err := o.Run(context.Background(), "req", "/out")
	if !errors.Is(err, errors.ErrAgentNotRegistered) {
		t.Fatalf("Run error = %v, want ErrAgentNotRegistered", err)
	}
	if snap.CurrentPhase != PhaseDevelopment.String() {
		t.Errorf("CurrentPhase = %q, want development", snap.CurrentPhase)
	}
	if snap.Plan == nil {
		t.Error("plan from the completed planning phase was lost")
	}
}

func TestRun_ReviewerError(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	mustRegister(t, o, RolePlanner, planOf(codingTask("a", 1)))
	mustRegister(t, o, RoleCoder, &fakeCoder{})
	mustRegister(t, o, RoleReviewer, &fakeReviewer{err: errors.New("linter crashed")})

	snap, err := o.Run(context.Background(), "req", "/out")
	if err == nil || !strings.Contains(err.Error(), "linter crashed") {
		t.Fatalf("Run error = %v, want reviewer failure", err)
	}
	if snap.CurrentPhase != PhaseReview.String() {
		t.Errorf("CurrentPhase = %q, want review", snap.CurrentPhase)
	}
}

func TestRun_DependencyOrdering(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	coder := &fakeCoder{}
	mustRegister(t, o, RolePlanner, planOf(
		taskgraph.Task{ID: "arch", Kind: taskgraph.KindPlanning, Title: "Architecture"},
		codingTask("api", 1, "models"),
		codingTask("models", 5, "arch"),
		taskgraph.Task{ID: "docs", Kind: taskgraph.KindDocumentation, Priority: 1, DependsOn: []string{"api"}},
		taskgraph.Task{ID: "tests", Kind: taskgraph.KindTesting, Priority: 2, DependsOn: []string{"models"}},
		taskgraph.Task{ID: "qa", Kind: taskgraph.KindReview, DependsOn: []string{"api"}},
	))
	mustRegister(t, o, RoleCoder, coder)
	mustRegister(t, o, RoleReviewer, &fakeReviewer{})

	if _, err := o.Run(context.Background(), "req", "/out"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Waves: [models], [api tests], [docs].
	want := []string{"models", "api", "tests", "docs"}
	if got := coder.Calls(); !slices.Equal(got, want) {
		t.Errorf("dispatch order = %v, want %v", got, want)
	}
	for _, id := range []string{"arch", "qa", PipelineReviewTaskID, PipelineOutputTaskID} {
		task, _ := o.Store().Get(id)
		if task.Status != taskgraph.StatusCompleted {
			t.Errorf("%s status = %s, want completed", id, task.Status)
		}
	}
	if got := o.Store().Progress(); got != 100 {
		t.Errorf("Progress() = %v, want 100", got)
	}
}

func TestRun_FailedDependencyStrandsDependents(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	coder := &fakeCoder{fail: map[string]error{"base": errors.New("boom")}}
	mustRegister(t, o, RolePlanner, planOf(
		codingTask("base", 1),
		codingTask("child", 1, "base"),
		codingTask("missing-dep", 1, "ghost"),
		codingTask("free", 2),
	))
	mustRegister(t, o, RoleCoder, coder)
	mustRegister(t, o, RoleReviewer, &fakeReviewer{})

	snap, err := o.Run(context.Background(), "req", "/out")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := coder.Calls(); !slices.Equal(got, []string{"base", "free"}) {
		t.Errorf("dispatched = %v, want [base free]", got)
	}
	for _, id := range []string{"child", "missing-dep"} {
		task, _ := o.Store().Get(id)
		if task.Status != taskgraph.StatusPending {
			t.Errorf("%s status = %s, want pending", id, task.Status)
		}
	}
	if snap.Status != state.StatusCompleted || len(snap.Errors) != 1 {
		t.Errorf("status=%s errors=%v, want completed with one error", snap.Status, snap.Errors)
	}
}

func TestRun_OutputPhase(t *testing.T) {
	t.Run("rejects escaping paths before writing", func(t *testing.T) {
		o, w := newTestOrchestrator(t)
		coder := &escapingCoder{paths: []string{"ok.txt", "../evil.txt"}}
		mustRegister(t, o, RolePlanner, planOf(codingTask("a", 1)))
		mustRegister(t, o, RoleCoder, coder)
		mustRegister(t, o, RoleReviewer, &fakeReviewer{})

		snap, err := o.Run(context.Background(), "req", "/out")
		if !errors.Is(err, errors.ErrInvalidInput) {
			t.Fatalf("Run error = %v, want ErrInvalidInput", err)
		}
		if len(w.files) != 0 {
			t.Errorf("files written = %v, want none", w.files)
		}
		if snap.CurrentPhase != PhaseOutput.String() {
			t.Errorf("CurrentPhase = %q, want output", snap.CurrentPhase)
		}
		if task, _ := o.Store().Get(PipelineOutputTaskID); task.Status != taskgraph.StatusFailed {
			t.Errorf("pipeline output status = %s, want failed", task.Status)
		}
	})

	t.Run("write failure keeps earlier writes", func(t *testing.T) {
		o, w := newTestOrchestrator(t)
		w.failOn = "src/b.go"
		mustRegister(t, o, RolePlanner, planOf(codingTask("a", 1), codingTask("b", 2), codingTask("c", 3)))
		mustRegister(t, o, RoleCoder, &fakeCoder{})
		mustRegister(t, o, RoleReviewer, &fakeReviewer{})

		snap, err := o.Run(context.Background(), "req", "/out")
		if err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Fatalf("Run error = %v, want write failure", err)
		}
		if !slices.Equal(w.order, []string{"/out/src/a.go"}) {
			t.Errorf("written = %v, want only /out/src/a.go", w.order)
		}
		if snap.Status != state.StatusFailed {
			t.Errorf("Status = %s, want failed", snap.Status)
		}
	})

	t.Run("missing writer", func(t *testing.T) {
		o := New()
		mustRegister(t, o, RolePlanner, planOf(codingTask("a", 1)))
		mustRegister(t, o, RoleCoder, &fakeCoder{})
		mustRegister(t, o, RoleReviewer, &fakeReviewer{})

		_, err := o.Run(context.Background(), "req", "/out")
		var anr *errors.AgentNotRegisteredError
		if !errors.As(err, &anr) || anr.Role != "writer" {
			t.Errorf("Run error = %v, want writer not registered", err)
		}
	})

	t.Run("saves audit snapshot", func(t *testing.T) {
		dest := t.TempDir()
		o, _ := newTestOrchestrator(t, WithAuditDir(".codecrew"))
		mustRegister(t, o, RolePlanner, planOf(codingTask("a", 1)))
		mustRegister(t, o, RoleCoder, &fakeCoder{})
		mustRegister(t, o, RoleReviewer, &fakeReviewer{})

		if _, err := o.Run(context.Background(), "req", dest); err != nil {
			t.Fatalf("Run: %v", err)
		}
		loaded, err := taskgraph.LoadSnapshot(filepath.Join(dest, ".codecrew"))
		if err != nil {
			t.Fatalf("LoadSnapshot: %v", err)
		}
		if loaded.Len() != 3 {
			t.Errorf("snapshot tasks = %d, want 3", loaded.Len())
		}
		if _, err := os.Stat(filepath.Join(dest, ".codecrew", taskgraph.SnapshotFileName)); err != nil {
			t.Errorf("snapshot file missing: %v", err)
		}
	})
}

type escapingCoder struct {
	paths []string
}

func (c *escapingCoder) GenerateCode(context.Context, taskgraph.Task, state.ProjectState) ([]state.Artifact, error) {
	var out []state.Artifact
	for _, p := range c.paths {
		out = append(out, state.Artifact{Path: p, Content: "x"})
	}
	return out, nil
}

func TestRun_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o, _ := newTestOrchestrator(t)
	coder := &fakeCoder{before: func(taskgraph.Task) { cancel() }}
	mustRegister(t, o, RolePlanner, planOf(codingTask("a", 1), codingTask("b", 2)))
	mustRegister(t, o, RoleCoder, coder)
	mustRegister(t, o, RoleReviewer, &fakeReviewer{})

	snap, err := o.Run(ctx, "req", "/out")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if got := coder.Calls(); !slices.Equal(got, []string{"a"}) {
		t.Errorf("dispatched = %v, want only a before cancellation", got)
	}
	if snap.Status != state.StatusFailed {
		t.Errorf("Status = %s, want failed", snap.Status)
	}
}

// cancelingWriter cancels the run after its first write.
type cancelingWriter struct {
	cancel context.CancelFunc
	writes int
}

func (w *cancelingWriter) WriteArtifact(context.Context, string, string, string) error {
	w.writes++
	w.cancel()
	return nil
}

func TestRun_OutputCancellationFailsOutputTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &cancelingWriter{cancel: cancel}
	o, _ := newTestOrchestrator(t, WithWriter(w))
	mustRegister(t, o, RolePlanner, planOf(codingTask("a", 1), codingTask("b", 2)))
	mustRegister(t, o, RoleCoder, &fakeCoder{})
	mustRegister(t, o, RoleReviewer, &fakeReviewer{})

	_, err := o.Run(ctx, "req", "/out")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if w.writes != 1 {
		t.Errorf("writes = %d, want 1", w.writes)
	}
	task, ok := o.Store().Get(PipelineOutputTaskID)
	if !ok || task.Status != taskgraph.StatusFailed {
		t.Errorf("%s status = %s, want failed", PipelineOutputTaskID, task.Status)
	}
}

func TestDevelopmentWave_ExcludesPipelineTasks(t *testing.T) {
	store := taskgraph.NewStore()
	tasks := append(pipelineTasks(), codingTask("task-1", 1))
	if err := store.AddBatch(tasks); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	if err := store.UpdateStatus(PipelineReviewTaskID, taskgraph.StatusCompleted, nil); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	var ids []string
	for _, task := range developmentWave(store) {
		ids = append(ids, task.ID)
	}
	if !slices.Equal(ids, []string{"task-1"}) {
		t.Errorf("developmentWave = %v, want [task-1]", ids)
	}
}

func TestRun_MessagesAndReporter(t *testing.T) {
	rep := newCaptureReporter()
	o, _ := newTestOrchestrator(t, WithReporter(rep))
	coder := &receivingCoder{}
	coder.fail = map[string]error{"b": errors.New("nope")}
	mustRegister(t, o, RolePlanner, planOf(codingTask("a", 1), codingTask("b", 2)))
	mustRegister(t, o, RoleCoder, coder)
	mustRegister(t, o, RoleReviewer, &fakeReviewer{})

	snap, err := o.Run(context.Background(), "req", "/out")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(coder.messages) != 2 {
		t.Fatalf("coder received %d messages, want 2 assignments", len(coder.messages))
	}
	for _, m := range coder.messages {
		if m.Kind != bus.KindAssignment || m.Receiver != string(RoleCoder) {
			t.Errorf("coder got %s to %s, want assignment to coder", m.Kind, m.Receiver)
		}
	}

	count := map[bus.Kind]int{}
	for _, m := range snap.Messages {
		count[m.Kind]++
	}
	want := map[bus.Kind]int{
		bus.KindStatusUpdate: 4, // development, review, output, completed
		bus.KindAssignment:   2,
		bus.KindSubmission:   1,
		bus.KindError:        1,
		bus.KindReviewResult: 1,
		bus.KindCompletion:   1,
	}
	for k, n := range want {
		if count[k] != n {
			t.Errorf("messages of kind %s = %d, want %d", k, count[k], n)
		}
	}
	if len(snap.Messages) != len(o.Bus().History()) {
		t.Errorf("message log has %d entries, bus history %d", len(snap.Messages), len(o.Bus().History()))
	}

	wantPhases := []string{
		"->planning",
		"planning->development",
		"development->review",
		"review->output",
		"output->completed",
	}
	if !slices.Equal(rep.phases, wantPhases) {
		t.Errorf("reported phases = %v, want %v", rep.phases, wantPhases)
	}
	if !slices.Equal(rep.started, []string{"a", "b"}) {
		t.Errorf("started = %v, want [a b]", rep.started)
	}
	if rep.finished["a"] != nil || !errors.Is(rep.finished["b"], errors.ErrTaskExecution) {
		t.Errorf("finished = %v, want a ok and b TaskExecutionError", rep.finished)
	}
	if rep.runEnds != 1 || rep.finalErr != nil {
		t.Errorf("RunFinished calls=%d err=%v, want 1/nil", rep.runEnds, rep.finalErr)
	}
}

func TestRun_PoolDispatcher(t *testing.T) {
	var tasks []taskgraph.Task
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8"} {
		tasks = append(tasks, codingTask(id, 1))
	}
	tasks = append(tasks, codingTask("final", 1, "t1", "t8"))

	o, w := newTestOrchestrator(t, WithDispatcher(NewDispatcher(3)))
	coder := &fakeCoder{}
	mustRegister(t, o, RolePlanner, planOf(tasks...))
	mustRegister(t, o, RoleCoder, coder)
	mustRegister(t, o, RoleReviewer, &fakeReviewer{})

	snap, err := o.Run(context.Background(), "req", "/out")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	calls := coder.Calls()
	if len(calls) != 9 || calls[len(calls)-1] != "final" {
		t.Errorf("calls = %v, want all 9 with final last", calls)
	}
	if len(snap.Artifacts) != 9 || len(w.files) != 9 {
		t.Errorf("artifacts=%d written=%d, want 9/9", len(snap.Artifacts), len(w.files))
	}
}

func TestRun_RerunResetsState(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	mustRegister(t, o, RolePlanner, planOf(codingTask("a", 1)))
	mustRegister(t, o, RoleCoder, &fakeCoder{})
	mustRegister(t, o, RoleReviewer, &fakeReviewer{})

	for i := 0; i < 2; i++ {
		snap, err := o.Run(context.Background(), "req", "/out")
		if err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
		if len(snap.Artifacts) != 1 || o.Store().Len() != 3 {
			t.Errorf("Run #%d: artifacts=%d tasks=%d, want 1/3", i+1, len(snap.Artifacts), o.Store().Len())
		}
	}
}
