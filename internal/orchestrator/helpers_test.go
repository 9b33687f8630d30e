package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/codecrew/internal/bus"
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

type fakePlanner struct {
	plan  *state.Plan
	err   error
	calls atomic.Int32
}

func (p *fakePlanner) CreatePlan(_ context.Context, _ string) (*state.Plan, error) {
	p.calls.Add(1)
	return p.plan, p.err
}

func planOf(tasks ...taskgraph.Task) *fakePlanner {
	return &fakePlanner{plan: &state.Plan{Name: "demo", Tasks: tasks}}
}

func codingTask(id string, priority int, deps ...string) taskgraph.Task {
	return taskgraph.Task{ID: id, Kind: taskgraph.KindCoding, Title: "Build " + id, Priority: priority, DependsOn: deps}
}

// fakeCoder emits one artifact per task named after the task, unless the
// task ID is listed in fail.
type fakeCoder struct {
	mu     sync.Mutex
	fail   map[string]error
	calls  []string
	before func(task taskgraph.Task)

	// messages received through bus.Receiver
	messages []bus.Message
}

func (c *fakeCoder) GenerateCode(_ context.Context, task taskgraph.Task, _ state.ProjectState) ([]state.Artifact, error) {
	if c.before != nil {
		c.before(task)
	}
	c.mu.Lock()
	c.calls = append(c.calls, task.ID)
	err := c.fail[task.ID]
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []state.Artifact{{
		Path:     fmt.Sprintf("src/%s.go", task.ID),
		Content:  "package src\n",
		Language: "go",
	}}, nil
}

func (c *fakeCoder) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type receivingCoder struct {
	fakeCoder
}

func (c *receivingCoder) HandleMessage(msg bus.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

type fakeReviewer struct {
	err   error
	calls atomic.Int32
}

func (r *fakeReviewer) ReviewProject(_ context.Context, snap state.ProjectState) ([]state.ReviewOutcome, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	out := make([]state.ReviewOutcome, 0, len(snap.Artifacts))
	for _, a := range snap.Artifacts {
		out = append(out, state.ReviewOutcome{TargetPath: a.Path, Passed: true, Score: 8})
	}
	return out, nil
}

type memWriter struct {
	mu     sync.Mutex
	files  map[string]string
	order  []string
	failOn string
}

func newMemWriter() *memWriter {
	return &memWriter{files: make(map[string]string)}
}

func (w *memWriter) WriteArtifact(_ context.Context, path, content, destRoot string) error {
	if path == w.failOn {
		return fmt.Errorf("disk full")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	key := destRoot + "/" + path
	w.files[key] = content
	w.order = append(w.order, key)
	return nil
}

type captureReporter struct {
	mu       sync.Mutex
	phases   []string
	started  []string
	finished map[string]error
	skipped  bool
	reviews  int
	finalErr error
	runEnds  int
}

func newCaptureReporter() *captureReporter {
	return &captureReporter{finished: make(map[string]error)}
}

func (r *captureReporter) PhaseChanged(from, to Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, fmt.Sprintf("%s->%s", from, to))
}

func (r *captureReporter) TaskStarted(task taskgraph.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, task.ID)
}

func (r *captureReporter) TaskFinished(task taskgraph.Task, _ []state.Artifact, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[task.ID] = err
}

func (r *captureReporter) ReviewSummary(outcomes []state.ReviewOutcome, skipped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviews = len(outcomes)
	r.skipped = skipped
}

func (r *captureReporter) RunFinished(_ state.ProjectState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalErr = err
	r.runEnds++
}
