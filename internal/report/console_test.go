package report

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/codecrew/internal/orchestrator"
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

func TestConsole_NonTerminalIsPlain(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.PhaseChanged("", orchestrator.PhaseDevelopment)
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("output to a buffer contains escape codes: %q", buf.String())
	}
	if c.width != defaultWidth {
		t.Errorf("width = %d, want %d", c.width, defaultWidth)
	}
}

func TestConsole_Events(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, WithoutColor(), WithWidth(100))
	task := taskgraph.Task{ID: "task-1", Kind: taskgraph.KindCoding, Title: "Build models"}

	c.PhaseChanged("", orchestrator.PhasePlanning)
	c.TaskStarted(task)
	c.TaskFinished(task, []state.Artifact{{Path: "a.py"}, {Path: "b.py"}}, nil)
	c.TaskFinished(taskgraph.Task{ID: "task-2"}, nil, errors.New("boom"))
	c.ReviewSummary([]state.ReviewOutcome{
		{TargetPath: "a.py", Passed: true, Score: 8},
		{TargetPath: "b.py", Passed: false, Score: 5.5, Issues: []state.Issue{{Severity: state.IssueError}}},
	}, false)
	c.PhaseChanged(orchestrator.PhaseOutput, orchestrator.PhaseCompleted)

	out := buf.String()
	for _, want := range []string{
		"▸ planning",
		"task-1 [coding] Build models",
		"✓ task-1 2 files",
		"✗ task-2 boom",
		"pass  8.0 a.py",
		"fail  5.5 b.py (1 issue)",
		"1/2 passed",
		"✓ completed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConsole_ReviewSkipped(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf, WithoutColor()).ReviewSummary(nil, true)
	if !strings.Contains(buf.String(), "review skipped") {
		t.Errorf("output = %q, want skipped notice", buf.String())
	}
}

func TestConsole_RunFinished(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, WithoutColor(), WithWidth(60))
	snap := state.ProjectState{
		Name:         "blog",
		Status:       state.StatusFailed,
		CurrentPhase: "review",
		Progress:     50,
		Artifacts:    []state.Artifact{{Path: "a"}},
		Errors:       []string{"agent not registered [role=reviewer]"},
	}

	c.PhaseChanged(orchestrator.PhaseReview, orchestrator.PhaseFailed)
	c.RunFinished(snap, errors.New("agent not registered"))

	out := buf.String()
	for _, want := range []string{"✗ run failed", "blog", "failed", "review", "50%", "0 passed of 0", "! agent not registered"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if w := len([]rune(line)); w > 60 {
			t.Errorf("line wider than 60 columns (%d): %q", w, line)
		}
	}
}

func TestConsole_TruncatesToWidth(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, WithoutColor(), WithWidth(30))
	c.TaskStarted(taskgraph.Task{ID: "t", Kind: taskgraph.KindCoding, Title: strings.Repeat("long ", 20)})

	line := strings.TrimRight(buf.String(), "\n")
	if len([]rune(line)) > 30 || !strings.HasSuffix(line, "...") {
		t.Errorf("line = %q, want truncated to 30 columns", line)
	}
}

func TestConsole_ConcurrentUse(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, WithoutColor())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := taskgraph.Task{ID: "t", Kind: taskgraph.KindCoding}
			c.TaskStarted(task)
			c.TaskFinished(task, nil, nil)
		}()
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "\n"); got != 40 {
		t.Errorf("lines = %d, want 40", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"anything", 3, "..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestPlural(t *testing.T) {
	if got := plural(1, "file"); got != "1 file" {
		t.Errorf("plural(1) = %q", got)
	}
	if got := plural(0, "file"); got != "0 files" {
		t.Errorf("plural(0) = %q", got)
	}
}
