// Package report renders run progress on a terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Iron-Ham/codecrew/internal/orchestrator"
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

const (
	defaultWidth = 80
	maxBoxWidth  = 72
)

// Console writes human-readable progress lines. It is safe for concurrent
// use, so it can be driven by a parallel dispatcher.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	width  int
	styles styles
}

// Option configures a Console.
type Option func(*consoleOptions)

type consoleOptions struct {
	plain bool
	width int
}

// WithoutColor disables styling even when out is a terminal.
func WithoutColor() Option {
	return func(o *consoleOptions) {
		o.plain = true
	}
}

// WithWidth fixes the line width instead of querying the terminal.
func WithWidth(width int) Option {
	return func(o *consoleOptions) {
		o.width = width
	}
}

// NewConsole creates a Console writing to out. Color and width are taken
// from the terminal when out is one.
func NewConsole(out io.Writer, opts ...Option) *Console {
	var o consoleOptions
	for _, opt := range opts {
		opt(&o)
	}

	tty, width := terminalInfo(out)
	color := tty && !o.plain
	if o.width > 0 {
		width = o.width
	}

	return &Console{
		out:    out,
		width:  width,
		styles: newStyles(lipgloss.NewRenderer(out), color),
	}
}

func terminalInfo(out io.Writer) (bool, int) {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false, defaultWidth
	}
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		return true, w
	}
	return true, defaultWidth
}

func (c *Console) println(s string) {
	_, _ = fmt.Fprintln(c.out, truncate(s, c.width))
}

// PhaseChanged implements orchestrator.Reporter.
func (c *Console) PhaseChanged(_, to orchestrator.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch to {
	case orchestrator.PhaseFailed:
		c.println(c.styles.failure.Render("✗ run failed"))
	case orchestrator.PhaseCompleted:
		c.println(c.styles.success.Render("✓ completed"))
	default:
		c.println(c.styles.phase.Render("▸ " + to.String()))
	}
}

// TaskStarted implements orchestrator.Reporter.
func (c *Console) TaskStarted(task taskgraph.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.println(fmt.Sprintf("  %s %s %s",
		c.styles.muted.Render("•"),
		c.styles.task.Render(task.ID),
		c.styles.muted.Render(fmt.Sprintf("[%s] %s", task.Kind, task.Title)),
	))
}

// TaskFinished implements orchestrator.Reporter.
func (c *Console) TaskFinished(task taskgraph.Task, artifacts []state.Artifact, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.println(fmt.Sprintf("  %s %s", c.styles.failure.Render("✗ "+task.ID), c.styles.muted.Render(err.Error())))
		return
	}
	c.println(fmt.Sprintf("  %s %s", c.styles.success.Render("✓ "+task.ID), c.styles.muted.Render(plural(len(artifacts), "file"))))
}

// ReviewSummary implements orchestrator.Reporter.
func (c *Console) ReviewSummary(outcomes []state.ReviewOutcome, skipped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if skipped {
		c.println(c.styles.muted.Render("  review skipped: no artifacts"))
		return
	}

	passed := 0
	for _, o := range outcomes {
		verdict := c.styles.success.Render("pass")
		if o.Passed {
			passed++
		} else {
			verdict = c.styles.failure.Render("fail")
		}
		line := fmt.Sprintf("  %s %4.1f %s", verdict, o.Score, o.TargetPath)
		if n := len(o.Issues); n > 0 {
			line += " " + c.styles.warning.Render("("+plural(n, "issue")+")")
		}
		c.println(line)
	}
	c.println(c.styles.muted.Render(fmt.Sprintf("  %d/%d passed", passed, len(outcomes))))
}

// RunFinished implements orchestrator.Reporter.
func (c *Console) RunFinished(snap state.ProjectState, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.styles.success.Render(string(snap.Status))
	if err != nil {
		status = c.styles.failure.Render(string(snap.Status))
	}

	passed := snap.PassedReviews()
	rows := [][2]string{
		{"project", snap.Name},
		{"status", status},
		{"phase", snap.CurrentPhase},
		{"progress", fmt.Sprintf("%.0f%%", snap.Progress)},
		{"artifacts", fmt.Sprintf("%d", len(snap.Artifacts))},
		{"reviews", fmt.Sprintf("%d passed of %d", passed, len(snap.Reviews))},
		{"errors", fmt.Sprintf("%d", len(snap.Errors))},
	}

	inner := min(c.width, maxBoxWidth) - 4
	lines := make([]string, 0, len(rows)+len(snap.Errors))
	for _, row := range rows {
		lines = append(lines, truncate(c.styles.label.Render(fmt.Sprintf("%-10s", row[0]))+row[1], inner))
	}
	for _, e := range snap.Errors {
		lines = append(lines, truncate(c.styles.failure.Render("! ")+e, inner))
	}

	_, _ = fmt.Fprintln(c.out, c.styles.summary.Render(strings.Join(lines, "\n")))
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

var _ orchestrator.Reporter = (*Console)(nil)
