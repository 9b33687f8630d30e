package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/codecrew/internal/orchestrator"
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

const progressWidth = 40

// Messages

type phaseMsg struct{ to orchestrator.Phase }
type taskStartedMsg struct{ task taskgraph.Task }
type taskFinishedMsg struct {
	task  taskgraph.Task
	files int
	err   error
}
type reviewMsg struct {
	outcomes []state.ReviewOutcome
	skipped  bool
}
type runFinishedMsg struct {
	snap state.ProjectState
	err  error
}

type rowState int

const (
	rowRunning rowState = iota
	rowDone
	rowFailed
)

type taskRow struct {
	id     string
	label  string
	state  rowState
	detail string
}

// Model is the bubbletea model behind the run dashboard.
type Model struct {
	styles   styles
	bar      progress.Model
	width    int
	phase    orchestrator.Phase
	rows     []taskRow
	index    map[string]int
	reviews  []state.ReviewOutcome
	skipped  bool
	reviewed bool
	summary  *state.ProjectState
	runErr   error
	quitting bool
}

// NewModel creates an empty dashboard model rendering with r.
func NewModel(r *lipgloss.Renderer) Model {
	return Model{
		styles: newStyles(r, true),
		bar: progress.New(
			progress.WithGradient(string(primaryColor), string(successColor)),
			progress.WithWidth(progressWidth),
		),
		width: defaultWidth,
		index: make(map[string]int),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case phaseMsg:
		m.phase = msg.to

	case taskStartedMsg:
		m.index[msg.task.ID] = len(m.rows)
		m.rows = append(m.rows, taskRow{
			id:    msg.task.ID,
			label: fmt.Sprintf("[%s] %s", msg.task.Kind, msg.task.Title),
		})

	case taskFinishedMsg:
		i, ok := m.index[msg.task.ID]
		if !ok {
			return m, nil
		}
		if msg.err != nil {
			m.rows[i].state = rowFailed
			m.rows[i].detail = msg.err.Error()
		} else {
			m.rows[i].state = rowDone
			m.rows[i].detail = plural(msg.files, "file")
		}

	case reviewMsg:
		m.reviewed = true
		m.reviews = msg.outcomes
		m.skipped = msg.skipped

	case runFinishedMsg:
		snap := msg.snap
		m.summary = &snap
		m.runErr = msg.err
		return m, tea.Quit
	}

	return m, nil
}

// percent is the share of started tasks that finished, or the run's
// progress once it is over.
func (m Model) percent() float64 {
	if m.summary != nil {
		return m.summary.Progress / 100
	}
	if len(m.rows) == 0 {
		return 0
	}
	finished := 0
	for _, r := range m.rows {
		if r.state != rowRunning {
			finished++
		}
	}
	return float64(finished) / float64(len(m.rows))
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	phase := "starting"
	if m.phase != "" {
		phase = m.phase.String()
	}
	b.WriteString(m.styles.phase.Render("codecrew ▸ "+phase) + "\n")
	b.WriteString(m.bar.ViewAs(m.percent()) + "\n\n")

	for _, r := range m.rows {
		var mark string
		switch r.state {
		case rowDone:
			mark = m.styles.success.Render("✓")
		case rowFailed:
			mark = m.styles.failure.Render("✗")
		default:
			mark = m.styles.muted.Render("•")
		}
		line := fmt.Sprintf("%s %s %s", mark, m.styles.task.Render(r.id), m.styles.muted.Render(r.label))
		if r.detail != "" {
			line += "  " + r.detail
		}
		b.WriteString(truncate(line, m.width) + "\n")
	}

	if m.reviewed {
		b.WriteString("\n")
		if m.skipped {
			b.WriteString(m.styles.muted.Render("review skipped: no artifacts") + "\n")
		} else {
			passed := 0
			for _, o := range m.reviews {
				if o.Passed {
					passed++
				}
			}
			b.WriteString(fmt.Sprintf("review: %d/%d passed\n", passed, len(m.reviews)))
		}
	}

	if m.summary != nil {
		b.WriteString("\n")
		if m.runErr != nil {
			b.WriteString(m.styles.failure.Render("✗ "+m.runErr.Error()) + "\n")
		} else {
			b.WriteString(m.styles.success.Render(fmt.Sprintf("✓ %s: %s written",
				m.summary.Name, plural(len(m.summary.Artifacts), "file"))) + "\n")
		}
	} else if !m.quitting {
		b.WriteString("\n" + m.styles.muted.Render("q to abort") + "\n")
	}
	return b.String()
}

// Dashboard is a Reporter that drives an interactive bubbletea view.
// Notifications are delivered to the program with Send, so it is safe for
// concurrent use.
type Dashboard struct {
	program *tea.Program
}

// NewDashboard creates a dashboard rendering to out. Extra program options
// are passed to bubbletea.
func NewDashboard(out io.Writer, opts ...tea.ProgramOption) *Dashboard {
	model := NewModel(lipgloss.NewRenderer(out))
	opts = append([]tea.ProgramOption{tea.WithOutput(out)}, opts...)
	return &Dashboard{program: tea.NewProgram(model, opts...)}
}

// Run shows the dashboard until the run finishes or the user quits. It
// reports whether the user aborted.
func (d *Dashboard) Run() (aborted bool, err error) {
	final, err := d.program.Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(Model)
	return ok && m.quitting, nil
}

// PhaseChanged implements orchestrator.Reporter.
func (d *Dashboard) PhaseChanged(_, to orchestrator.Phase) {
	d.program.Send(phaseMsg{to: to})
}

// TaskStarted implements orchestrator.Reporter.
func (d *Dashboard) TaskStarted(task taskgraph.Task) {
	d.program.Send(taskStartedMsg{task: task})
}

// TaskFinished implements orchestrator.Reporter.
func (d *Dashboard) TaskFinished(task taskgraph.Task, artifacts []state.Artifact, err error) {
	d.program.Send(taskFinishedMsg{task: task, files: len(artifacts), err: err})
}

// ReviewSummary implements orchestrator.Reporter.
func (d *Dashboard) ReviewSummary(outcomes []state.ReviewOutcome, skipped bool) {
	d.program.Send(reviewMsg{outcomes: outcomes, skipped: skipped})
}

// RunFinished implements orchestrator.Reporter.
func (d *Dashboard) RunFinished(snap state.ProjectState, err error) {
	d.program.Send(runFinishedMsg{snap: snap, err: err})
}

var _ orchestrator.Reporter = (*Dashboard)(nil)
