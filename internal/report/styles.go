package report

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	borderColor  = lipgloss.Color("#6B7280") // Gray
)

// styles holds the console's rendering styles. Plain styles are used when
// the output is not a terminal.
type styles struct {
	phase   lipgloss.Style
	task    lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
	summary lipgloss.Style
	label   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, color bool) styles {
	if !color {
		plain := r.NewStyle()
		return styles{
			phase:   plain.Bold(true),
			task:    plain,
			success: plain,
			warning: plain,
			failure: plain,
			muted:   plain,
			summary: plain.Border(lipgloss.NormalBorder()).Padding(0, 1),
			label:   plain,
		}
	}
	return styles{
		phase:   r.NewStyle().Bold(true).Foreground(primaryColor),
		task:    r.NewStyle(),
		success: r.NewStyle().Foreground(successColor),
		warning: r.NewStyle().Foreground(warningColor),
		failure: r.NewStyle().Foreground(errorColor).Bold(true),
		muted:   r.NewStyle().Foreground(mutedColor),
		summary: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1),
		label: r.NewStyle().Foreground(mutedColor),
	}
}
