package agents

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/Iron-Ham/codecrew/internal/errors"
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

// Task IDs created by OutlinePlanner besides the per-bullet coding tasks.
const (
	OutlineRequirementsTaskID = "requirements"
	OutlineReadmeTaskID       = "readme"
)

// maxPlanNameLength bounds plan names derived from the requirement's
// first line.
const maxPlanNameLength = 60

// OutlinePlanner turns a bulleted requirement into a plan. Every bullet
// ("- ", "* ", "+ " or "1. ") becomes a coding task; a requirement without
// bullets becomes a single coding task. All coding tasks depend on a
// planning task and a README documentation task depends on all of them.
type OutlinePlanner struct{}

// NewOutlinePlanner creates an OutlinePlanner.
func NewOutlinePlanner() *OutlinePlanner {
	return &OutlinePlanner{}
}

// CreatePlan implements orchestrator.Planner.
func (p *OutlinePlanner) CreatePlan(ctx context.Context, requirement string) (*state.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return nil, errors.NewValidationError("requirement cannot be empty").WithField("requirement")
	}

	headline, items := outline(requirement)
	if len(items) == 0 {
		items = []string{headline}
	}

	plan := &state.Plan{
		Name:        planName(headline),
		Description: requirement,
		Tasks: []taskgraph.Task{{
			ID:       OutlineRequirementsTaskID,
			Kind:     taskgraph.KindPlanning,
			Title:    "Analyse requirements",
			Priority: 1,
		}},
	}

	coding := make([]string, 0, len(items))
	for i, item := range items {
		id := fmt.Sprintf("task-%d", i+1)
		coding = append(coding, id)
		plan.Tasks = append(plan.Tasks, taskgraph.Task{
			ID:        id,
			Kind:      taskgraph.KindCoding,
			Title:     item,
			Priority:  DefaultTaskPriority,
			DependsOn: []string{OutlineRequirementsTaskID},
		})
		plan.FileStructure = append(plan.FileStructure, stubPath(id))
	}

	plan.Tasks = append(plan.Tasks, taskgraph.Task{
		ID:        OutlineReadmeTaskID,
		Kind:      taskgraph.KindDocumentation,
		Title:     "Write README",
		Priority:  DefaultTaskPriority + 1,
		DependsOn: coding,
		Input: map[string]any{
			"files": []any{map[string]any{
				"path":     "README.md",
				"content":  readme(plan.Name, requirement, items),
				"language": "markdown",
			}},
		},
	})
	plan.FileStructure = append(plan.FileStructure, "README.md")
	plan.DeriveDependencies()
	return plan, nil
}

// outline splits a requirement into its first non-bullet line and its
// bullet items.
func outline(requirement string) (headline string, items []string) {
	for _, line := range strings.Split(requirement, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if item, ok := bulletText(line); ok {
			if item != "" {
				items = append(items, item)
			}
			continue
		}
		if headline == "" {
			headline = line
		}
	}
	if headline == "" && len(items) > 0 {
		headline = items[0]
	}
	return headline, items
}

func bulletText(line string) (string, bool) {
	for _, marker := range []string{"- ", "* ", "+ "} {
		if rest, ok := strings.CutPrefix(line, marker); ok {
			return strings.TrimSpace(rest), true
		}
	}
	// Numbered items: "1. ", "12) ".
	digits := 0
	for digits < len(line) && unicode.IsDigit(rune(line[digits])) {
		digits++
	}
	if digits > 0 && digits+1 < len(line) && (line[digits] == '.' || line[digits] == ')') && line[digits+1] == ' ' {
		return strings.TrimSpace(line[digits+2:]), true
	}
	return "", false
}

func planName(headline string) string {
	name := strings.TrimRight(headline, ".:")
	if runes := []rune(name); len(runes) > maxPlanNameLength {
		name = strings.TrimSpace(string(runes[:maxPlanNameLength-3])) + "..."
	}
	return name
}

func readme(name, requirement string, items []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", name)
	b.WriteString(requirement)
	b.WriteString("\n\n## Tasks\n\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}
