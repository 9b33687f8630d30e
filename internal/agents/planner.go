package agents

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/codecrew/internal/errors"
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

// DefaultTaskPriority is the priority of plan tasks that do not set one.
const DefaultTaskPriority = 5

// planFile is the on-disk plan format. JSON plans parse as well, since
// YAML is a superset of JSON.
type planFile struct {
	Name          string              `yaml:"name"`
	Description   string              `yaml:"description"`
	Architecture  map[string]any      `yaml:"architecture"`
	TechStack     map[string][]string `yaml:"tech_stack"`
	FileStructure []string            `yaml:"file_structure"`
	Tasks         []planFileTask      `yaml:"tasks"`
}

type planFileTask struct {
	ID          string         `yaml:"id"`
	Kind        string         `yaml:"kind"`
	Type        string         `yaml:"type"` // alternative name for kind
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Priority    *int           `yaml:"priority"`
	DependsOn   []string       `yaml:"depends_on"`
	Depends     []string       `yaml:"depends"` // alternative name for depends_on
	Input       map[string]any `yaml:"input"`
	Files       []any          `yaml:"files"` // shorthand for input.files
}

// ParsePlan decodes a YAML or JSON plan. Tasks without a kind are coding
// tasks, tasks without a priority get DefaultTaskPriority and tasks without
// an ID are numbered task-1, task-2, ... by position.
func ParsePlan(data []byte) (*state.Plan, error) {
	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, errors.NewValidationError("cannot parse plan").WithCause(err)
	}

	plan := &state.Plan{
		Name:          pf.Name,
		Description:   pf.Description,
		Architecture:  pf.Architecture,
		TechStack:     pf.TechStack,
		FileStructure: pf.FileStructure,
		Tasks:         make([]taskgraph.Task, 0, len(pf.Tasks)),
	}

	for i, raw := range pf.Tasks {
		task, err := raw.toTask(i)
		if err != nil {
			return nil, err
		}
		plan.Tasks = append(plan.Tasks, task)
	}
	plan.DeriveDependencies()
	return plan, nil
}

func (t planFileTask) toTask(index int) (taskgraph.Task, error) {
	id := strings.TrimSpace(t.ID)
	if id == "" {
		id = fmt.Sprintf("task-%d", index+1)
	}

	kindName := t.Kind
	if kindName == "" {
		kindName = t.Type
	}
	kind := taskgraph.KindCoding
	if kindName != "" {
		parsed, err := taskgraph.ParseKind(kindName)
		if err != nil {
			return taskgraph.Task{}, errors.Wrapf(err, "task %s", id)
		}
		kind = parsed
	}

	priority := DefaultTaskPriority
	if t.Priority != nil {
		priority = *t.Priority
	}

	deps := t.DependsOn
	if len(deps) == 0 {
		deps = t.Depends
	}

	input := t.Input
	if len(t.Files) > 0 {
		if input == nil {
			input = make(map[string]any, 1)
		}
		if _, exists := input["files"]; !exists {
			input["files"] = t.Files
		}
	}

	title := t.Title
	if title == "" {
		title = id
	}

	return taskgraph.Task{
		ID:          id,
		Kind:        kind,
		Title:       title,
		Description: t.Description,
		Priority:    priority,
		DependsOn:   deps,
		Input:       input,
	}, nil
}

// LoadPlanFile reads and parses the plan at path.
func LoadPlanFile(path string) (*state.Plan, error) {
	data, err := os.ReadFile(path) //nolint:gosec // plan path is user-supplied
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("plan file not found: %s", path)
		}
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, errors.Wrapf(err, "plan file %s", path)
	}
	return plan, nil
}

// PlanFilePlanner returns the plan stored in a file, ignoring the
// requirement except as a fallback description.
type PlanFilePlanner struct {
	Path string
}

// NewPlanFilePlanner creates a planner that reads path on every CreatePlan.
func NewPlanFilePlanner(path string) *PlanFilePlanner {
	return &PlanFilePlanner{Path: path}
}

// CreatePlan implements orchestrator.Planner.
func (p *PlanFilePlanner) CreatePlan(ctx context.Context, requirement string) (*state.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plan, err := LoadPlanFile(p.Path)
	if err != nil {
		return nil, err
	}
	if plan.Description == "" {
		plan.Description = strings.TrimSpace(requirement)
	}
	return plan, nil
}
