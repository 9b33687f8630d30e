package agents

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/Iron-Ham/codecrew/internal/errors"
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

// stubDir holds the markdown stubs for tasks that declare no files.
const stubDir = "docs/tasks"

// languageByExt maps file extensions onto artifact languages.
var languageByExt = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".mjs":  "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".html": "html",
	".htm":  "html",
	".css":  "css",
	".go":   "go",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".sh":   "shell",
	".txt":  "text",
}

// DetectLanguage guesses an artifact's language from its file extension.
// Unknown extensions yield "".
func DetectLanguage(p string) string {
	return languageByExt[strings.ToLower(path.Ext(p))]
}

// ScaffoldCoder materialises the files a task declares in its input under
// the "files" key. Each entry is either a path or a map with path, content,
// language and description. Declared files without content get a
// placeholder. A task with no declared files produces a markdown stub
// describing it.
type ScaffoldCoder struct {
	now func() time.Time
}

// NewScaffoldCoder creates a ScaffoldCoder.
func NewScaffoldCoder() *ScaffoldCoder {
	return &ScaffoldCoder{now: time.Now}
}

// GenerateCode implements orchestrator.Coder.
func (c *ScaffoldCoder) GenerateCode(ctx context.Context, task taskgraph.Task, snap state.ProjectState) ([]state.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	declared, err := declaredFiles(task.Input)
	if err != nil {
		return nil, errors.Wrapf(err, "task %s", task.ID)
	}

	now := c.now()
	if len(declared) == 0 {
		return []state.Artifact{{
			Path:        stubPath(task.ID),
			Content:     taskStub(task, snap),
			Language:    "markdown",
			Description: task.Title,
			CreatedAt:   now,
		}}, nil
	}

	artifacts := make([]state.Artifact, 0, len(declared))
	for _, a := range declared {
		if a.Language == "" {
			a.Language = DetectLanguage(a.Path)
		}
		if a.Description == "" {
			a.Description = task.Title
		}
		if a.Content == "" {
			a.Content = placeholder(a.Language, task)
		}
		a.CreatedAt = now
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

func declaredFiles(input map[string]any) ([]state.Artifact, error) {
	raw, ok := input["files"]
	if !ok || raw == nil {
		return nil, nil
	}

	var entries []any
	switch v := raw.(type) {
	case []any:
		entries = v
	case []string:
		for _, s := range v {
			entries = append(entries, s)
		}
	case []map[string]any:
		for _, m := range v {
			entries = append(entries, m)
		}
	default:
		return nil, errors.NewValidationError("files must be a list").
			WithField("input.files").WithValue(fmt.Sprintf("%T", raw))
	}

	out := make([]state.Artifact, 0, len(entries))
	for i, entry := range entries {
		var a state.Artifact
		switch e := entry.(type) {
		case string:
			a.Path = e
		case map[string]any:
			a.Path = stringField(e, "path")
			a.Content = stringField(e, "content")
			a.Language = stringField(e, "language")
			a.Description = stringField(e, "description")
		default:
			return nil, errors.NewValidationError("file entry must be a path or a map").
				WithField(fmt.Sprintf("input.files[%d]", i)).WithValue(fmt.Sprintf("%T", entry))
		}
		if strings.TrimSpace(a.Path) == "" {
			return nil, errors.NewValidationError("file entry has no path").
				WithField(fmt.Sprintf("input.files[%d]", i))
		}
		out = append(out, a)
	}
	return out, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// stubPath returns the markdown stub path for a task ID, with characters
// unsafe in file names replaced.
func stubPath(taskID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '-'
	}, taskID)
	safe = strings.Trim(safe, ".")
	if safe == "" {
		safe = "task"
	}
	return path.Join(stubDir, safe+".md")
}

func taskStub(task taskgraph.Task, snap state.ProjectState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", task.Title)
	if task.Description != "" {
		b.WriteString(task.Description)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "- Task: `%s`\n", task.ID)
	fmt.Fprintf(&b, "- Kind: %s\n", task.Kind)
	if len(task.DependsOn) > 0 {
		fmt.Fprintf(&b, "- Depends on: %s\n", strings.Join(task.DependsOn, ", "))
	}
	if snap.Plan != nil && snap.Plan.Name != "" {
		fmt.Fprintf(&b, "- Project: %s\n", snap.Plan.Name)
	}
	return b.String()
}

func placeholder(language string, task taskgraph.Task) string {
	switch language {
	case "python", "shell", "yaml", "toml":
		return fmt.Sprintf("# %s\n", task.Title)
	case "javascript", "typescript", "go":
		return fmt.Sprintf("// %s\n", task.Title)
	case "html":
		return fmt.Sprintf("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"UTF-8\">\n<title>%s</title>\n</head>\n<body>\n</body>\n</html>\n", task.Title)
	case "css":
		return fmt.Sprintf("/* %s */\n", task.Title)
	case "markdown":
		return fmt.Sprintf("# %s\n", task.Title)
	case "json":
		return "{}\n"
	}
	return task.Title + "\n"
}
