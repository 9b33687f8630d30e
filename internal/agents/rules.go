package agents

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/codecrew/internal/state"
)

// ruleSet is a group of static checks for one language. A rule set applies
// to an artifact whose language is listed, or whose path matches one of the
// patterns when the artifact has no language.
type ruleSet struct {
	name      string
	languages []string
	patterns  []glob.Glob
	check     func(content string, opts checkOptions) []state.Issue
}

type checkOptions struct {
	maxLineLength int
}

func (rs ruleSet) applies(a state.Artifact) bool {
	if a.Language != "" && len(rs.languages) > 0 {
		for _, lang := range rs.languages {
			if strings.EqualFold(lang, a.Language) {
				return true
			}
		}
		return false
	}
	for _, g := range rs.patterns {
		if g.Match(a.Path) {
			return true
		}
	}
	return false
}

func mustGlobs(patterns ...string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, glob.MustCompile(p))
	}
	return out
}

// defaultRuleSets returns the built-in rules. The generic set applies to
// every artifact.
func defaultRuleSets() []ruleSet {
	return []ruleSet{
		{
			name:      "python",
			languages: []string{"python"},
			patterns:  mustGlobs("*.py", "*.pyw"),
			check:     checkPython,
		},
		{
			name:      "javascript",
			languages: []string{"javascript", "typescript"},
			patterns:  mustGlobs("*.{js,mjs,cjs,jsx,ts,tsx}"),
			check:     checkJavaScript,
		},
		{
			name:      "html",
			languages: []string{"html"},
			patterns:  mustGlobs("*.{html,htm}"),
			check:     checkHTML,
		},
		{
			name:      "css",
			languages: []string{"css"},
			patterns:  mustGlobs("*.css"),
			check:     checkCSS,
		},
		{
			name:     "generic",
			patterns: mustGlobs("*"),
			check:    checkGeneric,
		},
	}
}

var (
	pyDebugPrint  = regexp.MustCompile(`\bprint\s*\([^)]*debug|DEBUG`)
	pySecret      = regexp.MustCompile(`(?i)(password|secret|api_key)\s*=\s*['"][^'"]+['"]`)
	pyTodo        = regexp.MustCompile(`(?i)#\s*(TODO|FIXME|XXX|HACK)`)
	jsVar         = regexp.MustCompile(`\bvar\s+\w+`)
	jsEval        = regexp.MustCompile(`\beval\s*\(`)
	htmlDoctype   = regexp.MustCompile(`(?i)<!DOCTYPE\s+html>`)
	htmlCharset   = regexp.MustCompile(`(?i)<meta\s+charset`)
	htmlInlineEvt = regexp.MustCompile(`on\w+\s*=\s*["']`)
)

// maxImportant is the number of !important declarations a stylesheet may
// carry before it is flagged.
const maxImportant = 5

func checkPython(content string, opts checkOptions) []state.Issue {
	var issues []state.Issue
	for i, line := range strings.Split(content, "\n") {
		n := i + 1
		if opts.maxLineLength > 0 && len(line) > opts.maxLineLength {
			issues = append(issues, state.Issue{
				Severity:   state.IssueWarning,
				Line:       n,
				Message:    fmt.Sprintf("line length (%d) exceeds %d characters", len(line), opts.maxLineLength),
				Suggestion: "split the line",
			})
		}
		if pyDebugPrint.MatchString(line) {
			issues = append(issues, state.Issue{
				Severity:   state.IssueWarning,
				Line:       n,
				Message:    "possible debug output",
				Suggestion: "remove it or use logging",
			})
		}
		if pySecret.MatchString(line) {
			issues = append(issues, state.Issue{
				Severity:   state.IssueError,
				Line:       n,
				Message:    "possible hardcoded credential",
				Suggestion: "read it from the environment or a config file",
			})
		}
		if pyTodo.MatchString(line) {
			issues = append(issues, state.Issue{
				Severity:   state.IssueInfo,
				Line:       n,
				Message:    "pending work marker",
				Suggestion: "finish it or track it in an issue",
			})
		}
	}
	return issues
}

func checkJavaScript(content string, _ checkOptions) []state.Issue {
	var issues []state.Issue
	for i, line := range strings.Split(content, "\n") {
		n := i + 1
		if jsVar.MatchString(line) {
			issues = append(issues, state.Issue{
				Severity:   state.IssueWarning,
				Line:       n,
				Message:    "variable declared with var",
				Suggestion: "use let or const",
			})
		}
		if strings.Contains(line, "console.log") && !strings.Contains(strings.ToLower(line), "// debug") {
			issues = append(issues, state.Issue{
				Severity:   state.IssueInfo,
				Line:       n,
				Message:    "console.log call",
				Suggestion: "remove it before shipping",
			})
		}
		if jsEval.MatchString(line) {
			issues = append(issues, state.Issue{
				Severity:   state.IssueError,
				Line:       n,
				Message:    "use of eval()",
				Suggestion: "avoid eval",
			})
		}
	}
	return issues
}

func checkHTML(content string, _ checkOptions) []state.Issue {
	var issues []state.Issue
	if !htmlDoctype.MatchString(content) {
		issues = append(issues, state.Issue{
			Severity:   state.IssueWarning,
			Line:       1,
			Message:    "missing DOCTYPE declaration",
			Suggestion: "add <!DOCTYPE html>",
		})
	}
	if !htmlCharset.MatchString(content) {
		issues = append(issues, state.Issue{
			Severity:   state.IssueWarning,
			Line:       1,
			Message:    "missing character encoding declaration",
			Suggestion: `add <meta charset="UTF-8">`,
		})
	}
	if n := len(htmlInlineEvt.FindAllString(content, -1)); n > 0 {
		issues = append(issues, state.Issue{
			Severity:   state.IssueInfo,
			Line:       1,
			Message:    fmt.Sprintf("%d inline event handler(s)", n),
			Suggestion: "use addEventListener",
		})
	}
	return issues
}

func checkCSS(content string, _ checkOptions) []state.Issue {
	if n := strings.Count(content, "!important"); n > maxImportant {
		return []state.Issue{{
			Severity:   state.IssueWarning,
			Line:       1,
			Message:    fmt.Sprintf("overuse of !important (%d occurrences)", n),
			Suggestion: "restructure selector specificity",
		}}
	}
	return nil
}

var conflictMarkers = []string{"<<<<<<< ", ">>>>>>> "}

func checkGeneric(content string, _ checkOptions) []state.Issue {
	if strings.TrimSpace(content) == "" {
		return []state.Issue{{
			Severity: state.IssueWarning,
			Message:  "file is empty",
		}}
	}
	var issues []state.Issue
	for i, line := range strings.Split(content, "\n") {
		for _, marker := range conflictMarkers {
			if strings.HasPrefix(line, marker) {
				issues = append(issues, state.Issue{
					Severity:   state.IssueError,
					Line:       i + 1,
					Message:    "merge conflict marker",
					Suggestion: "resolve the conflict",
				})
				break
			}
		}
	}
	return issues
}
