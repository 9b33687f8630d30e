package agents

import (
	"context"
	"math"
	"slices"

	"github.com/Iron-Ham/codecrew/internal/state"
)

// Scoring constants for HeuristicReviewer.
const (
	BaseScore              = 8.0
	DefaultMinPassingScore = 6.0
	DefaultMaxLineLength   = 120

	errorPenalty   = 1.0
	warningPenalty = 0.3
	infoPenalty    = 0.1
)

// ReviewerConfig tunes HeuristicReviewer. Zero values select the defaults.
type ReviewerConfig struct {
	MinPassingScore float64
	MaxLineLength   int
}

// HeuristicReviewer grades artifacts with static rules chosen by language or
// path pattern. Each artifact starts at BaseScore and loses points per issue;
// it passes when the score reaches the minimum and no issue is an error.
type HeuristicReviewer struct {
	rules           []ruleSet
	minPassingScore float64
	opts            checkOptions
}

// NewHeuristicReviewer creates a reviewer with the built-in rules.
func NewHeuristicReviewer(cfg ReviewerConfig) *HeuristicReviewer {
	if cfg.MinPassingScore <= 0 {
		cfg.MinPassingScore = DefaultMinPassingScore
	}
	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = DefaultMaxLineLength
	}
	return &HeuristicReviewer{
		rules:           defaultRuleSets(),
		minPassingScore: cfg.MinPassingScore,
		opts:            checkOptions{maxLineLength: cfg.MaxLineLength},
	}
}

// ReviewProject implements orchestrator.Reviewer. Outcomes follow the
// snapshot's artifact order.
func (r *HeuristicReviewer) ReviewProject(ctx context.Context, snap state.ProjectState) ([]state.ReviewOutcome, error) {
	outcomes := make([]state.ReviewOutcome, 0, len(snap.Artifacts))
	for _, a := range snap.Artifacts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, r.ReviewArtifact(a))
	}
	return outcomes, nil
}

// ReviewArtifact grades a single artifact.
func (r *HeuristicReviewer) ReviewArtifact(a state.Artifact) state.ReviewOutcome {
	var issues []state.Issue
	for _, rs := range r.rules {
		if rs.applies(a) {
			issues = append(issues, rs.check(a.Content, r.opts)...)
		}
	}

	score := Score(issues)
	hasError := slices.ContainsFunc(issues, func(i state.Issue) bool {
		return i.Severity == state.IssueError
	})

	var suggestions []string
	for _, i := range issues {
		if i.Suggestion != "" && !slices.Contains(suggestions, i.Suggestion) {
			suggestions = append(suggestions, i.Suggestion)
		}
	}

	return state.ReviewOutcome{
		TargetPath:  a.Path,
		Passed:      score >= r.minPassingScore && !hasError,
		Score:       score,
		Issues:      issues,
		Suggestions: suggestions,
	}
}

// Score applies the per-severity penalties to BaseScore, clamped to [0, 10]
// and rounded to two decimals.
func Score(issues []state.Issue) float64 {
	score := BaseScore
	for _, i := range issues {
		switch i.Severity {
		case state.IssueError:
			score -= errorPenalty
		case state.IssueWarning:
			score -= warningPenalty
		case state.IssueInfo:
			score -= infoPenalty
		}
	}
	score = max(0, min(10, score))
	return math.Round(score*100) / 100
}
