package config

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/codecrew/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "development.max_parallel")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// maxParallelLimit caps development.max_parallel.
const maxParallelLimit = 64

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateProject()...)
	errors = append(errors, c.validateOutput()...)
	errors = append(errors, c.validateDevelopment()...)
	errors = append(errors, c.validateReview()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateProject() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Project.Name) == "" {
		errors = append(errors, ValidationError{
			Field:   "project.name",
			Value:   c.Project.Name,
			Message: "must not be empty",
		})
	}

	return errors
}

func (c *Config) validateOutput() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Output.Dir) == "" {
		errors = append(errors, ValidationError{
			Field:   "output.dir",
			Value:   c.Output.Dir,
			Message: "must not be empty",
		})
	}

	// Null bytes are invalid in paths
	for _, f := range []struct {
		field, value string
	}{
		{"output.dir", c.Output.Dir},
		{"output.audit_dir", c.Output.AuditDir},
	} {
		if strings.ContainsRune(f.value, '\x00') {
			errors = append(errors, ValidationError{
				Field:   f.field,
				Value:   f.value,
				Message: "contains invalid null character",
			})
		}
	}

	return errors
}

func (c *Config) validateDevelopment() []ValidationError {
	var errors []ValidationError

	if c.Development.MaxParallel < 1 {
		errors = append(errors, ValidationError{
			Field:   "development.max_parallel",
			Value:   c.Development.MaxParallel,
			Message: "must be at least 1",
		})
	}
	if c.Development.MaxParallel > maxParallelLimit {
		errors = append(errors, ValidationError{
			Field:   "development.max_parallel",
			Value:   c.Development.MaxParallel,
			Message: fmt.Sprintf("exceeds maximum of %d", maxParallelLimit),
		})
	}

	return errors
}

func (c *Config) validateReview() []ValidationError {
	var errors []ValidationError

	if c.Review.MinPassingScore < 0 || c.Review.MinPassingScore > 10 {
		errors = append(errors, ValidationError{
			Field:   "review.min_passing_score",
			Value:   c.Review.MinPassingScore,
			Message: "must be between 0 and 10",
		})
	}
	if c.Review.MaxLineLength < 1 {
		errors = append(errors, ValidationError{
			Field:   "review.max_line_length",
			Value:   c.Review.MaxLineLength,
			Message: "must be positive",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !logging.IsValidLevel(c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
