package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Errorf("Default config should be valid, got errors: %v", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{"empty project name", func(c *Config) { c.Project.Name = "  " }, "project.name"},
		{"empty output dir", func(c *Config) { c.Output.Dir = "" }, "output.dir"},
		{"null byte in output dir", func(c *Config) { c.Output.Dir = "out\x00" }, "output.dir"},
		{"null byte in audit dir", func(c *Config) { c.Output.AuditDir = "a\x00" }, "output.audit_dir"},
		{"zero parallelism", func(c *Config) { c.Development.MaxParallel = 0 }, "development.max_parallel"},
		{"excessive parallelism", func(c *Config) { c.Development.MaxParallel = 65 }, "development.max_parallel"},
		{"negative passing score", func(c *Config) { c.Review.MinPassingScore = -1 }, "review.min_passing_score"},
		{"passing score above 10", func(c *Config) { c.Review.MinPassingScore = 10.5 }, "review.min_passing_score"},
		{"zero line length", func(c *Config) { c.Review.MaxLineLength = 0 }, "review.max_line_length"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() = %v, want exactly one error", errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_AcceptedValues(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"uppercase log level", func(c *Config) { c.Logging.Level = "DEBUG" }},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }},
		{"disabled audit dir", func(c *Config) { c.Output.AuditDir = "" }},
		{"max parallelism", func(c *Config) { c.Development.MaxParallel = 64 }},
		{"boundary scores", func(c *Config) { c.Review.MinPassingScore = 10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if errs := cfg.Validate(); len(errs) != 0 {
				t.Errorf("Validate() = %v, want no errors", errs)
			}
		})
	}
}
