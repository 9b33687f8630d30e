// Package config loads codecrew's configuration through viper: defaults,
// an optional config.yaml, CODECREW_* environment variables and flags.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override settings,
// e.g. CODECREW_DEVELOPMENT_MAX_PARALLEL.
const EnvPrefix = "CODECREW"

// Config represents the complete codecrew configuration
type Config struct {
	Project     ProjectConfig     `mapstructure:"project" yaml:"project"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Development DevelopmentConfig `mapstructure:"development" yaml:"development"`
	Review      ReviewConfig      `mapstructure:"review" yaml:"review"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// ProjectConfig describes the generated project
type ProjectConfig struct {
	// Name is the project display name (default: "generated_project")
	Name string `mapstructure:"name" yaml:"name"`
}

// OutputConfig controls where artifacts are written
type OutputConfig struct {
	// Dir is the destination root for generated artifacts (default: "./generated_projects").
	// Supports ~ for home directory expansion.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// AuditDir receives the task graph snapshot after a run. A relative path is
	// resolved against Dir; empty disables the snapshot (default: ".codecrew")
	AuditDir string `mapstructure:"audit_dir" yaml:"audit_dir"`
}

// DevelopmentConfig controls the development phase
type DevelopmentConfig struct {
	// MaxParallel bounds how many ready tasks run at once (default: 1, sequential)
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel"`
}

// ReviewConfig controls the built-in heuristic reviewer
type ReviewConfig struct {
	// MinPassingScore is the score an artifact needs to pass, 0-10 (default: 6.0)
	MinPassingScore float64 `mapstructure:"min_passing_score" yaml:"min_passing_score"`
	// MaxLineLength is the longest line accepted before a warning (default: 120)
	MaxLineLength int `mapstructure:"max_line_length" yaml:"max_line_length"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory for codecrew.log; empty logs to stderr (default: "")
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			Name: "generated_project",
		},
		Output: OutputConfig{
			Dir:      "./generated_projects",
			AuditDir: ".codecrew",
		},
		Development: DevelopmentConfig{
			MaxParallel: 1,
		},
		Review: ReviewConfig{
			MinPassingScore: 6.0,
			MaxLineLength:   120,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("project.name", defaults.Project.Name)

	v.SetDefault("output.dir", defaults.Output.Dir)
	v.SetDefault("output.audit_dir", defaults.Output.AuditDir)

	v.SetDefault("development.max_parallel", defaults.Development.MaxParallel)

	v.SetDefault("review.min_passing_score", defaults.Review.MinPassingScore)
	v.SetDefault("review.max_line_length", defaults.Review.MaxLineLength)

	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
}

// BindEnv makes CODECREW_SECTION_KEY environment variables override v
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v and validates it
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ResolveOutputDir returns the output directory with ~ expanded.
func (o *OutputConfig) ResolveOutputDir() string {
	return expandHome(o.Dir)
}

// ResolveAuditDir returns the audit directory, resolved against the output
// directory when relative. It returns "" when auditing is disabled.
func (o *OutputConfig) ResolveAuditDir() string {
	if o.AuditDir == "" {
		return ""
	}
	dir := expandHome(o.AuditDir)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(o.ResolveOutputDir(), dir)
	}
	return dir
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	return path
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codecrew")
	}
	// Fall back to ~/.config/codecrew
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codecrew"
	}
	return filepath.Join(home, ".config", "codecrew")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
