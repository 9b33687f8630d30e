package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Iron-Ham/codecrew/internal/agents"
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Inspect and validate plans",
}

var planValidateCmd = &cobra.Command{
	Use:   "validate <plan-file>",
	Short: "Validate a YAML or JSON plan file",
	Long: `Validate a plan file the way "codecrew run --plan" would load it.

This command checks:
  - Valid YAML or JSON syntax
  - Known task kinds and unique task IDs
  - Dependency references and cycles

On success the tasks that are ready to start are listed.

The exit code indicates the result:
  0 - Plan is valid
  1 - Plan could not be parsed or loaded`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanValidate,
}

var planPreviewCmd = &cobra.Command{
	Use:   "preview <requirement>",
	Short: "Print the plan built from a requirement as YAML",
	Long: `Print the plan "codecrew run" would build from a requirement without
--plan. The output can be edited and passed back with --plan.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanPreview,
}

var planValidateJSON bool

func init() {
	planValidateCmd.Flags().BoolVar(&planValidateJSON, "json", false, "Output validation result as JSON")

	planCmd.AddCommand(planValidateCmd)
	planCmd.AddCommand(planPreviewCmd)
	rootCmd.AddCommand(planCmd)
}

// PlanValidation is the JSON output of "plan validate".
type PlanValidation struct {
	Valid     bool     `json:"valid"`
	FilePath  string   `json:"file_path"`
	Name      string   `json:"name,omitempty"`
	TaskCount int      `json:"task_count"`
	Ready     []string `json:"ready,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func runPlanValidate(cmd *cobra.Command, args []string) error {
	result, plan := validatePlanFile(args[0])
	out := cmd.OutOrStdout()

	if planValidateJSON {
		return outputJSON(out, result)
	}
	if !result.Valid {
		return fmt.Errorf("%s", result.Error)
	}
	outputHuman(out, result, plan)
	return nil
}

// validatePlanFile loads path into a fresh task graph. plan is nil when the
// file could not be parsed.
func validatePlanFile(path string) (PlanValidation, *state.Plan) {
	result := PlanValidation{FilePath: path}

	plan, err := agents.LoadPlanFile(path)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	result.Name = plan.Name
	result.TaskCount = len(plan.Tasks)

	store := taskgraph.NewStore()
	if err := store.AddBatch(plan.Tasks); err != nil {
		result.Error = err.Error()
		return result, plan
	}

	result.Valid = true
	for _, t := range store.ReadyTasks() {
		result.Ready = append(result.Ready, t.ID)
	}
	return result, plan
}

// outputJSON prints the validation output as formatted JSON.
// Returns a silentError if validation failed to signal exit code 1.
func outputJSON(out io.Writer, result PlanValidation) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(out, string(data))

	if !result.Valid {
		return &silentError{}
	}
	return nil
}

// silentError signals that validation failed but output was already provided.
// Used to set exit code 1 without Cobra printing a duplicate error message.
type silentError struct{}

func (e *silentError) Error() string {
	return "validation failed"
}

func outputHuman(out io.Writer, result PlanValidation, plan *state.Plan) {
	fmt.Fprintf(out, "Validating: %s\n\n", result.FilePath)
	fmt.Fprintf(out, "Plan: %s (%d tasks)\n", plan.Name, result.TaskCount)
	for _, t := range plan.Tasks {
		line := fmt.Sprintf("  %-20s %-14s p%d", t.ID, t.Kind, t.Priority)
		if len(t.DependsOn) > 0 {
			line += fmt.Sprintf("  after %v", t.DependsOn)
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Plan is valid. Ready to start: %v\n", result.Ready)
}

func runPlanPreview(cmd *cobra.Command, args []string) error {
	plan, err := agents.NewOutlinePlanner().CreatePlan(context.Background(), args[0])
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
