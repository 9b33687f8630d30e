package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Iron-Ham/codecrew/internal/agents"
	"github.com/Iron-Ham/codecrew/internal/bus"
	"github.com/Iron-Ham/codecrew/internal/config"
	"github.com/Iron-Ham/codecrew/internal/logging"
	"github.com/Iron-Ham/codecrew/internal/orchestrator"
	"github.com/Iron-Ham/codecrew/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var runCmd = &cobra.Command{
	Use:   "run [requirement]",
	Short: "Generate a project from a requirement",
	Long: `Run a requirement through planning, development, review and output.

The requirement is given as an argument, read from --file, taken from the
argument when it names an existing file, typed on stdin with --interactive
(finish with a line containing END), or built in with --demo. Without --plan the requirement's
bullet lines become coding tasks; with --plan the tasks come from a YAML or
JSON plan file.

Examples:
  codecrew run "- user model
- login handler"

  codecrew run --file requirements.md --output ./out

  codecrew run --plan plan.yaml --parallel 4 --watch

  codecrew run --file requirements.md --tui

  codecrew run --interactive

  codecrew run --demo --output ./arxiv-browser`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	runRequirementFile string
	runPlanFile        string
	runWatch           bool
	runTUI             bool
	runInteractive     bool
	runDemo            bool
)

// watchDebounce is how long file events must settle before a rerun.
const watchDebounce = 300 * time.Millisecond

func init() {
	runCmd.Flags().StringVarP(&runRequirementFile, "file", "f", "", "read the requirement from a file")
	runCmd.Flags().StringVarP(&runPlanFile, "plan", "p", "", "load tasks from a YAML or JSON plan file")
	runCmd.Flags().StringP("output", "o", "", "output directory (overrides output.dir)")
	runCmd.Flags().Int("parallel", 0, "maximum tasks run at once (overrides development.max_parallel)")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "rerun when the requirement or plan file changes")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show an interactive dashboard instead of progress lines")
	runCmd.Flags().BoolVarP(&runInteractive, "interactive", "i", false, "type the requirement on stdin, ending with a line containing END")
	runCmd.Flags().BoolVar(&runDemo, "demo", false, "run the built-in arXiv browser requirement")
	runCmd.MarkFlagsMutuallyExclusive("watch", "tui")
	runCmd.MarkFlagsMutuallyExclusive("file", "interactive", "demo")
	runCmd.MarkFlagsMutuallyExclusive("watch", "interactive")

	_ = viper.BindPFlag("output.dir", runCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("development.max_parallel", runCmd.Flags().Lookup("parallel"))

	rootCmd.AddCommand(runCmd)
}

// interactiveTerminator ends a requirement typed with --interactive.
const interactiveTerminator = "END"

// runInput says where a run's requirement and plan come from.
type runInput struct {
	requirement     string
	requirementFile string
	planFile        string

	// text is requirement text that is never read as a file name.
	text string
	// stdin, when set, supplies the requirement interactively.
	stdin io.Reader
	demo  bool
}

// load returns the requirement text. An argument naming an existing file is
// read like --file.
func (in runInput) load() (string, error) {
	switch {
	case in.demo:
		return demoRequirement, nil
	case in.text != "":
		return in.text, nil
	case in.stdin != nil:
		return readUntilEnd(in.stdin)
	}

	path := in.requirementFile
	if path == "" && in.requirement != "" {
		if info, err := os.Stat(in.requirement); err == nil && !info.IsDir() {
			path = in.requirement
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("requirement file not found: %s", path)
			}
			return "", fmt.Errorf("failed to read requirement file: %w", err)
		}
		return string(data), nil
	}
	if strings.TrimSpace(in.requirement) == "" && in.planFile == "" {
		return "", fmt.Errorf("a requirement argument, --file or --plan is required")
	}
	return in.requirement, nil
}

// readUntilEnd reads lines until one is END (any case) or the input ends.
func readUntilEnd(r io.Reader) (string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.EqualFold(strings.TrimSpace(line), interactiveTerminator) {
			break
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read requirement: %w", err)
	}
	text := strings.Join(lines, "\n")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no requirement entered")
	}
	return text, nil
}

// watched returns the files whose changes trigger a rerun.
func (in runInput) watched() []string {
	var paths []string
	if in.requirementFile != "" {
		paths = append(paths, in.requirementFile)
	} else if in.requirement != "" {
		if info, err := os.Stat(in.requirement); err == nil && !info.IsDir() {
			paths = append(paths, in.requirement)
		}
	}
	if in.planFile != "" {
		paths = append(paths, in.planFile)
	}
	return paths
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	in := runInput{requirementFile: runRequirementFile, planFile: runPlanFile, demo: runDemo}
	if len(args) > 0 {
		in.requirement = args[0]
	}
	if runInteractive {
		fmt.Fprintf(cmd.OutOrStdout(), "Enter the requirement (finish with a line containing %s):\n", interactiveTerminator)
		in.stdin = cmd.InOrStdin()
	}
	// Fail fast on missing input before anything is created on disk.
	requirement, err := in.load()
	if err != nil {
		return err
	}
	if in.stdin != nil {
		// Stdin can only be read once.
		in = runInput{text: requirement, planFile: in.planFile}
	}
	if in.demo {
		fmt.Fprintln(cmd.OutOrStdout(), "demo: arXiv paper browser")
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	destRoot := cfg.Output.ResolveOutputDir()
	if runTUI {
		return executeWithDashboard(ctx, cfg, in, destRoot, logger)
	}

	orch := newOrchestrator(cfg, in.planFile, report.NewConsole(cmd.OutOrStdout()), logger)
	if !runWatch {
		return execute(ctx, orch, in, destRoot, cmd.OutOrStdout())
	}

	paths := in.watched()
	if len(paths) == 0 {
		return fmt.Errorf("--watch needs a requirement file or a plan file")
	}
	_ = execute(ctx, orch, in, destRoot, cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "watching %s (Ctrl+C to stop)\n", strings.Join(paths, ", "))

	err = watchFiles(ctx, paths, watchDebounce, logger, func() {
		_ = execute(ctx, orch, in, destRoot, cmd.OutOrStdout())
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// execute performs one run. The console reporter has already shown any
// failure, so the error is only returned to set the exit code.
func execute(ctx context.Context, orch *orchestrator.Orchestrator, in runInput, destRoot string, out io.Writer) error {
	requirement, err := in.load()
	if err != nil {
		fmt.Fprintln(out, err)
		return err
	}
	if _, err := orch.Run(ctx, requirement, destRoot); err != nil {
		return err
	}
	fmt.Fprintf(out, "output written to %s\n", destRoot)
	return nil
}

// executeWithDashboard performs one run behind the interactive dashboard.
// Quitting the dashboard cancels the run.
func executeWithDashboard(ctx context.Context, cfg *config.Config, in runInput, destRoot string, logger *logging.Logger) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("--tui needs an interactive terminal")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dash := report.NewDashboard(os.Stdout)
	orch := newOrchestrator(cfg, in.planFile, dash, logger)

	done := make(chan error, 1)
	go func() {
		done <- execute(ctx, orch, in, destRoot, io.Discard)
	}()

	aborted, err := dash.Run()
	if aborted || err != nil {
		cancel()
	}
	runErr := <-done
	if err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	if aborted {
		return fmt.Errorf("run aborted")
	}
	return runErr
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	if !cfg.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLogger(cfg.Dir, cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// newOrchestrator wires the built-in collaborators, the reporter and the
// message journal according to cfg.
func newOrchestrator(cfg *config.Config, planFile string, reporter orchestrator.Reporter, logger *logging.Logger) *orchestrator.Orchestrator {
	b := bus.New(bus.WithLogger(logger))
	if auditDir := cfg.Output.ResolveAuditDir(); auditDir != "" {
		bus.NewJournal(auditDir, logger).Attach(b)
	}

	orch := orchestrator.New(
		orchestrator.WithBus(b),
		orchestrator.WithLogger(logger),
		orchestrator.WithName(cfg.Project.Name),
		orchestrator.WithReporter(reporter),
		orchestrator.WithDispatcher(orchestrator.NewDispatcher(cfg.Development.MaxParallel)),
		orchestrator.WithWriter(agents.NewFileWriter()),
		orchestrator.WithAuditDir(cfg.Output.AuditDir),
	)

	var planner orchestrator.Planner = agents.NewOutlinePlanner()
	if planFile != "" {
		planner = agents.NewPlanFilePlanner(planFile)
	}
	reviewer := agents.NewHeuristicReviewer(agents.ReviewerConfig{
		MinPassingScore: cfg.Review.MinPassingScore,
		MaxLineLength:   cfg.Review.MaxLineLength,
	})

	// Registration only fails for a nil or mismatched handle.
	_ = orch.Register(orchestrator.RolePlanner, planner)
	_ = orch.Register(orchestrator.RoleCoder, agents.NewScaffoldCoder())
	_ = orch.Register(orchestrator.RoleReviewer, reviewer)
	return orch
}
