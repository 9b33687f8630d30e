// Package logging provides structured logging for codecrew runs.
//
// Logs are JSON lines produced by log/slog. A run writes to
// {dir}/codecrew.log, or to stderr when no directory is configured.
// Child loggers carry run, phase, task and role attributes so that a single
// log file can be filtered per task after the fact:
//
//	logger, err := logging.NewLogger(".codecrew", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithRun(runID).WithPhase("development")
//	runLog.WithTask("task-3").Info("task completed", "files", 2)
//
// All types in this package are safe for concurrent use. Child loggers share
// the parent's writer.
package logging
