package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/codecrew/internal/bus"
	"github.com/Iron-Ham/codecrew/internal/errors"
	"github.com/Iron-Ham/codecrew/internal/state"
	"github.com/Iron-Ham/codecrew/internal/taskgraph"
)

// runPlanning asks the planner for a plan and loads its tasks.
func (o *Orchestrator) runPlanning(ctx context.Context, r *run) error {
	log := r.logger.WithPhase(PhasePlanning.String())

	planner, err := o.planner()
	if err != nil {
		return err
	}

	plan, err := planner.CreatePlan(ctx, r.requirement)
	if err != nil {
		return errors.Wrap(err, "planning failed")
	}
	if plan == nil {
		return errors.NewValidationError("planner returned no plan").WithField("plan").WithFatal(true)
	}

	if err := r.store.AddBatch(plan.Tasks); err != nil {
		return errors.Wrap(err, "load plan tasks")
	}
	if err := r.store.AddBatch(pipelineTasks()); err != nil {
		return errors.Wrap(err, "add pipeline tasks")
	}
	r.agg.SetPlan(plan)

	for taskID, missing := range r.store.UnresolvedDependencies() {
		log.Warn("task depends on unknown tasks and can never run", "task_id", taskID, "missing", missing)
	}

	o.completePlanningTasks(r)
	r.agg.SetProgress(r.store.Progress())

	log.Info("plan loaded",
		"name", plan.Name,
		"tasks", len(plan.Tasks),
		"ready", len(developmentWave(r.store)),
	)
	return nil
}

// completePlanningTasks marks ready planning-kind tasks completed: the
// planner has already done that work by producing the plan. Planning tasks
// that depend on other planning tasks are completed in turn.
func (o *Orchestrator) completePlanningTasks(r *run) {
	for {
		ready := r.store.ReadyTasksOfKind(taskgraph.KindPlanning)
		if len(ready) == 0 {
			return
		}
		for _, task := range ready {
			r.store.Assign(task.ID, string(RolePlanner))
			if err := r.store.UpdateStatus(task.ID, taskgraph.StatusCompleted, map[string]any{"planned": true}); err != nil {
				r.logger.Warn("cannot complete planning task", "task_id", task.ID, "error", err.Error())
				return
			}
		}
	}
}

// runDevelopment dispatches waves of ready tasks until the frontier is empty.
func (o *Orchestrator) runDevelopment(ctx context.Context, r *run) error {
	log := r.logger.WithPhase(PhaseDevelopment.String())

	coder, err := o.coder()
	if err != nil {
		return err
	}

	waves := 0
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "development phase")
		}

		o.completePlanningTasks(r)
		wave := developmentWave(r.store)
		if len(wave) == 0 {
			break
		}
		waves++
		log.Debug("dispatching wave", "wave", waves, "tasks", len(wave))

		o.dispatcher.Dispatch(ctx, wave, func(ctx context.Context, task taskgraph.Task) {
			o.executeTask(ctx, r, coder, task)
		})

		// A task that could not leave pending would otherwise be polled forever.
		for _, task := range wave {
			if t, ok := r.store.Get(task.ID); ok && t.Status == taskgraph.StatusPending && ctx.Err() == nil {
				return fmt.Errorf("development phase: task %s was dispatched but is still pending", task.ID)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "development phase")
	}

	for _, task := range r.store.Stranded() {
		log.Warn("task can never run because a dependency failed or is missing",
			"task_id", task.ID, "depends_on", task.DependsOn)
	}

	counts := r.store.Status()
	log.Info("development finished",
		"waves", waves,
		"completed", counts.Completed,
		"failed", counts.Failed,
		"pending", counts.Pending,
	)
	return nil
}

// executeTask runs one task through the coder. Errors are contained: the
// task is marked failed and the run continues.
func (o *Orchestrator) executeTask(ctx context.Context, r *run, coder Coder, task taskgraph.Task) {
	log := r.logger.WithPhase(PhaseDevelopment.String()).WithTask(task.ID)

	r.store.Assign(task.ID, string(RoleCoder))
	if err := r.store.UpdateStatus(task.ID, taskgraph.StatusInProgress, nil); err != nil {
		// The task cannot start; record it as failed so the wave makes progress.
		o.recordTaskFailure(r, task, errors.NewTaskExecutionError(task.ID, err))
		return
	}
	task.Status = taskgraph.StatusInProgress
	task.AssignedTo = string(RoleCoder)

	assignment := o.publish(bus.Message{
		Kind:          bus.KindAssignment,
		Receiver:      string(RoleCoder),
		CorrelationID: task.ID,
		Content: map[string]any{
			"task_id": task.ID,
			"kind":    task.Kind.String(),
			"title":   task.Title,
		},
	})
	o.reporter.TaskStarted(task)
	log.Info("task started", "kind", task.Kind.String(), "title", task.Title)

	snap, _ := r.agg.Snapshot()
	artifacts, err := generate(ctx, coder, task, snap)
	if err != nil {
		o.recordTaskFailure(r, task, err)
		return
	}

	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		r.agg.AddArtifact(a)
		paths = append(paths, a.Path)
	}
	if err := r.store.UpdateStatus(task.ID, taskgraph.StatusCompleted, map[string]any{"files": paths}); err != nil {
		log.Error("cannot complete task", "error", err.Error())
	}
	r.agg.SetProgress(r.store.Progress())

	o.publish(bus.Message{
		Kind:          bus.KindSubmission,
		Receiver:      bus.Broadcast,
		CorrelationID: assignment.ID,
		Content:       map[string]any{"task_id": task.ID, "files": paths},
	})
	task.Status = taskgraph.StatusCompleted
	o.reporter.TaskFinished(task, artifacts, nil)
	log.Info("task completed", "files", len(paths))
}

// generate calls the coder, turning a panic into an ordinary task error.
func generate(ctx context.Context, coder Coder, task taskgraph.Task, snap state.ProjectState) (artifacts []state.Artifact, err error) {
	defer func() {
		if p := recover(); p != nil {
			artifacts = nil
			err = fmt.Errorf("coder panicked: %v", p)
		}
	}()
	return coder.GenerateCode(ctx, task, snap)
}

func (o *Orchestrator) recordTaskFailure(r *run, task taskgraph.Task, err error) {
	log := r.logger.WithPhase(PhaseDevelopment.String()).WithTask(task.ID)

	if uerr := r.store.UpdateStatus(task.ID, taskgraph.StatusFailed, map[string]any{"error": err.Error()}); uerr != nil {
		log.Error("cannot mark task failed", "error", uerr.Error())
	}
	r.agg.AddError(taskFailure(task.ID, err))
	r.agg.SetProgress(r.store.Progress())

	o.publish(bus.Message{
		Kind:          bus.KindError,
		Receiver:      bus.Broadcast,
		CorrelationID: task.ID,
		Content:       map[string]any{"task_id": task.ID, "error": err.Error(), "fatal": false},
	})
	task.Status = taskgraph.StatusFailed
	o.reporter.TaskFinished(task, nil, errors.NewTaskExecutionError(task.ID, err))
	log.Warn("task failed", "error", err.Error())
}

// runReview hands the artifacts to the reviewer. With no artifacts the phase
// is skipped, even when no reviewer is registered.
func (o *Orchestrator) runReview(ctx context.Context, r *run) error {
	log := r.logger.WithPhase(PhaseReview.String())

	snap, _ := r.agg.Snapshot()
	if len(snap.Artifacts) == 0 {
		log.Info("no artifacts to review, skipping")
		o.completeReviewTasks(r, map[string]any{"skipped": true})
		o.reporter.ReviewSummary(nil, true)
		return nil
	}

	reviewer, err := o.reviewer()
	if err != nil {
		return err
	}

	outcomes, err := reviewer.ReviewProject(ctx, snap)
	if err != nil {
		return errors.Wrap(err, "review failed")
	}

	passed := 0
	for _, outcome := range outcomes {
		r.agg.AddReview(outcome)
		if outcome.Passed {
			passed++
		}
		o.publish(bus.Message{
			Kind:          bus.KindReviewResult,
			Receiver:      bus.Broadcast,
			CorrelationID: r.id,
			Content: map[string]any{
				"target_path": outcome.TargetPath,
				"passed":      outcome.Passed,
				"score":       outcome.Score,
				"issues":      len(outcome.Issues),
			},
		})
	}
	o.completeReviewTasks(r, map[string]any{"reviews": len(outcomes), "passed": passed})
	r.agg.SetProgress(r.store.Progress())
	o.reporter.ReviewSummary(outcomes, false)

	log.Info("review finished", "reviews", len(outcomes), "passed", passed)
	return nil
}

// completeReviewTasks completes every ready review-kind task, including the
// pipeline review task.
func (o *Orchestrator) completeReviewTasks(r *run, result map[string]any) {
	for _, task := range r.store.ReadyTasksOfKind(taskgraph.KindReview) {
		r.store.Assign(task.ID, string(RoleReviewer))
		if err := r.store.UpdateStatus(task.ID, taskgraph.StatusCompleted, result); err != nil {
			r.logger.Warn("cannot complete review task", "task_id", task.ID, "error", err.Error())
		}
	}
}

// runOutput writes every artifact under the destination root. Paths are
// validated before the first write; a failed write aborts the run without
// removing files already written.
func (o *Orchestrator) runOutput(ctx context.Context, r *run) error {
	log := r.logger.WithPhase(PhaseOutput.String())
	snap, _ := r.agg.Snapshot()

	for _, a := range snap.Artifacts {
		if err := validateArtifactPath(a.Path); err != nil {
			o.finishOutputTask(r, err)
			return err
		}
	}

	if len(snap.Artifacts) > 0 && o.writer == nil {
		err := errors.NewAgentNotRegisteredError(roleWriter)
		o.finishOutputTask(r, err)
		return err
	}

	if err := r.store.UpdateStatus(PipelineOutputTaskID, taskgraph.StatusInProgress, nil); err != nil {
		r.logger.Debug("pipeline output task not started", "error", err.Error())
	}
	for _, a := range snap.Artifacts {
		if err := ctx.Err(); err != nil {
			cerr := errors.Wrap(err, "output phase")
			o.finishOutputTask(r, cerr)
			return cerr
		}
		if err := o.writer.WriteArtifact(ctx, a.Path, a.Content, r.destRoot); err != nil {
			werr := errors.Wrapf(err, "write artifact %s", a.Path)
			o.finishOutputTask(r, werr)
			return werr
		}
		log.Debug("artifact written", "path", a.Path, "bytes", len(a.Content))
	}
	o.finishOutputTask(r, nil)

	if o.auditDir != "" {
		dir := o.auditDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(r.destRoot, dir)
		}
		if err := r.store.SaveSnapshot(dir); err != nil {
			log.Warn("failed to save task snapshot", "dir", dir, "error", err.Error())
		} else {
			log.Debug("task snapshot saved", "dir", dir)
		}
	}

	log.Info("artifacts written", "count", len(snap.Artifacts), "destination", r.destRoot)
	return nil
}

// finishOutputTask records the outcome of the pipeline output task.
func (o *Orchestrator) finishOutputTask(r *run, err error) {
	status := taskgraph.StatusCompleted
	result := map[string]any{}
	if err != nil {
		status = taskgraph.StatusFailed
		result["error"] = err.Error()
	}
	if uerr := r.store.UpdateStatus(PipelineOutputTaskID, status, result); uerr != nil {
		r.logger.Debug("pipeline output task not updated", "error", uerr.Error())
	}
	r.agg.SetProgress(r.store.Progress())
}

// validateArtifactPath rejects paths that would be written outside the
// destination root.
func validateArtifactPath(path string) error {
	switch {
	case strings.TrimSpace(path) == "":
		return errors.NewValidationError("artifact path cannot be empty").WithField("path").WithFatal(true)
	case filepath.IsAbs(path) || strings.HasPrefix(path, "/"):
		return errors.NewValidationError("artifact path must be relative").
			WithField("path").WithValue(path).WithFatal(true)
	case !filepath.IsLocal(path):
		return errors.NewValidationError("artifact path escapes the destination root").
			WithField("path").WithValue(path).WithFatal(true)
	}
	return nil
}
