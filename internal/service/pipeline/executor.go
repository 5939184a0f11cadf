package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"raillake/internal/domain"
)

// executeRun walks one pipeline run: the ingest level first, then each rule
// level in dependency order. Steps within a level run in parallel; once a
// level has a failure, every later step is marked skipped and the run fails.
func (s *PipelineService) executeRun(ctx context.Context, run *domain.PipelineRun, steps []domain.StepRun) {
	logger := s.logger.With("run_id", run.ID)

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v", r)
			logger.Error("pipeline run panicked", "error", msg)
			s.finishRun(ctx, run, domain.RunStatusFailed, &msg)
		}
	}()

	run.Status = domain.RunStatusRunning
	run.StartedAt = nowPtr()
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		logger.Error("mark run running", "error", err)
		return
	}

	failed := false
	for _, level := range s.stepLevels(steps) {
		if failed {
			for _, step := range level {
				s.finishStep(ctx, logger, step, domain.StepStatusSkipped, nil)
			}
			continue
		}

		// The zero-value group does not cancel siblings: every step in the
		// level runs to completion even when one fails.
		var g errgroup.Group
		for _, step := range level {
			g.Go(func() error { return s.executeStep(ctx, logger, step) })
		}
		if err := g.Wait(); err != nil {
			failed = true
		}
	}

	if failed {
		msg := "one or more steps failed"
		s.finishRun(ctx, run, domain.RunStatusFailed, &msg)
		logger.Warn("pipeline run failed")
		return
	}
	s.finishRun(ctx, run, domain.RunStatusSuccess, nil)
	logger.Info("pipeline run finished")
}

// stepLevels groups the run's steps for execution: all ingest steps first,
// then one group per resolved rule level.
func (s *PipelineService) stepLevels(steps []domain.StepRun) [][]*domain.StepRun {
	byKey := make(map[string]*domain.StepRun, len(steps))
	for i := range steps {
		byKey[steps[i].StepType+"/"+steps[i].StepName] = &steps[i]
	}

	var levels [][]*domain.StepRun

	var ingestLevel []*domain.StepRun
	for _, src := range s.ingest.Sources() {
		if step, ok := byKey[domain.StepTypeIngest+"/"+src.Name]; ok {
			ingestLevel = append(ingestLevel, step)
		}
	}
	if len(ingestLevel) > 0 {
		levels = append(levels, ingestLevel)
	}

	for _, level := range s.levels {
		var group []*domain.StepRun
		for _, name := range level {
			if step, ok := byKey[domain.StepTypeTransform+"/"+name]; ok {
				group = append(group, step)
			}
		}
		if len(group) > 0 {
			levels = append(levels, group)
		}
	}
	return levels
}

// executeStep runs one step and records its outcome on the step row.
func (s *PipelineService) executeStep(ctx context.Context, logger *slog.Logger, step *domain.StepRun) error {
	step.Status = domain.StepStatusRunning
	step.StartedAt = nowPtr()
	if err := s.runs.UpdateStep(ctx, step); err != nil {
		logger.Error("mark step running", "step", step.StepName, "error", err)
	}

	var err error
	switch step.StepType {
	case domain.StepTypeIngest:
		var res *ingestionResult
		res, err = s.runIngestStep(ctx, step)
		if err == nil {
			step.Version = &res.version
			step.RowCount = &res.rows
		}
	case domain.StepTypeTransform:
		var res *StepResult
		res, err = s.transform(ctx, s.rules[step.StepName])
		if err == nil {
			step.Version = &res.Version.Version
			step.RowCount = &res.Version.RowCount
			rejected := int64(len(res.Rejected))
			step.RejectedCount = &rejected
			step.RetryAttempt = res.Attempts - 1
		}
	default:
		err = domain.ErrValidation("unknown step type %q", step.StepType)
	}

	if err != nil {
		msg := err.Error()
		s.finishStep(ctx, logger, step, domain.StepStatusFailed, &msg)
		logger.Warn("step failed", "step", step.StepName, "type", step.StepType, "error", err)
		return err
	}

	s.finishStep(ctx, logger, step, domain.StepStatusSuccess, nil)
	return nil
}

type ingestionResult struct {
	version int64
	rows    int64
}

func (s *PipelineService) runIngestStep(ctx context.Context, step *domain.StepRun) (*ingestionResult, error) {
	res, err := s.ingest.Ingest(ctx, step.StepName)
	if err != nil {
		return nil, err
	}
	return &ingestionResult{version: res.Version.Version, rows: res.Version.RowCount}, nil
}

func (s *PipelineService) finishStep(ctx context.Context, logger *slog.Logger, step *domain.StepRun, status string, errMsg *string) {
	step.Status = status
	step.FinishedAt = nowPtr()
	step.ErrorMessage = errMsg
	if err := s.runs.UpdateStep(ctx, step); err != nil {
		logger.Error("record step outcome", "step", step.StepName, "error", err)
	}
}

func (s *PipelineService) finishRun(ctx context.Context, run *domain.PipelineRun, status string, errMsg *string) {
	run.Status = status
	run.FinishedAt = nowPtr()
	run.ErrorMessage = errMsg
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		s.logger.Error("record run outcome", "run_id", run.ID, "error", err)
	}
}
