package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"raillake/internal/domain"
	"raillake/internal/service/ingestion"
)

// Ingestor runs the bronze step for declared sources.
type Ingestor interface {
	Sources() []domain.Source
	Ingest(ctx context.Context, sourceName string) (*ingestion.Result, error)
}

// PipelineService executes the declared rule set. Rules and their execution
// order are fixed at construction; runs walk the ingest level first, then
// each rule level in dependency order.
//
//nolint:revive // Name chosen for clarity across package boundaries
type PipelineService struct {
	rules   map[string]domain.Rule
	names   []string
	levels  [][]string
	ingest  Ingestor
	planner domain.Planner
	writer  domain.Committer
	reader  domain.VersionReader
	runs    domain.RunRepository
	logger  *slog.Logger

	conflictRetries int
}

// NewPipelineService wires the declared rules against their executors. The
// rule graph is resolved once here; unknown inputs and cycles fail
// construction.
func NewPipelineService(
	rules []domain.Rule,
	ingest Ingestor,
	planner domain.Planner,
	writer domain.Committer,
	reader domain.VersionReader,
	runs domain.RunRepository,
	logger *slog.Logger,
) (*PipelineService, error) {
	sourceTables := make(map[string]bool)
	for _, src := range ingest.Sources() {
		sourceTables[src.Table] = true
	}
	levels, err := ResolveExecutionOrder(rules, sourceTables)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]domain.Rule, len(rules))
	names := make([]string, 0, len(rules))
	for _, r := range rules {
		byName[r.Name] = r
		names = append(names, r.Name)
	}
	return &PipelineService{
		rules:           byName,
		names:           names,
		levels:          levels,
		ingest:          ingest,
		planner:         planner,
		writer:          writer,
		reader:          reader,
		runs:            runs,
		logger:          logger,
		conflictRetries: 3,
	}, nil
}

// SetConflictRetries bounds how often a transform re-plans after losing a
// version race. Zero disables re-planning.
func (s *PipelineService) SetConflictRetries(n int) {
	if n >= 0 {
		s.conflictRetries = n
	}
}

// Rule returns the declared rule with the given name.
func (s *PipelineService) Rule(name string) (domain.Rule, error) {
	r, ok := s.rules[name]
	if !ok {
		return domain.Rule{}, domain.ErrNotFound("rule %q is not declared", name)
	}
	return r, nil
}

// Rules returns all declared rules in declaration order.
func (s *PipelineService) Rules() []domain.Rule {
	out := make([]domain.Rule, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.rules[name])
	}
	return out
}

// ExecutionLevels returns the resolved rule order: one slice of rule names
// per level, levels in dependency order.
func (s *PipelineService) ExecutionLevels() [][]string {
	out := make([][]string, len(s.levels))
	for i, level := range s.levels {
		out[i] = append([]string(nil), level...)
	}
	return out
}

// TargetSchemas derives the schema of every rule target by planning each
// rule over empty inputs, walking the levels so downstream rules see their
// upstream targets' derived schemas. The walk starts from the declared
// source schemas, so the result also covers source tables. A rule that is
// inconsistent with its input schemas fails here rather than at run time.
func (s *PipelineService) TargetSchemas() (map[string]domain.Schema, error) {
	schemas := make(map[string]domain.Schema)
	for _, src := range s.ingest.Sources() {
		schemas[src.Table] = src.Schema.Clone()
	}
	for _, level := range s.levels {
		for _, name := range level {
			rule := s.rules[name]
			inputs := make([]domain.PlanInput, len(rule.Inputs))
			for i, table := range rule.Inputs {
				up, ok := schemas[table]
				if !ok {
					return nil, domain.ErrValidation("rule %q reads table %q with no known schema", rule.Name, table)
				}
				inputs[i] = domain.PlanInput{
					Ref:    domain.VersionRef{Table: table, Version: 1},
					Schema: up,
				}
			}
			plan, err := s.planner.Plan(rule, inputs)
			if err != nil {
				return nil, err
			}
			schemas[rule.Target] = plan.Schema
		}
	}
	return schemas, nil
}

// StepResult describes one executed transformation step.
type StepResult struct {
	Rule     domain.Rule
	Version  *domain.TableVersion
	Inputs   []domain.VersionRef
	Rejected []domain.RejectedRow
	Attempts int
}

// Transform executes one declared rule against the current versions of its
// inputs and commits the outcome to the rule's target table.
//
// Losing the version race on the target (another commit landed on it between
// read and commit) re-reads the inputs and re-plans, bounded by the conflict
// retry budget.
func (s *PipelineService) Transform(ctx context.Context, ruleName string) (*StepResult, error) {
	rule, err := s.Rule(ruleName)
	if err != nil {
		return nil, err
	}
	return s.transform(ctx, rule)
}

func (s *PipelineService) transform(ctx context.Context, rule domain.Rule) (*StepResult, error) {
	for attempt := 1; ; attempt++ {
		res, err := s.planAndCommit(ctx, rule)
		if err == nil {
			res.Attempts = attempt
			return res, nil
		}
		var conflict *domain.VersionConflictError
		if !errors.As(err, &conflict) || attempt > s.conflictRetries {
			return nil, err
		}
		s.logger.Warn("transform lost version race, re-planning",
			"rule", rule.Name,
			"table", rule.Target,
			"attempt", attempt)
	}
}

// planAndCommit is one attempt: snapshot the inputs' current versions, run
// the pure plan, commit the result under the rule's identity.
func (s *PipelineService) planAndCommit(ctx context.Context, rule domain.Rule) (*StepResult, error) {
	inputs := make([]domain.PlanInput, len(rule.Inputs))
	refs := make([]domain.VersionRef, len(rule.Inputs))
	for i, table := range rule.Inputs {
		data, err := s.reader.ReadCurrent(ctx, table)
		if err != nil {
			return nil, err
		}
		refs[i] = domain.VersionRef{Table: data.TableName, Version: data.Version}
		inputs[i] = domain.PlanInput{Ref: refs[i], Schema: data.Schema, Rows: data.Rows}
	}

	plan, err := s.planner.Plan(rule, inputs)
	if err != nil {
		return nil, err
	}

	version, err := s.writer.Commit(ctx, domain.CommitRequest{
		Table:           rule.Target,
		Schema:          plan.Schema,
		Rows:            plan.Rows,
		RuleName:        rule.Name,
		RuleFingerprint: rule.Fingerprint(),
		Inputs:          refs,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("rule transformed",
		"rule", rule.Name,
		"table", rule.Target,
		"version", version.Version,
		"rows", len(plan.Rows),
		"rejected", len(plan.Rejected))

	return &StepResult{Rule: rule, Version: version, Inputs: refs, Rejected: plan.Rejected}, nil
}

// TriggerRun starts a full pipeline run in the background: every declared
// source, then every rule level in dependency order. The returned run is
// pending; poll GetRun for completion.
func (s *PipelineService) TriggerRun(ctx context.Context, trigger string) (*domain.PipelineRun, error) {
	run, steps, err := s.createRun(ctx, trigger)
	if err != nil {
		return nil, err
	}

	go s.executeRun(context.WithoutCancel(ctx), run, steps)

	return run, nil
}

// RunAll executes a full pipeline run synchronously and returns the finished
// run with its steps.
func (s *PipelineService) RunAll(ctx context.Context) (*domain.PipelineRun, []domain.StepRun, error) {
	run, steps, err := s.createRun(ctx, domain.TriggerTypeManual)
	if err != nil {
		return nil, nil, err
	}

	s.executeRun(ctx, run, steps)

	finished, err := s.runs.GetRun(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	finishedSteps, err := s.runs.ListSteps(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	return finished, finishedSteps, nil
}

// createRun records a pending run plus one pending step per source and rule.
func (s *PipelineService) createRun(ctx context.Context, trigger string) (*domain.PipelineRun, []domain.StepRun, error) {
	sources := s.ingest.Sources()
	if len(sources) == 0 && len(s.names) == 0 {
		return nil, nil, domain.ErrValidation("nothing to run: no sources or rules declared")
	}

	run := &domain.PipelineRun{
		ID:          domain.NewID(),
		Status:      domain.RunStatusPending,
		TriggerType: trigger,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, nil, err
	}

	var steps []domain.StepRun
	for _, src := range sources {
		steps = append(steps, domain.StepRun{
			ID:        domain.NewID(),
			RunID:     run.ID,
			StepName:  src.Name,
			StepType:  domain.StepTypeIngest,
			TableName: src.Table,
			Status:    domain.StepStatusPending,
		})
	}
	for _, level := range s.levels {
		for _, name := range level {
			rule := s.rules[name]
			steps = append(steps, domain.StepRun{
				ID:        domain.NewID(),
				RunID:     run.ID,
				StepName:  rule.Name,
				StepType:  domain.StepTypeTransform,
				TableName: rule.Target,
				Status:    domain.StepStatusPending,
			})
		}
	}
	for i := range steps {
		if err := s.runs.CreateStep(ctx, &steps[i]); err != nil {
			return nil, nil, err
		}
	}

	s.logger.Info("pipeline run created",
		"run_id", run.ID,
		"trigger", trigger,
		"steps", len(steps))

	return run, steps, nil
}

// GetRun returns one pipeline run.
func (s *PipelineService) GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	return s.runs.GetRun(ctx, runID)
}

// ListRuns returns pipeline runs, newest first.
func (s *PipelineService) ListRuns(ctx context.Context, page domain.PageRequest) ([]domain.PipelineRun, int64, error) {
	return s.runs.ListRuns(ctx, page)
}

// ListSteps returns the steps of a run in creation order.
func (s *PipelineService) ListSteps(ctx context.Context, runID string) ([]domain.StepRun, error) {
	if _, err := s.runs.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.runs.ListSteps(ctx, runID)
}

func nowPtr() *time.Time {
	t := time.Now().UTC()
	return &t
}
