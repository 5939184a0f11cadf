package repository

import (
	"context"
	"database/sql"
	"time"

	"raillake/internal/domain"
)

// Compile-time check.
var _ domain.RunRepository = (*RunRepo)(nil)

// RunRepo implements domain.RunRepository using SQLite.
type RunRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewRunRepo creates a new RunRepo over the metastore pool pair.
func NewRunRepo(writeDB, readDB *sql.DB) *RunRepo {
	return &RunRepo{writeDB: writeDB, readDB: readDB}
}

// CreateRun inserts a new pipeline run.
func (r *RunRepo) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	if run.ID == "" {
		run.ID = domain.NewID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := r.writeDB.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, trigger_type, started_at, finished_at, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.TriggerType, nullTimeFromPtr(run.StartedAt),
		nullTimeFromPtr(run.FinishedAt), nullStrFromPtr(run.ErrorMessage), run.CreatedAt)
	return err
}

// UpdateRun updates the mutable fields of a pipeline run.
func (r *RunRepo) UpdateRun(ctx context.Context, run *domain.PipelineRun) error {
	res, err := r.writeDB.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, started_at = ?, finished_at = ?, error_message = ? WHERE id = ?`,
		run.Status, nullTimeFromPtr(run.StartedAt), nullTimeFromPtr(run.FinishedAt),
		nullStrFromPtr(run.ErrorMessage), run.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound("run %q not found", run.ID)
	}
	return nil
}

const runColumns = `id, status, trigger_type, started_at, finished_at, error_message, created_at`

func scanRun(row interface{ Scan(...any) error }) (*domain.PipelineRun, error) {
	var (
		run        domain.PipelineRun
		startedAt  sql.NullTime
		finishedAt sql.NullTime
		errMsg     sql.NullString
	)
	err := row.Scan(&run.ID, &run.Status, &run.TriggerType, &startedAt, &finishedAt, &errMsg, &run.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	run.StartedAt = ptrFromNullTime(startedAt)
	run.FinishedAt = ptrFromNullTime(finishedAt)
	run.ErrorMessage = ptrFromNullStr(errMsg)
	return &run, nil
}

// GetRun returns one pipeline run.
func (r *RunRepo) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	run, err := scanRun(r.readDB.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound("run %q not found", id)
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns pipeline runs, newest first.
func (r *RunRepo) ListRuns(ctx context.Context, page domain.PageRequest) ([]domain.PipelineRun, int64, error) {
	var total int64
	if err := r.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.readDB.QueryContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	runs := make([]domain.PipelineRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// CreateStep inserts a new step run.
func (r *RunRepo) CreateStep(ctx context.Context, step *domain.StepRun) error {
	if step.ID == "" {
		step.ID = domain.NewID()
	}
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}
	_, err := r.writeDB.ExecContext(ctx,
		`INSERT INTO step_runs (id, run_id, step_name, step_type, table_name, version, row_count, rejected_count, status, retry_attempt, started_at, finished_at, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.RunID, step.StepName, step.StepType, step.TableName,
		nullInt64FromPtr(step.Version), nullInt64FromPtr(step.RowCount), nullInt64FromPtr(step.RejectedCount),
		step.Status, step.RetryAttempt, nullTimeFromPtr(step.StartedAt), nullTimeFromPtr(step.FinishedAt),
		nullStrFromPtr(step.ErrorMessage), step.CreatedAt)
	return err
}

// UpdateStep updates the mutable fields of a step run.
func (r *RunRepo) UpdateStep(ctx context.Context, step *domain.StepRun) error {
	res, err := r.writeDB.ExecContext(ctx,
		`UPDATE step_runs SET version = ?, row_count = ?, rejected_count = ?, status = ?, retry_attempt = ?, started_at = ?, finished_at = ?, error_message = ? WHERE id = ?`,
		nullInt64FromPtr(step.Version), nullInt64FromPtr(step.RowCount), nullInt64FromPtr(step.RejectedCount),
		step.Status, step.RetryAttempt, nullTimeFromPtr(step.StartedAt), nullTimeFromPtr(step.FinishedAt),
		nullStrFromPtr(step.ErrorMessage), step.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound("step %q not found", step.ID)
	}
	return nil
}

const stepColumns = `id, run_id, step_name, step_type, table_name, version, row_count, rejected_count, status, retry_attempt, started_at, finished_at, error_message, created_at`

func scanStep(row interface{ Scan(...any) error }) (*domain.StepRun, error) {
	var (
		step          domain.StepRun
		version       sql.NullInt64
		rowCount      sql.NullInt64
		rejectedCount sql.NullInt64
		startedAt     sql.NullTime
		finishedAt    sql.NullTime
		errMsg        sql.NullString
	)
	err := row.Scan(&step.ID, &step.RunID, &step.StepName, &step.StepType, &step.TableName,
		&version, &rowCount, &rejectedCount, &step.Status, &step.RetryAttempt,
		&startedAt, &finishedAt, &errMsg, &step.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	step.Version = ptrFromNullInt64(version)
	step.RowCount = ptrFromNullInt64(rowCount)
	step.RejectedCount = ptrFromNullInt64(rejectedCount)
	step.StartedAt = ptrFromNullTime(startedAt)
	step.FinishedAt = ptrFromNullTime(finishedAt)
	step.ErrorMessage = ptrFromNullStr(errMsg)
	return &step, nil
}

// ListSteps returns all steps of a run in creation order.
func (r *RunRepo) ListSteps(ctx context.Context, runID string) ([]domain.StepRun, error) {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT `+stepColumns+` FROM step_runs WHERE run_id = ? ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	steps := make([]domain.StepRun, 0)
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}
