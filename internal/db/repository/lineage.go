package repository

import (
	"context"
	"database/sql"

	"raillake/internal/domain"
)

// Compile-time check.
var _ domain.LineageRepository = (*LineageRepo)(nil)

// LineageRepo implements domain.LineageRepository using SQLite. Lineage is
// written by VersionRepo.Commit; this repo only reads it back.
type LineageRepo struct {
	readDB *sql.DB
}

// NewLineageRepo creates a new LineageRepo over the metastore read pool.
func NewLineageRepo(readDB *sql.DB) *LineageRepo {
	return &LineageRepo{readDB: readDB}
}

const lineageColumns = `id, version_id, table_name, version, rule_name, rule_fingerprint, created_at`

func scanLineage(row interface{ Scan(...any) error }) (*domain.LineageRecord, error) {
	var l domain.LineageRecord
	err := row.Scan(&l.ID, &l.OutputVersionID, &l.TableName, &l.Version, &l.RuleName, &l.RuleFingerprint, &l.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &l, nil
}

func (r *LineageRepo) loadInputs(ctx context.Context, lineageID string) ([]domain.LineageInput, error) {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT input_table, input_version FROM lineage_inputs WHERE lineage_id = ? ORDER BY input_order`,
		lineageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	inputs := make([]domain.LineageInput, 0)
	for rows.Next() {
		var in domain.LineageInput
		if err := rows.Scan(&in.TableName, &in.Version); err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

// GetForVersion returns the lineage record written when the given version
// was committed.
func (r *LineageRepo) GetForVersion(ctx context.Context, tableName string, version int64) (*domain.LineageRecord, error) {
	l, err := scanLineage(r.readDB.QueryRowContext(ctx,
		`SELECT `+lineageColumns+` FROM lineage_records WHERE table_name = ? AND version = ?`,
		tableName, version))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound("no lineage for version %d of table %q", version, tableName)
		}
		return nil, err
	}
	if l.Inputs, err = r.loadInputs(ctx, l.ID); err != nil {
		return nil, err
	}
	return l, nil
}

// ListDownstream returns the lineage records of commits that consumed the
// given version as an input, oldest first.
func (r *LineageRepo) ListDownstream(ctx context.Context, tableName string, version int64) ([]domain.LineageRecord, error) {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT `+lineageColumns+` FROM lineage_records
		 WHERE id IN (SELECT lineage_id FROM lineage_inputs WHERE input_table = ? AND input_version = ?)
		 ORDER BY created_at, table_name, version`,
		tableName, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	records := make([]domain.LineageRecord, 0)
	for rows.Next() {
		l, err := scanLineage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		if records[i].Inputs, err = r.loadInputs(ctx, records[i].ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}
