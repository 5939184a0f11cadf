package repository

import (
	"context"
	"database/sql"

	"raillake/internal/domain"
)

// Compile-time check.
var _ domain.BatchRepository = (*BatchRepo)(nil)

// BatchRepo implements domain.BatchRepository using SQLite.
type BatchRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewBatchRepo creates a new BatchRepo over the metastore pool pair.
func NewBatchRepo(writeDB, readDB *sql.DB) *BatchRepo {
	return &BatchRepo{writeDB: writeDB, readDB: readDB}
}

// Create records one landed batch.
func (r *BatchRepo) Create(ctx context.Context, b *domain.BatchRecord) error {
	if b.ID == "" {
		b.ID = domain.NewID()
	}
	_, err := r.writeDB.ExecContext(ctx,
		`INSERT INTO raw_batches (id, source_name, uri, format, table_name, version, row_count, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.SourceName, b.URI, string(b.Format), b.TableName, b.Version, b.RowCount, b.IngestedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict("batch %q already recorded", b.ID)
		}
		return err
	}
	return nil
}

const batchColumns = `id, source_name, uri, format, table_name, version, row_count, ingested_at`

func scanBatch(row interface{ Scan(...any) error }) (*domain.BatchRecord, error) {
	var (
		b      domain.BatchRecord
		format string
	)
	err := row.Scan(&b.ID, &b.SourceName, &b.URI, &format, &b.TableName, &b.Version, &b.RowCount, &b.IngestedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	b.Format = domain.SourceFormat(format)
	return &b, nil
}

// GetByID returns one batch record.
func (r *BatchRepo) GetByID(ctx context.Context, id string) (*domain.BatchRecord, error) {
	b, err := scanBatch(r.readDB.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM raw_batches WHERE id = ?`, id))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound("batch %q not found", id)
		}
		return nil, err
	}
	return b, nil
}

// List returns batch records, newest first.
func (r *BatchRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.BatchRecord, int64, error) {
	var total int64
	if err := r.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_batches`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.readDB.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM raw_batches ORDER BY ingested_at DESC, id LIMIT ? OFFSET ?`,
		page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	batches := make([]domain.BatchRecord, 0)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}
