// Package engine persists table version data as Parquet files through an
// embedded DuckDB instance.
package engine

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"raillake/internal/ddl"
	"raillake/internal/domain"
)

// Compile-time check.
var _ domain.RowStore = (*ParquetStore)(nil)

// ParquetStore implements domain.RowStore. Writes stage rows into a
// per-connection temporary table and COPY them to one Parquet file; reads go
// through read_parquet with an explicit column projection. All paths are
// relative to the data directory.
type ParquetStore struct {
	db      *sql.DB
	dataDir string
}

// NewParquetStore creates a ParquetStore writing under dataDir.
func NewParquetStore(db *sql.DB, dataDir string) *ParquetStore {
	return &ParquetStore{db: db, dataDir: dataDir}
}

// stageName returns a fresh identifier for a staging table.
func stageName() string {
	return "stage_" + strings.ReplaceAll(domain.NewID(), "-", "")
}

// WriteRows persists rows as one Parquet file at path and returns its
// manifest entry. The staging table lives on a single pooled connection so
// the temporary table stays visible across statements.
func (s *ParquetStore) WriteRows(ctx context.Context, path string, schema domain.Schema, rows []domain.Row) (domain.DataFile, error) {
	abs := filepath.Join(s.dataDir, path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return domain.DataFile{}, domain.ErrStorageIO("write", path, err)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return domain.DataFile{}, domain.ErrStorageIO("write", path, err)
	}
	defer conn.Close() //nolint:errcheck

	stage := stageName()
	createSQL, err := ddl.CreateStageTable(stage, schema)
	if err != nil {
		return domain.DataFile{}, err
	}
	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return domain.DataFile{}, domain.ErrStorageIO("stage", path, err)
	}
	defer func() {
		if dropSQL, err := ddl.DropStageTable(stage); err == nil {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), dropSQL)
		}
	}()

	insertSQL, err := ddl.InsertInto(stage, len(schema))
	if err != nil {
		return domain.DataFile{}, err
	}
	stmt, err := conn.PrepareContext(ctx, insertSQL)
	if err != nil {
		return domain.DataFile{}, domain.ErrStorageIO("stage", path, err)
	}
	defer stmt.Close() //nolint:errcheck

	args := make([]any, len(schema))
	for i, row := range rows {
		if len(row) != len(schema) {
			return domain.DataFile{}, domain.ErrValidation("row %d has %d values, schema has %d columns", i, len(row), len(schema))
		}
		for j, v := range row {
			args[j] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return domain.DataFile{}, domain.ErrStorageIO("stage", path, fmt.Errorf("row %d: %w", i, err))
		}
	}

	copySQL, err := ddl.CopyToParquet(stage, abs)
	if err != nil {
		return domain.DataFile{}, err
	}
	if _, err := conn.ExecContext(ctx, copySQL); err != nil {
		return domain.DataFile{}, domain.ErrStorageIO("write", path, err)
	}

	checksum, size, err := hashFile(abs)
	if err != nil {
		return domain.DataFile{}, domain.ErrStorageIO("checksum", path, err)
	}

	return domain.DataFile{
		Path:     path,
		Rows:     int64(len(rows)),
		Bytes:    size,
		Checksum: checksum,
	}, nil
}

// ReadRows loads the rows of the given manifest files in stored order: files
// in manifest order, rows in file order.
func (s *ParquetStore) ReadRows(ctx context.Context, files []domain.DataFile, schema domain.Schema) ([]domain.Row, error) {
	out := make([]domain.Row, 0)
	for _, f := range files {
		rows, err := s.readFile(ctx, f, schema)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *ParquetStore) readFile(ctx context.Context, f domain.DataFile, schema domain.Schema) ([]domain.Row, error) {
	abs := filepath.Join(s.dataDir, f.Path)
	selectSQL, err := ddl.SelectFromParquet(abs, schema.Names())
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, selectSQL)
	if err != nil {
		return nil, domain.ErrStorageIO("read", f.Path, err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.Row, 0, f.Rows)
	for rows.Next() {
		targets := scanTargets(schema)
		if err := rows.Scan(targets...); err != nil {
			return nil, domain.ErrStorageIO("read", f.Path, err)
		}
		out = append(out, rowFromTargets(targets))
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrStorageIO("read", f.Path, err)
	}
	return out, nil
}

// scanTargets builds one sql.Null* scan destination per schema column.
func scanTargets(schema domain.Schema) []any {
	targets := make([]any, len(schema))
	for i, c := range schema {
		switch c.Type {
		case domain.TypeVarchar:
			targets[i] = new(sql.NullString)
		case domain.TypeBigint:
			targets[i] = new(sql.NullInt64)
		case domain.TypeDouble:
			targets[i] = new(sql.NullFloat64)
		case domain.TypeBoolean:
			targets[i] = new(sql.NullBool)
		case domain.TypeDate, domain.TypeTimestamp:
			targets[i] = new(sql.NullTime)
		default:
			targets[i] = new(sql.NullString)
		}
	}
	return targets
}

// rowFromTargets converts scanned sql.Null* values back to domain values.
// Times are normalized to UTC.
func rowFromTargets(targets []any) domain.Row {
	row := make(domain.Row, len(targets))
	for i, tgt := range targets {
		switch v := tgt.(type) {
		case *sql.NullString:
			if v.Valid {
				row[i] = v.String
			}
		case *sql.NullInt64:
			if v.Valid {
				row[i] = v.Int64
			}
		case *sql.NullFloat64:
			if v.Valid {
				row[i] = v.Float64
			}
		case *sql.NullBool:
			if v.Valid {
				row[i] = v.Bool
			}
		case *sql.NullTime:
			if v.Valid {
				row[i] = v.Time.UTC()
			}
		}
	}
	return row
}

// Remove deletes a staged data file and prunes directories it leaves empty,
// up to the data root.
func (s *ParquetStore) Remove(_ context.Context, path string) error {
	abs := filepath.Join(s.dataDir, path)
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return domain.ErrStorageIO("remove", path, err)
	}
	for dir := filepath.Dir(abs); dir != s.dataDir && strings.HasPrefix(dir, s.dataDir); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close() //nolint:errcheck

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
