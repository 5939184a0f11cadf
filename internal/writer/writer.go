// Package writer owns version creation. A commit stages candidate rows as
// Parquet files under a fresh version-scoped directory, then runs one
// metastore transaction making the version, its manifest, and its lineage
// visible together. Until that transaction lands the staged files are
// unreachable, so a crash or cancellation leaves the table at its prior
// version.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/sethvargo/go-retry"

	"raillake/internal/domain"
)

var _ domain.Committer = (*Writer)(nil)

const (
	defaultRowsPerFile   = 500_000
	defaultRetryAttempts = 3
	defaultRetryBase     = 100 * time.Millisecond
)

// Writer commits candidate rows as new table versions.
type Writer struct {
	tables  domain.TableRepository
	commits domain.CommitRepository
	store   domain.RowStore
	lease   domain.TableLease
	logger  *slog.Logger

	rowsPerFile   int64
	retryAttempts uint64
	retryBase     time.Duration
}

// New creates a Writer with the default file chunking and storage retry
// policy.
func New(
	tables domain.TableRepository,
	commits domain.CommitRepository,
	store domain.RowStore,
	lease domain.TableLease,
	logger *slog.Logger,
) *Writer {
	return &Writer{
		tables:        tables,
		commits:       commits,
		store:         store,
		lease:         lease,
		logger:        logger,
		rowsPerFile:   defaultRowsPerFile,
		retryAttempts: defaultRetryAttempts,
		retryBase:     defaultRetryBase,
	}
}

// SetRowsPerFile caps how many rows land in one staged data file.
func (w *Writer) SetRowsPerFile(n int64) {
	if n > 0 {
		w.rowsPerFile = n
	}
}

// SetRetryPolicy tunes the bounded exponential backoff applied to storage
// failures: up to maxRetries re-attempts starting at base.
func (w *Writer) SetRetryPolicy(maxRetries uint64, base time.Duration) {
	w.retryAttempts = maxRetries
	if base > 0 {
		w.retryBase = base
	}
}

// Commit creates the table's next version from the candidate rows. Schema
// problems surface as *SchemaViolationError before anything is staged; a
// lost version race surfaces as *VersionConflictError after staged files are
// discarded, and the caller re-plans against the latest version.
func (w *Writer) Commit(ctx context.Context, req domain.CommitRequest) (*domain.TableVersion, error) {
	start := time.Now()
	if req.Table == "" {
		return nil, domain.ErrValidation("commit target table is required")
	}
	if req.RuleName == "" {
		return nil, domain.ErrValidation("commit on table %q: rule name is required for lineage", req.Table)
	}
	if err := req.Schema.Validate(); err != nil {
		return nil, err
	}

	release, err := w.lease.Acquire(ctx, req.Table)
	if err != nil {
		return nil, err
	}
	defer release()

	table, err := w.tables.GetByName(ctx, req.Table)
	if err != nil {
		return nil, err
	}
	newSchema, err := migrationFor(table, req.Schema)
	if err != nil {
		return nil, err
	}
	if err := conformRows(req.Table, req.Schema, req.Rows); err != nil {
		return nil, err
	}

	inputsFP := domain.FingerprintInputs(req.Inputs)
	contentHash := domain.ContentHash(req.Schema, req.Rows)
	if err := w.checkReplay(ctx, req, inputsFP, contentHash); err != nil {
		return nil, err
	}

	next := table.CurrentVersion + 1
	manifest, err := w.stage(ctx, table.Name, next, req.Schema, req.Rows)
	if err != nil {
		return nil, err
	}

	version := &domain.TableVersion{
		TableName:         req.Table,
		Version:           next,
		RowCount:          manifest.TotalRows,
		ByteSize:          manifest.TotalBytes,
		ContentHash:       contentHash,
		RuleName:          req.RuleName,
		RuleFingerprint:   req.RuleFingerprint,
		InputsFingerprint: inputsFP,
		Manifest:          *manifest,
	}
	lineage := &domain.LineageRecord{
		TableName:       req.Table,
		Version:         next,
		RuleName:        req.RuleName,
		RuleFingerprint: req.RuleFingerprint,
		Inputs:          lineageInputs(req.Inputs),
	}

	rec := &domain.CommitRecord{Version: version, Lineage: lineage, NewSchema: newSchema}
	if err := w.commits.Commit(ctx, rec); err != nil {
		w.discard(ctx, manifest.Files)
		return nil, err
	}

	w.logger.Info("version committed",
		"table", req.Table,
		"version", next,
		"rows", manifest.TotalRows,
		"bytes", manifest.TotalBytes,
		"rule", req.RuleName,
		"elapsed", time.Since(start))
	return version, nil
}

// checkReplay compares this commit against the latest prior commit with the
// same rule and inputs fingerprints. A replay must be content-equivalent; a
// divergence means the rule is not pure and must not silently land.
func (w *Writer) checkReplay(ctx context.Context, req domain.CommitRequest, inputsFP, contentHash string) error {
	if req.RuleFingerprint == "" {
		return nil
	}
	prior, err := w.commits.FindReplay(ctx, req.Table, req.RuleFingerprint, inputsFP)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return err
	}
	if prior.ContentHash != contentHash {
		return domain.ErrConflict(
			"commit on table %q: replay of rule %q over the same inputs produced different content than v%d",
			req.Table, req.RuleName, prior.Version)
	}
	return nil
}

// stage writes the candidate rows as Parquet files under a directory unique
// to this attempt, so racing attempts for the same version number can never
// touch each other's files. Returns the sealed manifest.
func (w *Writer) stage(ctx context.Context, table string, version int64, schema domain.Schema, rows []domain.Row) (*domain.Manifest, error) {
	stageDir := path.Join(table, fmt.Sprintf("v%d-%s", version, domain.NewID()))

	var m domain.Manifest
	for i, chunk := range chunkRows(rows, w.rowsPerFile) {
		filePath := path.Join(stageDir, fmt.Sprintf("part-%03d.parquet", i))
		f, err := w.writeFile(ctx, filePath, schema, chunk)
		if err != nil {
			w.discard(ctx, m.Files)
			return nil, err
		}
		m.Files = append(m.Files, f)
		m.TotalRows += f.Rows
		m.TotalBytes += f.Bytes
	}
	if err := m.Seal(); err != nil {
		w.discard(ctx, m.Files)
		return nil, err
	}
	return &m, nil
}

// writeFile persists one data file, retrying storage failures with bounded
// exponential backoff. Any other failure surfaces immediately.
func (w *Writer) writeFile(ctx context.Context, filePath string, schema domain.Schema, rows []domain.Row) (domain.DataFile, error) {
	var out domain.DataFile
	backoff := retry.WithMaxRetries(w.retryAttempts, retry.NewExponential(w.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		f, err := w.store.WriteRows(ctx, filePath, schema, rows)
		if err != nil {
			var ioErr *domain.StorageIOError
			if errors.As(err, &ioErr) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = f
		return nil
	})
	return out, err
}

// discard removes staged files that will never be referenced by a committed
// manifest. Best effort: without a committed manifest the files are
// unreachable either way.
func (w *Writer) discard(ctx context.Context, files []domain.DataFile) {
	ctx = context.WithoutCancel(ctx)
	for _, f := range files {
		if err := w.store.Remove(ctx, f.Path); err != nil {
			w.logger.Warn("staged file not removed", "path", f.Path, "error", err)
		}
	}
}

// migrationFor decides how req's schema lands on the table: an identical
// schema commits as-is, an append-only compatible superset commits together
// with a schema migration, anything else is a schema violation.
func migrationFor(table *domain.LayerTable, next domain.Schema) (domain.Schema, error) {
	if table.Schema.Equal(next) {
		return nil, nil
	}
	if err := table.Schema.CompatibleSuperset(next); err != nil {
		return nil, &domain.SchemaViolationError{Table: table.Name, Reason: err.Error()}
	}
	return next, nil
}

// conformRows checks every candidate row against the commit schema.
func conformRows(table string, schema domain.Schema, rows []domain.Row) error {
	for i, row := range rows {
		if len(row) != len(schema) {
			return &domain.SchemaViolationError{
				Table:  table,
				Reason: fmt.Sprintf("row %d has %d values, schema declares %d columns", i, len(row), len(schema)),
			}
		}
		for j, col := range schema {
			v := row[j]
			if v == nil {
				if !col.Nullable {
					return &domain.SchemaViolationError{
						Table:  table,
						Column: col.Name,
						Reason: fmt.Sprintf("row %d is NULL in a required column", i),
					}
				}
				continue
			}
			if !domain.TypeOK(col.Type, v) {
				return &domain.SchemaViolationError{
					Table:  table,
					Column: col.Name,
					Reason: fmt.Sprintf("row %d holds %s, expected %s", i, domain.ValueTypeName(v), col.Type),
				}
			}
		}
	}
	return nil
}

// chunkRows splits rows into per-file chunks of at most per rows. Zero rows
// produce zero chunks: an empty version carries an empty manifest.
func chunkRows(rows []domain.Row, per int64) [][]domain.Row {
	if len(rows) == 0 {
		return nil
	}
	n := int(per)
	chunks := make([][]domain.Row, 0, (len(rows)+n-1)/n)
	for start := 0; start < len(rows); start += n {
		end := start + n
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

func lineageInputs(refs []domain.VersionRef) []domain.LineageInput {
	inputs := make([]domain.LineageInput, len(refs))
	for i, r := range refs {
		inputs[i] = domain.LineageInput{TableName: r.Table, Version: r.Version}
	}
	return inputs
}
