package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"raillake/internal/domain"
)

// Compile-time checks.
var (
	_ domain.VersionRepository = (*VersionRepo)(nil)
	_ domain.CommitRepository  = (*VersionRepo)(nil)
)

// VersionRepo implements domain.VersionRepository and domain.CommitRepository
// using SQLite. Commits go through the single-connection write pool with
// immediate transactions, so at most one metastore commit is in flight at a
// time.
type VersionRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewVersionRepo creates a new VersionRepo over the metastore pool pair.
func NewVersionRepo(writeDB, readDB *sql.DB) *VersionRepo {
	return &VersionRepo{writeDB: writeDB, readDB: readDB}
}

// Commit persists one table version, its manifest files, its lineage, and the
// advanced current version in a single transaction. The version number is
// re-checked against layer_tables inside the transaction; any mismatch, or a
// duplicate (table_id, version) insert, rolls back and surfaces as
// *domain.VersionConflictError so the caller can re-plan against the new
// current version.
func (r *VersionRepo) Commit(ctx context.Context, rec *domain.CommitRecord) error {
	v := rec.Version
	now := time.Now().UTC()

	tx, err := r.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		tableID        string
		currentVersion int64
		schemaRevision int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, current_version, schema_revision FROM layer_tables WHERE name = ?`,
		v.TableName).Scan(&tableID, &currentVersion, &schemaRevision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound("table %q not found", v.TableName)
		}
		return err
	}

	if v.Version != currentVersion+1 {
		return &domain.VersionConflictError{
			Table:            v.TableName,
			AttemptedVersion: v.Version,
			CurrentVersion:   currentVersion,
		}
	}

	if rec.NewSchema != nil {
		schemaJSON, err := marshalSchema(rec.NewSchema)
		if err != nil {
			return err
		}
		schemaRevision++
		_, err = tx.ExecContext(ctx,
			`INSERT INTO schema_revisions (id, table_id, revision, schema_json, created_at) VALUES (?, ?, ?, ?, ?)`,
			domain.NewID(), tableID, schemaRevision, schemaJSON, now)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE layer_tables SET schema_json = ?, schema_revision = ? WHERE id = ?`,
			schemaJSON, schemaRevision, tableID)
		if err != nil {
			return err
		}
	}

	if v.ID == "" {
		v.ID = domain.NewID()
	}
	v.TableID = tableID
	v.SchemaRevision = schemaRevision
	v.CreatedAt = now

	manifestJSON, err := marshalManifest(v.Manifest)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO table_versions (id, table_id, version, schema_revision, row_count, byte_size, content_hash, rule_name, rule_fingerprint, inputs_fingerprint, manifest_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, tableID, v.Version, schemaRevision, v.RowCount, v.ByteSize, v.ContentHash,
		v.RuleName, v.RuleFingerprint, v.InputsFingerprint, manifestJSON, now)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.VersionConflictError{
				Table:            v.TableName,
				AttemptedVersion: v.Version,
				CurrentVersion:   v.Version,
			}
		}
		return err
	}

	for i, f := range v.Manifest.Files {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO version_files (id, version_id, path, row_count, byte_size, checksum, file_order) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			domain.NewID(), v.ID, f.Path, f.Rows, f.Bytes, f.Checksum, i)
		if err != nil {
			return err
		}
	}

	lin := rec.Lineage
	if lin.ID == "" {
		lin.ID = domain.NewID()
	}
	lin.OutputVersionID = v.ID
	lin.CreatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO lineage_records (id, version_id, table_name, version, rule_name, rule_fingerprint, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lin.ID, v.ID, lin.TableName, lin.Version, lin.RuleName, lin.RuleFingerprint, now)
	if err != nil {
		return err
	}
	for i, in := range lin.Inputs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO lineage_inputs (id, lineage_id, input_table, input_version, input_order) VALUES (?, ?, ?, ?, ?)`,
			domain.NewID(), lin.ID, in.TableName, in.Version, i)
		if err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE layer_tables SET current_version = ?, updated_at = ? WHERE id = ? AND current_version = ?`,
		v.Version, now, tableID, currentVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &domain.VersionConflictError{
			Table:            v.TableName,
			AttemptedVersion: v.Version,
			CurrentVersion:   currentVersion,
		}
	}

	return tx.Commit()
}

const versionColumns = `v.id, v.table_id, t.name, v.version, v.schema_revision, v.row_count, v.byte_size, v.content_hash, v.rule_name, v.rule_fingerprint, v.inputs_fingerprint, v.manifest_json, v.created_at`

func scanVersion(row interface{ Scan(...any) error }) (*domain.TableVersion, error) {
	var (
		v            domain.TableVersion
		manifestJSON string
	)
	err := row.Scan(&v.ID, &v.TableID, &v.TableName, &v.Version, &v.SchemaRevision, &v.RowCount,
		&v.ByteSize, &v.ContentHash, &v.RuleName, &v.RuleFingerprint, &v.InputsFingerprint,
		&manifestJSON, &v.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	if v.Manifest, err = unmarshalManifest(manifestJSON); err != nil {
		return nil, err
	}
	return &v, nil
}

// Get returns one committed version of a table. Superseded versions stay
// readable.
func (r *VersionRepo) Get(ctx context.Context, tableName string, version int64) (*domain.TableVersion, error) {
	v, err := scanVersion(r.readDB.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM table_versions v JOIN layer_tables t ON t.id = v.table_id
		 WHERE t.name = ? AND v.version = ?`, tableName, version))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound("version %d of table %q not found", version, tableName)
		}
		return nil, err
	}
	return v, nil
}

// Current returns the table's current version, or a not-found error when the
// table is empty or unknown.
func (r *VersionRepo) Current(ctx context.Context, tableName string) (*domain.TableVersion, error) {
	v, err := scanVersion(r.readDB.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM table_versions v JOIN layer_tables t ON t.id = v.table_id
		 WHERE t.name = ? AND v.version = t.current_version`, tableName))
	if err != nil {
		if isNotFound(err) {
			var exists bool
			checkErr := r.readDB.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM layer_tables WHERE name = ?)`, tableName).Scan(&exists)
			if checkErr != nil {
				return nil, checkErr
			}
			if exists {
				return nil, domain.ErrNotFound("table %q has no committed versions", tableName)
			}
			return nil, domain.ErrNotFound("table %q not found", tableName)
		}
		return nil, err
	}
	return v, nil
}

// ListByTable returns the version history of a table, newest first.
func (r *VersionRepo) ListByTable(ctx context.Context, tableName string, page domain.PageRequest) ([]domain.TableVersion, int64, error) {
	var total int64
	err := r.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM table_versions v JOIN layer_tables t ON t.id = v.table_id WHERE t.name = ?`,
		tableName).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.readDB.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM table_versions v JOIN layer_tables t ON t.id = v.table_id
		 WHERE t.name = ? ORDER BY v.version DESC LIMIT ? OFFSET ?`,
		tableName, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	versions := make([]domain.TableVersion, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, 0, err
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return versions, total, nil
}

// FindReplay looks for an existing version of the table committed with the
// same rule and inputs fingerprints. Used to make recommits of identical work
// idempotent.
func (r *VersionRepo) FindReplay(ctx context.Context, tableName, ruleFingerprint, inputsFingerprint string) (*domain.TableVersion, error) {
	v, err := scanVersion(r.readDB.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM table_versions v JOIN layer_tables t ON t.id = v.table_id
		 WHERE t.name = ? AND v.rule_fingerprint = ? AND v.inputs_fingerprint = ?
		 ORDER BY v.version DESC LIMIT 1`, tableName, ruleFingerprint, inputsFingerprint))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound("no version of table %q matches the given fingerprints", tableName)
		}
		return nil, err
	}
	return v, nil
}
