package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"raillake/internal/domain"
)

// Compile-time check.
var _ domain.TableRepository = (*TableRepo)(nil)

// TableRepo implements domain.TableRepository using SQLite.
type TableRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewTableRepo creates a new TableRepo over the metastore pool pair.
func NewTableRepo(writeDB, readDB *sql.DB) *TableRepo {
	return &TableRepo{writeDB: writeDB, readDB: readDB}
}

// Create registers a layer table with its initial declared schema. The first
// schema revision is recorded alongside so every version can name the
// revision it was written against.
func (r *TableRepo) Create(ctx context.Context, t *domain.LayerTable) error {
	if err := validateIdentifier(t.Name); err != nil {
		return err
	}
	if !domain.ValidLayer(t.Layer) {
		return domain.ErrValidation("unknown layer %q for table %q", t.Layer, t.Name)
	}
	if err := t.Schema.Validate(); err != nil {
		return err
	}

	schemaJSON, err := marshalSchema(t.Schema)
	if err != nil {
		return err
	}

	if t.ID == "" {
		t.ID = domain.NewID()
	}
	now := time.Now().UTC()
	t.SchemaRevision = 1
	t.CurrentVersion = 0
	t.CreatedAt = now
	t.UpdatedAt = now

	tx, err := r.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO layer_tables (id, name, layer, schema_json, schema_revision, current_version, partition_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, 0, ?, ?, ?)`,
		t.ID, t.Name, string(t.Layer), schemaJSON, nullStrFromPtr(t.PartitionKey), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict("table %q already exists", t.Name)
		}
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_revisions (id, table_id, revision, schema_json, created_at) VALUES (?, ?, 1, ?, ?)`,
		domain.NewID(), t.ID, schemaJSON, now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

const tableColumns = `id, name, layer, schema_json, schema_revision, current_version, partition_key, created_at, updated_at`

func scanTable(row interface{ Scan(...any) error }) (*domain.LayerTable, error) {
	var (
		t            domain.LayerTable
		layer        string
		schemaJSON   string
		partitionKey sql.NullString
	)
	err := row.Scan(&t.ID, &t.Name, &layer, &schemaJSON, &t.SchemaRevision, &t.CurrentVersion, &partitionKey, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	t.Layer = domain.Layer(layer)
	t.PartitionKey = ptrFromNullStr(partitionKey)
	if t.Schema, err = unmarshalSchema(schemaJSON); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByName returns the table registered under name.
func (r *TableRepo) GetByName(ctx context.Context, name string) (*domain.LayerTable, error) {
	t, err := scanTable(r.readDB.QueryRowContext(ctx,
		`SELECT `+tableColumns+` FROM layer_tables WHERE name = ?`, name))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound("table %q not found", name)
		}
		return nil, err
	}
	return t, nil
}

// List returns registered tables ordered by name.
func (r *TableRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.LayerTable, int64, error) {
	var total int64
	if err := r.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM layer_tables`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.readDB.QueryContext(ctx,
		`SELECT `+tableColumns+` FROM layer_tables ORDER BY name LIMIT ? OFFSET ?`,
		page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	return collectTables(rows, total)
}

// ListByLayer returns registered tables in one layer ordered by name.
func (r *TableRepo) ListByLayer(ctx context.Context, layer domain.Layer, page domain.PageRequest) ([]domain.LayerTable, int64, error) {
	var total int64
	if err := r.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM layer_tables WHERE layer = ?`, string(layer)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.readDB.QueryContext(ctx,
		`SELECT `+tableColumns+` FROM layer_tables WHERE layer = ? ORDER BY name LIMIT ? OFFSET ?`,
		string(layer), page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	return collectTables(rows, total)
}

// GetSchemaRevision returns the schema the table declared at the given
// revision. Revisions are append-only, so this resolves for any revision a
// committed version references.
func (r *TableRepo) GetSchemaRevision(ctx context.Context, tableName string, revision int64) (domain.Schema, error) {
	var schemaJSON string
	err := r.readDB.QueryRowContext(ctx,
		`SELECT r.schema_json FROM schema_revisions r JOIN layer_tables t ON t.id = r.table_id
		 WHERE t.name = ? AND r.revision = ?`, tableName, revision).Scan(&schemaJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound("schema revision %d of table %q not found", revision, tableName)
		}
		return nil, err
	}
	return unmarshalSchema(schemaJSON)
}

func collectTables(rows *sql.Rows, total int64) ([]domain.LayerTable, int64, error) {
	tables := make([]domain.LayerTable, 0)
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, 0, err
		}
		tables = append(tables, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tables, total, nil
}
