package catalog

import (
	"context"

	"raillake/internal/domain"
)

// Compile-time check.
var _ domain.VersionReader = (*CatalogService)(nil)

// VersionDetail bundles one committed version with the schema revision it
// was written under and the lineage record from its commit.
type VersionDetail struct {
	Version *domain.TableVersion
	Schema  domain.Schema
	Lineage *domain.LineageRecord
}

// GetVersion returns the manifest, schema, and lineage of one committed
// version.
func (s *CatalogService) GetVersion(ctx context.Context, tableName string, version int64) (*VersionDetail, error) {
	v, err := s.versions.Get(ctx, tableName, version)
	if err != nil {
		return nil, err
	}
	schema, err := s.tables.GetSchemaRevision(ctx, tableName, v.SchemaRevision)
	if err != nil {
		return nil, err
	}
	lin, err := s.lineage.GetForVersion(ctx, tableName, version)
	if err != nil {
		return nil, err
	}
	return &VersionDetail{Version: v, Schema: schema, Lineage: lin}, nil
}

// Downstream returns the lineage records of commits that consumed the given
// version as an input.
func (s *CatalogService) Downstream(ctx context.Context, tableName string, version int64) ([]domain.LineageRecord, error) {
	if _, err := s.versions.Get(ctx, tableName, version); err != nil {
		return nil, err
	}
	return s.lineage.ListDownstream(ctx, tableName, version)
}

// ReadVersion decodes the rows of one committed version against the schema
// revision it was written under. Works for superseded versions too; that is
// the time-travel read.
func (s *CatalogService) ReadVersion(ctx context.Context, tableName string, version int64) (*domain.TableData, error) {
	v, err := s.versions.Get(ctx, tableName, version)
	if err != nil {
		return nil, err
	}
	return s.readData(ctx, v)
}

// ReadCurrent decodes the rows of the table's current version.
func (s *CatalogService) ReadCurrent(ctx context.Context, tableName string) (*domain.TableData, error) {
	v, err := s.versions.Current(ctx, tableName)
	if err != nil {
		return nil, err
	}
	return s.readData(ctx, v)
}

func (s *CatalogService) readData(ctx context.Context, v *domain.TableVersion) (*domain.TableData, error) {
	schema, err := s.tables.GetSchemaRevision(ctx, v.TableName, v.SchemaRevision)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ReadRows(ctx, v.Manifest.Files, schema)
	if err != nil {
		return nil, err
	}
	return &domain.TableData{
		TableName:      v.TableName,
		Version:        v.Version,
		SchemaRevision: v.SchemaRevision,
		Schema:         schema,
		Rows:           rows,
	}, nil
}
