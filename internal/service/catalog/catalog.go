// Package catalog implements the table registry and version inspection
// services: registered layer tables, their version history, manifests,
// lineage, and time-travel reads of any committed version.
package catalog

import (
	"context"
	"log/slog"

	"raillake/internal/domain"
)

// CatalogService provides the read side of the lakehouse plus table
// registration. All content mutation goes through the writer; this service
// never creates versions.
//
//nolint:revive // Name chosen for clarity across package boundaries
type CatalogService struct {
	tables   domain.TableRepository
	versions domain.VersionRepository
	lineage  domain.LineageRepository
	store    domain.RowStore
	logger   *slog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(
	tables domain.TableRepository,
	versions domain.VersionRepository,
	lineage domain.LineageRepository,
	store domain.RowStore,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		tables:   tables,
		versions: versions,
		lineage:  lineage,
		store:    store,
		logger:   logger,
	}
}

// RegisterTable registers a layer table with its declared schema. The table
// starts empty at version 0, schema revision 1.
func (s *CatalogService) RegisterTable(ctx context.Context, req domain.CreateTableRequest) (*domain.LayerTable, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := &domain.LayerTable{
		Name:         req.Name,
		Layer:        req.Layer,
		Schema:       req.Schema.Clone(),
		PartitionKey: req.PartitionKey,
	}
	if err := s.tables.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("table registered", "table", t.Name, "layer", t.Layer)
	return t, nil
}

// GetTable returns the table registered under name.
func (s *CatalogService) GetTable(ctx context.Context, name string) (*domain.LayerTable, error) {
	return s.tables.GetByName(ctx, name)
}

// ListTables returns registered tables ordered by name. A non-empty layer
// filters to that layer.
func (s *CatalogService) ListTables(ctx context.Context, layer domain.Layer, page domain.PageRequest) ([]domain.LayerTable, int64, error) {
	if layer == "" {
		return s.tables.List(ctx, page)
	}
	if !domain.ValidLayer(layer) {
		return nil, 0, domain.ErrValidation("unknown layer %q", layer)
	}
	return s.tables.ListByLayer(ctx, layer, page)
}

// History returns a table's version history, newest first. Superseded
// versions stay listed; nothing is ever deleted.
func (s *CatalogService) History(ctx context.Context, tableName string, page domain.PageRequest) ([]domain.TableVersion, int64, error) {
	if _, err := s.tables.GetByName(ctx, tableName); err != nil {
		return nil, 0, err
	}
	return s.versions.ListByTable(ctx, tableName, page)
}
