package domain

import "context"

// TableRepository persists layer table definitions and schema revisions.
type TableRepository interface {
	Create(ctx context.Context, t *LayerTable) error
	GetByName(ctx context.Context, name string) (*LayerTable, error)
	List(ctx context.Context, page PageRequest) ([]LayerTable, int64, error)
	ListByLayer(ctx context.Context, layer Layer, page PageRequest) ([]LayerTable, int64, error)
	// GetSchemaRevision returns the declared schema the table carried at the
	// given revision. Old versions decode against the revision they were
	// written under, not the table's latest schema.
	GetSchemaRevision(ctx context.Context, tableName string, revision int64) (Schema, error)
}

// VersionRepository reads committed versions and their manifests.
type VersionRepository interface {
	Get(ctx context.Context, tableName string, version int64) (*TableVersion, error)
	Current(ctx context.Context, tableName string) (*TableVersion, error)
	ListByTable(ctx context.Context, tableName string, page PageRequest) ([]TableVersion, int64, error)
}

// CommitRecord carries everything one commit persists atomically: the new
// version with its manifest, the lineage that produced it, and optionally
// the schema revision the commit migrates the table to.
type CommitRecord struct {
	Version *TableVersion
	Lineage *LineageRecord
	// NewSchema is non-nil when the commit carries an append-only schema
	// migration; it becomes the table's declared schema in the same
	// transaction.
	NewSchema Schema
}

// CommitRepository executes the atomic metastore transaction for one commit.
// Either every row of the record becomes visible together with the advanced
// current version, or nothing does. A lost version race surfaces as
// *VersionConflictError.
type CommitRepository interface {
	Commit(ctx context.Context, rec *CommitRecord) error
	// FindReplay returns the latest version of the table committed with the
	// same rule and inputs fingerprints, or *NotFoundError when no prior
	// attempt exists.
	FindReplay(ctx context.Context, tableName, ruleFingerprint, inputsFingerprint string) (*TableVersion, error)
}

// BatchRepository records landed raw batches and the bronze version each
// one became.
type BatchRepository interface {
	Create(ctx context.Context, b *BatchRecord) error
	GetByID(ctx context.Context, id string) (*BatchRecord, error)
	List(ctx context.Context, page PageRequest) ([]BatchRecord, int64, error)
}

// LineageRepository reads lineage written at commit time.
type LineageRepository interface {
	GetForVersion(ctx context.Context, tableName string, version int64) (*LineageRecord, error)
	// ListDownstream returns lineage records that consumed the given version
	// as an input.
	ListDownstream(ctx context.Context, tableName string, version int64) ([]LineageRecord, error)
}

// RunRepository persists pipeline runs and their step executions.
type RunRepository interface {
	CreateRun(ctx context.Context, run *PipelineRun) error
	UpdateRun(ctx context.Context, run *PipelineRun) error
	GetRun(ctx context.Context, id string) (*PipelineRun, error)
	ListRuns(ctx context.Context, page PageRequest) ([]PipelineRun, int64, error)
	CreateStep(ctx context.Context, step *StepRun) error
	UpdateStep(ctx context.Context, step *StepRun) error
	ListSteps(ctx context.Context, runID string) ([]StepRun, error)
}
