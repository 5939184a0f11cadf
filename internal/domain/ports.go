package domain

import "context"

// RowStore writes and reads the columnar data files behind table versions.
// Implemented by the DuckDB-backed engine store.
type RowStore interface {
	// WriteRows persists rows as one data file at path and returns its
	// manifest entry. Failures are *StorageIOError.
	WriteRows(ctx context.Context, path string, schema Schema, rows []Row) (DataFile, error)
	// ReadRows loads the rows of the given manifest files in stored order.
	ReadRows(ctx context.Context, files []DataFile, schema Schema) ([]Row, error)
	// Remove deletes a staged data file that will never be referenced by a
	// committed manifest.
	Remove(ctx context.Context, path string) error
}

// TableLease serializes commits per table: at most one holder per table at a
// time. Acquire blocks until the lease is free or ctx is done; the returned
// release must be called exactly once by the holder.
type TableLease interface {
	Acquire(ctx context.Context, table string) (release func(), err error)
}

// BatchReader lands raw source extracts as typed batches.
type BatchReader interface {
	Read(ctx context.Context, src Source) (*RawBatch, error)
}

// PlanInput is the decoded content of one upstream version handed to the
// planner.
type PlanInput struct {
	Ref    VersionRef
	Schema Schema
	Rows   []Row
}

// PlanResult is the planner's proposed content for the target table. The
// planner only proposes; the writer owns version creation.
type PlanResult struct {
	Schema   Schema
	Rows     []Row
	Rejected []RejectedRow
}

// Planner evaluates a transformation rule over upstream version contents.
// Pure: no I/O, and byte-identical output for identical inputs.
type Planner interface {
	Plan(rule Rule, inputs []PlanInput) (*PlanResult, error)
}

// TableData is the decoded content of one committed version: its rows in
// stored order, typed against the schema revision the version was written
// under.
type TableData struct {
	TableName      string
	Version        int64
	SchemaRevision int64
	Schema         Schema
	Rows           []Row
}

// VersionReader loads decoded version contents for consumers above the
// storage layer. Implemented by the catalog service.
type VersionReader interface {
	ReadVersion(ctx context.Context, tableName string, version int64) (*TableData, error)
	ReadCurrent(ctx context.Context, tableName string) (*TableData, error)
}

// CommitRequest asks the writer for the next version of a table. RuleName
// and RuleFingerprint identify the producing rule for lineage; Inputs are
// the upstream versions the candidate rows were planned from (empty for
// ingest commits).
type CommitRequest struct {
	Table           string
	Schema          Schema
	Rows            []Row
	RuleName        string
	RuleFingerprint string
	Inputs          []VersionRef
}

// Committer creates table versions with atomic visibility. Implemented by
// the transactional layer writer.
type Committer interface {
	Commit(ctx context.Context, req CommitRequest) (*TableVersion, error)
}
