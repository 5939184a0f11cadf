// Package domain defines core types, interfaces, and errors for the lake engine.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// SourceUnavailableError indicates a raw source could not be fetched or opened.
// Transient from the engine's point of view: the caller retries with backoff.
type SourceUnavailableError struct {
	Source string
	Reason string
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %q unavailable: %s", e.Source, e.Reason)
}

// ErrSourceUnavailable creates a SourceUnavailableError for the named source.
func ErrSourceUnavailable(source, format string, args ...interface{}) *SourceUnavailableError {
	return &SourceUnavailableError{Source: source, Reason: fmt.Sprintf(format, args...)}
}

// SchemaMismatchError indicates a raw extract does not match the schema
// declared for its source. Fatal: the declaration or the extract must be
// fixed before the batch can land.
type SchemaMismatchError struct {
	Source string
	Column string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("source %q does not match declared schema: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("source %q column %q does not match declared schema: %s", e.Source, e.Column, e.Reason)
}

// SchemaViolationError indicates candidate rows do not conform to the target
// table's declared schema. Fatal, never retried automatically.
type SchemaViolationError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("schema violation on table %q: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("schema violation on table %q column %q: %s", e.Table, e.Column, e.Reason)
}

// StorageIOError indicates a data file could not be written or read. The
// writer retries these with bounded backoff before surfacing.
type StorageIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageIOError) Unwrap() error { return e.Err }

// ErrStorageIO wraps err as a StorageIOError for the given operation and path.
func ErrStorageIO(op, path string, err error) *StorageIOError {
	return &StorageIOError{Op: op, Path: path, Err: err}
}

// VersionConflictError indicates a commit lost the race for its version
// number. The caller retries by re-reading the latest version and
// re-planning against it.
type VersionConflictError struct {
	Table            string
	AttemptedVersion int64
	CurrentVersion   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on table %q: attempted v%d but current is v%d",
		e.Table, e.AttemptedVersion, e.CurrentVersion)
}

// RuleComputationError indicates a transformation rule failed during pure
// evaluation. Fatal; RowIndex locates the offending upstream row (-1 when the
// failure is not row-specific).
type RuleComputationError struct {
	Rule     string
	Table    string
	RowIndex int
	Reason   string
}

func (e *RuleComputationError) Error() string {
	if e.RowIndex >= 0 {
		return fmt.Sprintf("rule %q failed on table %q at row %d: %s", e.Rule, e.Table, e.RowIndex, e.Reason)
	}
	return fmt.Sprintf("rule %q failed on table %q: %s", e.Rule, e.Table, e.Reason)
}
