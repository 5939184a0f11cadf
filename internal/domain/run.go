package domain

import "time"

// Run and step status constants.
const (
	RunStatusPending   = "PENDING"
	RunStatusRunning   = "RUNNING"
	RunStatusSuccess   = "SUCCESS"
	RunStatusFailed    = "FAILED"
	RunStatusCancelled = "CANCELLED"

	StepStatusPending   = "PENDING"
	StepStatusRunning   = "RUNNING"
	StepStatusSuccess   = "SUCCESS"
	StepStatusFailed    = "FAILED"
	StepStatusSkipped   = "SKIPPED"
	StepStatusCancelled = "CANCELLED"

	TriggerTypeManual    = "MANUAL"
	TriggerTypeScheduled = "SCHEDULED"
)

// Step type constants.
const (
	StepTypeIngest    = "ingest"
	StepTypeTransform = "transform"
)

// PipelineRun is one execution of the pipeline: the ingest steps followed by
// the transformation rules in dependency order.
type PipelineRun struct {
	ID           string
	Status       string
	TriggerType  string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	ErrorMessage *string
	CreatedAt    time.Time
}

// StepRun is the execution of a single ingest or transform step within a
// run. Version, RowCount, and RejectedCount are set on success.
type StepRun struct {
	ID            string
	RunID         string
	StepName      string // source name or rule name
	StepType      string
	TableName     string
	Version       *int64
	RowCount      *int64
	RejectedCount *int64
	Status        string
	RetryAttempt  int
	StartedAt     *time.Time
	FinishedAt    *time.Time
	ErrorMessage  *string
	CreatedAt     time.Time
}
