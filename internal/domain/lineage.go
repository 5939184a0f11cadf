package domain

import "time"

// LineageInput references one upstream version consumed by a commit.
type LineageInput struct {
	TableName string
	Version   int64
}

// LineageRecord links a committed version back to the rule and upstream
// versions that produced it. Written in the same transaction as the version;
// read-only afterward.
type LineageRecord struct {
	ID              string
	OutputVersionID string
	TableName       string
	Version         int64
	RuleName        string
	RuleFingerprint string
	Inputs          []LineageInput
	CreatedAt       time.Time
}
