package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DataFile is one data file referenced by a version manifest.
type DataFile struct {
	Path     string `json:"path"`
	Rows     int64  `json:"rows"`
	Bytes    int64  `json:"bytes"`
	Checksum string `json:"checksum"`
}

// Manifest lists the data files composing one committed table version.
// Sealed at commit time; never mutated afterward.
type Manifest struct {
	Files      []DataFile `json:"files"`
	TotalRows  int64      `json:"total_rows"`
	TotalBytes int64      `json:"total_bytes"`
	Checksum   string     `json:"checksum"`
}

// ComputeChecksum returns the sha256 of the manifest JSON with the checksum
// field blanked, so the stored checksum covers everything else.
func (m Manifest) ComputeChecksum() (string, error) {
	m.Checksum = ""
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal computes and sets the manifest checksum.
func (m *Manifest) Seal() error {
	sum, err := m.ComputeChecksum()
	if err != nil {
		return err
	}
	m.Checksum = sum
	return nil
}

// Verify recomputes the checksum and compares it to the sealed value.
func (m Manifest) Verify() error {
	sum, err := m.ComputeChecksum()
	if err != nil {
		return err
	}
	if sum != m.Checksum {
		return fmt.Errorf("manifest checksum mismatch: stored %s, computed %s", m.Checksum, sum)
	}
	return nil
}

// TableVersion is an immutable snapshot of a layer table. Created exactly
// once per successful commit; superseded by later versions, never deleted,
// so any committed version stays readable.
type TableVersion struct {
	ID                string
	TableID           string
	TableName         string
	Version           int64
	SchemaRevision    int64
	RowCount          int64
	ByteSize          int64
	ContentHash       string
	RuleName          string
	RuleFingerprint   string
	InputsFingerprint string
	Manifest          Manifest
	CreatedAt         time.Time
}

// VersionRef names one committed version of a table.
type VersionRef struct {
	Table   string `json:"table"`
	Version int64  `json:"version"`
}

func (r VersionRef) String() string {
	return fmt.Sprintf("%s@v%d", r.Table, r.Version)
}

// FingerprintInputs derives a stable identity for a set of upstream versions
// in declared order. Together with the rule fingerprint it identifies a
// replayable unit of work: equal fingerprints mean a recommit must be
// content-equivalent.
func FingerprintInputs(refs []VersionRef) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}
