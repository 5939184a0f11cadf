package domain

import "time"

// SourceFormat enumerates supported raw extract formats.
type SourceFormat string

const (
	FormatCSV  SourceFormat = "csv"
	FormatJSON SourceFormat = "json" // newline-delimited objects
)

// Compression enumerates supported source compressions.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
)

// Source declares one raw landing source: where the extract lives, how to
// decode it, and which bronze table receives it.
type Source struct {
	Name        string       `yaml:"name"`
	URI         string       `yaml:"uri"`
	Format      SourceFormat `yaml:"format"`
	Compression Compression  `yaml:"compression"`
	Table       string       `yaml:"table"`
	Schema      Schema       `yaml:"schema"`
}

// Validate checks the source declaration.
func (s Source) Validate() error {
	if s.Name == "" {
		return ErrValidation("source name is required")
	}
	if s.URI == "" {
		return ErrValidation("source %q: uri is required", s.Name)
	}
	if s.Format != FormatCSV && s.Format != FormatJSON {
		return ErrValidation("source %q: unknown format %q", s.Name, s.Format)
	}
	switch s.Compression {
	case "", CompressionNone, CompressionGzip:
	default:
		return ErrValidation("source %q: unknown compression %q", s.Name, s.Compression)
	}
	if s.Table == "" {
		return ErrValidation("source %q: target table is required", s.Name)
	}
	return s.Schema.Validate()
}

// RawBatch is an ordered sequence of typed records landed from one source.
// Immutable once landed; Rows are positional against Schema.
type RawBatch struct {
	ID         string
	SourceName string
	URI        string
	Format     SourceFormat
	Schema     Schema
	Rows       []Row
	IngestedAt time.Time
}

// BatchRecord is the metastore's account of one landed batch: where it came
// from and which bronze version it became. The rows themselves live in that
// version's data files.
type BatchRecord struct {
	ID         string
	SourceName string
	URI        string
	Format     SourceFormat
	TableName  string
	Version    int64
	RowCount   int64
	IngestedAt time.Time
}
