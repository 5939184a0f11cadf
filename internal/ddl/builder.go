// Package ddl builds the DuckDB statements the engine store executes.
package ddl

import (
	"fmt"
	"strings"

	"raillake/internal/domain"
)

// DuckDBType returns the DuckDB type name for a catalog column type.
func DuckDBType(t domain.ColumnType) (string, error) {
	switch t {
	case domain.TypeVarchar:
		return "VARCHAR", nil
	case domain.TypeBigint:
		return "BIGINT", nil
	case domain.TypeDouble:
		return "DOUBLE", nil
	case domain.TypeBoolean:
		return "BOOLEAN", nil
	case domain.TypeDate:
		return "DATE", nil
	case domain.TypeTimestamp:
		return "TIMESTAMP", nil
	}
	return "", fmt.Errorf("unknown column type %q", t)
}

// CreateStageTable returns a DuckDB DDL statement creating a temporary table
// shaped like the given schema:
// CREATE TEMPORARY TABLE "<name>" ("<col1>" TYPE1 NOT NULL, "<col2>" TYPE2, ...).
// Column names are quoted, not validated: declared schemas carry source
// header names verbatim, which may hold spaces or punctuation.
func CreateStageTable(name string, schema domain.Schema) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid stage table name: %w", err)
	}
	if len(schema) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}

	colDefs := make([]string, len(schema))
	for i, c := range schema {
		if c.Name == "" {
			return "", fmt.Errorf("column %d has an empty name", i)
		}
		typeName, err := DuckDBType(c.Type)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", c.Name, err)
		}
		def := fmt.Sprintf("%s %s", QuoteIdentifier(c.Name), typeName)
		if !c.Nullable {
			def += " NOT NULL"
		}
		colDefs[i] = def
	}

	return fmt.Sprintf("CREATE TEMPORARY TABLE %s (%s)",
		QuoteIdentifier(name), strings.Join(colDefs, ", ")), nil
}

// DropStageTable returns DROP TABLE IF EXISTS "<name>".
func DropStageTable(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid stage table name: %w", err)
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", QuoteIdentifier(name)), nil
}

// InsertInto returns a placeholder insert for the stage table:
// INSERT INTO "<name>" VALUES (?, ?, ...).
func InsertInto(name string, columnCount int) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid stage table name: %w", err)
	}
	if columnCount <= 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	placeholders := strings.Repeat("?, ", columnCount)
	return fmt.Sprintf("INSERT INTO %s VALUES (%s)",
		QuoteIdentifier(name), strings.TrimSuffix(placeholders, ", ")), nil
}

// CopyToParquet returns a COPY statement exporting a staged table to one
// Parquet file: COPY "<table>" TO '<path>' (FORMAT PARQUET, COMPRESSION ZSTD).
func CopyToParquet(table, path string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid stage table name: %w", err)
	}
	if path == "" {
		return "", fmt.Errorf("target path is required")
	}
	return fmt.Sprintf("COPY %s TO %s (FORMAT PARQUET, COMPRESSION ZSTD)",
		QuoteIdentifier(table), QuoteLiteral(path)), nil
}

// SelectFromParquet returns a projection over one Parquet file in stored
// order: SELECT "<col1>", "<col2>" FROM read_parquet('<path>').
func SelectFromParquet(path string, columns []string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("source path is required")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if c == "" {
			return "", fmt.Errorf("column %d has an empty name", i)
		}
		quoted[i] = QuoteIdentifier(c)
	}
	return fmt.Sprintf("SELECT %s FROM read_parquet(%s)",
		strings.Join(quoted, ", "), QuoteLiteral(path)), nil
}
