package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"raillake/internal/domain"
)

// decodeCSV decodes an RFC 4180 payload against src.Schema. The first record
// must be a header naming the declared columns in declaration order. An empty
// cell is the empty string for VARCHAR columns and NULL for nullable columns
// of any other type.
func decodeCSV(src domain.Source, payload io.Reader) ([]domain.Row, error) {
	cr := csv.NewReader(payload)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.SchemaMismatchError{Source: src.Name, Reason: "extract is empty, expected a header row"}
	}
	if err != nil {
		return nil, &domain.SchemaMismatchError{Source: src.Name, Reason: "malformed header row: " + err.Error()}
	}
	if err := matchHeader(src, header); err != nil {
		return nil, err
	}

	var rows []domain.Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, &domain.SchemaMismatchError{
				Source: src.Name,
				Reason: fmt.Sprintf("malformed record: %v", err),
			}
		}
		row := make(domain.Row, len(src.Schema))
		for i, col := range src.Schema {
			v, err := csvCell(col, record[i])
			if err != nil {
				return nil, &domain.SchemaMismatchError{
					Source: src.Name,
					Column: col.Name,
					Reason: fmt.Sprintf("record %d: %v", len(rows)+1, err),
				}
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
}

// matchHeader checks the header names the declared columns exactly, in order.
func matchHeader(src domain.Source, header []string) error {
	want := src.Schema.Names()
	if len(header) != len(want) {
		return &domain.SchemaMismatchError{
			Source: src.Name,
			Reason: fmt.Sprintf("header has %d columns, schema declares %d", len(header), len(want)),
		}
	}
	for i, name := range want {
		if header[i] != name {
			return &domain.SchemaMismatchError{
				Source: src.Name,
				Column: name,
				Reason: fmt.Sprintf("header names column %d %q, schema declares %q", i, header[i], name),
			}
		}
	}
	return nil
}

// csvCell parses one cell for col. VARCHAR keeps the raw text; for every
// other type an empty cell is NULL when the column allows it.
func csvCell(col domain.Column, cell string) (domain.Value, error) {
	if col.Type == domain.TypeVarchar {
		return cell, nil
	}
	if cell == "" {
		if col.Nullable {
			return nil, nil
		}
		return nil, fmt.Errorf("required column has an empty cell")
	}
	return domain.ParseValue(col.Type, cell)
}
