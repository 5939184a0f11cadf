package reader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"raillake/internal/domain"
)

// maxLineBytes bounds a single NDJSON record.
const maxLineBytes = 1 << 20

// decodeNDJSON decodes newline-delimited JSON objects against src.Schema.
// Every key must name a declared column; a missing key or an explicit null is
// NULL when the column allows it. Blank lines are skipped.
func decodeNDJSON(src domain.Source, payload io.Reader) ([]domain.Row, error) {
	sc := bufio.NewScanner(payload)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var rows []domain.Row
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		row, err := ndjsonRow(src, line)
		if err != nil {
			var mismatch *domain.SchemaMismatchError
			if errors.As(err, &mismatch) {
				mismatch.Reason = fmt.Sprintf("line %d: %s", lineNo, mismatch.Reason)
				return nil, mismatch
			}
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &domain.SchemaMismatchError{
				Source: src.Name,
				Reason: fmt.Sprintf("line %d exceeds %d bytes", lineNo+1, maxLineBytes),
			}
		}
		return nil, domain.ErrSourceUnavailable(src.Name, "reading extract: %v", err)
	}
	return rows, nil
}

// ndjsonRow decodes one line into a positional row.
func ndjsonRow(src domain.Source, line []byte) (domain.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, &domain.SchemaMismatchError{Source: src.Name, Reason: fmt.Sprintf("malformed JSON object: %v", err)}
	}
	if dec.More() {
		return nil, &domain.SchemaMismatchError{Source: src.Name, Reason: "multiple JSON values on one line"}
	}
	for key := range obj {
		if src.Schema.ColumnIndex(key) < 0 {
			return nil, &domain.SchemaMismatchError{Source: src.Name, Column: key, Reason: "key is not a declared column"}
		}
	}

	row := make(domain.Row, len(src.Schema))
	for i, col := range src.Schema {
		raw, present := obj[col.Name]
		if !present || raw == nil {
			if !col.Nullable {
				reason := "required column is null"
				if !present {
					reason = "required column is missing"
				}
				return nil, &domain.SchemaMismatchError{Source: src.Name, Column: col.Name, Reason: reason}
			}
			row[i] = nil
			continue
		}
		v, err := jsonValue(col, raw)
		if err != nil {
			return nil, &domain.SchemaMismatchError{Source: src.Name, Column: col.Name, Reason: err.Error()}
		}
		row[i] = v
	}
	return row, nil
}

// jsonValue converts a decoded JSON value to the typed value for col. JSON
// strings carry VARCHAR, DATE, and TIMESTAMP; JSON numbers carry BIGINT and
// DOUBLE; JSON booleans carry BOOLEAN.
func jsonValue(col domain.Column, raw any) (domain.Value, error) {
	switch col.Type {
	case domain.TypeVarchar:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a JSON string, got %s", jsonTypeName(raw))
		}
		return s, nil
	case domain.TypeBigint:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("expected a JSON number, got %s", jsonTypeName(raw))
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid BIGINT", n.String())
		}
		return i, nil
	case domain.TypeDouble:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("expected a JSON number, got %s", jsonTypeName(raw))
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid DOUBLE", n.String())
		}
		return f, nil
	case domain.TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a JSON boolean, got %s", jsonTypeName(raw))
		}
		return b, nil
	case domain.TypeDate, domain.TypeTimestamp:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a JSON string, got %s", jsonTypeName(raw))
		}
		return domain.ParseValue(col.Type, s)
	default:
		return nil, fmt.Errorf("unknown column type %q", col.Type)
	}
}

// jsonTypeName names a decoded JSON value's type for error messages.
func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
