package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Value is a single typed cell. nil means NULL. Concrete types by column
// type: VARCHAR string, BIGINT int64, DOUBLE float64, BOOLEAN bool, DATE and
// TIMESTAMP time.Time in UTC.
type Value any

// Row is one record, positional against its table schema.
type Row []Value

// DateLayout is the canonical textual form of DATE values.
const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	DateLayout,
}

// ParseValue parses raw text into the typed value for t. Time values are
// always interpreted in UTC so parsing is independent of the host timezone.
func ParseValue(t ColumnType, s string) (Value, error) {
	switch t {
	case TypeVarchar:
		return s, nil
	case TypeBigint:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid BIGINT", s)
		}
		return n, nil
	case TypeDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid DOUBLE", s)
		}
		return f, nil
	case TypeBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid BOOLEAN", s)
		}
		return b, nil
	case TypeDate:
		d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid DATE (expected %s)", s, DateLayout)
		}
		return d, nil
	case TypeTimestamp:
		trimmed := strings.TrimSpace(s)
		for _, layout := range timestampLayouts {
			if ts, err := time.ParseInLocation(layout, trimmed, time.UTC); err == nil {
				return ts.UTC(), nil
			}
		}
		return nil, fmt.Errorf("%q is not a valid TIMESTAMP", s)
	default:
		return nil, fmt.Errorf("unknown column type %q", t)
	}
}

// TypeOK reports whether v's dynamic type is storable in a column of type t.
// NULL handling is the caller's concern.
func TypeOK(t ColumnType, v Value) bool {
	switch t {
	case TypeVarchar:
		_, ok := v.(string)
		return ok
	case TypeBigint:
		_, ok := v.(int64)
		return ok
	case TypeDouble:
		_, ok := v.(float64)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeDate, TypeTimestamp:
		_, ok := v.(time.Time)
		return ok
	}
	return false
}

// ValueTypeName names v's dynamic type for error messages.
func ValueTypeName(v Value) string {
	switch v.(type) {
	case nil:
		return "NULL"
	case string:
		return "VARCHAR"
	case int64:
		return "BIGINT"
	case float64:
		return "DOUBLE"
	case bool:
		return "BOOLEAN"
	case time.Time:
		return "TIMESTAMP"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// FormatValue renders v in its canonical textual form for column type t.
// NULL renders as the empty string.
func FormatValue(t ColumnType, v Value) string {
	if v == nil {
		return ""
	}
	switch t {
	case TypeVarchar:
		return v.(string)
	case TypeBigint:
		return strconv.FormatInt(v.(int64), 10)
	case TypeDouble:
		return strconv.FormatFloat(v.(float64), 'g', -1, 64)
	case TypeBoolean:
		return strconv.FormatBool(v.(bool))
	case TypeDate:
		return v.(time.Time).UTC().Format(DateLayout)
	case TypeTimestamp:
		return v.(time.Time).UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

const (
	fieldSep = "\x1f"
	rowSep   = "\x1e"
)

// EncodeRow renders a row in its canonical encoding: one type-tagged field
// per column, joined by the unit separator. Two rows encode identically iff
// they hold equal values, so the encoding backs content hashing.
func EncodeRow(s Schema, r Row) string {
	fields := make([]string, len(r))
	for i, v := range r {
		if v == nil {
			fields[i] = "n"
			continue
		}
		var tag byte
		switch s[i].Type {
		case TypeVarchar:
			tag = 's'
		case TypeBigint:
			tag = 'i'
		case TypeDouble:
			tag = 'f'
		case TypeBoolean:
			tag = 'b'
		case TypeDate:
			tag = 'd'
		case TypeTimestamp:
			tag = 't'
		}
		fields[i] = string(tag) + FormatValue(s[i].Type, v)
	}
	return strings.Join(fields, fieldSep)
}

// ContentHash computes the sha256 of the canonical row encodings, sorted so
// physical row order does not affect the hash. Two versions with equal
// hashes are content-equivalent as multisets of rows.
func ContentHash(s Schema, rows []Row) string {
	encoded := make([]string, len(rows))
	for i, r := range rows {
		encoded[i] = EncodeRow(s, r)
	}
	sort.Strings(encoded)
	h := sha256.New()
	for _, e := range encoded {
		h.Write([]byte(e))
		h.Write([]byte(rowSep))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CloneRow returns an independent copy of r.
func CloneRow(r Row) Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}
