package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// RuleKind tags the transformation rule variants.
type RuleKind string

const (
	RuleDedup     RuleKind = "dedup"
	RuleCoerce    RuleKind = "coerce"
	RuleAggregate RuleKind = "aggregate"
)

// Coercion names one pure column mapping from the fixed catalog. Rules never
// carry arbitrary code; the catalog is closed.
type Coercion string

const (
	CoerceTrim        Coercion = "trim"
	CoerceUpper       Coercion = "upper"
	CoerceLower       Coercion = "lower"
	CoerceNullIfEmpty Coercion = "null_if_empty"
	CoerceToBigint    Coercion = "to_bigint"
	CoerceToDouble    Coercion = "to_double"
	CoerceToBoolean   Coercion = "to_boolean"
	CoerceToDate      Coercion = "to_date"
	CoerceToTimestamp Coercion = "to_timestamp"
)

// ValidCoercion reports whether c is in the catalog.
func ValidCoercion(c Coercion) bool {
	switch c {
	case CoerceTrim, CoerceUpper, CoerceLower, CoerceNullIfEmpty,
		CoerceToBigint, CoerceToDouble, CoerceToBoolean, CoerceToDate, CoerceToTimestamp:
		return true
	}
	return false
}

// AggFunc enumerates aggregate functions.
type AggFunc string

const (
	AggSum   AggFunc = "sum"
	AggCount AggFunc = "count"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
)

// ValidAggFunc reports whether f is a recognized aggregate function.
func ValidAggFunc(f AggFunc) bool {
	switch f {
	case AggSum, AggCount, AggMin, AggMax:
		return true
	}
	return false
}

// DedupSpec keeps the most recent row per key, ordered by OrderBy; ties keep
// the row landed later in the upstream batch.
type DedupSpec struct {
	Keys    []string `json:"keys" yaml:"keys"`
	OrderBy string   `json:"order_by" yaml:"order_by"`
}

// ColumnCoercion maps one column through a named coercion.
type ColumnCoercion struct {
	Column   string   `json:"column" yaml:"column"`
	Coercion Coercion `json:"coercion" yaml:"coercion"`
}

// CoerceSpec applies per-column coercions; rows failing any coercion are
// routed to the rejected sequence, never dropped silently.
type CoerceSpec struct {
	Columns []ColumnCoercion `json:"columns" yaml:"columns"`
}

// Aggregation declares one aggregate output column. An empty Column with
// AggCount counts rows; otherwise Count counts non-NULL values.
type Aggregation struct {
	Func   AggFunc `json:"func" yaml:"func"`
	Column string  `json:"column,omitempty" yaml:"column,omitempty"`
	As     string  `json:"as" yaml:"as"`
}

// AggregateSpec groups rows by dimension columns and computes aggregates per
// group. NULL dimension values form their own group.
type AggregateSpec struct {
	GroupBy      []string      `json:"group_by" yaml:"group_by"`
	Aggregations []Aggregation `json:"aggregations" yaml:"aggregations"`
}

// Rule is a named, pure mapping from upstream table versions to a new
// version of its target table. Exactly the variant field matching Kind is set.
type Rule struct {
	Name      string         `json:"name" yaml:"name"`
	Target    string         `json:"target" yaml:"target"`
	Layer     Layer          `json:"layer" yaml:"layer"`
	Inputs    []string       `json:"inputs" yaml:"inputs"`
	Kind      RuleKind       `json:"kind" yaml:"kind"`
	Dedup     *DedupSpec     `json:"dedup,omitempty" yaml:"dedup,omitempty"`
	Coerce    *CoerceSpec    `json:"coerce,omitempty" yaml:"coerce,omitempty"`
	Aggregate *AggregateSpec `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
}

// Validate checks the rule declaration: target, inputs, and exactly one
// variant spec matching Kind.
func (r Rule) Validate() error {
	if r.Name == "" {
		return ErrValidation("rule name is required")
	}
	if r.Target == "" {
		return ErrValidation("rule %q: target table is required", r.Name)
	}
	if !ValidLayer(r.Layer) {
		return ErrValidation("rule %q: unknown layer %q", r.Name, r.Layer)
	}
	if len(r.Inputs) == 0 {
		return ErrValidation("rule %q: at least one input table is required", r.Name)
	}
	specs := 0
	if r.Dedup != nil {
		specs++
	}
	if r.Coerce != nil {
		specs++
	}
	if r.Aggregate != nil {
		specs++
	}
	if specs != 1 {
		return ErrValidation("rule %q: exactly one variant spec must be set, got %d", r.Name, specs)
	}
	switch r.Kind {
	case RuleDedup:
		if r.Dedup == nil {
			return ErrValidation("rule %q: kind dedup requires a dedup spec", r.Name)
		}
		if len(r.Dedup.Keys) == 0 {
			return ErrValidation("rule %q: dedup requires at least one key column", r.Name)
		}
		if r.Dedup.OrderBy == "" {
			return ErrValidation("rule %q: dedup requires an ordering column", r.Name)
		}
	case RuleCoerce:
		if r.Coerce == nil {
			return ErrValidation("rule %q: kind coerce requires a coerce spec", r.Name)
		}
		if len(r.Coerce.Columns) == 0 {
			return ErrValidation("rule %q: coerce requires at least one column", r.Name)
		}
		for _, c := range r.Coerce.Columns {
			if !ValidCoercion(c.Coercion) {
				return ErrValidation("rule %q: unknown coercion %q for column %q", r.Name, c.Coercion, c.Column)
			}
		}
	case RuleAggregate:
		if r.Aggregate == nil {
			return ErrValidation("rule %q: kind aggregate requires an aggregate spec", r.Name)
		}
		if len(r.Aggregate.Aggregations) == 0 {
			return ErrValidation("rule %q: aggregate requires at least one aggregation", r.Name)
		}
		for _, a := range r.Aggregate.Aggregations {
			if !ValidAggFunc(a.Func) {
				return ErrValidation("rule %q: unknown aggregate function %q", r.Name, a.Func)
			}
			if a.As == "" {
				return ErrValidation("rule %q: aggregation output name is required", r.Name)
			}
			if a.Column == "" && a.Func != AggCount {
				return ErrValidation("rule %q: %s requires a column", r.Name, a.Func)
			}
		}
	default:
		return ErrValidation("rule %q: unknown kind %q", r.Name, r.Kind)
	}
	return nil
}

// Fingerprint derives a stable identity from the rule's canonical JSON
// encoding. Two processes holding the same definition fingerprint it
// identically, which is what makes replays recognizable.
func (r Rule) Fingerprint() string {
	data, _ := json.Marshal(r)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IngestRuleName is the lineage identity used for bronze commits landed
// directly from a source rather than produced by a declared rule.
func IngestRuleName(source string) string {
	return "ingest:" + source
}

// Reject reason codes attached to rows routed to the rejected sequence.
const (
	RejectParseBigint    = "PARSE_BIGINT"
	RejectParseDouble    = "PARSE_DOUBLE"
	RejectParseBoolean   = "PARSE_BOOLEAN"
	RejectParseDate      = "PARSE_DATE"
	RejectParseTimestamp = "PARSE_TIMESTAMP"
	RejectNullNotAllowed = "NULL_NOT_ALLOWED"
	RejectBadType        = "BAD_TYPE"
)

// RejectedRow is one upstream row that failed coercion, carrying the column
// and reason code that rejected it.
type RejectedRow struct {
	Index  int    // position in the upstream row sequence
	Row    Row    // original, uncoerced row
	Column string
	Reason string
}
