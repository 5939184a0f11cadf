package planner

import (
	"fmt"
	"strings"

	"raillake/internal/domain"
)

// coerceStep is one compiled column mapping: the column's position and the
// coercion to run at it.
type coerceStep struct {
	idx      int
	column   string
	coercion domain.Coercion
}

// planCoerce maps declared columns through their coercions in declaration
// order. A row failing any step goes whole and uncoerced to Rejected with
// the offending column and a reason code; it is never silently dropped. The
// output schema reflects the coerced column types.
func planCoerce(rule domain.Rule, schema domain.Schema, rows []domain.Row) (*domain.PlanResult, error) {
	spec := rule.Coerce

	out := schema.Clone()
	steps := make([]coerceStep, len(spec.Columns))
	for i, cc := range spec.Columns {
		idx := out.ColumnIndex(cc.Column)
		if idx < 0 {
			return nil, ruleErr(rule, -1, "coercion column %q is not a column of the input", cc.Column)
		}
		next, err := coercedColumn(out[idx], cc.Coercion)
		if err != nil {
			return nil, ruleErr(rule, -1, "%v", err)
		}
		out[idx] = next
		steps[i] = coerceStep{idx: idx, column: cc.Column, coercion: cc.Coercion}
	}

	result := &domain.PlanResult{Schema: out, Rows: make([]domain.Row, 0, len(rows))}
	for i, row := range rows {
		coerced := domain.CloneRow(row)
		rejected := false
		for _, step := range steps {
			v, reason := coerceValue(step.coercion, coerced[step.idx])
			if reason != "" {
				result.Rejected = append(result.Rejected, domain.RejectedRow{
					Index:  i,
					Row:    domain.CloneRow(row),
					Column: step.column,
					Reason: reason,
				})
				rejected = true
				break
			}
			coerced[step.idx] = v
		}
		if rejected {
			continue
		}
		// Conformance pass so committed silver rows never carry a NULL
		// the output schema forbids, even from a corrupt upstream.
		for j, col := range out {
			if coerced[j] == nil && !col.Nullable {
				result.Rejected = append(result.Rejected, domain.RejectedRow{
					Index:  i,
					Row:    domain.CloneRow(row),
					Column: col.Name,
					Reason: domain.RejectNullNotAllowed,
				})
				rejected = true
				break
			}
		}
		if !rejected {
			result.Rows = append(result.Rows, coerced)
		}
	}
	return result, nil
}

// coercedColumn derives the output column a coercion produces, or an error
// when the coercion cannot take the column's type. String coercions require
// VARCHAR; parsing coercions take VARCHAR or pass their own type through.
func coercedColumn(col domain.Column, c domain.Coercion) (domain.Column, error) {
	switch c {
	case domain.CoerceTrim, domain.CoerceUpper, domain.CoerceLower:
		if col.Type != domain.TypeVarchar {
			return domain.Column{}, fmt.Errorf("coercion %q cannot take %s column %q", c, col.Type, col.Name)
		}
		return col, nil
	case domain.CoerceNullIfEmpty:
		if col.Type != domain.TypeVarchar {
			return domain.Column{}, fmt.Errorf("coercion %q cannot take %s column %q", c, col.Type, col.Name)
		}
		col.Nullable = true
		return col, nil
	case domain.CoerceToBigint:
		return parsedColumn(col, c, domain.TypeBigint)
	case domain.CoerceToDouble:
		return parsedColumn(col, c, domain.TypeDouble)
	case domain.CoerceToBoolean:
		return parsedColumn(col, c, domain.TypeBoolean)
	case domain.CoerceToDate:
		return parsedColumn(col, c, domain.TypeDate)
	case domain.CoerceToTimestamp:
		return parsedColumn(col, c, domain.TypeTimestamp)
	}
	return domain.Column{}, fmt.Errorf("unknown coercion %q", c)
}

func parsedColumn(col domain.Column, c domain.Coercion, target domain.ColumnType) (domain.Column, error) {
	if col.Type != domain.TypeVarchar && col.Type != target {
		return domain.Column{}, fmt.Errorf("coercion %q cannot take %s column %q", c, col.Type, col.Name)
	}
	col.Type = target
	return col, nil
}

// coerceValue runs one coercion over one cell. NULL passes through every
// coercion. A non-empty reason code means the owning row must be rejected.
func coerceValue(c domain.Coercion, v domain.Value) (domain.Value, string) {
	if v == nil {
		return nil, ""
	}
	switch c {
	case domain.CoerceTrim:
		s, ok := v.(string)
		if !ok {
			return nil, domain.RejectBadType
		}
		return strings.TrimSpace(s), ""
	case domain.CoerceUpper:
		s, ok := v.(string)
		if !ok {
			return nil, domain.RejectBadType
		}
		return strings.ToUpper(s), ""
	case domain.CoerceLower:
		s, ok := v.(string)
		if !ok {
			return nil, domain.RejectBadType
		}
		return strings.ToLower(s), ""
	case domain.CoerceNullIfEmpty:
		s, ok := v.(string)
		if !ok {
			return nil, domain.RejectBadType
		}
		if s == "" {
			return nil, ""
		}
		return s, ""
	case domain.CoerceToBigint:
		return parseValue(v, domain.TypeBigint, domain.RejectParseBigint)
	case domain.CoerceToDouble:
		return parseValue(v, domain.TypeDouble, domain.RejectParseDouble)
	case domain.CoerceToBoolean:
		return parseValue(v, domain.TypeBoolean, domain.RejectParseBoolean)
	case domain.CoerceToDate:
		return parseValue(v, domain.TypeDate, domain.RejectParseDate)
	case domain.CoerceToTimestamp:
		return parseValue(v, domain.TypeTimestamp, domain.RejectParseTimestamp)
	}
	return nil, domain.RejectBadType
}

// parseValue parses a VARCHAR cell into target. A cell already holding the
// target type passes through untouched.
func parseValue(v domain.Value, target domain.ColumnType, failCode string) (domain.Value, string) {
	if domain.TypeOK(target, v) {
		return v, ""
	}
	s, ok := v.(string)
	if !ok {
		return nil, domain.RejectBadType
	}
	parsed, err := domain.ParseValue(target, s)
	if err != nil {
		return nil, failCode
	}
	return parsed, ""
}
