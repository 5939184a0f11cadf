// Package planner evaluates transformation rules over upstream version
// contents. Plans are pure: no I/O, no clock, no map iteration order leaking
// into output. Identical rule and inputs produce identical output, which is
// what makes a re-run after a partial pipeline failure safe to commit.
package planner

import (
	"fmt"
	"strings"
	"time"

	"raillake/internal/domain"
)

var _ domain.Planner = (*Planner)(nil)

// Planner evaluates the closed rule catalog. Stateless and safe for
// concurrent use.
type Planner struct{}

// New creates a Planner.
func New() *Planner { return &Planner{} }

// Plan applies rule to the upstream version contents and proposes the target
// table's next content. Inputs must arrive in the rule's declared order with
// identical schemas; their rows are evaluated as one sequence in that order.
func (p *Planner) Plan(rule domain.Rule, inputs []domain.PlanInput) (*domain.PlanResult, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if len(inputs) != len(rule.Inputs) {
		return nil, ruleErr(rule, -1, "rule declares %d inputs, got %d", len(rule.Inputs), len(inputs))
	}
	for i, in := range inputs {
		if in.Ref.Table != rule.Inputs[i] {
			return nil, ruleErr(rule, -1, "input %d is %q, rule declares %q", i, in.Ref.Table, rule.Inputs[i])
		}
		if err := in.Schema.Validate(); err != nil {
			return nil, ruleErr(rule, -1, "input %s: %v", in.Ref, err)
		}
		if !in.Schema.Equal(inputs[0].Schema) {
			return nil, ruleErr(rule, -1, "input %s schema differs from %s", in.Ref, inputs[0].Ref)
		}
	}

	schema := inputs[0].Schema
	var rows []domain.Row
	pos := 0
	for _, in := range inputs {
		for _, r := range in.Rows {
			if len(r) != len(schema) {
				return nil, ruleErr(rule, pos, "row has %d values, schema has %d columns", len(r), len(schema))
			}
			rows = append(rows, r)
			pos++
		}
	}

	switch rule.Kind {
	case domain.RuleDedup:
		return planDedup(rule, schema, rows)
	case domain.RuleCoerce:
		return planCoerce(rule, schema, rows)
	case domain.RuleAggregate:
		return planAggregate(rule, schema, rows)
	}
	return nil, ruleErr(rule, -1, "unknown rule kind %q", rule.Kind)
}

func ruleErr(rule domain.Rule, rowIndex int, format string, args ...any) *domain.RuleComputationError {
	return &domain.RuleComputationError{
		Rule:     rule.Name,
		Table:    rule.Target,
		RowIndex: rowIndex,
		Reason:   fmt.Sprintf(format, args...),
	}
}

// compareValues orders two values of column type t with NULL first. Both
// values must hold t's dynamic type when non-nil.
func compareValues(t domain.ColumnType, a, b domain.Value) (int, error) {
	if a == nil && b == nil {
		return 0, nil
	}
	if a == nil {
		return -1, nil
	}
	if b == nil {
		return 1, nil
	}
	switch t {
	case domain.TypeVarchar:
		av, aok := a.(string)
		bv, bok := b.(string)
		if !aok || !bok {
			return 0, compareTypeErr(t, a, b)
		}
		return strings.Compare(av, bv), nil
	case domain.TypeBigint:
		av, aok := a.(int64)
		bv, bok := b.(int64)
		if !aok || !bok {
			return 0, compareTypeErr(t, a, b)
		}
		switch {
		case av < bv:
			return -1, nil
		case av > bv:
			return 1, nil
		}
		return 0, nil
	case domain.TypeDouble:
		av, aok := a.(float64)
		bv, bok := b.(float64)
		if !aok || !bok {
			return 0, compareTypeErr(t, a, b)
		}
		switch {
		case av < bv:
			return -1, nil
		case av > bv:
			return 1, nil
		}
		return 0, nil
	case domain.TypeBoolean:
		av, aok := a.(bool)
		bv, bok := b.(bool)
		if !aok || !bok {
			return 0, compareTypeErr(t, a, b)
		}
		switch {
		case !av && bv:
			return -1, nil
		case av && !bv:
			return 1, nil
		}
		return 0, nil
	case domain.TypeDate, domain.TypeTimestamp:
		av, aok := a.(time.Time)
		bv, bok := b.(time.Time)
		if !aok || !bok {
			return 0, compareTypeErr(t, a, b)
		}
		return av.Compare(bv), nil
	}
	return 0, fmt.Errorf("unknown column type %q", t)
}

func compareTypeErr(t domain.ColumnType, a, b domain.Value) error {
	return fmt.Errorf("cannot order %s against %s as %s",
		domain.ValueTypeName(a), domain.ValueTypeName(b), t)
}
