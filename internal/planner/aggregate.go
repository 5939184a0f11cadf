package planner

import (
	"fmt"

	"raillake/internal/domain"
)

// aggSpec is one compiled aggregation: its function, the measure column's
// position (-1 for a bare row count), and the output column it produces.
type aggSpec struct {
	fn  domain.AggFunc
	idx int
	out domain.Column
}

// planAggregate groups rows by the declared dimension columns and computes
// the declared aggregates per group. NULL dimension values form their own
// group, never dropped. Output schema is the dimensions followed by one
// column per aggregation; groups appear in first-appearance order.
func planAggregate(rule domain.Rule, schema domain.Schema, rows []domain.Row) (*domain.PlanResult, error) {
	spec := rule.Aggregate

	dimIdx := make([]int, len(spec.GroupBy))
	dimSchema := make(domain.Schema, len(spec.GroupBy))
	for i, name := range spec.GroupBy {
		idx := schema.ColumnIndex(name)
		if idx < 0 {
			return nil, ruleErr(rule, -1, "dimension %q is not a column of the input", name)
		}
		dimIdx[i] = idx
		dimSchema[i] = schema[idx]
	}

	aggs := make([]aggSpec, len(spec.Aggregations))
	for i, a := range spec.Aggregations {
		compiled, err := compileAgg(rule, schema, a)
		if err != nil {
			return nil, err
		}
		aggs[i] = compiled
	}

	outSchema := make(domain.Schema, 0, len(dimSchema)+len(aggs))
	outSchema = append(outSchema, dimSchema...)
	for _, a := range aggs {
		outSchema = append(outSchema, a.out)
	}
	seen := make(map[string]bool, len(outSchema))
	for _, c := range outSchema {
		if seen[c.Name] {
			return nil, ruleErr(rule, -1, "duplicate output column %q", c.Name)
		}
		seen[c.Name] = true
	}

	type group struct {
		dims domain.Row
		accs []accumulator
	}
	var groups []*group
	index := make(map[string]int)
	dims := make(domain.Row, len(dimIdx))
	for i, row := range rows {
		for j, idx := range dimIdx {
			dims[j] = row[idx]
		}
		key := domain.EncodeRow(dimSchema, dims)

		at, ok := index[key]
		if !ok {
			at = len(groups)
			index[key] = at
			g := &group{dims: domain.CloneRow(dims), accs: make([]accumulator, len(aggs))}
			for j, a := range aggs {
				g.accs[j] = accumulator{fn: a.fn, typ: a.out.Type, rowCount: a.idx < 0}
			}
			groups = append(groups, g)
		}
		g := groups[at]
		for j, a := range aggs {
			var v domain.Value
			if a.idx >= 0 {
				v = row[a.idx]
			}
			if err := g.accs[j].add(v); err != nil {
				return nil, ruleErr(rule, i, "aggregation %q: %v", a.out.Name, err)
			}
		}
	}

	out := make([]domain.Row, len(groups))
	for i, g := range groups {
		row := make(domain.Row, 0, len(outSchema))
		row = append(row, g.dims...)
		for j := range g.accs {
			row = append(row, g.accs[j].result())
		}
		out[i] = row
	}

	return &domain.PlanResult{Schema: outSchema, Rows: out}, nil
}

// compileAgg resolves one aggregation against the input schema and derives
// its output column.
func compileAgg(rule domain.Rule, schema domain.Schema, a domain.Aggregation) (aggSpec, error) {
	if a.Column == "" {
		// Validate only admits a bare column for count.
		return aggSpec{
			fn:  a.Func,
			idx: -1,
			out: domain.Column{Name: a.As, Type: domain.TypeBigint},
		}, nil
	}

	idx := schema.ColumnIndex(a.Column)
	if idx < 0 {
		return aggSpec{}, ruleErr(rule, -1, "aggregation column %q is not a column of the input", a.Column)
	}
	col := schema[idx]

	switch a.Func {
	case domain.AggCount:
		return aggSpec{fn: a.Func, idx: idx, out: domain.Column{Name: a.As, Type: domain.TypeBigint}}, nil
	case domain.AggSum:
		if col.Type != domain.TypeBigint && col.Type != domain.TypeDouble {
			return aggSpec{}, ruleErr(rule, -1, "sum requires a numeric column, %q is %s", a.Column, col.Type)
		}
		return aggSpec{fn: a.Func, idx: idx, out: domain.Column{Name: a.As, Type: col.Type, Nullable: col.Nullable}}, nil
	case domain.AggMin, domain.AggMax:
		return aggSpec{fn: a.Func, idx: idx, out: domain.Column{Name: a.As, Type: col.Type, Nullable: col.Nullable}}, nil
	}
	return aggSpec{}, ruleErr(rule, -1, "unknown aggregate function %q", a.Func)
}

// accumulator folds one aggregation over one group's rows. NULL measure
// values are skipped; count over a measure counts non-NULL values, a bare
// count counts rows.
type accumulator struct {
	fn       domain.AggFunc
	typ      domain.ColumnType
	rowCount bool
	n        int64
	sumI     int64
	sumF     float64
	best     domain.Value
	seen     bool
}

func (c *accumulator) add(v domain.Value) error {
	if c.fn == domain.AggCount {
		if c.rowCount || v != nil {
			c.n++
		}
		return nil
	}
	if v == nil {
		return nil
	}
	switch c.fn {
	case domain.AggSum:
		switch x := v.(type) {
		case int64:
			c.sumI += x
		case float64:
			c.sumF += x
		default:
			return fmt.Errorf("cannot sum %s value", domain.ValueTypeName(v))
		}
		c.seen = true
	case domain.AggMin, domain.AggMax:
		if !c.seen {
			c.best = v
			c.seen = true
			return nil
		}
		cmp, err := compareValues(c.typ, v, c.best)
		if err != nil {
			return err
		}
		if (c.fn == domain.AggMin && cmp < 0) || (c.fn == domain.AggMax && cmp > 0) {
			c.best = v
		}
	}
	return nil
}

func (c *accumulator) result() domain.Value {
	switch c.fn {
	case domain.AggCount:
		return c.n
	case domain.AggSum:
		if !c.seen {
			return nil
		}
		if c.typ == domain.TypeBigint {
			return c.sumI
		}
		return c.sumF
	case domain.AggMin, domain.AggMax:
		if !c.seen {
			return nil
		}
		return c.best
	}
	return nil
}
