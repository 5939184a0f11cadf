package planner

import "raillake/internal/domain"

// planDedup keeps the most recent row per key, ordered by the declared
// ordering column with NULL first; an ordering tie keeps the row at the later
// upstream position. Output preserves first-seen key order and the input
// schema.
func planDedup(rule domain.Rule, schema domain.Schema, rows []domain.Row) (*domain.PlanResult, error) {
	spec := rule.Dedup

	keyIdx := make([]int, len(spec.Keys))
	keySchema := make(domain.Schema, len(spec.Keys))
	for i, name := range spec.Keys {
		idx := schema.ColumnIndex(name)
		if idx < 0 {
			return nil, ruleErr(rule, -1, "dedup key %q is not a column of the input", name)
		}
		keyIdx[i] = idx
		keySchema[i] = schema[idx]
	}
	orderIdx := schema.ColumnIndex(spec.OrderBy)
	if orderIdx < 0 {
		return nil, ruleErr(rule, -1, "dedup ordering column %q is not a column of the input", spec.OrderBy)
	}
	orderType := schema[orderIdx].Type

	out := make([]domain.Row, 0, len(rows))
	slot := make(map[string]int, len(rows))
	keyRow := make(domain.Row, len(keyIdx))
	for i, row := range rows {
		for j, idx := range keyIdx {
			keyRow[j] = row[idx]
		}
		key := domain.EncodeRow(keySchema, keyRow)

		at, seen := slot[key]
		if !seen {
			slot[key] = len(out)
			out = append(out, domain.CloneRow(row))
			continue
		}
		cmp, err := compareValues(orderType, row[orderIdx], out[at][orderIdx])
		if err != nil {
			return nil, ruleErr(rule, i, "ordering column %q: %v", spec.OrderBy, err)
		}
		if cmp >= 0 {
			out[at] = domain.CloneRow(row)
		}
	}

	return &domain.PlanResult{Schema: schema.Clone(), Rows: out}, nil
}
