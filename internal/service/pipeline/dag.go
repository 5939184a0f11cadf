// Package pipeline orchestrates the declared rule set: dependency
// resolution across layers, single-rule transforms with conflict
// re-planning, full runs with step accounting, and the cron schedule.
package pipeline

import "raillake/internal/domain"

// ResolveExecutionOrder computes a topological ordering of transformation
// rules using Kahn's algorithm. Rules are linked through tables: a rule
// depends on every rule whose target table it reads. Returns levels of rule
// names where each level can execute in parallel.
//
// Inputs no rule produces must be fed by ingestion; sourceTables names those
// tables. An input outside both sets is an error, as is a cycle.
func ResolveExecutionOrder(rules []domain.Rule, sourceTables map[string]bool) ([][]string, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	producer := make(map[string]string, len(rules)) // target table → rule name
	inDegree := make(map[string]int, len(rules))
	for _, r := range rules {
		producer[r.Target] = r.Name
		inDegree[r.Name] = 0
	}

	dependents := make(map[string][]string) // rule name → rules reading its target
	for _, r := range rules {
		for _, input := range r.Inputs {
			up, ok := producer[input]
			if !ok {
				if !sourceTables[input] {
					return nil, domain.ErrValidation("rule %q reads table %q, which no rule or source produces", r.Name, input)
				}
				continue
			}
			if up == r.Name {
				return nil, domain.ErrValidation("rule %q reads its own target %q", r.Name, input)
			}
			dependents[up] = append(dependents[up], r.Name)
			inDegree[r.Name]++
		}
	}

	// Kahn's algorithm, processed by levels and seeded in declaration order
	// so the result is stable.
	var queue []string
	for _, r := range rules {
		if inDegree[r.Name] == 0 {
			queue = append(queue, r.Name)
		}
	}

	var levels [][]string
	processed := 0
	for len(queue) > 0 {
		level := make([]string, len(queue))
		copy(level, queue)
		levels = append(levels, level)
		processed += len(level)

		var next []string
		for _, name := range queue {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if processed != len(rules) {
		return nil, domain.ErrValidation("cycle detected in rule dependencies")
	}
	return levels, nil
}
