package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raillake/internal/domain"
	"raillake/internal/planner"
)

func cleanDisruptionSchema() domain.Schema {
	return domain.Schema{
		{Name: "cause_group", Type: domain.TypeVarchar, Nullable: true},
		{Name: "duration_minutes", Type: domain.TypeBigint, Nullable: true},
	}
}

func aggregateDisruptions(aggs ...domain.Aggregation) domain.Rule {
	return domain.Rule{
		Name:      "disruptions-by-cause",
		Target:    "disruption_stats",
		Layer:     domain.LayerGold,
		Inputs:    []string{"disruptions_clean"},
		Kind:      domain.RuleAggregate,
		Aggregate: &domain.AggregateSpec{GroupBy: []string{"cause_group"}, Aggregations: aggs},
	}
}

func TestAggregateSumWithNullGroup(t *testing.T) {
	rows := []domain.Row{
		{"X", int64(1)},
		{"X", int64(2)},
		{nil, int64(5)},
	}
	rule := aggregateDisruptions(domain.Aggregation{Func: domain.AggSum, Column: "duration_minutes", As: "total_minutes"})

	res, err := planner.New().Plan(rule, []domain.PlanInput{
		planInput("disruptions_clean", 1, cleanDisruptionSchema(), rows),
	})
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, domain.Row{"X", int64(3)}, res.Rows[0])
	assert.Equal(t, domain.Row{nil, int64(5)}, res.Rows[1])

	want := domain.Schema{
		{Name: "cause_group", Type: domain.TypeVarchar, Nullable: true},
		{Name: "total_minutes", Type: domain.TypeBigint, Nullable: true},
	}
	assert.True(t, want.Equal(res.Schema), "got %+v", res.Schema)
}

func TestAggregateGroupsInFirstAppearanceOrder(t *testing.T) {
	rows := []domain.Row{
		{"weather", int64(30)},
		{"staff", int64(10)},
		{"weather", int64(45)},
		{"logistical", int64(20)},
		{"staff", int64(15)},
	}
	rule := aggregateDisruptions(domain.Aggregation{Func: domain.AggCount, As: "disruptions"})

	res, err := planner.New().Plan(rule, []domain.PlanInput{
		planInput("disruptions_clean", 1, cleanDisruptionSchema(), rows),
	})
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, domain.Row{"weather", int64(2)}, res.Rows[0])
	assert.Equal(t, domain.Row{"staff", int64(2)}, res.Rows[1])
	assert.Equal(t, domain.Row{"logistical", int64(1)}, res.Rows[2])
}

func TestAggregateCountColumnSkipsNulls(t *testing.T) {
	rows := []domain.Row{
		{"weather", int64(30)},
		{"weather", nil},
		{"weather", int64(45)},
	}
	rule := aggregateDisruptions(
		domain.Aggregation{Func: domain.AggCount, As: "rows"},
		domain.Aggregation{Func: domain.AggCount, Column: "duration_minutes", As: "with_duration"},
	)

	res, err := planner.New().Plan(rule, []domain.PlanInput{
		planInput("disruptions_clean", 1, cleanDisruptionSchema(), rows),
	})
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, domain.Row{"weather", int64(3), int64(2)}, res.Rows[0])
}

func TestAggregateMinMax(t *testing.T) {
	rows := []domain.Row{
		{"weather", int64(30)},
		{"weather", int64(5)},
		{"weather", int64(45)},
		{"staff", nil},
	}
	rule := aggregateDisruptions(
		domain.Aggregation{Func: domain.AggMin, Column: "duration_minutes", As: "shortest"},
		domain.Aggregation{Func: domain.AggMax, Column: "duration_minutes", As: "longest"},
	)

	res, err := planner.New().Plan(rule, []domain.PlanInput{
		planInput("disruptions_clean", 1, cleanDisruptionSchema(), rows),
	})
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, domain.Row{"weather", int64(5), int64(45)}, res.Rows[0])
	// All measure values NULL leaves min and max NULL.
	assert.Equal(t, domain.Row{"staff", nil, nil}, res.Rows[1])
}

func TestAggregateMultipleDimensions(t *testing.T) {
	schema := domain.Schema{
		{Name: "station_from", Type: domain.TypeVarchar},
		{Name: "station_to", Type: domain.TypeVarchar},
		{Name: "distance_km", Type: domain.TypeDouble},
	}
	rule := domain.Rule{
		Name:   "distance-totals",
		Target: "distance_stats",
		Layer:  domain.LayerGold,
		Inputs: []string{"tariff_distances_clean"},
		Kind:   domain.RuleAggregate,
		Aggregate: &domain.AggregateSpec{
			GroupBy: []string{"station_from", "station_to"},
			Aggregations: []domain.Aggregation{
				{Func: domain.AggSum, Column: "distance_km", As: "total_km"},
			},
		},
	}
	rows := []domain.Row{
		{"ASD", "UT", 36.5},
		{"ASD", "GVC", 58.1},
		{"ASD", "UT", 35.5},
	}

	res, err := planner.New().Plan(rule, []domain.PlanInput{
		planInput("tariff_distances_clean", 1, schema, rows),
	})
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, domain.Row{"ASD", "UT", 72.0}, res.Rows[0])
	assert.Equal(t, domain.Row{"ASD", "GVC", 58.1}, res.Rows[1])
}

func TestAggregateRefusesBadDeclarations(t *testing.T) {
	tests := []struct {
		name    string
		rule    domain.Rule
		wantErr string
	}{
		{
			name: "unknown dimension",
			rule: func() domain.Rule {
				r := aggregateDisruptions(domain.Aggregation{Func: domain.AggCount, As: "n"})
				r.Aggregate.GroupBy = []string{"province"}
				return r
			}(),
			wantErr: `dimension "province" is not a column`,
		},
		{
			name: "unknown measure",
			rule: aggregateDisruptions(
				domain.Aggregation{Func: domain.AggSum, Column: "delay_minutes", As: "total"},
			),
			wantErr: `aggregation column "delay_minutes" is not a column`,
		},
		{
			name: "sum over VARCHAR",
			rule: aggregateDisruptions(
				domain.Aggregation{Func: domain.AggSum, Column: "cause_group", As: "total"},
			),
			wantErr: `sum requires a numeric column, "cause_group" is VARCHAR`,
		},
		{
			name: "duplicate output column",
			rule: aggregateDisruptions(
				domain.Aggregation{Func: domain.AggCount, As: "cause_group"},
			),
			wantErr: `duplicate output column "cause_group"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := planner.New().Plan(tt.rule, []domain.PlanInput{
				planInput("disruptions_clean", 1, cleanDisruptionSchema(), nil),
			})

			var comp *domain.RuleComputationError
			require.ErrorAs(t, err, &comp)
			assert.Equal(t, -1, comp.RowIndex)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
