package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raillake/internal/domain"
	"raillake/internal/planner"
)

func TestDedupKeepsMostRecentPerKey(t *testing.T) {
	rows := []domain.Row{
		{int64(1), "a", int64(1)},
		{int64(1), "b", int64(2)},
	}

	res, err := planner.New().Plan(dedupDisruptions(), []domain.PlanInput{
		planInput("disruptions_bronze", 1, disruptionSchema(), rows),
	})
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, domain.Row{int64(1), "b", int64(2)}, res.Rows[0])
	assert.True(t, disruptionSchema().Equal(res.Schema))
	assert.Empty(t, res.Rejected)
}

func TestDedupPreservesFirstSeenKeyOrder(t *testing.T) {
	rows := []domain.Row{
		{int64(30), "Zwolle-Meppel", int64(1)},
		{int64(10), "Amsterdam-Utrecht", int64(1)},
		{int64(30), "Zwolle-Meppel", int64(9)},
		{int64(20), "Den Haag-Rotterdam", int64(1)},
		{int64(10), "Amsterdam-Utrecht", int64(3)},
	}

	res, err := planner.New().Plan(dedupDisruptions(), []domain.PlanInput{
		planInput("disruptions_bronze", 1, disruptionSchema(), rows),
	})
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, domain.Row{int64(30), "Zwolle-Meppel", int64(9)}, res.Rows[0])
	assert.Equal(t, domain.Row{int64(10), "Amsterdam-Utrecht", int64(3)}, res.Rows[1])
	assert.Equal(t, domain.Row{int64(20), "Den Haag-Rotterdam", int64(1)}, res.Rows[2])
}

func TestDedupTieKeepsLaterPosition(t *testing.T) {
	rows := []domain.Row{
		{int64(1), "first", int64(5)},
		{int64(1), "second", int64(5)},
	}

	res, err := planner.New().Plan(dedupDisruptions(), []domain.PlanInput{
		planInput("disruptions_bronze", 1, disruptionSchema(), rows),
	})
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, "second", res.Rows[0][1])
}

func TestDedupNullOrderingSortsFirst(t *testing.T) {
	rows := []domain.Row{
		{int64(1), "dated", int64(2)},
		{int64(1), "undated", nil},
	}

	res, err := planner.New().Plan(dedupDisruptions(), []domain.PlanInput{
		planInput("disruptions_bronze", 1, disruptionSchema(), rows),
	})
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, "dated", res.Rows[0][1])
}

func TestDedupSpansInputsInOrder(t *testing.T) {
	rule := dedupDisruptions()
	rule.Inputs = []string{"disruptions_bronze", "disruptions_bronze_archive"}

	res, err := planner.New().Plan(rule, []domain.PlanInput{
		planInput("disruptions_bronze", 2, disruptionSchema(), []domain.Row{
			{int64(1), "bronze", int64(4)},
		}),
		planInput("disruptions_bronze_archive", 1, disruptionSchema(), []domain.Row{
			{int64(1), "archive", int64(4)},
			{int64(2), "archive-only", int64(1)},
		}),
	})
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	// Equal ordering values, so the archive row at the later position wins.
	assert.Equal(t, domain.Row{int64(1), "archive", int64(4)}, res.Rows[0])
	assert.Equal(t, domain.Row{int64(2), "archive-only", int64(1)}, res.Rows[1])
}

func TestDedupCompositeKey(t *testing.T) {
	schema := domain.Schema{
		{Name: "station_from", Type: domain.TypeVarchar},
		{Name: "station_to", Type: domain.TypeVarchar},
		{Name: "distance_km", Type: domain.TypeBigint},
		{Name: "revision", Type: domain.TypeBigint},
	}
	rule := domain.Rule{
		Name:   "clean-distances",
		Target: "tariff_distances_clean",
		Layer:  domain.LayerSilver,
		Inputs: []string{"tariff_distances_bronze"},
		Kind:   domain.RuleDedup,
		Dedup:  &domain.DedupSpec{Keys: []string{"station_from", "station_to"}, OrderBy: "revision"},
	}
	rows := []domain.Row{
		{"ASD", "UT", int64(36), int64(1)},
		{"ASD", "GVC", int64(58), int64(1)},
		{"ASD", "UT", int64(35), int64(2)},
	}

	res, err := planner.New().Plan(rule, []domain.PlanInput{
		planInput("tariff_distances_bronze", 1, schema, rows),
	})
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, domain.Row{"ASD", "UT", int64(35), int64(2)}, res.Rows[0])
	assert.Equal(t, domain.Row{"ASD", "GVC", int64(58), int64(1)}, res.Rows[1])
}

func TestDedupUnknownColumns(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.Rule)
		wantErr string
	}{
		{
			name:    "unknown key",
			mutate:  func(r *domain.Rule) { r.Dedup.Keys = []string{"ns_id"} },
			wantErr: `dedup key "ns_id" is not a column`,
		},
		{
			name:    "unknown ordering column",
			mutate:  func(r *domain.Rule) { r.Dedup.OrderBy = "seen_at" },
			wantErr: `dedup ordering column "seen_at" is not a column`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := dedupDisruptions()
			tt.mutate(&rule)

			_, err := planner.New().Plan(rule, []domain.PlanInput{
				planInput("disruptions_bronze", 1, disruptionSchema(), nil),
			})

			var comp *domain.RuleComputationError
			require.ErrorAs(t, err, &comp)
			assert.Equal(t, -1, comp.RowIndex)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
