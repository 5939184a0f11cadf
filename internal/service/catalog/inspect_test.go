package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raillake/internal/domain"
)

func TestReadCurrentAndTimeTravel(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	registerDisruptions(t, env, "disruptions_bronze", domain.LayerBronze)

	first := disruptionRows()
	commitDisruptions(t, env, domain.CommitRequest{
		Table:           "disruptions_bronze",
		Schema:          disruptionSchema(),
		Rows:            first,
		RuleName:        domain.IngestRuleName("disruptions"),
		RuleFingerprint: "extract-2024-01-01",
	})

	second := []domain.Row{{int64(33003), "Zwolle - Groningen", int64(140)}}
	commitDisruptions(t, env, domain.CommitRequest{
		Table:           "disruptions_bronze",
		Schema:          disruptionSchema(),
		Rows:            second,
		RuleName:        domain.IngestRuleName("disruptions"),
		RuleFingerprint: "extract-2024-01-02",
	})

	current, err := env.catalog.ReadCurrent(ctx, "disruptions_bronze")
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.Version)
	assert.Equal(t, second, current.Rows)

	// The superseded version stays readable at its own coordinates.
	old, err := env.catalog.ReadVersion(ctx, "disruptions_bronze", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), old.Version)
	assert.Equal(t, first, old.Rows)
}

func TestReadVersionUsesItsSchemaRevision(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	registerDisruptions(t, env, "disruptions_bronze", domain.LayerBronze)

	commitDisruptions(t, env, domain.CommitRequest{
		Table:           "disruptions_bronze",
		Schema:          disruptionSchema(),
		Rows:            disruptionRows(),
		RuleName:        domain.IngestRuleName("disruptions"),
		RuleFingerprint: "extract-2024-01-01",
	})

	widened := append(disruptionSchema(), domain.Column{Name: "cause", Type: domain.TypeVarchar, Nullable: true})
	commitDisruptions(t, env, domain.CommitRequest{
		Table:           "disruptions_bronze",
		Schema:          widened,
		Rows:            []domain.Row{{int64(33004), "Utrecht - Arnhem", int64(30), "storm damage"}},
		RuleName:        domain.IngestRuleName("disruptions"),
		RuleFingerprint: "extract-2024-01-02",
	})

	// v1 decodes against revision 1, before the widening.
	old, err := env.catalog.ReadVersion(ctx, "disruptions_bronze", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), old.SchemaRevision)
	assert.True(t, old.Schema.Equal(disruptionSchema()))
	require.Len(t, old.Rows, 2)
	assert.Len(t, old.Rows[0], 3)

	current, err := env.catalog.ReadCurrent(ctx, "disruptions_bronze")
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.SchemaRevision)
	assert.True(t, current.Schema.Equal(widened))
	require.Len(t, current.Rows, 1)
	assert.Equal(t, "storm damage", current.Rows[0][3])
}

func TestReadVersionNotFound(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	var notFound *domain.NotFoundError

	_, err := env.catalog.ReadCurrent(ctx, "no_such_table")
	require.ErrorAs(t, err, &notFound)

	registerDisruptions(t, env, "disruptions_bronze", domain.LayerBronze)

	_, err = env.catalog.ReadCurrent(ctx, "disruptions_bronze")
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, err.Error(), "no committed versions")

	_, err = env.catalog.ReadVersion(ctx, "disruptions_bronze", 1)
	require.ErrorAs(t, err, &notFound)
}

func TestReadEmptyVersion(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	registerDisruptions(t, env, "disruptions_bronze", domain.LayerBronze)

	commitDisruptions(t, env, domain.CommitRequest{
		Table:           "disruptions_bronze",
		Schema:          disruptionSchema(),
		Rows:            nil,
		RuleName:        domain.IngestRuleName("disruptions"),
		RuleFingerprint: "extract-empty",
	})

	data, err := env.catalog.ReadCurrent(ctx, "disruptions_bronze")
	require.NoError(t, err)
	assert.Equal(t, int64(1), data.Version)
	assert.Empty(t, data.Rows)
}
