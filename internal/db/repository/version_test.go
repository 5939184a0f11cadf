package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raillake/internal/domain"
)

func TestVersionRepo_CommitFirstVersion(t *testing.T) {
	tables, versions, _ := newTestRepos(t)
	ctx := context.Background()

	createTestTable(t, tables, "disruptions_bronze", domain.LayerBronze)
	committed := commitVersion(t, versions, "disruptions_bronze", 1, nil)

	assert.NotEmpty(t, committed.ID)
	assert.NotEmpty(t, committed.TableID)
	assert.Equal(t, int64(1), committed.SchemaRevision)
	assert.False(t, committed.CreatedAt.IsZero())

	tbl, err := tables.GetByName(ctx, "disruptions_bronze")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tbl.CurrentVersion)
	assert.False(t, tbl.Empty())

	got, err := versions.Get(ctx, "disruptions_bronze", 1)
	require.NoError(t, err)
	assert.Equal(t, committed.ID, got.ID)
	assert.Equal(t, committed.ContentHash, got.ContentHash)
	require.Len(t, got.Manifest.Files, 1)
	assert.NoError(t, got.Manifest.Verify())
}

func TestVersionRepo_CommitAdvancesWithoutGaps(t *testing.T) {
	tables, versions, _ := newTestRepos(t)
	ctx := context.Background()

	createTestTable(t, tables, "stations_bronze", domain.LayerBronze)
	commitVersion(t, versions, "stations_bronze", 1, nil)
	commitVersion(t, versions, "stations_bronze", 2, nil)
	commitVersion(t, versions, "stations_bronze", 3, nil)

	tbl, err := tables.GetByName(ctx, "stations_bronze")
	require.NoError(t, err)
	assert.Equal(t, int64(3), tbl.CurrentVersion)

	history, total, err := versions.ListByTable(ctx, "stations_bronze", domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, history, 3)
	assert.Equal(t, int64(3), history[0].Version)
	assert.Equal(t, int64(2), history[1].Version)
	assert.Equal(t, int64(1), history[2].Version)
}

func TestVersionRepo_CommitStaleVersionConflicts(t *testing.T) {
	tables, versions, _ := newTestRepos(t)
	ctx := context.Background()

	createTestTable(t, tables, "stations_bronze", domain.LayerBronze)
	commitVersion(t, versions, "stations_bronze", 1, nil)

	// A writer that still believes the table is empty attempts v1 again.
	err := versions.Commit(ctx, buildCommit(t, "stations_bronze", 1, nil))
	var conflict *domain.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "stations_bronze", conflict.Table)
	assert.Equal(t, int64(1), conflict.AttemptedVersion)
	assert.Equal(t, int64(1), conflict.CurrentVersion)

	// Skipping ahead is rejected the same way: versions are gapless.
	err = versions.Commit(ctx, buildCommit(t, "stations_bronze", 3, nil))
	require.ErrorAs(t, err, &conflict)

	tbl, err := tables.GetByName(ctx, "stations_bronze")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tbl.CurrentVersion)
}

func TestVersionRepo_CommitConflictLeavesNoPartialRows(t *testing.T) {
	tables, versions, lineage := newTestRepos(t)
	ctx := context.Background()

	createTestTable(t, tables, "stations_bronze", domain.LayerBronze)
	commitVersion(t, versions, "stations_bronze", 1, nil)

	rec := buildCommit(t, "stations_bronze", 1, []domain.LineageInput{{TableName: "other", Version: 9}})
	err := versions.Commit(ctx, rec)
	var conflict *domain.VersionConflictError
	require.ErrorAs(t, err, &conflict)

	// The rolled back commit must leave neither a version nor lineage behind.
	history, total, err := versions.ListByTable(ctx, "stations_bronze", domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, history, 1)

	records, err := lineage.ListDownstream(ctx, "other", 9)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestVersionRepo_CommitUnknownTable(t *testing.T) {
	_, versions, _ := newTestRepos(t)

	err := versions.Commit(context.Background(), buildCommit(t, "no_such_table", 1, nil))
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestVersionRepo_CommitWithSchemaMigration(t *testing.T) {
	tables, versions, _ := newTestRepos(t)
	ctx := context.Background()

	createTestTable(t, tables, "disruptions_bronze", domain.LayerBronze)
	commitVersion(t, versions, "disruptions_bronze", 1, nil)

	widened := append(disruptionsSchema(), domain.Column{Name: "duration_minutes", Type: domain.TypeBigint, Nullable: true})
	rec := buildCommit(t, "disruptions_bronze", 2, nil)
	rec.NewSchema = widened
	require.NoError(t, versions.Commit(ctx, rec))

	assert.Equal(t, int64(2), rec.Version.SchemaRevision)

	tbl, err := tables.GetByName(ctx, "disruptions_bronze")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tbl.SchemaRevision)
	assert.True(t, tbl.Schema.Equal(widened))

	// The older version still names the revision it was written against.
	v1, err := versions.Get(ctx, "disruptions_bronze", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1.SchemaRevision)
}

func TestVersionRepo_SupersededVersionStaysReadable(t *testing.T) {
	tables, versions, _ := newTestRepos(t)
	ctx := context.Background()

	createTestTable(t, tables, "stations_bronze", domain.LayerBronze)
	v1 := commitVersion(t, versions, "stations_bronze", 1, nil)
	commitVersion(t, versions, "stations_bronze", 2, nil)

	got, err := versions.Get(ctx, "stations_bronze", 1)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, got.ID)
	assert.Equal(t, v1.ContentHash, got.ContentHash)

	current, err := versions.Current(ctx, "stations_bronze")
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.Version)
}

func TestVersionRepo_CurrentOnEmptyAndUnknownTable(t *testing.T) {
	tables, versions, _ := newTestRepos(t)
	ctx := context.Background()

	createTestTable(t, tables, "stations_bronze", domain.LayerBronze)

	var notFound *domain.NotFoundError
	_, err := versions.Current(ctx, "stations_bronze")
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.Error(), "no committed versions")

	_, err = versions.Current(ctx, "no_such_table")
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.Error(), "not found")
}

func TestVersionRepo_GetNotFound(t *testing.T) {
	tables, versions, _ := newTestRepos(t)
	ctx := context.Background()

	createTestTable(t, tables, "stations_bronze", domain.LayerBronze)
	commitVersion(t, versions, "stations_bronze", 1, nil)

	var notFound *domain.NotFoundError
	_, err := versions.Get(ctx, "stations_bronze", 2)
	require.ErrorAs(t, err, &notFound)
}

func TestVersionRepo_FindReplay(t *testing.T) {
	tables, versions, _ := newTestRepos(t)
	ctx := context.Background()

	createTestTable(t, tables, "stations_bronze", domain.LayerBronze)
	v1 := commitVersion(t, versions, "stations_bronze", 1, nil)

	found, err := versions.FindReplay(ctx, "stations_bronze", v1.RuleFingerprint, v1.InputsFingerprint)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, found.ID)

	var notFound *domain.NotFoundError
	_, err = versions.FindReplay(ctx, "stations_bronze", "other-fp", v1.InputsFingerprint)
	require.ErrorAs(t, err, &notFound)
}
