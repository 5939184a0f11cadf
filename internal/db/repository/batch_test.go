package repository

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "raillake/internal/db"
	"raillake/internal/domain"
)

func setupBatchRepo(t *testing.T) *BatchRepo {
	t.Helper()
	writeDB, readDB := internaldb.OpenTestSQLite(t)
	return NewBatchRepo(writeDB, readDB)
}

func TestBatchRepo_CreateAndGet(t *testing.T) {
	repo := setupBatchRepo(t)
	ctx := context.Background()

	batch := &domain.BatchRecord{
		SourceName: "disruptions",
		URI:        "https://opendata.example.org/disruptions-2025.csv",
		Format:     domain.FormatCSV,
		TableName:  "disruptions_bronze",
		Version:    1,
		RowCount:   4127,
		IngestedAt: time.Date(2025, 11, 3, 2, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(ctx, batch))
	require.NotEmpty(t, batch.ID)

	got, err := repo.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, "disruptions", got.SourceName)
	assert.Equal(t, domain.FormatCSV, got.Format)
	assert.Equal(t, "disruptions_bronze", got.TableName)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, int64(4127), got.RowCount)
	assert.True(t, got.IngestedAt.Equal(batch.IngestedAt))
}

func TestBatchRepo_GetNotFound(t *testing.T) {
	repo := setupBatchRepo(t)

	_, err := repo.GetByID(context.Background(), domain.NewID())
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestBatchRepo_ListNewestFirst(t *testing.T) {
	repo := setupBatchRepo(t)
	ctx := context.Background()

	base := time.Date(2025, 11, 3, 2, 0, 0, 0, time.UTC)
	for i, source := range []string{"disruptions", "stations", "services"} {
		require.NoError(t, repo.Create(ctx, &domain.BatchRecord{
			SourceName: source,
			URI:        "file:///data/" + source + ".csv",
			Format:     domain.FormatCSV,
			TableName:  source + "_bronze",
			Version:    1,
			RowCount:   int64(100 * (i + 1)),
			IngestedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	batches, total, err := repo.List(ctx, domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, batches, 3)
	assert.Equal(t, "services", batches[0].SourceName)
	assert.Equal(t, "stations", batches[1].SourceName)
	assert.Equal(t, "disruptions", batches[2].SourceName)
}
