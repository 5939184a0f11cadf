package repository

import (
	"context"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	internaldb "raillake/internal/db"
	"raillake/internal/domain"
)

// disruptionsSchema is the bronze schema used across the repository tests.
func disruptionsSchema() domain.Schema {
	return domain.Schema{
		{Name: "rdt_id", Type: domain.TypeBigint},
		{Name: "line", Type: domain.TypeVarchar, Nullable: true},
		{Name: "cause_group", Type: domain.TypeVarchar, Nullable: true},
		{Name: "start_time", Type: domain.TypeTimestamp, Nullable: true},
	}
}

func createTestTable(t *testing.T, repo *TableRepo, name string, layer domain.Layer) *domain.LayerTable {
	t.Helper()
	tbl := &domain.LayerTable{
		Name:   name,
		Layer:  layer,
		Schema: disruptionsSchema(),
	}
	require.NoError(t, repo.Create(context.Background(), tbl))
	return tbl
}

// buildCommit assembles a minimal commit record for one table version with a
// sealed single-file manifest.
func buildCommit(t *testing.T, tableName string, version int64, inputs []domain.LineageInput) *domain.CommitRecord {
	t.Helper()
	manifest := domain.Manifest{
		Files: []domain.DataFile{{
			Path:     fmt.Sprintf("%s/v%d/part-000.parquet", tableName, version),
			Rows:     3,
			Bytes:    512,
			Checksum: fmt.Sprintf("file-%s-%d", tableName, version),
		}},
		TotalRows:  3,
		TotalBytes: 512,
	}
	require.NoError(t, manifest.Seal())

	refs := make([]domain.VersionRef, len(inputs))
	for i, in := range inputs {
		refs[i] = domain.VersionRef{Table: in.TableName, Version: in.Version}
	}

	v := &domain.TableVersion{
		TableName:         tableName,
		Version:           version,
		RowCount:          3,
		ByteSize:          512,
		ContentHash:       fmt.Sprintf("content-%s-%d", tableName, version),
		RuleName:          domain.IngestRuleName("disruptions"),
		RuleFingerprint:   fmt.Sprintf("rule-fp-%d", version),
		InputsFingerprint: domain.FingerprintInputs(refs),
		Manifest:          manifest,
	}
	lin := &domain.LineageRecord{
		TableName:       tableName,
		Version:         version,
		RuleName:        v.RuleName,
		RuleFingerprint: v.RuleFingerprint,
		Inputs:          inputs,
	}
	return &domain.CommitRecord{Version: v, Lineage: lin}
}

func commitVersion(t *testing.T, repo *VersionRepo, tableName string, version int64, inputs []domain.LineageInput) *domain.TableVersion {
	t.Helper()
	rec := buildCommit(t, tableName, version, inputs)
	require.NoError(t, repo.Commit(context.Background(), rec))
	return rec.Version
}

func newTestRepos(t *testing.T) (*TableRepo, *VersionRepo, *LineageRepo) {
	t.Helper()
	writeDB, readDB := internaldb.OpenTestSQLite(t)
	return NewTableRepo(writeDB, readDB), NewVersionRepo(writeDB, readDB), NewLineageRepo(readDB)
}
