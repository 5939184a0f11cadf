package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"

	internaldb "raillake/internal/db"
	"raillake/internal/db/repository"
	"raillake/internal/domain"
	"raillake/internal/engine"
	"raillake/internal/planner"
	"raillake/internal/reader"
	"raillake/internal/service/catalog"
	"raillake/internal/service/ingestion"
	"raillake/internal/service/pipeline"
	"raillake/internal/writer"
)

// setupTestServer wires the full service stack over a real metastore and
// store, registers the declared tables, and serves the /v1 routes plus the
// health endpoints.
func setupTestServer(t *testing.T, sources []domain.Source, rules []domain.Rule) *httptest.Server {
	t.Helper()

	writeDB, readDB := internaldb.OpenTestSQLite(t)
	duck, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { duck.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := engine.NewParquetStore(duck, t.TempDir())
	tables := repository.NewTableRepo(writeDB, readDB)
	versions := repository.NewVersionRepo(writeDB, readDB)
	batches := repository.NewBatchRepo(writeDB, readDB)
	lineage := repository.NewLineageRepo(readDB)
	runs := repository.NewRunRepo(writeDB, readDB)

	w := writer.New(tables, versions, store, writer.NewTableLock(), logger)
	cat := catalog.NewCatalogService(tables, versions, lineage, store, logger)
	ing := ingestion.NewIngestionService(sources, reader.New(), w, batches, logger)
	pipe, err := pipeline.NewPipelineService(rules, ing, planner.New(), w, cat, runs, logger)
	require.NoError(t, err)

	schemas, err := pipe.TargetSchemas()
	require.NoError(t, err)
	ctx := context.Background()
	for _, src := range sources {
		_, err := cat.RegisterTable(ctx, domain.CreateTableRequest{
			Name:   src.Table,
			Layer:  domain.LayerBronze,
			Schema: src.Schema,
		})
		require.NoError(t, err)
	}
	for _, rule := range rules {
		_, err := cat.RegisterTable(ctx, domain.CreateTableRequest{
			Name:   rule.Target,
			Layer:  rule.Layer,
			Schema: schemas[rule.Target],
		})
		require.NoError(t, err)
	}

	h := NewHandler(cat, ing, pipe, w, logger)
	r := chi.NewRouter()
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Mount("/v1", h.Routes())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// stationServer is setupTestServer over the standard station fixtures.
func stationServer(t *testing.T) *httptest.Server {
	t.Helper()
	uri := writeExtract(t, "stations.csv", stationsCSV)
	return setupTestServer(t,
		[]domain.Source{stationsSource(uri)},
		[]domain.Rule{cleanStationsRule(), stationStatsRule()},
	)
}

func httpGet(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func httpPost(t *testing.T, srv *httptest.Server, path, body string, out any) int {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func writeExtract(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func stationSchema() domain.Schema {
	return domain.Schema{
		{Name: "code", Type: domain.TypeVarchar},
		{Name: "name", Type: domain.TypeVarchar},
		{Name: "platforms", Type: domain.TypeBigint, Nullable: true},
	}
}

const stationsCSV = "code,name,platforms\n" +
	"ASD,Amsterdam Centraal,15\n" +
	"GVC,Den Haag Centraal,12\n" +
	"ASD,Amsterdam Centraal,16\n"

func stationsSource(uri string) domain.Source {
	return domain.Source{
		Name:   "stations",
		URI:    uri,
		Format: domain.FormatCSV,
		Table:  "stations_bronze",
		Schema: stationSchema(),
	}
}

func cleanStationsRule() domain.Rule {
	return domain.Rule{
		Name:   "clean_stations",
		Target: "stations_silver",
		Layer:  domain.LayerSilver,
		Inputs: []string{"stations_bronze"},
		Kind:   domain.RuleDedup,
		Dedup:  &domain.DedupSpec{Keys: []string{"code"}, OrderBy: "platforms"},
	}
}

func stationStatsRule() domain.Rule {
	return domain.Rule{
		Name:   "station_stats",
		Target: "station_stats_gold",
		Layer:  domain.LayerGold,
		Inputs: []string{"stations_silver"},
		Kind:   domain.RuleAggregate,
		Aggregate: &domain.AggregateSpec{
			Aggregations: []domain.Aggregation{
				{Func: domain.AggCount, As: "station_count"},
				{Func: domain.AggSum, Column: "platforms", As: "total_platforms"},
			},
		},
	}
}

func TestHealthz(t *testing.T) {
	srv := stationServer(t)

	var body map[string]string
	status := httpGet(t, srv, "/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestReadyz(t *testing.T) {
	srv := stationServer(t)

	var body map[string]string
	status := httpGet(t, srv, "/readyz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
}

func TestTablePagination(t *testing.T) {
	srv := stationServer(t)

	var page1 listResponse[tableDTO]
	status := httpGet(t, srv, "/v1/tables?max_results=2", &page1)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, page1.Data, 2)
	require.NotEmpty(t, page1.NextPageToken)

	var page2 listResponse[tableDTO]
	status = httpGet(t, srv, "/v1/tables?max_results=2&page_token="+page1.NextPageToken, &page2)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, page2.Data, 1)
	assert.Empty(t, page2.NextPageToken)

	names := []string{page1.Data[0].Name, page1.Data[1].Name, page2.Data[0].Name}
	assert.Equal(t, []string{"station_stats_gold", "stations_bronze", "stations_silver"}, names)
}
