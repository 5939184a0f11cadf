package reader_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raillake/internal/domain"
	"raillake/internal/reader"
)

func stationsSource(uri string) domain.Source {
	return domain.Source{
		Name:   "stations",
		URI:    uri,
		Format: domain.FormatCSV,
		Table:  "stations_bronze",
		Schema: domain.Schema{
			{Name: "code", Type: domain.TypeVarchar},
			{Name: "name", Type: domain.TypeVarchar},
			{Name: "platforms", Type: domain.TypeBigint, Nullable: true},
			{Name: "geo_lat", Type: domain.TypeDouble, Nullable: true},
		},
	}
}

func disruptionsSource(uri string) domain.Source {
	return domain.Source{
		Name:   "disruptions",
		URI:    uri,
		Format: domain.FormatJSON,
		Table:  "disruptions_bronze",
		Schema: domain.Schema{
			{Name: "rdt_id", Type: domain.TypeBigint},
			{Name: "line", Type: domain.TypeVarchar, Nullable: true},
			{Name: "duration_minutes", Type: domain.TypeDouble, Nullable: true},
			{Name: "cancelled", Type: domain.TypeBoolean, Nullable: true},
			{Name: "start_time", Type: domain.TypeTimestamp, Nullable: true},
		},
	}
}

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

const stationsCSV = "code,name,platforms,geo_lat\n" +
	"ASD,Amsterdam Centraal,15,52.3791\n" +
	"GVC,Den Haag Centraal,12,52.0805\n" +
	"RTD,Rotterdam Centraal,,\n"

func TestReaderCSVFromFile(t *testing.T) {
	path := writeFixture(t, "stations.csv", []byte(stationsCSV))
	src := stationsSource("file://" + path)

	batch, err := reader.New().Read(context.Background(), src)
	require.NoError(t, err)

	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, "stations", batch.SourceName)
	assert.Equal(t, src.URI, batch.URI)
	assert.Equal(t, domain.FormatCSV, batch.Format)
	assert.True(t, src.Schema.Equal(batch.Schema))
	assert.WithinDuration(t, time.Now().UTC(), batch.IngestedAt, time.Minute)

	require.Len(t, batch.Rows, 3)
	assert.Equal(t, domain.Row{"ASD", "Amsterdam Centraal", int64(15), 52.3791}, batch.Rows[0])
	assert.Equal(t, domain.Row{"GVC", "Den Haag Centraal", int64(12), 52.0805}, batch.Rows[1])
	assert.Equal(t, domain.Row{"RTD", "Rotterdam Centraal", nil, nil}, batch.Rows[2])
}

func TestReaderCSVGzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte(stationsCSV))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	path := writeFixture(t, "stations.csv.gz", buf.Bytes())
	src := stationsSource("file://" + path)
	src.Compression = domain.CompressionGzip

	batch, err := reader.New().Read(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 3)
	assert.Equal(t, domain.Row{"ASD", "Amsterdam Centraal", int64(15), 52.3791}, batch.Rows[0])
}

func TestReaderCSVSchemaMismatch(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantColumn string
		wantErr    string
	}{
		{
			name:    "empty extract",
			payload: "",
			wantErr: "expected a header row",
		},
		{
			name:    "header column count",
			payload: "code,name,platforms\nASD,Amsterdam Centraal,15\n",
			wantErr: "header has 3 columns, schema declares 4",
		},
		{
			name:       "header out of order",
			payload:    "name,code,platforms,geo_lat\n",
			wantColumn: "code",
			wantErr:    `header names column 0 "name"`,
		},
		{
			name:       "bad cell",
			payload:    "code,name,platforms,geo_lat\nASD,Amsterdam Centraal,fifteen,52.3791\n",
			wantColumn: "platforms",
			wantErr:    "not a valid BIGINT",
		},
		{
			name:    "ragged record",
			payload: "code,name,platforms,geo_lat\nASD,Amsterdam Centraal\n",
			wantErr: "malformed record",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFixture(t, "stations.csv", []byte(tt.payload))
			_, err := reader.New().Read(context.Background(), stationsSource("file://"+path))

			var mismatch *domain.SchemaMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, "stations", mismatch.Source)
			assert.Equal(t, tt.wantColumn, mismatch.Column)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReaderCSVEmptyRequiredCell(t *testing.T) {
	src := domain.Source{
		Name:   "tariff_distances",
		URI:    "",
		Format: domain.FormatCSV,
		Table:  "tariff_distances_bronze",
		Schema: domain.Schema{
			{Name: "station_from", Type: domain.TypeVarchar},
			{Name: "distance_km", Type: domain.TypeBigint},
		},
	}
	path := writeFixture(t, "tariffs.csv", []byte("station_from,distance_km\nASD,\n"))
	src.URI = "file://" + path

	_, err := reader.New().Read(context.Background(), src)

	var mismatch *domain.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "distance_km", mismatch.Column)
	assert.Contains(t, err.Error(), "empty cell")
}

const disruptionsNDJSON = `{"rdt_id":77001,"line":"Amsterdam-Utrecht","duration_minutes":90.5,"cancelled":false,"start_time":"2025-11-03T06:15:00Z"}
{"rdt_id":77002,"line":null,"cancelled":true}

{"rdt_id":77003}
`

func TestReaderNDJSON(t *testing.T) {
	path := writeFixture(t, "disruptions.ndjson", []byte(disruptionsNDJSON))
	src := disruptionsSource("file://" + path)

	batch, err := reader.New().Read(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, batch.Rows, 3)
	start := time.Date(2025, 11, 3, 6, 15, 0, 0, time.UTC)
	assert.Equal(t, domain.Row{int64(77001), "Amsterdam-Utrecht", 90.5, false, start}, batch.Rows[0])
	assert.Equal(t, domain.Row{int64(77002), nil, nil, true, nil}, batch.Rows[1])
	assert.Equal(t, domain.Row{int64(77003), nil, nil, nil, nil}, batch.Rows[2])
}

func TestReaderNDJSONSchemaMismatch(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantColumn string
		wantErr    string
	}{
		{
			name:       "undeclared key",
			payload:    `{"rdt_id":77001,"operator":"NS"}`,
			wantColumn: "operator",
			wantErr:    "not a declared column",
		},
		{
			name:       "missing required",
			payload:    `{"line":"Amsterdam-Utrecht"}`,
			wantColumn: "rdt_id",
			wantErr:    "required column is missing",
		},
		{
			name:       "null required",
			payload:    `{"rdt_id":null}`,
			wantColumn: "rdt_id",
			wantErr:    "required column is null",
		},
		{
			name:       "wrong JSON type",
			payload:    `{"rdt_id":"seventy-seven"}`,
			wantColumn: "rdt_id",
			wantErr:    "expected a JSON number, got string",
		},
		{
			name:       "fractional for BIGINT",
			payload:    `{"rdt_id":77001.5}`,
			wantColumn: "rdt_id",
			wantErr:    "not a valid BIGINT",
		},
		{
			name:       "bad timestamp",
			payload:    `{"rdt_id":77001,"start_time":"yesterday"}`,
			wantColumn: "start_time",
			wantErr:    "not a valid TIMESTAMP",
		},
		{
			name:    "malformed object",
			payload: `{"rdt_id":`,
			wantErr: "malformed JSON object",
		},
		{
			name:    "two objects on one line",
			payload: `{"rdt_id":77001}{"rdt_id":77002}`,
			wantErr: "multiple JSON values on one line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFixture(t, "disruptions.ndjson", []byte(tt.payload+"\n"))
			_, err := reader.New().Read(context.Background(), disruptionsSource("file://"+path))

			var mismatch *domain.SchemaMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, "disruptions", mismatch.Source)
			assert.Equal(t, tt.wantColumn, mismatch.Column)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReaderHTTPFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/open-data/stations.csv" {
			http.NotFound(w, req)
			return
		}
		w.Write([]byte(stationsCSV))
	}))
	defer srv.Close()

	r := reader.New()
	r.Register("http", reader.NewHTTPFetcher(5*time.Second))

	t.Run("ok", func(t *testing.T) {
		batch, err := r.Read(context.Background(), stationsSource(srv.URL+"/open-data/stations.csv"))
		require.NoError(t, err)
		require.Len(t, batch.Rows, 3)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := r.Read(context.Background(), stationsSource(srv.URL+"/open-data/missing.csv"))

		var unavailable *domain.SourceUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, "stations", unavailable.Source)
		assert.Contains(t, err.Error(), "404")
	})
}

func TestReaderSourceUnavailable(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		uri := "file://" + filepath.Join(t.TempDir(), "nope.csv")
		_, err := reader.New().Read(context.Background(), stationsSource(uri))

		var unavailable *domain.SourceUnavailableError
		require.ErrorAs(t, err, &unavailable)
	})

	t.Run("unregistered scheme", func(t *testing.T) {
		_, err := reader.New().Read(context.Background(), stationsSource("s3://rail-open-data/stations.csv"))

		var unavailable *domain.SourceUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Contains(t, err.Error(), `no fetcher registered for scheme "s3"`)
	})

	t.Run("corrupt gzip", func(t *testing.T) {
		path := writeFixture(t, "stations.csv.gz", []byte(stationsCSV))
		src := stationsSource("file://" + path)
		src.Compression = domain.CompressionGzip

		_, err := reader.New().Read(context.Background(), src)

		var unavailable *domain.SourceUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Contains(t, err.Error(), "gzip")
	})
}

func TestReaderRejectsInvalidSource(t *testing.T) {
	src := stationsSource("file:///tmp/stations.csv")
	src.Table = ""

	_, err := reader.New().Read(context.Background(), src)

	var invalid *domain.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "target table is required")
}
