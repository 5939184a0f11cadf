package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"raillake/internal/domain"
	"raillake/internal/service/catalog"
)

type tableDTO struct {
	Name           string        `json:"name"`
	Layer          domain.Layer  `json:"layer"`
	Schema         domain.Schema `json:"schema"`
	SchemaRevision int64         `json:"schema_revision"`
	CurrentVersion int64         `json:"current_version"`
	PartitionKey   *string       `json:"partition_key,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func tableToAPI(t domain.LayerTable) tableDTO {
	return tableDTO{
		Name:           t.Name,
		Layer:          t.Layer,
		Schema:         t.Schema,
		SchemaRevision: t.SchemaRevision,
		CurrentVersion: t.CurrentVersion,
		PartitionKey:   t.PartitionKey,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

type versionDTO struct {
	Table           string          `json:"table"`
	Version         int64           `json:"version"`
	SchemaRevision  int64           `json:"schema_revision"`
	RowCount        int64           `json:"row_count"`
	ByteSize        int64           `json:"byte_size"`
	ContentHash     string          `json:"content_hash"`
	RuleName        string          `json:"rule_name"`
	RuleFingerprint string          `json:"rule_fingerprint"`
	Manifest        domain.Manifest `json:"manifest"`
	CreatedAt       time.Time       `json:"created_at"`
}

func versionToAPI(v domain.TableVersion) versionDTO {
	return versionDTO{
		Table:           v.TableName,
		Version:         v.Version,
		SchemaRevision:  v.SchemaRevision,
		RowCount:        v.RowCount,
		ByteSize:        v.ByteSize,
		ContentHash:     v.ContentHash,
		RuleName:        v.RuleName,
		RuleFingerprint: v.RuleFingerprint,
		Manifest:        v.Manifest,
		CreatedAt:       v.CreatedAt,
	}
}

type lineageDTO struct {
	Table           string            `json:"table"`
	Version         int64             `json:"version"`
	RuleName        string            `json:"rule_name"`
	RuleFingerprint string            `json:"rule_fingerprint"`
	Inputs          []lineageInputDTO `json:"inputs"`
	CreatedAt       time.Time         `json:"created_at"`
}

type lineageInputDTO struct {
	Table   string `json:"table"`
	Version int64  `json:"version"`
}

func lineageToAPI(l domain.LineageRecord) lineageDTO {
	inputs := make([]lineageInputDTO, len(l.Inputs))
	for i, in := range l.Inputs {
		inputs[i] = lineageInputDTO{Table: in.TableName, Version: in.Version}
	}
	return lineageDTO{
		Table:           l.TableName,
		Version:         l.Version,
		RuleName:        l.RuleName,
		RuleFingerprint: l.RuleFingerprint,
		Inputs:          inputs,
		CreatedAt:       l.CreatedAt,
	}
}

type versionDetailDTO struct {
	versionDTO
	Schema  domain.Schema `json:"schema"`
	Lineage *lineageDTO   `json:"lineage,omitempty"`
}

func versionDetailToAPI(d *catalog.VersionDetail) versionDetailDTO {
	out := versionDetailDTO{versionDTO: versionToAPI(*d.Version), Schema: d.Schema}
	if d.Lineage != nil {
		l := lineageToAPI(*d.Lineage)
		out.Lineage = &l
	}
	return out
}

type listResponse[T any] struct {
	Data          []T    `json:"data"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

type createTableRequest struct {
	Name         string        `json:"name"`
	Layer        domain.Layer  `json:"layer"`
	Schema       domain.Schema `json:"schema"`
	PartitionKey *string       `json:"partition_key,omitempty"`
}

// CreateTable registers a layer table with its declared schema. Pipeline
// tables come from the declared sources and rules at startup; this endpoint
// registers targets for callers committing through /commit.
func (h *Handler) CreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.catalog.RegisterTable(r.Context(), domain.CreateTableRequest{
		Name:         req.Name,
		Layer:        req.Layer,
		Schema:       req.Schema,
		PartitionKey: req.PartitionKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tableToAPI(*t))
}

func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	page := pageFromRequest(r)
	layer := domain.Layer(r.URL.Query().Get("layer"))
	tables, total, err := h.catalog.ListTables(r.Context(), layer, page)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]tableDTO, len(tables))
	for i, t := range tables {
		out[i] = tableToAPI(t)
	}
	writeJSON(w, http.StatusOK, listResponse[tableDTO]{
		Data:          out,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	t, err := h.catalog.GetTable(r.Context(), chi.URLParam(r, "tableName"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tableToAPI(*t))
}

func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	page := pageFromRequest(r)
	versions, total, err := h.catalog.History(r.Context(), chi.URLParam(r, "tableName"), page)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]versionDTO, len(versions))
	for i, v := range versions {
		out[i] = versionToAPI(v)
	}
	writeJSON(w, http.StatusOK, listResponse[versionDTO]{
		Data:          out,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := parseVersionParam(chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, err)
		return
	}
	detail, err := h.catalog.GetVersion(r.Context(), chi.URLParam(r, "tableName"), version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versionDetailToAPI(detail))
}

// Downstream lists the commits that consumed the given version as an input.
func (h *Handler) Downstream(w http.ResponseWriter, r *http.Request) {
	version, err := parseVersionParam(chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := h.catalog.Downstream(r.Context(), chi.URLParam(r, "tableName"), version)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]lineageDTO, len(records))
	for i, l := range records {
		out[i] = lineageToAPI(l)
	}
	writeJSON(w, http.StatusOK, listResponse[lineageDTO]{Data: out})
}

type rowsResponse struct {
	Table          string        `json:"table"`
	Version        int64         `json:"version"`
	SchemaRevision int64         `json:"schema_revision"`
	Schema         domain.Schema `json:"schema"`
	Rows           [][]any       `json:"rows"`
	RowCount       int           `json:"row_count"`
	TotalRows      int64         `json:"total_rows"`
	NextPageToken  string        `json:"next_page_token,omitempty"`
}

// ReadRows returns the decoded content of a version, paginated. Without an
// explicit ?version=n it reads the table's current version.
func (h *Handler) ReadRows(w http.ResponseWriter, r *http.Request) {
	tableName := chi.URLParam(r, "tableName")

	var data *domain.TableData
	var err error
	if raw := r.URL.Query().Get("version"); raw != "" {
		var version int64
		version, err = parseVersionParam(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		data, err = h.catalog.ReadVersion(r.Context(), tableName, version)
	} else {
		data, err = h.catalog.ReadCurrent(r.Context(), tableName)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	page := pageFromRequest(r)
	total := int64(len(data.Rows))
	start := page.Offset()
	if start > len(data.Rows) {
		start = len(data.Rows)
	}
	end := start + page.Limit()
	if end > len(data.Rows) {
		end = len(data.Rows)
	}

	rows := make([][]any, 0, end-start)
	for _, row := range data.Rows[start:end] {
		rows = append(rows, rowToAPI(data.Schema, row))
	}
	writeJSON(w, http.StatusOK, rowsResponse{
		Table:          data.TableName,
		Version:        data.Version,
		SchemaRevision: data.SchemaRevision,
		Schema:         data.Schema,
		Rows:           rows,
		RowCount:       len(rows),
		TotalRows:      total,
		NextPageToken:  domain.NextPageToken(start, page.Limit(), total),
	})
}

// rowToAPI renders one row for JSON: temporal values in their canonical
// textual form, everything else as its native JSON type.
func rowToAPI(schema domain.Schema, row domain.Row) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if v == nil {
			continue
		}
		switch schema[i].Type {
		case domain.TypeDate, domain.TypeTimestamp:
			out[i] = domain.FormatValue(schema[i].Type, v)
		default:
			out[i] = v
		}
	}
	return out
}

func parseVersionParam(raw string) (int64, error) {
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 1 {
		return 0, domain.ErrValidation("version must be a positive integer, got %q", raw)
	}
	return version, nil
}
