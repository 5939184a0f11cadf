package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"raillake/internal/domain"
)

type batchDTO struct {
	ID         string              `json:"id"`
	Source     string              `json:"source"`
	URI        string              `json:"uri"`
	Format     domain.SourceFormat `json:"format"`
	Table      string              `json:"table"`
	Version    int64               `json:"version"`
	RowCount   int64               `json:"row_count"`
	IngestedAt time.Time           `json:"ingested_at"`
}

func batchToAPI(b domain.BatchRecord) batchDTO {
	return batchDTO{
		ID:         b.ID,
		Source:     b.SourceName,
		URI:        b.URI,
		Format:     b.Format,
		Table:      b.TableName,
		Version:    b.Version,
		RowCount:   b.RowCount,
		IngestedAt: b.IngestedAt,
	}
}

type ingestRequest struct {
	Source string `json:"source"`
}

type ingestResponse struct {
	Batch   batchDTO   `json:"batch"`
	Version versionDTO `json:"version"`
}

func (h *Handler) IngestSource(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Source == "" {
		writeError(w, domain.ErrValidation("source is required"))
		return
	}
	res, err := h.ingestion.Ingest(r.Context(), req.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{
		Batch:   batchToAPI(*res.Batch),
		Version: versionToAPI(*res.Version),
	})
}

type transformRequest struct {
	Rule string `json:"rule"`
}

type rejectedDTO struct {
	Index  int    `json:"index"`
	Row    []any  `json:"row"`
	Column string `json:"column"`
	Reason string `json:"reason"`
}

type transformResponse struct {
	Rule          string              `json:"rule"`
	Version       versionDTO          `json:"version"`
	Inputs        []domain.VersionRef `json:"inputs"`
	RejectedCount int                 `json:"rejected_count"`
	Rejected      []rejectedDTO       `json:"rejected,omitempty"`
	Attempts      int                 `json:"attempts"`
}

func (h *Handler) TransformRule(w http.ResponseWriter, r *http.Request) {
	var req transformRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Rule == "" {
		writeError(w, domain.ErrValidation("rule is required"))
		return
	}
	res, err := h.pipeline.Transform(r.Context(), req.Rule)
	if err != nil {
		writeError(w, err)
		return
	}

	rejected := make([]rejectedDTO, len(res.Rejected))
	for i, rej := range res.Rejected {
		row := make([]any, len(rej.Row))
		for j, v := range rej.Row {
			row[j] = v
		}
		rejected[i] = rejectedDTO{Index: rej.Index, Row: row, Column: rej.Column, Reason: rej.Reason}
	}
	writeJSON(w, http.StatusCreated, transformResponse{
		Rule:          res.Rule.Name,
		Version:       versionToAPI(*res.Version),
		Inputs:        res.Inputs,
		RejectedCount: len(rejected),
		Rejected:      rejected,
		Attempts:      res.Attempts,
	})
}

type commitRequest struct {
	Table           string              `json:"table"`
	Rows            [][]any             `json:"rows"`
	RuleName        string              `json:"rule_name"`
	RuleFingerprint string              `json:"rule_fingerprint"`
	Inputs          []domain.VersionRef `json:"inputs,omitempty"`
}

// CommitVersion commits caller-provided rows as the table's next version,
// typed against the table's declared schema. This is the door for planners
// living outside this process.
func (h *Handler) CommitVersion(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Table == "" {
		writeError(w, domain.ErrValidation("table is required"))
		return
	}
	if req.RuleName == "" {
		writeError(w, domain.ErrValidation("rule_name is required"))
		return
	}

	table, err := h.catalog.GetTable(r.Context(), req.Table)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := rowsFromAPI(table.Schema, req.Rows)
	if err != nil {
		writeError(w, err)
		return
	}

	fingerprint := req.RuleFingerprint
	if fingerprint == "" {
		fingerprint = domain.ContentHash(table.Schema, rows)
	}
	version, err := h.writer.Commit(r.Context(), domain.CommitRequest{
		Table:           req.Table,
		Schema:          table.Schema,
		Rows:            rows,
		RuleName:        req.RuleName,
		RuleFingerprint: fingerprint,
		Inputs:          req.Inputs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, versionToAPI(*version))
}

type sourceDTO struct {
	Name        string              `json:"name"`
	URI         string              `json:"uri"`
	Format      domain.SourceFormat `json:"format"`
	Compression domain.Compression  `json:"compression"`
	Table       string              `json:"table"`
	Schema      domain.Schema       `json:"schema"`
}

func (h *Handler) ListSources(w http.ResponseWriter, _ *http.Request) {
	sources := h.ingestion.Sources()
	out := make([]sourceDTO, len(sources))
	for i, s := range sources {
		out[i] = sourceDTO{
			Name:        s.Name,
			URI:         s.URI,
			Format:      s.Format,
			Compression: s.Compression,
			Table:       s.Table,
			Schema:      s.Schema,
		}
	}
	writeJSON(w, http.StatusOK, listResponse[sourceDTO]{Data: out})
}

func (h *Handler) ListRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, listResponse[domain.Rule]{Data: h.pipeline.Rules()})
}

func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	page := pageFromRequest(r)
	batches, total, err := h.ingestion.Batches(r.Context(), page)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]batchDTO, len(batches))
	for i, b := range batches {
		out[i] = batchToAPI(b)
	}
	writeJSON(w, http.StatusOK, listResponse[batchDTO]{
		Data:          out,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

type runDTO struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	TriggerType  string     `json:"trigger_type"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func runToAPI(run domain.PipelineRun) runDTO {
	return runDTO{
		ID:           run.ID,
		Status:       run.Status,
		TriggerType:  run.TriggerType,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		ErrorMessage: run.ErrorMessage,
		CreatedAt:    run.CreatedAt,
	}
}

type stepDTO struct {
	ID            string     `json:"id"`
	StepName      string     `json:"step_name"`
	StepType      string     `json:"step_type"`
	Table         string     `json:"table"`
	Version       *int64     `json:"version,omitempty"`
	RowCount      *int64     `json:"row_count,omitempty"`
	RejectedCount *int64     `json:"rejected_count,omitempty"`
	RetryAttempt  int        `json:"retry_attempt"`
	Status        string     `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
}

func stepToAPI(step domain.StepRun) stepDTO {
	return stepDTO{
		ID:            step.ID,
		StepName:      step.StepName,
		StepType:      step.StepType,
		Table:         step.TableName,
		Version:       step.Version,
		RowCount:      step.RowCount,
		RejectedCount: step.RejectedCount,
		RetryAttempt:  step.RetryAttempt,
		Status:        step.Status,
		StartedAt:     step.StartedAt,
		FinishedAt:    step.FinishedAt,
		ErrorMessage:  step.ErrorMessage,
	}
}

// TriggerRun starts a full pipeline run in the background and returns the
// pending run for polling.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.pipeline.TriggerRun(r.Context(), domain.TriggerTypeManual)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runToAPI(*run))
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	page := pageFromRequest(r)
	runs, total, err := h.pipeline.ListRuns(r.Context(), page)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]runDTO, len(runs))
	for i, run := range runs {
		out[i] = runToAPI(run)
	}
	writeJSON(w, http.StatusOK, listResponse[runDTO]{
		Data:          out,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

type runDetailResponse struct {
	runDTO
	Steps []stepDTO `json:"steps"`
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.pipeline.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	steps, err := h.pipeline.ListSteps(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := runDetailResponse{runDTO: runToAPI(*run), Steps: make([]stepDTO, len(steps))}
	for i, step := range steps {
		out.Steps[i] = stepToAPI(step)
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}

// rowsFromAPI converts JSON row values into their typed form for the given
// schema. BIGINT accepts integral JSON numbers; temporal columns accept
// their canonical textual forms.
func rowsFromAPI(schema domain.Schema, raw [][]any) ([]domain.Row, error) {
	rows := make([]domain.Row, len(raw))
	for i, in := range raw {
		if len(in) != len(schema) {
			return nil, domain.ErrValidation("row %d has %d values, schema has %d columns", i, len(in), len(schema))
		}
		row := make(domain.Row, len(in))
		for j, v := range in {
			typed, err := valueFromAPI(schema[j].Type, v)
			if err != nil {
				return nil, domain.ErrValidation("row %d, column %q: %v", i, schema[j].Name, err)
			}
			row[j] = typed
		}
		rows[i] = row
	}
	return rows, nil
}

func valueFromAPI(t domain.ColumnType, v any) (domain.Value, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case domain.TypeVarchar:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case domain.TypeBigint:
		if f, ok := v.(float64); ok {
			n := int64(f)
			if float64(n) != f {
				return nil, domain.ErrValidation("%v is not an integral BIGINT", v)
			}
			return n, nil
		}
	case domain.TypeDouble:
		if f, ok := v.(float64); ok {
			return f, nil
		}
	case domain.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case domain.TypeDate, domain.TypeTimestamp:
		if s, ok := v.(string); ok {
			return domain.ParseValue(t, s)
		}
	}
	return nil, domain.ErrValidation("%v is not a valid %s", v, t)
}
