// Package api provides the HTTP handlers for the lake's REST API.
package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"raillake/internal/domain"
	"raillake/internal/service/catalog"
	"raillake/internal/service/ingestion"
	"raillake/internal/service/pipeline"
)

// Handler serves the versioned REST API over the lake's services.
type Handler struct {
	catalog   *catalog.CatalogService
	ingestion *ingestion.IngestionService
	pipeline  *pipeline.PipelineService
	writer    domain.Committer
	logger    *slog.Logger
}

// NewHandler creates a Handler over the wired services. The committer backs
// the direct commit endpoint; everything else goes through the services.
func NewHandler(
	cat *catalog.CatalogService,
	ing *ingestion.IngestionService,
	pipe *pipeline.PipelineService,
	writer domain.Committer,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		catalog:   cat,
		ingestion: ing,
		pipeline:  pipe,
		writer:    writer,
		logger:    logger,
	}
}

// Routes returns the /v1 route tree.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/ingest", h.IngestSource)
	r.Post("/transform", h.TransformRule)
	r.Post("/commit", h.CommitVersion)

	r.Post("/runs", h.TriggerRun)
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{runID}", h.GetRun)

	r.Post("/tables", h.CreateTable)
	r.Get("/tables", h.ListTables)
	r.Get("/tables/{tableName}", h.GetTable)
	r.Get("/tables/{tableName}/versions", h.ListVersions)
	r.Get("/tables/{tableName}/versions/{version}", h.GetVersion)
	r.Get("/tables/{tableName}/versions/{version}/downstream", h.Downstream)
	r.Get("/tables/{tableName}/rows", h.ReadRows)

	r.Get("/sources", h.ListSources)
	r.Get("/rules", h.ListRules)
	r.Get("/batches", h.ListBatches)

	return r
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports readiness: the metastore must answer a query.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.catalog.ListTables(r.Context(), "", domain.PageRequest{MaxResults: 1}); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// pageFromRequest extracts pagination from max_results/page_token params.
func pageFromRequest(r *http.Request) domain.PageRequest {
	p := domain.PageRequest{PageToken: r.URL.Query().Get("page_token")}
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			p.MaxResults = n
		}
	}
	return p
}
