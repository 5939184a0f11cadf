// Package app provides application-level wiring for the lake engine: it
// builds repositories, storage, and services from the dependencies main()
// provides, and leaves listening and shutdown to the caller.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"raillake/internal/api"
	"raillake/internal/config"
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

// Deps holds the external dependencies that main() must provide.
// These are things the app package cannot (or should not) create itself:
// database handles, config, and the logger.
type Deps struct {
	Cfg     *config.Config
	DuckDB  *sql.DB
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Logger  *slog.Logger
}

// Services groups the service pointers the API handler and CLI need.
type Services struct {
	Catalog   *catalog.CatalogService
	Ingestion *ingestion.IngestionService
	Pipeline  *pipeline.PipelineService
}

// App holds the fully wired application. The scheduler is built but not
// started; main() starts it when the config enables it.
type App struct {
	Services  Services
	Writer    *writer.Writer
	Handler   *api.Handler
	Scheduler *pipeline.Scheduler
	Sources   []domain.Source
	Rules     []domain.Rule
}

// New wires all repositories, storage, and services from the provided deps.
// It loads the declared sources and rules, validates the transformation
// graph, and registers every declared table that is not yet in the
// metastore.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg

	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		return nil, err
	}
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, err
	}

	// === Repositories ===
	tables := repository.NewTableRepo(deps.WriteDB, deps.ReadDB)
	versions := repository.NewVersionRepo(deps.WriteDB, deps.ReadDB)
	batches := repository.NewBatchRepo(deps.WriteDB, deps.ReadDB)
	lineage := repository.NewLineageRepo(deps.ReadDB)
	runs := repository.NewRunRepo(deps.WriteDB, deps.ReadDB)

	// === Data plane ===
	store := engine.NewParquetStore(deps.DuckDB, cfg.DataDir)

	w := writer.New(tables, versions, store, writer.NewTableLock(), deps.Logger.With("component", "writer"))
	w.SetRetryPolicy(uint64(cfg.StorageRetryMax), 0)

	// === Services ===
	catalogSvc := catalog.NewCatalogService(tables, versions, lineage, store, deps.Logger.With("component", "catalog"))

	rd := reader.New()
	httpFetcher := reader.NewHTTPFetcher(cfg.HTTPFetchTimeout)
	rd.Register("http", httpFetcher)
	rd.Register("https", httpFetcher)
	if cfg.HasS3Config() {
		rd.Register("s3", reader.NewS3Fetcher(*cfg.S3KeyID, *cfg.S3Secret, *cfg.S3Endpoint, *cfg.S3Region))
		deps.Logger.Info("s3 fetcher enabled")
	}
	if cfg.GCSCredFile != "" {
		gcs, err := reader.NewGCSFetcher(ctx, cfg.GCSCredFile)
		if err != nil {
			deps.Logger.Warn("could not create GCS fetcher", "error", err)
		} else {
			rd.Register("gs", gcs)
			deps.Logger.Info("gcs fetcher enabled")
		}
	}
	if cfg.AzureAccount != "" && cfg.AzureSharedKey != "" {
		az, err := reader.NewAzureFetcher(cfg.AzureAccount, cfg.AzureSharedKey)
		if err != nil {
			deps.Logger.Warn("could not create Azure fetcher", "error", err)
		} else {
			rd.Register("azblob", az)
			rd.Register("az", az)
			deps.Logger.Info("azure fetcher enabled")
		}
	}

	ingestionSvc := ingestion.NewIngestionService(sources, rd, w, batches, deps.Logger.With("component", "ingestion"))

	pipelineSvc, err := pipeline.NewPipelineService(
		rules, ingestionSvc, planner.New(), w, catalogSvc, runs,
		deps.Logger.With("component", "pipeline"),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline declarations: %w", err)
	}
	pipelineSvc.SetConflictRetries(cfg.ConflictRetryMax)

	if err := registerDeclaredTables(ctx, catalogSvc, pipelineSvc, sources, rules); err != nil {
		return nil, err
	}

	handler := api.NewHandler(catalogSvc, ingestionSvc, pipelineSvc, w, deps.Logger.With("component", "api"))

	scheduler := pipeline.NewScheduler(pipelineSvc, cfg.ScheduleCron, deps.Logger.With("component", "scheduler"))

	return &App{
		Services: Services{
			Catalog:   catalogSvc,
			Ingestion: ingestionSvc,
			Pipeline:  pipelineSvc,
		},
		Writer:    w,
		Handler:   handler,
		Scheduler: scheduler,
		Sources:   sources,
		Rules:     rules,
	}, nil
}

// registerDeclaredTables registers the bronze table of every source and the
// target table of every rule. Tables already in the metastore are left
// untouched; a changed declared schema lands as a new revision on the next
// commit, never at startup.
func registerDeclaredTables(
	ctx context.Context,
	cat *catalog.CatalogService,
	pipe *pipeline.PipelineService,
	sources []domain.Source,
	rules []domain.Rule,
) error {
	schemas, err := pipe.TargetSchemas()
	if err != nil {
		return err
	}
	for _, src := range sources {
		if err := registerTable(ctx, cat, domain.CreateTableRequest{
			Name:   src.Table,
			Layer:  domain.LayerBronze,
			Schema: src.Schema,
		}); err != nil {
			return fmt.Errorf("register table %q for source %q: %w", src.Table, src.Name, err)
		}
	}
	for _, rule := range rules {
		if err := registerTable(ctx, cat, domain.CreateTableRequest{
			Name:   rule.Target,
			Layer:  rule.Layer,
			Schema: schemas[rule.Target],
		}); err != nil {
			return fmt.Errorf("register table %q for rule %q: %w", rule.Target, rule.Name, err)
		}
	}
	return nil
}

func registerTable(ctx context.Context, cat *catalog.CatalogService, req domain.CreateTableRequest) error {
	_, err := cat.RegisterTable(ctx, req)
	if err != nil && !errors.As(err, new(*domain.ConflictError)) {
		return err
	}
	return nil
}
