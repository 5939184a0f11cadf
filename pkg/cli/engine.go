package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"

	"raillake/internal/app"
	"raillake/internal/config"
	internaldb "raillake/internal/db"
)

// engineEnv is a booted engine plus the handles needed to close it again.
// One-shot commands open it, do their work, and Close.
type engineEnv struct {
	cfg    *config.Config
	app    *app.App
	logger *slog.Logger

	duckDB  *sql.DB
	writeDB *sql.DB
	readDB  *sql.DB
}

// openEngine loads configuration, opens the metastore and the store, runs
// pending migrations, and wires the application. Logs go to stderr so stdout
// stays clean for command output.
func openEngine(ctx context.Context) (*engineEnv, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	duckDB, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.MetaDBPath, 4)
	if err != nil {
		_ = duckDB.Close()
		return nil, fmt.Errorf("open metastore %s: %w", cfg.MetaDBPath, err)
	}

	env := &engineEnv{
		cfg:     cfg,
		logger:  logger,
		duckDB:  duckDB,
		writeDB: writeDB,
		readDB:  readDB,
	}

	if err := internaldb.RunMigrations(writeDB); err != nil {
		env.Close()
		return nil, fmt.Errorf("migrate metastore: %w", err)
	}

	a, err := app.New(ctx, app.Deps{
		Cfg:     cfg,
		DuckDB:  duckDB,
		WriteDB: writeDB,
		ReadDB:  readDB,
		Logger:  logger,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	env.app = a
	return env, nil
}

// loadConfig reads .env and the environment, and builds the stderr logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(cfg.LogHandler(os.Stderr))
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}
	return cfg, logger, nil
}

func (e *engineEnv) Close() {
	_ = e.readDB.Close()
	_ = e.writeDB.Close()
	_ = e.duckDB.Close()
}
