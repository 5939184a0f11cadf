// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the engine, its metastore, and the HTTP API.
type Config struct {
	MetaDBPath string // path to SQLite metastore file (control plane)
	DataDir    string // root directory for staged and committed data files
	ListenAddr string // HTTP listen address (default ":8080")

	SourcesPath string // YAML file declaring raw landing sources
	RulesPath   string // YAML file declaring transformation rules

	TLSCertFile       string // TLS certificate file path (optional)
	TLSKeyFile        string // TLS private key file path (optional)
	AllowInsecureHTTP bool   // allow non-TLS listener in production (for trusted TLS termination)

	LogLevel  string // log level: debug, info, warn, error (default "info")
	LogFormat string // log format: "json" or "text" (default: json in production, text otherwise)
	Env       string // environment: "development" (default) or "production"

	// Scheduler
	SchedulerEnabled bool   // run the embedded cron scheduler
	ScheduleCron     string // cron expression for full pipeline runs (default "0 2 * * *")

	// Writer tuning
	StorageRetryMax  int           // attempts for storage IO before surfacing (default 4)
	ConflictRetryMax int           // re-plan attempts on version conflict (default 3)
	HTTPFetchTimeout time.Duration // timeout for http(s) source fetches (default 60s)

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Object store credentials, passed through as opaque strings.
	S3KeyID        *string
	S3Secret       *string
	S3Endpoint     *string
	S3Region       *string
	GCSCredFile    string // service account JSON path for gs:// sources
	AzureAccount   string
	AzureSharedKey string

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogHandler builds the slog handler for the configured format and level.
// Production defaults to JSON; everything else to text.
func (c *Config) LogHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	format := strings.ToLower(c.LogFormat)
	if format == "json" || (format == "" && c.IsProduction()) {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// HasS3Config returns true if all required S3 fields are set.
func (c *Config) HasS3Config() bool {
	return c.S3KeyID != nil && c.S3Secret != nil &&
		c.S3Endpoint != nil && c.S3Region != nil
}

// LoadFromEnv loads configuration from environment variables. Object store
// variables are optional; the engine starts without them and only fails when
// a source actually needs the missing credentials.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath:       os.Getenv("RAILLAKE_META_DB_PATH"),
		DataDir:          os.Getenv("RAILLAKE_DATA_DIR"),
		ListenAddr:       os.Getenv("RAILLAKE_LISTEN_ADDR"),
		SourcesPath:      os.Getenv("RAILLAKE_SOURCES_PATH"),
		RulesPath:        os.Getenv("RAILLAKE_RULES_PATH"),
		TLSCertFile:      os.Getenv("RAILLAKE_TLS_CERT_FILE"),
		TLSKeyFile:       os.Getenv("RAILLAKE_TLS_KEY_FILE"),
		LogLevel:         os.Getenv("RAILLAKE_LOG_LEVEL"),
		LogFormat:        os.Getenv("RAILLAKE_LOG_FORMAT"),
		Env:              os.Getenv("RAILLAKE_ENV"),
		ScheduleCron:     os.Getenv("RAILLAKE_SCHEDULE_CRON"),
		SchedulerEnabled: parseBoolEnvDefault("RAILLAKE_SCHEDULER_ENABLED", false),
		GCSCredFile:      os.Getenv("RAILLAKE_GCS_CREDENTIALS_FILE"),
		AzureAccount:     os.Getenv("RAILLAKE_AZURE_ACCOUNT_NAME"),
		AzureSharedKey:   os.Getenv("RAILLAKE_AZURE_ACCOUNT_KEY"),
	}

	if v := os.Getenv("RAILLAKE_STORAGE_RETRY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StorageRetryMax = n
		}
	}
	if v := os.Getenv("RAILLAKE_CONFLICT_RETRY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ConflictRetryMax = n
		}
	}
	if v := os.Getenv("RAILLAKE_HTTP_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTPFetchTimeout = d
		}
	}
	if v := os.Getenv("RAILLAKE_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RAILLAKE_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// S3 fields are optional, only set if present
	if v := os.Getenv("RAILLAKE_S3_KEY_ID"); v != "" {
		cfg.S3KeyID = &v
	}
	if v := os.Getenv("RAILLAKE_S3_SECRET"); v != "" {
		cfg.S3Secret = &v
	}
	if v := os.Getenv("RAILLAKE_S3_ENDPOINT"); v != "" {
		cfg.S3Endpoint = &v
	}
	if v := os.Getenv("RAILLAKE_S3_REGION"); v != "" {
		cfg.S3Region = &v
	}

	if v := os.Getenv("RAILLAKE_CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}
	if strings.EqualFold(os.Getenv("RAILLAKE_ALLOW_INSECURE_HTTP"), "true") {
		cfg.AllowInsecureHTTP = true
	}

	// Defaults
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "raillake_meta.sqlite"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "raillake_data"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.SourcesPath == "" {
		cfg.SourcesPath = "config/sources.yaml"
	}
	if cfg.RulesPath == "" {
		cfg.RulesPath = "config/rules.yaml"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ScheduleCron == "" {
		cfg.ScheduleCron = "0 2 * * *"
	}
	if cfg.StorageRetryMax <= 0 {
		cfg.StorageRetryMax = 4
	}
	if cfg.ConflictRetryMax <= 0 {
		cfg.ConflictRetryMax = 3
	}
	if cfg.HTTPFetchTimeout <= 0 {
		cfg.HTTPFetchTimeout = 60 * time.Second
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("both RAILLAKE_TLS_CERT_FILE and RAILLAKE_TLS_KEY_FILE must be set together")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (RAILLAKE_ENV=production)")
		}
		if cfg.TLSCertFile == "" && !cfg.AllowInsecureHTTP {
			return nil, fmt.Errorf("RAILLAKE_TLS_CERT_FILE/RAILLAKE_TLS_KEY_FILE must be set in production unless RAILLAKE_ALLOW_INSECURE_HTTP=true")
		}
	} else if cfg.TLSCertFile == "" {
		cfg.Warnings = append(cfg.Warnings, "TLS is not configured; the API listens over plain HTTP")
	}

	return cfg, nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
