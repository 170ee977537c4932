// Package config loads store configuration from a YAML file and the
// environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete store configuration.
type Config struct {
	Store   StoreConfig       `yaml:"store"`
	Logging LoggingConfig     `yaml:"logging"`
	Metrics MetricsConfig     `yaml:"metrics"`
	Schemas map[string]string `yaml:"schemas"` // collection -> JSON Schema file
}

// StoreConfig locates the snapshot.
type StoreConfig struct {
	DataDir       string `yaml:"data_dir"`
	File          string `yaml:"file"`
	Backend       string `yaml:"backend"` // json, sqlite, memory
	StrictQueries bool   `yaml:"strict_queries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file is given: a JSON
// snapshot at ./data/db.json.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			DataDir: "./data",
			File:    "db.json",
			Backend: "json",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Namespace: "docstore"},
	}
}

// Load reads the YAML file at path on top of Default, expands ${VAR}
// references, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// FromEnv returns Default with environment overrides applied.
func FromEnv() (*Config, error) {
	cfg := Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} with the value of VAR. Unset variables
// expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(m)[1])
	})
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ApplyEnv overrides fields from DATA_DIR, SNAPSHOT_FILE, STORE_BACKEND,
// STRICT_QUERIES, LOG_LEVEL, LOG_FORMAT and METRICS_ENABLED.
func (c *Config) ApplyEnv() {
	c.Store.DataDir = env("DATA_DIR", c.Store.DataDir)
	c.Store.File = env("SNAPSHOT_FILE", c.Store.File)
	c.Store.Backend = env("STORE_BACKEND", c.Store.Backend)
	if b, err := strconv.ParseBool(os.Getenv("STRICT_QUERIES")); err == nil {
		c.Store.StrictQueries = b
	}
	c.Logging.Level = env("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = env("LOG_FORMAT", c.Logging.Format)
	if b, err := strconv.ParseBool(os.Getenv("METRICS_ENABLED")); err == nil {
		c.Metrics.Enabled = b
	}
}

// Validate checks that required fields are set and enums are known.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "json", "sqlite", "memory":
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	if c.Store.Backend != "memory" {
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required")
		}
		if c.Store.File == "" {
			return fmt.Errorf("store.file is required")
		}
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	return nil
}

// SnapshotPath is the snapshot location under the data directory.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.Store.DataDir, c.Store.File)
}

// SchemaFiles returns the schema file of each collection, resolving
// relative paths against the data directory.
func (c *Config) SchemaFiles() map[string]string {
	out := make(map[string]string, len(c.Schemas))
	for coll, p := range c.Schemas {
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.Store.DataDir, p)
		}
		out[coll] = p
	}
	return out
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
}

// Logger builds a slog.Logger writing to w in the configured format.
func (l LoggingConfig) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(l.Level)
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(l.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
