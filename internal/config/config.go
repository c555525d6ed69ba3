// Package config loads blendkit configuration from a YAML file and the
// environment, validating the result against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

const (
	defaultListenAddr = ":8080"

	envStoreBackend = "BLENDKIT_STORE_BACKEND"
	envStorePath    = "BLENDKIT_STORE_PATH"
	envListenAddr   = "BLENDKIT_LISTEN_ADDR"
	envLogLevel     = "BLENDKIT_LOG_LEVEL"
	envWorkers      = "BLENDKIT_WORKERS"
)

// Config holds application configuration. Field names follow the YAML file.
type Config struct {
	LogLevel  string          `yaml:"log_level" json:"log_level"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Composite CompositeConfig `yaml:"composite" json:"composite"`
	Document  DocumentConfig  `yaml:"document" json:"document"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// StoreConfig selects the preset backend. Path is a directory for the JSON
// backend and a database file for SQLite; empty means the default data
// location.
type StoreConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

// RetryConfig tunes the two retry policies. Durations use Go syntax.
type RetryConfig struct {
	ConflictAttempts int    `yaml:"conflict_attempts" json:"conflict_attempts"`
	ConflictBackoff  string `yaml:"conflict_backoff" json:"conflict_backoff"`
	WriteBaseBackoff string `yaml:"write_base_backoff" json:"write_base_backoff"`
	WriteMaxBackoff  string `yaml:"write_max_backoff" json:"write_max_backoff"`
}

// CompositeConfig tunes the compositor. Zero workers runs sequentially.
type CompositeConfig struct {
	Workers int `yaml:"workers" json:"workers"`
}

// DocumentConfig tunes the document host.
type DocumentConfig struct {
	OutputFormat string `yaml:"output_format" json:"output_format"`
}

// ServerConfig tunes the HTTP service.
type ServerConfig struct {
	Addr        string `yaml:"addr" json:"addr"`
	MaxUploadMB int    `yaml:"max_upload_mb" json:"max_upload_mb"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Store:    StoreConfig{Backend: "json"},
		Retry: RetryConfig{
			ConflictAttempts: 3,
			ConflictBackoff:  "600ms",
			WriteBaseBackoff: "1s",
			WriteMaxBackoff:  "8s",
		},
		Document: DocumentConfig{OutputFormat: "png"},
		Server:   ServerConfig{Addr: defaultListenAddr, MaxUploadMB: 64},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/blendkit/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "blendkit", "config.yaml")
}

// DefaultDataDir returns $XDG_DATA_HOME/blendkit, falling back to
// ~/.local/share/blendkit.
func DefaultDataDir() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return filepath.Join(d, "blendkit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "blendkit-data"
	}
	return filepath.Join(home, ".local", "share", "blendkit")
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path means DefaultPath, which
// may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(envStoreBackend); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv(envStorePath); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv(envListenAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv(envWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envWorkers, err)
		}
		c.Composite.Workers = n
	}
	return nil
}

// Validate checks c against the embedded schema and the backoff ordering.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	for field, s := range map[string]string{
		"retry.conflict_backoff":   c.Retry.ConflictBackoff,
		"retry.write_base_backoff": c.Retry.WriteBaseBackoff,
		"retry.write_max_backoff":  c.Retry.WriteMaxBackoff,
	} {
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("invalid config: %s: %w", field, err)
		}
	}
	base, limit := c.WriteBackoff()
	if limit < base {
		return fmt.Errorf("invalid config: retry.write_max_backoff %s is shorter than retry.write_base_backoff %s", limit, base)
	}
	return nil
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

// ConflictBackoff returns the wait between layer creation attempts.
func (c *Config) ConflictBackoff() time.Duration {
	return parseDuration(c.Retry.ConflictBackoff)
}

// WriteBackoff returns the base and cap of the persistent write backoff.
func (c *Config) WriteBackoff() (base, limit time.Duration) {
	return parseDuration(c.Retry.WriteBaseBackoff), parseDuration(c.Retry.WriteMaxBackoff)
}

// StorePath returns the configured preset location or the default for the
// backend.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	if c.Store.Backend == "sqlite" {
		return filepath.Join(DefaultDataDir(), "presets.db")
	}
	return DefaultDataDir()
}

// parseDuration parses a validated duration; invalid input yields zero.
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the given level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
