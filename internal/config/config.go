// Package config loads the finishline service configuration.
//
// Configuration is YAML. Values missing from the file keep their defaults,
// and the merged result is validated against an embedded CUE schema so a
// typo in an enum fails at startup rather than mid-race.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the config file used when no path is given.
const EnvConfig = "FINISHLINE_CONFIG"

//go:embed schema.cue
var schemaSource string

// Config is the service configuration.
type Config struct {
	Database  string        `yaml:"database" json:"database"`
	OutputDir string        `yaml:"output_dir" json:"output_dir"`
	Listen    string        `yaml:"listen" json:"listen"`
	Lock      LockConfig    `yaml:"lock" json:"lock"`
	Export    ExportConfig  `yaml:"export" json:"export"`
	Log       LogConfig     `yaml:"log" json:"log"`
	Metrics   MetricsConfig `yaml:"metrics" json:"metrics"`
}

// LockConfig selects the mutual-exclusion gate scope.
type LockConfig struct {
	Scope string `yaml:"scope" json:"scope"`
}

// ExportConfig controls the export artifact.
type ExportConfig struct {
	PositionColumn string `yaml:"position_column" json:"position_column"`
	Workbook       bool   `yaml:"workbook" json:"workbook"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:  "finishline.db",
		OutputDir: ".",
		Listen:    ":8080",
		Lock:      LockConfig{Scope: "global"},
		Export:    ExportConfig{PositionColumn: "device", Workbook: true},
		Log:       LogConfig{Level: "info", Format: "text"},
		Metrics:   MetricsConfig{Enabled: true},
	}
}

// Load reads the configuration at path, or at $FINISHLINE_CONFIG when path
// is empty. With neither set, the defaults are returned.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse overlays YAML data onto cfg and validates the result.
// Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return cfg.Validate()
}

// Validate checks the configuration against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Logger builds the process logger. verbose forces debug level.
func (c Config) Logger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
