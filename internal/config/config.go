// Package config loads the layered songmatch configuration.
//
// Precedence, lowest first:
//
//  1. built-in defaults
//  2. a YAML file named by SONGMATCH_CONFIG (or passed to Load)
//  3. SONGMATCH_* environment variables, with "__" separating levels:
//     SONGMATCH_SEMANTIC__MIN_SIMILARITY=0.4 sets semantic.min_similarity
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/dshills/songmatch/internal/catalog"
	"github.com/dshills/songmatch/internal/embedder"
	"github.com/dshills/songmatch/internal/history"
	"github.com/dshills/songmatch/internal/ingest"
	"github.com/dshills/songmatch/internal/keyword"
	"github.com/dshills/songmatch/internal/logging"
	"github.com/dshills/songmatch/internal/pipeline"
	"github.com/dshills/songmatch/internal/ranking"
	"github.com/dshills/songmatch/internal/searcher"
	"github.com/dshills/songmatch/internal/tracing"
)

const (
	// EnvPrefix prefixes every configuration environment variable
	EnvPrefix = "SONGMATCH_"
	// EnvConfigPath names the optional YAML file
	EnvConfigPath = EnvPrefix + "CONFIG"
)

// Config is the complete process configuration
type Config struct {
	Log      logging.Config  `koanf:"log"`
	Store    catalog.Config  `koanf:"store"`
	Embedder embedder.Config `koanf:"embedder"`
	Keyword  keyword.Config  `koanf:"keyword"`
	Semantic searcher.Config `koanf:"semantic"`
	Ranking  ranking.Config  `koanf:"ranking"`
	Pipeline pipeline.Config `koanf:"pipeline"`
	History  history.Config  `koanf:"history"`
	Ingest   ingest.Config   `koanf:"ingest"`
	Tracing  tracing.Config  `koanf:"tracing"`
	Admin    AdminConfig     `koanf:"admin"`
}

// AdminConfig controls the internal HTTP endpoint
type AdminConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"required_if=Enabled true,omitempty,hostname_port"`
}

// Default returns the built-in configuration: a local SQLite catalog, the
// local embedder and in-memory history
func Default() *Config {
	return &Config{
		Log: logging.DefaultConfig(),
		Store: catalog.Config{
			Driver:    catalog.DriverSQLite,
			DSN:       "songmatch.db",
			Dimension: embedder.LocalDimension,
		},
		Embedder: embedder.DefaultConfig(),
		Keyword:  keyword.DefaultConfig(),
		Semantic: searcher.DefaultConfig(),
		Ranking:  ranking.DefaultConfig(),
		Pipeline: pipeline.DefaultConfig(),
		History:  history.DefaultConfig(),
		Ingest:   ingest.DefaultConfig(),
		Tracing:  tracing.DefaultConfig(),
		Admin:    AdminConfig{Addr: "127.0.0.1:9464"},
	}
}

// Load reads defaults, then the YAML file at path (or SONGMATCH_CONFIG when
// path is empty), then the environment, and validates the result
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Log.Output = os.Stderr

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransform maps SONGMATCH_SEMANTIC__MIN_SIMILARITY to
// semantic.min_similarity
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section and the constraints that span sections
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error
	for _, v := range []interface{ Validate() error }{c.Semantic, c.Ranking, c.Pipeline, c.History} {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Store.Dimension != c.Semantic.Dimension {
		errs = append(errs, fmt.Errorf("store.dimension (%d) and semantic.dimension (%d) differ",
			c.Store.Dimension, c.Semantic.Dimension))
	}
	if c.Embedder.Dimension != 0 && c.Embedder.Dimension != c.Semantic.Dimension {
		errs = append(errs, fmt.Errorf("embedder.dimension (%d) and semantic.dimension (%d) differ",
			c.Embedder.Dimension, c.Semantic.Dimension))
	}
	return errors.Join(errs...)
}
