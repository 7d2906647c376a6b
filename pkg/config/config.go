// Package config loads application settings from an optional YAML file
// with BUILDX_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chazu/buildx/pkg/catalog"
	"github.com/chazu/buildx/pkg/resolve"
	"gopkg.in/yaml.v3"
)

// Config holds the application settings.
type Config struct {
	Listen       string        `yaml:"listen"`
	DatabasePath string        `yaml:"database"`
	CatalogFiles []string      `yaml:"catalog_files"`
	AssetRoot    string        `yaml:"asset_root"`
	SnapshotTTL  time.Duration `yaml:"snapshot_ttl"`
	LogLevel     string        `yaml:"log_level"`
	Resolve      ResolveConfig `yaml:"resolve"`
	S3           S3Config      `yaml:"s3"`
}

// ResolveConfig tunes element resolution.
type ResolveConfig struct {
	Threshold float64  `yaml:"threshold"`
	Excluded  []string `yaml:"excluded"`
}

// S3Config configures s3:// module assets. Region empty disables S3.
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Listen:       ":8080",
		DatabasePath: "buildx.db",
		CatalogFiles: []string{"examples/catalog.json"},
		AssetRoot:    "examples",
		SnapshotTTL:  catalog.DefaultSnapshotTTL,
		LogLevel:     "info",
		Resolve: ResolveConfig{
			Threshold: resolve.DefaultThreshold,
			Excluded:  append([]string(nil), resolve.DefaultExcluded...),
		},
	}
}

// Load returns Default overlaid with the YAML file at path (skipped when
// path is empty) and then with environment variables, validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Listen = getEnv("BUILDX_LISTEN", c.Listen)
	c.DatabasePath = getEnv("BUILDX_DATABASE", c.DatabasePath)
	c.CatalogFiles = getEnvAsList("BUILDX_CATALOG_FILES", c.CatalogFiles)
	c.AssetRoot = getEnv("BUILDX_ASSET_ROOT", c.AssetRoot)
	c.SnapshotTTL = getEnvAsDuration("BUILDX_SNAPSHOT_TTL", c.SnapshotTTL)
	c.LogLevel = getEnv("BUILDX_LOG_LEVEL", c.LogLevel)
	c.Resolve.Threshold = getEnvAsFloat("BUILDX_FUZZY_THRESHOLD", c.Resolve.Threshold)
	c.Resolve.Excluded = getEnvAsList("BUILDX_EXCLUDED_ELEMENTS", c.Resolve.Excluded)
	c.S3.Region = getEnv("BUILDX_S3_REGION", c.S3.Region)
	c.S3.Endpoint = getEnv("BUILDX_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.PathStyle = getEnvAsBool("BUILDX_S3_PATH_STYLE", c.S3.PathStyle)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if len(c.CatalogFiles) == 0 {
		errs = append(errs, errors.New("at least one catalog file is required"))
	}
	if c.SnapshotTTL <= 0 {
		errs = append(errs, fmt.Errorf("snapshot_ttl must be positive, got %s", c.SnapshotTTL))
	}
	if c.Resolve.Threshold < 0 || c.Resolve.Threshold > 1 {
		errs = append(errs, fmt.Errorf("resolve.threshold must be in [0, 1], got %g", c.Resolve.Threshold))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Resolver returns a resolver with the configured threshold and
// exclusions.
func (c *Config) Resolver() *resolve.Resolver {
	return &resolve.Resolver{
		Threshold: c.Resolve.Threshold,
		Excluded:  append([]string(nil), c.Resolve.Excluded...),
	}
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma-separated value, dropping empty items.
func getEnvAsList(key string, defaultVal []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
