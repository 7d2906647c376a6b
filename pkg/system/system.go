// Package system opens every component from one Config and wires them
// together. The desktop app and the HTTP server share it.
package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chazu/buildx/pkg/assets"
	"github.com/chazu/buildx/pkg/catalog"
	"github.com/chazu/buildx/pkg/config"
	"github.com/chazu/buildx/pkg/geometry"
	"github.com/chazu/buildx/pkg/houses"
	"github.com/chazu/buildx/pkg/site"
	"github.com/chazu/buildx/pkg/store/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// System is the set of opened components.
type System struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry

	DB       *sqlite.Store
	Catalog  *catalog.Cache
	Assets   *assets.Loader
	Geometry *geometry.Service
	Site     *site.Store
	Houses   *houses.Store
}

// Open opens the database, loads the catalog and restores the site and
// houses. A catalog that fails to load is not an error: the system starts
// with the catalog Unavailable and geometry requests refused.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*System, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path := cfg.DatabasePath
	if path == "" {
		path = sqlite.MemoryPath
	}
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("system: %w", err)
	}
	s := &System{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		DB:       db,
	}
	if err := s.open(ctx); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return s, nil
}

func (s *System) open(ctx context.Context) error {
	cfg := s.Config
	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.Catalog = catalog.NewCache(
		catalog.FileSource{Paths: cfg.CatalogFiles},
		catalog.WithSnapshots(s.DB),
		catalog.WithTTL(cfg.SnapshotTTL),
		catalog.WithLogger(s.Logger.With("component", "catalog")),
	)
	if _, err := s.Catalog.Load(ctx); err != nil {
		s.Logger.Warn("starting without catalog", "error", err)
	}

	loaderOpts := []assets.Option{assets.WithLogger(s.Logger.With("component", "assets"))}
	if cfg.S3.Region != "" {
		client, err := assets.NewS3Client(ctx, assets.S3Config{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			return fmt.Errorf("system: s3: %w", err)
		}
		loaderOpts = append(loaderOpts, assets.WithS3(client))
	}
	s.Assets = assets.NewLoader(cfg.AssetRoot, loaderOpts...)

	cache, err := geometry.NewCache(
		geometry.WithResolver(cfg.Resolver()),
		geometry.WithLogger(s.Logger.With("component", "geometry")),
		geometry.WithMetrics(s.Registry),
	)
	if err != nil {
		return fmt.Errorf("system: %w", err)
	}
	s.Geometry = geometry.NewService(s.Catalog, s.Assets, cache)

	s.Site = site.NewStore(s.DB, s.Logger.With("component", "site"))
	if err := s.Site.Open(ctx); err != nil {
		return fmt.Errorf("system: %w", err)
	}
	s.Houses = houses.NewStore(s.Catalog, s.DB, s.Logger.With("component", "houses"))
	if err := s.Houses.Open(ctx); err != nil {
		return fmt.Errorf("system: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *System) Close() error {
	return s.DB.Close()
}
