// Command buildx-server serves the catalog, module geometry, site boundary
// and houses over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chazu/buildx/pkg/config"
	"github.com/chazu/buildx/pkg/server"
	"github.com/chazu/buildx/pkg/system"
)

func main() {
	configPath := flag.String("config", os.Getenv("BUILDX_CONFIG"), "path to YAML config file")
	listen := flag.String("listen", "", "listen address, overrides config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := system.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open system: %v", err)
	}
	defer sys.Close()

	srv := server.New(server.Deps{
		Catalog:  sys.Catalog,
		Geometry: sys.Geometry,
		Site:     sys.Site,
		Houses:   sys.Houses,
		Gatherer: sys.Registry,
		Logger:   logger,
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := srv.Shutdown(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("starting server", "addr", cfg.Listen, "catalog", sys.Catalog.State().String())
	if err := srv.Listen(cfg.Listen); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
