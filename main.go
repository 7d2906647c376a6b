package main

import (
	"context"
	"embed"
	"log"
	"os"

	"github.com/chazu/buildx/pkg/config"
	"github.com/chazu/buildx/pkg/system"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	cfg, err := config.Load(os.Getenv("BUILDX_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	logger := cfg.Logger(os.Stderr)

	sys, err := system.Open(context.Background(), cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	app := NewApp(sys)

	err = wails.Run(&options.App{
		Title:            "buildx",
		Width:            1280,
		Height:           800,
		AssetServer:      &assetserver.Options{Assets: assets},
		BackgroundColour: &options.RGBA{R: 27, G: 38, B: 54, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind:             []interface{}{app},
	})
	if err != nil {
		logger.Error("wails", "error", err)
		os.Exit(1)
	}
}
