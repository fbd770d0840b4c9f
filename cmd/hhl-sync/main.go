// Package main downloads the half-level height fields of every model and
// writes the half-level snapshot used by the server and CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"go.ngs.io/pointcast/internal/app"
	"go.ngs.io/pointcast/internal/config"
	"go.ngs.io/pointcast/internal/domain"
	"go.ngs.io/pointcast/internal/log"
)

func main() {
	configPath := flag.String("config", "", "Path to pointcast.yaml")
	out := flag.String("out", "", "Snapshot path; overrides data.hhlSnapshot")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *out != "" {
		cfg.Data.HHLSnapshot = *out
	}
	if cfg.Data.HHLSnapshot == "" {
		fmt.Fprintln(os.Stderr, "error: no snapshot path (set data.hhlSnapshot or -out)")
		os.Exit(1)
	}

	if err := log.Init(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger := log.GetZapLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start from an empty provider so the stacks are rebuilt from the
	// newest published files.
	snapshot := cfg.Data.HHLSnapshot
	cfg.Data.HHLSnapshot = ""
	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalw("failed to initialize engine", "error", err)
	}
	defer func() { _ = engine.Close() }()

	now := time.Now().UTC()
	for _, d := range []domain.Domain{domain.DomainRegional, domain.DomainContinental} {
		family := domain.Families[d]
		s, err := engine.HHL.Stack(ctx, family, now)
		if err != nil {
			log.Fatalw("failed to build half-level stack", "model", family.Name, "error", err)
		}
		logger.Info("stack built",
			zap.String("model", family.Name),
			zap.String("cycle", s.Cycle),
			zap.Int("half_levels", len(s.Fields)),
			zap.Int("grid_points", len(s.Lat)*len(s.Lon)),
		)
	}

	if err := engine.HHL.Snapshot().SaveFile(snapshot); err != nil {
		log.Fatalw("failed to write snapshot", "path", snapshot, "error", err)
	}
	logger.Info("snapshot written", zap.String("path", snapshot))
}
