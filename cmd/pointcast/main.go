// Package main runs a batch of point forecasts and writes them as CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"go.ngs.io/pointcast/internal/adapter/store/csvout"
	"go.ngs.io/pointcast/internal/adapter/store/results"
	"go.ngs.io/pointcast/internal/app"
	"go.ngs.io/pointcast/internal/config"
	"go.ngs.io/pointcast/internal/domain"
	"go.ngs.io/pointcast/internal/log"
)

func main() {
	configPath := flag.String("config", "", "Path to pointcast.yaml")
	pointsPath := flag.String("points", "", "Point list CSV (lat,lon,alt[,time]); overrides batch.points")
	vars := flag.String("vars", "", "Comma-separated variables; overrides batch.variables")
	outDir := flag.String("out", "", "Output directory; overrides batch.outputDir")
	cull := flag.Bool("cull", false, "Remove stale model-level files from the cache before running")
	toDB := flag.Bool("db", false, "Also store rows in batch.databaseURL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *pointsPath != "" {
		cfg.Batch.PointsFile = *pointsPath
	}
	if *vars != "" {
		cfg.Batch.Variables = domain.NormalizeVariables(strings.Split(*vars, ","))
	}
	if *outDir != "" {
		cfg.Batch.OutputDir = *outDir
	}

	if err := log.Init(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *cull, *toDB, log.GetZapLogger()); err != nil {
		log.Fatalw("batch failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, cull, toDB bool, logger *zap.Logger) error {
	points, err := loadPoints(cfg)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return fmt.Errorf("no points configured (set batch.points or -points)")
	}

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()
	if cull {
		engine.Cull(time.Now())
	}

	res, err := engine.Batch.Run(ctx, points, cfg.Batch.Variables)
	if err != nil {
		return err
	}
	if err := engine.SaveSnapshot(); err != nil {
		logger.Warn("failed to save half-level snapshot", zap.Error(err))
	}

	path, err := csvout.WriteFile(cfg.Batch.OutputDir, cfg.Batch.OutputPrefix, res.Finished, res.Variables, cfg.Validation.Enabled, res.Rows)
	if err != nil {
		return err
	}
	logger.Info("wrote results", zap.String("path", path), zap.Int("rows", len(res.Rows)))

	if toDB {
		if cfg.Batch.DatabaseURL == "" {
			return fmt.Errorf("-db requires batch.databaseURL")
		}
		sink, err := results.NewDBSink(ctx, cfg.Batch.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer func() { _ = sink.Close() }()
		if err := sink.Store(ctx, res.RunID, res.Rows); err != nil {
			return err
		}
	}

	for _, f := range res.Failures {
		fmt.Fprintf(os.Stderr, "point %d failed (%s): %v\n", f.Index, f.Kind(), f.Err)
	}
	fmt.Printf("%d of %d points estimated, results in %s\n", len(res.Rows), len(points), path)
	return nil
}

func loadPoints(cfg *config.Config) ([]domain.QueryPoint, error) {
	if cfg.Batch.PointsFile != "" {
		return csvout.ReadPointsFile(cfg.Batch.PointsFile)
	}
	return cfg.Batch.QueryPoints()
}
