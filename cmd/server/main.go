// Package main provides the pointcast HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go.ngs.io/pointcast/internal/app"
	"go.ngs.io/pointcast/internal/config"
	httpHandler "go.ngs.io/pointcast/internal/http"
	"go.ngs.io/pointcast/internal/log"
)

const version = "0.1.0"

// cullInterval is how often stale model-level files are removed.
const cullInterval = 30 * time.Minute

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to pointcast.yaml")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("pointcast version %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
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

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalw("failed to initialize engine", "error", err)
	}
	defer func() { _ = engine.Close() }()

	logger.Info("starting pointcast server",
		zap.String("addr", cfg.GetServerAddr()),
		zap.String("cache_dir", engine.Cache.Root()),
		zap.String("strategy", cfg.Interpolation.Strategy),
		zap.Bool("validation", cfg.Validation.Enabled),
	)

	go cullLoop(ctx, engine)

	gin.SetMode(cfg.Server.GinMode)
	handler := httpHandler.NewHandler(engine.Estimator, engine.Batch, logger)
	router := httpHandler.SetupRouter(handler, cfg.Server.CORSAllowedOrigins, logger)

	srv := &http.Server{
		Addr:              cfg.GetServerAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("API endpoints",
		zap.Strings("routes", []string{
			"GET /health",
			"GET /v1/models",
			"GET /v1/forecast/point",
			"POST /v1/forecast/batch",
		}),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalw("failed to start server", "error", err)
	}

	if err := engine.SaveSnapshot(); err != nil {
		logger.Warn("failed to save half-level snapshot", zap.Error(err))
	}
	logger.Info("server stopped")
}

func cullLoop(ctx context.Context, engine *app.Engine) {
	ticker := time.NewTicker(cullInterval)
	defer ticker.Stop()
	for {
		engine.Cull(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("pointcast server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println("  -config FILE   Configuration file (default: pointcast.yaml in ., ./config, $HOME/.pointcast)")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  POINTCAST_SERVER_PORT           Server port (default: 8080)")
	fmt.Println("  POINTCAST_DATA_CACHEDIR         Local GRIB cache (default: ./data/cache)")
	fmt.Println("  POINTCAST_DATA_HHLSNAPSHOT      Half-level snapshot written by hhl-sync (optional)")
	fmt.Println("  POINTCAST_DATA_GEOIDPATH        EGM2008 NetCDF for ellipsoidal altitudes (optional)")
	fmt.Println("  POINTCAST_REMOTE_BASEURL        Open-data base URL")
	fmt.Println("  POINTCAST_REMOTE_MIRRORBUCKET   GCS mirror bucket tried first (optional)")
	fmt.Println("  POINTCAST_GCS_CREDENTIALS       Service account JSON for the mirror (optional)")
	fmt.Println("  POINTCAST_LOG_LEVEL             debug, info, warn, error (default: info)")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET  /health                    Health check")
	fmt.Println("  GET  /v1/models                 Model families and horizons")
	fmt.Println("  GET  /v1/forecast/point         Estimate one point (lat, lon, alt, time, vars, altitude_ref)")
	fmt.Println("  POST /v1/forecast/batch         Estimate a list of points")
	fmt.Println()
}
