// Contentd is the content publishing daemon.
//
// It serves the publishing engine over HTTP: strategy selection with
// fallback, scheduled publication, and multi-reviewer approval.
//
// Configuration is loaded from environment variables, optionally layered
// over a YAML file. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	contentd
//
//	# Start with a config file (hot-reloads review categories)
//	contentd -config ~/.config/contentd/config.yaml
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9090 EVENTS_NATS_URL=nats://localhost:4222 contentd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/config"
	httpserver "github.com/fyrsmithlabs/contentd/internal/http"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONTENTD_CONFIG"), "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  contentd [-config path]   Start the contentd daemon\n")
			fmt.Fprintf(os.Stderr, "  contentd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("contentd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// loadConfig reads the file at path layered under the environment, or the
// environment alone when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadWithFile(path)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// run starts contentd and blocks until ctx is cancelled.
//
// Startup order:
//  1. Loads and validates configuration
//  2. Initializes telemetry, then the logger (so logs can bridge to OTel)
//  3. Builds event sinks, strategies and the orchestrator
//  4. Starts the config watcher when a file is in use
//  5. Starts the HTTP server and shuts everything down on cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting contentd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("telemetry", tel.IsEnabled()),
		zap.String("default_strategy", cfg.Publishing.DefaultStrategy))

	eng, err := buildEngine(cfg, logger, tel)
	if err != nil {
		return fmt.Errorf("failed to build publishing engine: %w", err)
	}

	if configPath != "" {
		w, err := config.NewWatcher(configPath, eng.applyConfig,
			config.WithWatchLogger(logger.Underlying().Named("config")))
		if err != nil {
			logger.Warn(ctx, "config hot reload disabled", zap.Error(err))
		} else if err := w.Start(ctx); err != nil {
			logger.Warn(ctx, "config hot reload disabled", zap.Error(err))
		} else {
			defer w.Stop()
		}
	}

	srv, err := httpserver.NewServer(httpserver.Services{
		Repository:   eng.repo,
		Orchestrator: eng.orch,
		Scheduler:    eng.scheduler,
		Review:       eng.review,
		Telemetry:    tel,
	}, logger, &httpserver.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		RateLimit: cfg.HTTP.RateLimit,
		Burst:     cfg.HTTP.Burst,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn(shutdownCtx, "http shutdown failed", zap.Error(serr))
	}
	eng.Close(shutdownCtx)
	if terr := tel.Shutdown(shutdownCtx); terr != nil {
		logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(terr))
	}
	return err
}

// initLogger builds the zap logger, bridging to the global OTel logger
// provider when telemetry is on.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	lcfg, err := logging.FromObservability(cfg.Observability)
	if err != nil {
		return nil, err
	}
	if cfg.Observability.EnableTelemetry {
		return logging.NewLogger(lcfg, global.GetLoggerProvider())
	}
	return logging.NewLogger(lcfg, nil)
}
