package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"allyboard/internal/app"
	"allyboard/internal/config"
	"allyboard/internal/constants"
	"allyboard/internal/models"
	"allyboard/internal/service"
	"allyboard/internal/tracing"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes channel IDs and message text)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("allyboard %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting allyboard")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app.ApplyLogLevel(logger, cfg.LogLevel, *verbose)
	if *verbose {
		logger.Info("Verbose logging enabled - channel IDs and message text will be logged")
	}

	tracingManager := tracing.NewTracingManager(tracingConfig(cfg), logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	services, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close store")
		}
	}()

	watcher := config.NewConfigWatcher(*configPath, logger)
	watcher.OnConfigChange(func(newCfg *models.Config) {
		services.ApplyConfig(newCfg, logger, *verbose)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()

	server := NewServer(cfg, services, logger)
	server.verbose = *verbose
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.WithField(service.LogFieldComponent, "server").Info("Server shutdown completed")
	return nil
}

// tracingConfig fills unset tracing fields from the defaults.
func tracingConfig(cfg *models.Config) models.TracingConfig {
	tc := cfg.Tracing
	defaults := tracing.DefaultTracingConfig()
	if tc.ServiceName == "" {
		tc.ServiceName = defaults.ServiceName
	}
	if tc.ServiceVersion == "" {
		tc.ServiceVersion = Version
	}
	if tc.Environment == "" {
		tc.Environment = defaults.Environment
	}
	if tc.OTLPEndpoint == "" {
		tc.OTLPEndpoint = defaults.OTLPEndpoint
	}
	if tc.SampleRate == 0 {
		tc.SampleRate = defaults.SampleRate
	}
	return tc
}
