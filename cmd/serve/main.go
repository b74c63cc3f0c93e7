package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/capture-bridge/binding"
	"github.com/wippyai/capture-bridge/bridge"
	"github.com/wippyai/capture-bridge/config"
	"github.com/wippyai/capture-bridge/dispatch"
	"github.com/wippyai/capture-bridge/enroll"
	"github.com/wippyai/capture-bridge/server"
	"github.com/wippyai/capture-bridge/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry("capture-bridge", logger))
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("flush spans", zap.Error(err))
		}
	}()

	loader, release, err := config.NewLoader(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create loader: %w", err)
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			logger.Warn("release loader", zap.Error(err))
		}
	}()

	store, err := enroll.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open enrollment store: %w", err)
	}
	defer store.Close()

	table := binding.NewTable(loader, cfg.Symbols(), binding.WithLogger(logger))
	b := bridge.New(table, bridge.WithBufferCapacity(cfg.BufferCapacity), bridge.WithLogger(logger))

	worker := dispatch.New(dispatch.WithLogger(logger))
	defer worker.Close()
	defer func() {
		_ = worker.Do(context.Background(), func(context.Context) { b.UnloadModule() })
	}()

	srv := server.New(b, worker,
		server.WithStore(store),
		server.WithLogger(logger),
		server.WithDriverPath(cfg.DriverPath),
		server.WithDefaultQuality(cfg.DefaultQuality),
		server.WithMatchThreshold(cfg.MatchThreshold),
	)

	if cfg.DriverPath != "" {
		var loadErr error
		if err := worker.Do(ctx, func(ctx context.Context) { loadErr = b.LoadModule(ctx, cfg.DriverPath) }); err != nil {
			return err
		}
		if loadErr != nil {
			// The module can still be loaded later through the API.
			logger.Warn("preload driver module", zap.String("path", cfg.DriverPath), zap.Error(loadErr))
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen(cfg.ListenAddr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
