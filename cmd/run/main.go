package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/capture-bridge/binding"
	"github.com/wippyai/capture-bridge/bridge"
	"github.com/wippyai/capture-bridge/config"
	"github.com/wippyai/capture-bridge/dispatch"
	"github.com/wippyai/capture-bridge/errors"
	"github.com/wippyai/capture-bridge/telemetry"
)

type options struct {
	cfg   config.Config
	count int
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var (
		driver      = flag.String("driver", cfg.DriverPath, "Path to the driver module (.so, .dylib, .dll or .wasm)")
		kind        = flag.String("kind", cfg.DriverKind, "Driver kind: native or wasm")
		quality     = flag.Int("quality", cfg.DefaultQuality, "Capture quality passed to the driver")
		capacity    = flag.Int("capacity", cfg.BufferCapacity, "Capture buffer size in bytes")
		count       = flag.Int("count", 1, "Number of captures")
		logLevel    = flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg.DriverPath = *driver
	cfg.DriverKind = *kind
	cfg.DefaultQuality = *quality
	cfg.BufferCapacity = *capacity
	cfg.LogLevel = *logLevel
	cfg.LogFormat = "console"

	if cfg.DriverPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -driver <module> [-kind native|wasm] [-quality 60] [-count 1]")
		fmt.Fprintln(os.Stderr, "       run -driver <module> -i  (interactive mode)")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(options{cfg: cfg, count: *count}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session is a bridge plus the worker every call runs on.
type session struct {
	bridge  *bridge.Bridge
	worker  *dispatch.Worker
	logger  *zap.Logger
	release func(context.Context) error
	flush   func(context.Context) error
}

func openSession(ctx context.Context, cfg config.Config) (*session, error) {
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	flush, err := telemetry.Setup(ctx, cfg.Telemetry("capture-bridge-run", logger))
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	loader, release, err := config.NewLoader(ctx, cfg, logger)
	if err != nil {
		_ = flush(ctx)
		return nil, fmt.Errorf("create loader: %w", err)
	}

	table := binding.NewTable(loader, cfg.Symbols(), binding.WithLogger(logger))
	return &session{
		bridge:  bridge.New(table, bridge.WithBufferCapacity(cfg.BufferCapacity), bridge.WithLogger(logger)),
		worker:  dispatch.New(dispatch.WithLogger(logger)),
		logger:  logger,
		release: release,
		flush:   flush,
	}, nil
}

// call runs fn on the session worker.
func (s *session) call(ctx context.Context, fn func(context.Context)) error {
	return s.worker.Do(ctx, fn)
}

func (s *session) close(ctx context.Context) {
	_ = s.worker.Do(ctx, func(context.Context) { s.bridge.UnloadModule() })
	s.worker.Close()
	if err := s.release(ctx); err != nil {
		s.logger.Warn("release loader", zap.Error(err))
	}
	if err := s.flush(ctx); err != nil {
		s.logger.Warn("flush spans", zap.Error(err))
	}
	_ = s.logger.Sync()
}

func run(opts options) error {
	ctx := context.Background()
	cfg := opts.cfg

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	var loadErr error
	if err := s.call(ctx, func(ctx context.Context) { loadErr = s.bridge.LoadModule(ctx, cfg.DriverPath) }); err != nil {
		return err
	}
	if loadErr != nil {
		return fmt.Errorf("load %s: %w", cfg.DriverPath, loadErr)
	}
	fmt.Fprintf(os.Stderr, "Driver: %s (%s)\n", cfg.DriverPath, cfg.DriverKind)

	var (
		code    int32
		initErr error
	)
	if err := s.call(ctx, func(ctx context.Context) { code, initErr = s.bridge.Initialize(ctx) }); err != nil {
		return err
	}
	if initErr != nil {
		return fmt.Errorf("initialize returned %d: %w", code, initErr)
	}

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for i := 0; i < opts.count; i++ {
		var (
			res        bridge.CaptureResult
			captureErr error
		)
		if err := s.call(ctx, func(ctx context.Context) { res, captureErr = s.bridge.CaptureTemplate(ctx, cfg.DefaultQuality) }); err != nil {
			return err
		}
		if captureErr != nil {
			failed++
			fmt.Fprintln(os.Stderr, describeFailure(i+1, captureErr))
		}
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}

	if err := s.call(ctx, func(ctx context.Context) { code, _ = s.bridge.Uninitialize(ctx) }); err != nil {
		return err
	}
	if code != 0 {
		fmt.Fprintf(os.Stderr, "Uninitialize returned %d\n", code)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d capture(s) failed", failed, opts.count)
	}
	return nil
}

// describeFailure names the failure kind so a bare errorCode is explained.
func describeFailure(n int, err error) string {
	kind, ok := errors.KindOf(err)
	if !ok {
		return fmt.Sprintf("capture %d failed: %v", n, err)
	}
	return fmt.Sprintf("capture %d failed (%s): %v", n, kind, err)
}
