package config

import (
	"context"

	"go.uber.org/zap"

	capturebridge "github.com/wippyai/capture-bridge"
	"github.com/wippyai/capture-bridge/native"
	"github.com/wippyai/capture-bridge/sandbox"
)

// NewLoader returns the driver loader for the configured kind and a function
// that releases it.
func NewLoader(ctx context.Context, c Config, logger *zap.Logger) (capturebridge.Loader, func(context.Context) error, error) {
	if c.DriverKind == KindWasm {
		cfg := &sandbox.Config{MemoryLimitPages: c.MemoryLimitPages, CacheDir: c.WasmCacheDir}
		l, err := sandbox.NewLoader(ctx, cfg, sandbox.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	}
	return native.NewLoader(native.WithLogger(logger)), func(context.Context) error { return nil }, nil
}
