package sandbox

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
)

// MemoryExport is the linear memory a sandboxed driver must export.
const MemoryExport = "memory"

// Config holds configuration for loader creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per driver in pages (64KB each).
	// 0 means the wazero default (65536 pages = 4GB).
	// The capture scratch region counts against this limit.
	MemoryLimitPages uint32

	// CacheDir enables the on-disk compilation cache when set.
	CacheDir string
}

func (c *Config) runtimeConfig() (wazero.RuntimeConfig, error) {
	rc := wazero.NewRuntimeConfig()
	if c == nil {
		return rc, nil
	}
	if c.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	if c.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(c.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("compilation cache: %w", err)
		}
		rc = rc.WithCompilationCache(cache)
	}
	return rc, nil
}

func newRuntime(ctx context.Context, cfg *Config) (wazero.Runtime, error) {
	rc, err := cfg.runtimeConfig()
	if err != nil {
		return nil, err
	}
	return wazero.NewRuntimeWithConfig(ctx, rc), nil
}
