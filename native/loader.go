package native

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	capturebridge "github.com/wippyai/capture-bridge"
	"github.com/wippyai/capture-bridge/errors"
)

// Loader opens driver modules as OS shared libraries.
type Loader struct {
	logger *zap.Logger
	open   func(path string) (uintptr, error)
	lookup func(handle uintptr, name string) (uintptr, error)
	close  func(handle uintptr) error
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// NewLoader creates a loader backed by dlopen, or LoadLibrary on Windows.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		logger: zap.NewNop(),
		open:   openLibrary,
		lookup: lookupSymbol,
		close:  closeLibrary,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open loads the shared library at path. Relative paths are made absolute
// so the system search path never substitutes a different module.
func (l *Loader) Open(_ context.Context, path string) (capturebridge.Library, error) {
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "module path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	handle, err := l.open(abs)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", abs, err)
	}
	if handle == 0 {
		return nil, fmt.Errorf("load %s: null module handle", abs)
	}

	l.logger.Debug("shared library opened", zap.String("path", abs))
	return &library{loader: l, handle: handle, path: abs}, nil
}

type library struct {
	loader *Loader
	path   string
	handle uintptr
	mu     sync.Mutex
}

func (lib *library) symbol(name string) (uintptr, error) {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	if lib.handle == 0 {
		return 0, errors.NotFound(errors.PhaseBind, "module", lib.path)
	}
	sym, err := lib.loader.lookup(lib.handle, name)
	if err != nil {
		return 0, errors.New(errors.PhaseBind, errors.KindMissingExport).
			Module(lib.path).
			Symbol(name).
			Cause(err).
			Build()
	}
	if sym == 0 {
		return 0, errors.NotFound(errors.PhaseBind, "symbol", name)
	}
	return sym, nil
}

// StatusFunc binds int name(void).
func (lib *library) StatusFunc(name string) (capturebridge.StatusFunc, error) {
	sym, err := lib.symbol(name)
	if err != nil {
		return nil, err
	}

	var fn func() int32
	purego.RegisterFunc(&fn, sym)

	return func(context.Context) (int32, error) {
		return fn(), nil
	}, nil
}

// CaptureFunc binds int name(int quality, unsigned char *out, int *size).
func (lib *library) CaptureFunc(name string) (capturebridge.CaptureFunc, error) {
	sym, err := lib.symbol(name)
	if err != nil {
		return nil, err
	}

	var fn func(quality int32, out *byte, size *int32) int32
	purego.RegisterFunc(&fn, sym)

	return func(_ context.Context, quality int32, buf []byte, size *int32) (int32, error) {
		if len(buf) == 0 {
			return 0, errors.InvalidInput(errors.PhaseCall, "capture buffer is empty")
		}
		status := fn(quality, &buf[0], size)
		runtime.KeepAlive(buf)
		return status, nil
	}, nil
}

func (lib *library) Close() error {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	if lib.handle == 0 {
		return nil
	}
	err := lib.loader.close(lib.handle)
	lib.handle = 0
	lib.loader.logger.Debug("shared library closed", zap.String("path", lib.path), zap.Error(err))
	return err
}
