package binding

import (
	"context"
	"sync"

	"go.uber.org/zap"

	capturebridge "github.com/wippyai/capture-bridge"
	"github.com/wippyai/capture-bridge/errors"
)

// Table owns the loaded driver module and its resolved entry points.
// A Table holds at most one module. Binding is all-or-nothing: a module that
// lacks any required entry point is released before Load returns.
type Table struct {
	loader    capturebridge.Loader
	logger    *zap.Logger
	lib       capturebridge.Library
	entries   *EntryPoints
	observers map[uint64]Observer
	path      string
	symbols   Symbols
	nextObs   uint64
	mu        sync.RWMutex
	obsMu     sync.RWMutex
}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTable creates an unloaded table that opens modules with loader and
// binds the given symbols.
func NewTable(loader capturebridge.Loader, symbols Symbols, opts ...Option) *Table {
	t := &Table{
		loader:    loader,
		symbols:   symbols,
		logger:    zap.NewNop(),
		observers: make(map[uint64]Observer),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load opens the module at path and binds all entry points.
// Loading while already loaded succeeds without touching the existing module.
func (t *Table) Load(ctx context.Context, path string) error {
	t.mu.Lock()

	if t.lib != nil {
		current := t.path
		t.mu.Unlock()
		t.logger.Debug("module already bound", zap.String("path", current), zap.String("requested", path))
		return nil
	}

	err := t.bindLocked(ctx, path)
	t.mu.Unlock()

	if err != nil {
		t.notify(Event{Type: EventLoadFailed, Path: path, Err: err})
		return err
	}

	t.logger.Debug("module bound", zap.String("path", path))
	t.notify(Event{Type: EventLoaded, Path: path})
	return nil
}

func (t *Table) bindLocked(ctx context.Context, path string) error {
	if path == "" {
		return errors.InvalidInput(errors.PhaseLoad, "module path is empty")
	}
	if err := t.symbols.validate(); err != nil {
		return err
	}

	lib, err := t.loader.Open(ctx, path)
	if err != nil {
		return errors.ModuleLoad(path, err)
	}
	if lib == nil {
		return errors.ModuleLoad(path, nil)
	}

	entries, missing := resolve(lib, t.symbols)
	if !missing.Empty() {
		if cerr := lib.Close(); cerr != nil {
			t.logger.Warn("release after failed bind", zap.String("path", path), zap.Error(cerr))
		}
		t.logger.Debug("module rejected", zap.String("path", path), zap.Strings("missing", missing.Symbols()))
		return errors.MissingExports(path, missing)
	}

	t.lib = lib
	t.entries = entries
	t.path = path
	return nil
}

// resolve binds every symbol, collecting all failures rather than stopping at the first.
func resolve(lib capturebridge.Library, symbols Symbols) (*EntryPoints, *errors.MissingExportsError) {
	missing := errors.NewMissingExportsError()

	initFn, err := lib.StatusFunc(symbols.Initialize)
	if err != nil || initFn == nil {
		missing.Add(symbols.Initialize, err)
	}
	finiFn, err := lib.StatusFunc(symbols.Finalize)
	if err != nil || finiFn == nil {
		missing.Add(symbols.Finalize, err)
	}
	captureFn, err := lib.CaptureFunc(symbols.Capture)
	if err != nil || captureFn == nil {
		missing.Add(symbols.Capture, err)
	}

	if !missing.Empty() {
		return nil, missing
	}
	return &EntryPoints{
		Initialize: initFn,
		Finalize:   finiFn,
		Capture:    captureFn,
		Symbols:    symbols,
	}, missing
}

// Unload releases the module. It is a no-op when nothing is bound and always
// leaves the table unloaded.
func (t *Table) Unload() {
	t.mu.Lock()
	if t.lib == nil {
		t.mu.Unlock()
		return
	}

	lib, path := t.lib, t.path
	t.lib = nil
	t.entries = nil
	t.path = ""
	t.mu.Unlock()

	if err := lib.Close(); err != nil {
		t.logger.Warn("release driver module", zap.String("path", path), zap.Error(err))
	}
	t.logger.Debug("module released", zap.String("path", path))
	t.notify(Event{Type: EventUnloaded, Path: path})
}

// State reports whether a module is bound.
func (t *Table) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lib == nil {
		return StateUnloaded
	}
	return StateLoaded
}

// Path returns the path of the bound module, or "" when unloaded.
func (t *Table) Path() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path
}

// Symbols returns the entry point names this table binds.
func (t *Table) Symbols() Symbols {
	return t.symbols
}

// Do runs fn with the bound entry points while holding the table's read lock,
// so Unload cannot release the module while fn is calling into it.
// It reports false, without calling fn, when nothing is bound.
//
// Do is the only way to reach the entry points. fn must not keep them: after
// Unload they point into a released module.
func (t *Table) Do(fn func(*EntryPoints)) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.entries == nil {
		return false
	}
	fn(t.entries)
	return true
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it.
func (t *Table) Subscribe(o Observer) func() {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()

	t.nextObs++
	id := t.nextObs
	t.observers[id] = o

	return func() {
		t.obsMu.Lock()
		defer t.obsMu.Unlock()
		delete(t.observers, id)
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	observers := make([]Observer, 0, len(t.observers))
	for _, o := range t.observers {
		observers = append(observers, o)
	}
	t.obsMu.RUnlock()

	for _, o := range observers {
		o.OnBindingEvent(e)
	}
}

func (s Symbols) validate() error {
	if s.Initialize == "" || s.Finalize == "" || s.Capture == "" {
		return errors.InvalidInput(errors.PhaseBind, "entry point symbol names must not be empty")
	}
	return nil
}
