package sandbox

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	capturebridge "github.com/wippyai/capture-bridge"
	"github.com/wippyai/capture-bridge/errors"
)

const pageSize = 65536

// Loader opens driver modules compiled to WebAssembly.
// All modules opened by one Loader share a wazero runtime.
type Loader struct {
	runtime wazero.Runtime
	logger  *zap.Logger
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

// NewLoader creates a loader. A nil cfg uses wazero defaults.
func NewLoader(ctx context.Context, cfg *Config, opts ...Option) (*Loader, error) {
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	l := &Loader{runtime: rt, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Open reads, compiles and instantiates the module at path.
func (l *Loader) Open(ctx context.Context, path string) (capturebridge.Library, error) {
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "module path is empty")
	}
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return l.OpenBytes(ctx, path, wasm)
}

// OpenBytes compiles and instantiates wasm. name only labels logs and errors;
// instances are anonymous so the same driver can be opened again after unload.
func (l *Loader) OpenBytes(ctx context.Context, name string, wasm []byte) (capturebridge.Library, error) {
	compiled, err := l.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	mod, err := l.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("instantiate %s: %w", name, err)
	}

	l.logger.Debug("sandboxed driver instantiated", zap.String("name", name))
	return &library{loader: l, name: name, compiled: compiled, mod: mod}, nil
}

// Close releases the runtime and every module it still holds.
func (l *Loader) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

type library struct {
	loader   *Loader
	compiled wazero.CompiledModule
	mod      api.Module
	name     string

	// scratch is host-owned guest memory for the size cell and capture buffer.
	scratch    uint32
	scratchLen uint32
	closed     bool
	mu         sync.Mutex
}

func (lib *library) export(name string, params ...api.ValueType) (api.Function, error) {
	if lib.closed {
		return nil, errors.NotFound(errors.PhaseBind, "module", lib.name)
	}
	fn := lib.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseBind, "export", name)
	}

	def := fn.Definition()
	if !sameTypes(def.ParamTypes(), params) || !sameTypes(def.ResultTypes(), []api.ValueType{api.ValueTypeI32}) {
		return nil, errors.New(errors.PhaseBind, errors.KindMissingExport).
			Module(lib.name).
			Symbol(name).
			Detail("signature mismatch: have %s, want %s", signature(def.ParamTypes(), def.ResultTypes()), signature(params, []api.ValueType{api.ValueTypeI32})).
			Build()
	}
	return fn, nil
}

// StatusFunc binds an export of type () -> i32.
func (lib *library) StatusFunc(name string) (capturebridge.StatusFunc, error) {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	fn, err := lib.export(name)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (int32, error) {
		lib.mu.Lock()
		defer lib.mu.Unlock()

		res, err := fn.Call(ctx)
		if err != nil {
			return 0, err
		}
		return api.DecodeI32(res[0]), nil
	}, nil
}

// CaptureFunc binds an export of type (i32 quality, i32 out, i32 size) -> i32.
// out and size are guest addresses; the host stages them in a scratch region.
func (lib *library) CaptureFunc(name string) (capturebridge.CaptureFunc, error) {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	fn, err := lib.export(name, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32)
	if err != nil {
		return nil, err
	}
	if lib.mod.ExportedMemory(MemoryExport) == nil {
		return nil, errors.NotFound(errors.PhaseBind, "export", MemoryExport)
	}

	return func(ctx context.Context, quality int32, buf []byte, size *int32) (int32, error) {
		lib.mu.Lock()
		defer lib.mu.Unlock()
		return lib.capture(ctx, fn, quality, buf, size)
	}, nil
}

func (lib *library) capture(ctx context.Context, fn api.Function, quality int32, buf []byte, size *int32) (int32, error) {
	if lib.closed {
		return 0, fmt.Errorf("%s: module closed", lib.name)
	}
	mem := lib.mod.ExportedMemory(MemoryExport)

	base, err := lib.reserve(mem, uint64(len(buf))+4)
	if err != nil {
		return 0, err
	}
	sizeAddr, outAddr := base, base+4

	if !mem.WriteUint32Le(sizeAddr, uint32(*size)) || !mem.Write(outAddr, buf) {
		return 0, fmt.Errorf("%s: stage capture buffer", lib.name)
	}

	res, err := fn.Call(ctx, api.EncodeI32(quality), api.EncodeU32(outAddr), api.EncodeU32(sizeAddr))
	if err != nil {
		return 0, err
	}
	status := api.DecodeI32(res[0])

	reported, ok := mem.ReadUint32Le(sizeAddr)
	if !ok {
		return status, fmt.Errorf("%s: read back size", lib.name)
	}
	*size = int32(reported)

	n := int(*size)
	if n > len(buf) {
		n = len(buf)
	}
	if n > 0 {
		out, ok := mem.Read(outAddr, uint32(n))
		if !ok {
			return status, fmt.Errorf("%s: read back capture buffer", lib.name)
		}
		copy(buf, out)
	}
	return status, nil
}

// reserve returns the scratch base, growing guest memory when the current
// region is smaller than need. The region starts at the memory size before
// the grow. Pages the guest obtains later with memory.grow lie above it, but
// a guest allocator that claims every page up to memory.size without growing
// would overlap it.
func (lib *library) reserve(mem api.Memory, need uint64) (uint32, error) {
	if need <= uint64(lib.scratchLen) {
		return lib.scratch, nil
	}

	pages := (need + pageSize - 1) / pageSize
	prev, ok := mem.Grow(uint32(pages))
	if !ok {
		return 0, fmt.Errorf("%s: grow memory by %d page(s) for capture buffer", lib.name, pages)
	}

	lib.scratch = prev * pageSize
	lib.scratchLen = uint32(pages * pageSize)
	lib.loader.logger.Debug("capture scratch reserved",
		zap.String("name", lib.name),
		zap.Uint32("offset", lib.scratch),
		zap.Uint32("length", lib.scratchLen))
	return lib.scratch, nil
}

func (lib *library) Close() error {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	if lib.closed {
		return nil
	}
	lib.closed = true

	ctx := context.Background()
	err := lib.mod.Close(ctx)
	if cerr := lib.compiled.Close(ctx); err == nil {
		err = cerr
	}
	lib.loader.logger.Debug("sandboxed driver closed", zap.String("name", lib.name), zap.Error(err))
	return err
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func signature(params, results []api.ValueType) string {
	return fmt.Sprintf("(%s) -> (%s)", typeList(params), typeList(results))
}

func typeList(types []api.ValueType) string {
	s := ""
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(t)
	}
	return s
}
