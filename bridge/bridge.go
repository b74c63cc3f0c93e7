package bridge

import (
	"context"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	capturebridge "github.com/wippyai/capture-bridge"
	"github.com/wippyai/capture-bridge/binding"
	"github.com/wippyai/capture-bridge/errors"
)

const (
	// DefaultQuality is used when the caller does not pick a capture quality.
	DefaultQuality = 60

	// DefaultBufferCapacity is the size of the buffer handed to the capture entry point.
	DefaultBufferCapacity = 2048
)

const tracerName = "github.com/wippyai/capture-bridge/bridge"

// Bridge sequences the driver lifecycle over a binding table:
// load, initialize, capture (repeatable), uninitialize, unload.
//
// A Bridge is not safe for concurrent lifecycle use; callers serialize
// access, typically through a dispatch.Worker.
type Bridge struct {
	table    *binding.Table
	logger   *zap.Logger
	tracer   trace.Tracer
	capacity int
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithBufferCapacity sets the capture buffer size. Non-positive values are ignored.
func WithBufferCapacity(n int) Option {
	return func(b *Bridge) {
		if n > 0 && n <= math.MaxInt32 {
			b.capacity = n
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTracer sets the tracer. The default comes from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(b *Bridge) {
		if t != nil {
			b.tracer = t
		}
	}
}

// New creates a bridge that owns table.
func New(table *binding.Table, opts ...Option) *Bridge {
	b := &Bridge{
		table:    table,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
		capacity: DefaultBufferCapacity,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Table returns the binding table the bridge drives.
func (b *Bridge) Table() *binding.Table {
	return b.table
}

// BufferCapacity returns the capture buffer size.
func (b *Bridge) BufferCapacity() int {
	return b.capacity
}

// State reports whether a driver module is bound.
func (b *Bridge) State() binding.State {
	return b.table.State()
}

// LoadModule binds the driver module at path. It succeeds immediately when
// a module is already bound.
func (b *Bridge) LoadModule(ctx context.Context, path string) error {
	ctx, span := b.tracer.Start(ctx, "bridge.load", trace.WithAttributes(attribute.String("driver.path", path)))
	defer span.End()

	if err := b.table.Load(ctx, path); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// UnloadModule releases the bound module. It never fails.
func (b *Bridge) UnloadModule() {
	b.table.Unload()
}

// Initialize calls the driver's initialize entry point and returns its status
// unmodified. A non-zero status is also reported as a driver_error.
// While unloaded it returns StatusNotBound without calling anything.
func (b *Bridge) Initialize(ctx context.Context) (int32, error) {
	return b.callStatus(ctx, "initialize", func(ep *binding.EntryPoints) (capturebridge.StatusFunc, string) {
		return ep.Initialize, ep.Symbols.Initialize
	})
}

// Uninitialize calls the driver's finalize entry point. See Initialize.
func (b *Bridge) Uninitialize(ctx context.Context) (int32, error) {
	return b.callStatus(ctx, "uninitialize", func(ep *binding.EntryPoints) (capturebridge.StatusFunc, string) {
		return ep.Finalize, ep.Symbols.Finalize
	})
}

func (b *Bridge) callStatus(ctx context.Context, op string, pick func(*binding.EntryPoints) (capturebridge.StatusFunc, string)) (int32, error) {
	ctx, span := b.tracer.Start(ctx, "bridge."+op)
	defer span.End()

	var (
		code int32
		err  error
	)
	bound := b.table.Do(func(ep *binding.EntryPoints) {
		fn, sym := pick(ep)
		span.SetAttributes(attribute.String("driver.symbol", sym))

		status, callErr := fn(ctx)
		if callErr != nil {
			code, err = capturebridge.StatusCallFailed, errors.DriverFault(sym, capturebridge.StatusCallFailed, callErr)
			return
		}
		code = status
		if status != 0 {
			err = errors.DriverError(sym, status)
		}
	})
	if !bound {
		code, err = capturebridge.StatusNotBound, notBound(op)
	}

	span.SetAttributes(attribute.Int("driver.status", int(code)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	b.logger.Debug("driver call", zap.String("op", op), zap.Int32("status", code), zap.Error(err))
	return code, err
}

// CaptureTemplate captures one template at the given quality.
//
// The result is a failure when the driver status is non-zero or the reported
// size is not positive; either condition alone is enough. On success the
// template holds exactly the reported number of bytes, base64 encoded.
// The returned error classifies failures and is nil exactly when the result
// is a success.
func (b *Bridge) CaptureTemplate(ctx context.Context, quality int) (CaptureResult, error) {
	ctx, span := b.tracer.Start(ctx, "bridge.capture", trace.WithAttributes(attribute.Int("capture.quality", quality)))
	defer span.End()

	var (
		res CaptureResult
		err error
	)
	if quality < math.MinInt32 || quality > math.MaxInt32 {
		res, err = failure(capturebridge.StatusCallFailed), errors.InvalidInput(errors.PhaseCapture, "quality out of range")
	} else if !b.table.Do(func(ep *binding.EntryPoints) {
		res, err = b.capture(ctx, ep, quality)
	}) {
		res, err = failure(capturebridge.StatusNotBound), notBound("capture")
	}

	if err != nil {
		span.SetAttributes(attribute.Int("driver.status", int(res.ErrorCode)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Debug("capture failed", zap.Int("quality", quality), zap.Int32("status", res.ErrorCode), zap.Error(err))
		return res, err
	}

	span.SetAttributes(attribute.Int("capture.size", res.TemplateSize))
	b.logger.Debug("capture", zap.Int("quality", quality), zap.Int("size", res.TemplateSize))
	return res, nil
}

func (b *Bridge) capture(ctx context.Context, ep *binding.EntryPoints, quality int) (CaptureResult, error) {
	sym := ep.Symbols.Capture

	// Fresh per call: nothing from a previous capture can leak into this one.
	buf := make([]byte, b.capacity)
	size := int32(len(buf))

	status, callErr := ep.Capture(ctx, int32(quality), buf, &size)
	if callErr != nil {
		return failure(capturebridge.StatusCallFailed), errors.DriverFault(sym, capturebridge.StatusCallFailed, callErr)
	}
	if status != 0 {
		return failure(status), errors.DriverError(sym, status)
	}
	if size <= 0 {
		return failure(status), errors.CaptureEmpty(status, size)
	}
	if int(size) > len(buf) {
		return failure(status), errors.OutOfBounds(status, int(size), len(buf))
	}

	template := make([]byte, size)
	copy(template, buf[:size])

	return CaptureResult{
		Success:      true,
		Template:     EncodeTemplate(template),
		TemplateSize: int(size),
		Quality:      quality,
	}, nil
}

// notBound carries StatusNotBound so callers can report it as a code.
func notBound(op string) error {
	e := errors.NotBound(op)
	e.Value = capturebridge.StatusNotBound
	return e
}
