// Package telemetry installs an OpenTelemetry tracer provider for the bridge's
// lifecycle spans.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Resource attribute keys describing the bound driver.
const (
	DriverKindKey = attribute.Key("capture_bridge.driver.kind")
	DriverPathKey = attribute.Key("capture_bridge.driver.path")
)

// Options controls span export.
type Options struct {
	Logger *zap.Logger

	ServiceName string

	// Endpoint is the OTLP/HTTP collector URL. Export is off when empty.
	Endpoint string

	DriverKind string
	DriverPath string

	// SampleRatio is the share of root traces kept. Values outside (0, 1)
	// keep every trace.
	SampleRatio float64

	Enabled bool
}

// Setup exports spans over OTLP/HTTP and registers the provider globally.
// When export is disabled or no endpoint is set it does nothing and spans stay
// no-ops.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if !opts.Enabled || opts.Endpoint == "" {
		logger.Debug("span export disabled")
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(opts.Endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := newResource(ctx, opts)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(opts.SampleRatio)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("span export", zap.Error(err))
	}))

	logger.Info("span export enabled",
		zap.String("endpoint", opts.Endpoint),
		zap.Float64("sample_ratio", opts.SampleRatio))
	return tp.Shutdown, nil
}

func newResource(ctx context.Context, opts Options) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(opts.ServiceName)}
	if opts.DriverKind != "" {
		attrs = append(attrs, DriverKindKey.String(opts.DriverKind))
	}
	if opts.DriverPath != "" {
		attrs = append(attrs, DriverPathKey.String(opts.DriverPath))
	}
	return resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
