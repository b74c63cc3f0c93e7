package capturebridge

import "context"

// Reserved status codes. Drivers never return these themselves.
const (
	// StatusNotBound is returned for lifecycle calls made while no module is bound.
	StatusNotBound int32 = -999

	// StatusCallFailed is returned when the host could not complete a call into
	// the driver, e.g. a sandboxed driver trapped.
	StatusCallFailed int32 = -998
)

// StatusFunc is a bound no-argument entry point returning a driver status.
// The error is non-nil only when the call itself could not be completed;
// driver-defined failures are reported through the status.
type StatusFunc func(ctx context.Context) (int32, error)

// CaptureFunc is a bound capture entry point. The driver may write up to
// *size bytes into buf and must set *size to the number of bytes written.
// buf is owned by the caller and must not be retained after return.
type CaptureFunc func(ctx context.Context, quality int32, buf []byte, size *int32) (int32, error)

// Library is an opened driver module.
type Library interface {
	// StatusFunc resolves a no-argument entry point by symbol name.
	StatusFunc(name string) (StatusFunc, error)

	// CaptureFunc resolves a capture entry point by symbol name.
	CaptureFunc(name string) (CaptureFunc, error)

	// Close releases the module. Resolved entry points become invalid.
	Close() error
}

// Loader opens driver modules by path.
type Loader interface {
	Open(ctx context.Context, path string) (Library, error)
}
