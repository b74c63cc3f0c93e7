// Package errors provides structured error types for the capture bridge.
//
// Errors are categorized by Phase (where in the lifecycle the error occurred)
// and Kind (error category). The Error type carries the module path, the entry
// point symbol, the driver status code when there is one, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindDriverFault).
//		Module(path).
//		Symbol("CaptureFinger").
//		Value(status).
//		Cause(trap).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotBound("initialize")
//	err := errors.DriverError("Init", status)
//
// Driver status codes survive wrapping and can be recovered with StatusCode.
// All errors implement the standard error interface and support errors.Is/As.
package errors
