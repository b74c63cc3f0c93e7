package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the bridge lifecycle the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // opening the driver module
	PhaseBind    Phase = "bind"    // resolving entry points
	PhaseCall    Phase = "call"    // invoking an entry point
	PhaseCapture Phase = "capture" // validating and encoding capture output
	PhaseEncode  Phase = "encode"  // template encoding and decoding
	PhaseStore   Phase = "store"   // enrollment persistence
	PhaseConfig  Phase = "config"  // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindModuleLoad    Kind = "module_load_failure"
	KindMissingExport Kind = "missing_export"
	KindNotBound      Kind = "not_bound"
	KindDriverError   Kind = "driver_error"
	KindDriverFault   Kind = "driver_fault"
	KindCaptureEmpty  Kind = "capture_empty"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindInvalidData   Kind = "invalid_data"
	KindInvalidInput  Kind = "invalid_input"
	KindNotFound      Kind = "not_found"
	KindUnsupported   Kind = "unsupported"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Module string
	Symbol string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Symbol != "" {
		b.WriteString(" symbol ")
		b.WriteString(e.Symbol)
	}
	if e.Module != "" {
		b.WriteString(" in ")
		b.WriteString(e.Module)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Module sets the driver module path
func (b *Builder) Module(path string) *Builder {
	b.err.Module = path
	return b
}

// Symbol sets the entry point name
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// ModuleLoad creates a module load failure
func ModuleLoad(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindModuleLoad,
		Module: path,
		Detail: "open driver module",
		Cause:  cause,
	}
}

// MissingExports creates a binding failure for the given unresolved symbols
func MissingExports(path string, missing *MissingExportsError) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindMissingExport,
		Module: path,
		Cause:  missing,
	}
}

// NotBound creates the error returned for lifecycle calls while unloaded
func NotBound(op string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindNotBound,
		Detail: fmt.Sprintf("%s: no driver module bound", op),
	}
}

// DriverError creates an error for a non-zero driver status
func DriverError(symbol string, code int32) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindDriverError,
		Symbol: symbol,
		Detail: fmt.Sprintf("status %d", code),
		Value:  code,
	}
}

// DriverFault creates an error for a call the host could not complete
func DriverFault(symbol string, code int32, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindDriverFault,
		Symbol: symbol,
		Detail: "call did not complete",
		Value:  code,
		Cause:  cause,
	}
}

// CaptureEmpty creates an error for a capture that reported no bytes
func CaptureEmpty(code int32, size int32) *Error {
	return &Error{
		Phase:  PhaseCapture,
		Kind:   KindCaptureEmpty,
		Detail: fmt.Sprintf("driver reported size %d", size),
		Value:  code,
	}
}

// OutOfBounds creates an error for a reported size exceeding the buffer
func OutOfBounds(code int32, size, capacity int) *Error {
	return &Error{
		Phase:  PhaseCapture,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("driver reported %d bytes (capacity %d)", size, capacity),
		Value:  code,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// StatusCode returns the driver status preserved in err, if any.
func StatusCode(err error) (int32, bool) {
	var e *Error
	if !stderrors.As(err, &e) {
		return 0, false
	}
	code, ok := e.Value.(int32)
	return code, ok
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !stderrors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

// MissingExport represents a single unresolved entry point
type MissingExport struct {
	Symbol string
	Reason string // e.g. "not exported", "signature mismatch"
}

// MissingExportsError is returned when binding fails due to unresolved entry points
type MissingExportsError struct {
	Exports []MissingExport
}

// NewMissingExportsError creates an empty error to collect unresolved symbols into
func NewMissingExportsError() *MissingExportsError {
	return &MissingExportsError{
		Exports: make([]MissingExport, 0, 3),
	}
}

// Add records an unresolved symbol
func (e *MissingExportsError) Add(symbol string, cause error) {
	reason := "not exported"
	if cause != nil {
		reason = cause.Error()
	}
	e.Exports = append(e.Exports, MissingExport{Symbol: symbol, Reason: reason})
}

// Empty reports whether no symbols were recorded
func (e *MissingExportsError) Empty() bool {
	return len(e.Exports) == 0
}

// Symbols returns the unresolved symbol names in resolution order
func (e *MissingExportsError) Symbols() []string {
	names := make([]string, len(e.Exports))
	for i, exp := range e.Exports {
		names[i] = exp.Symbol
	}
	return names
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[bind] missing_export: no exports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d required export(s):", len(e.Exports)))

	for _, exp := range e.Exports {
		b.WriteString("\n  - ")
		b.WriteString(exp.Symbol)
		if exp.Reason != "" {
			b.WriteString(" (")
			b.WriteString(exp.Reason)
			b.WriteByte(')')
		}
	}

	return b.String()
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}
