package binding

import (
	capturebridge "github.com/wippyai/capture-bridge"
)

// State is the binding state of a Table.
type State uint8

const (
	StateUnloaded State = iota
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Symbols names the three required entry points.
type Symbols struct {
	Initialize string
	Finalize   string
	Capture    string
}

// DefaultSymbols returns the names exported by the reference MFS100 driver.
func DefaultSymbols() Symbols {
	return Symbols{
		Initialize: "Init",
		Finalize:   "Uninit",
		Capture:    "CaptureFinger",
	}
}

// EntryPoints holds the resolved callables of a bound module.
// All fields are set, or the EntryPoints does not exist.
type EntryPoints struct {
	Initialize capturebridge.StatusFunc
	Finalize   capturebridge.StatusFunc
	Capture    capturebridge.CaptureFunc
	Symbols    Symbols
}

// EventType identifies a binding lifecycle event.
type EventType uint8

const (
	EventLoaded EventType = iota
	EventLoadFailed
	EventUnloaded
)

func (t EventType) String() string {
	switch t {
	case EventLoaded:
		return "loaded"
	case EventLoadFailed:
		return "load_failed"
	case EventUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event represents a binding lifecycle event.
type Event struct {
	Err  error
	Path string
	Type EventType
}

// Observer receives notifications about binding lifecycle events.
// Observers are called synchronously with the table lock released.
type Observer interface {
	OnBindingEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnBindingEvent(e Event) { f(e) }
