// Package drivertest provides an in-memory driver Loader for tests.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	capturebridge "github.com/wippyai/capture-bridge"
)

var ErrNotExported = errors.New("symbol not exported")

// Unwritten is the byte the fake leaves in buffer positions it did not write,
// so tests can detect reads beyond the reported size.
const Unwritten byte = 0xEE

// Driver scripts the behavior of a fake module.
type Driver struct {
	// Status maps an entry point name to the status it returns. Missing names return 0.
	Status map[string]int32

	// Template is written to the capture buffer, truncated to the buffer size.
	Template []byte

	// ReportedSize, when set, overrides the size written back by capture.
	ReportedSize *int32

	// Capture, when set, replaces the default capture behavior.
	Capture func(quality int32, buf []byte, size *int32) int32

	// Missing lists entry points the module does not export.
	Missing []string

	// OpenErr makes Open fail.
	OpenErr error

	// CloseErr is returned from Library.Close after the handle is released.
	CloseErr error
}

// Size returns a pointer for Driver.ReportedSize.
func Size(n int32) *int32 { return &n }

// Call records one entry point invocation.
type Call struct {
	Path    string
	Symbol  string
	Quality int32
}

// Loader is a capturebridge.Loader over registered fake drivers.
type Loader struct {
	drivers map[string]*Driver
	calls   []Call
	opens   int
	closes  int
	mu      sync.Mutex
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{drivers: make(map[string]*Driver)}
}

// Register makes d available at path.
func (l *Loader) Register(path string, d *Driver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drivers[path] = d
}

// Open implements capturebridge.Loader.
func (l *Loader) Open(_ context.Context, path string) (capturebridge.Library, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, ok := l.drivers[path]
	if !ok {
		return nil, fmt.Errorf("%s: no such module", path)
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	l.opens++
	return &library{loader: l, driver: d, path: path}, nil
}

// Opens returns how many handles were opened.
func (l *Loader) Opens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens
}

// Closes returns how many handles were released.
func (l *Loader) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

// Live returns the number of handles currently open.
func (l *Loader) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens - l.closes
}

// Calls returns the entry point invocations in order.
func (l *Loader) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.calls...)
}

func (l *Loader) record(c Call) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

type library struct {
	loader *Loader
	driver *Driver
	path   string
	closed bool
}

func (lib *library) exported(name string) bool {
	for _, m := range lib.driver.Missing {
		if m == name {
			return false
		}
	}
	return true
}

func (lib *library) StatusFunc(name string) (capturebridge.StatusFunc, error) {
	if !lib.exported(name) {
		return nil, ErrNotExported
	}
	return func(context.Context) (int32, error) {
		if lib.closed {
			return 0, errors.New("call into released module")
		}
		lib.loader.record(Call{Path: lib.path, Symbol: name})
		return lib.driver.Status[name], nil
	}, nil
}

func (lib *library) CaptureFunc(name string) (capturebridge.CaptureFunc, error) {
	if !lib.exported(name) {
		return nil, ErrNotExported
	}
	return func(_ context.Context, quality int32, buf []byte, size *int32) (int32, error) {
		if lib.closed {
			return 0, errors.New("call into released module")
		}
		lib.loader.record(Call{Path: lib.path, Symbol: name, Quality: quality})

		for i := range buf {
			buf[i] = Unwritten
		}
		if lib.driver.Capture != nil {
			return lib.driver.Capture(quality, buf, size), nil
		}

		n := copy(buf[:*size], lib.driver.Template)
		*size = int32(n)
		if lib.driver.ReportedSize != nil {
			*size = *lib.driver.ReportedSize
		}
		return lib.driver.Status[name], nil
	}, nil
}

func (lib *library) Close() error {
	lib.loader.mu.Lock()
	if !lib.closed {
		lib.closed = true
		lib.loader.closes++
	}
	lib.loader.mu.Unlock()
	return lib.driver.CloseErr
}
