//go:build !(darwin || freebsd || linux || netbsd || windows)

package native

import (
	"github.com/wippyai/capture-bridge/errors"
)

func openLibrary(string) (uintptr, error) {
	return 0, errors.Unsupported(errors.PhaseLoad, "shared library loading on this platform")
}

func lookupSymbol(uintptr, string) (uintptr, error) {
	return 0, errors.Unsupported(errors.PhaseBind, "symbol lookup on this platform")
}

func closeLibrary(uintptr) error {
	return nil
}
