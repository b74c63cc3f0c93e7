// Package dispatch moves blocking driver calls off the caller's goroutine.
//
// The bridge contract allows a single logical caller. A Worker enforces that
// by running every job on one OS thread in submission order, so an HTTP
// handler, a TUI update loop or a test can submit from anywhere without
// interleaving two driver calls.
package dispatch
