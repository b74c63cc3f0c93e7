// Package sandbox loads driver modules compiled to WebAssembly and runs them
// in-process under wazero.
//
// A sandboxed driver exports the usual three entry points plus its linear
// memory as "memory":
//
//	(func (export "Init") (result i32))
//	(func (export "Uninit") (result i32))
//	(func (export "CaptureFinger") (param $quality i32) (param $out i32) (param $size i32) (result i32))
//	(memory (export "memory") 1)
//
// Unlike native modules, signatures are checked at bind time; an export with
// the wrong shape is reported as missing.
//
// For capture the host grows guest memory once to hold a size cell followed
// by the buffer, and passes their addresses to the driver. The guest never
// allocates this region, so drivers need no exported allocator.
//
// The region sits above the memory the guest had when it was first bound. A
// driver that needs more heap must take it with memory.grow and use only the
// pages that call returns. Treating everything below memory.size as free heap,
// as a bare sbrk allocator does, would overwrite the capture buffer.
package sandbox
