// Package bridge is the capture façade over a binding table.
//
// The bridge sequences the driver lifecycle (load, initialize, capture,
// uninitialize, unload) and turns raw capture output into a transport-safe
// CaptureResult. Every capture gets a freshly allocated buffer of the
// configured capacity; only the number of bytes the driver reports is copied
// out, and that copy is what gets encoded.
//
// Lifecycle calls made while no module is bound return StatusNotBound and
// never reach the driver.
package bridge
