// Package server exposes the bridge to a calling environment over HTTP.
//
// Routes:
//
//	GET    /api/status               bridge state
//	POST   /api/module               load a driver module {path}
//	DELETE /api/module               unload it
//	POST   /api/device/init          call the initialize entry point
//	POST   /api/device/uninit        call the finalize entry point
//	POST   /api/device/capture       capture a template {quality}
//	POST   /api/enrollments          capture and enroll {subject, quality}
//	GET    /api/enrollments          list enrollments
//	DELETE /api/enrollments/:id      delete one enrollment
//	POST   /api/match                match a template {templateEncoded} or a fresh capture
//	GET    /ws/events                lifecycle events as JSON frames
//
// Errors are {error, kind, errorCode} objects. A capture the driver refused is
// not an HTTP error: /api/device/capture answers 200 with the failure result,
// except while no module is bound, which is 409.
package server
