// Package capturebridge loads vendor fingerprint driver modules on demand and
// exposes their capture lifecycle to callers that cannot call native code.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	capturebridge/       Root package with the Loader and Library contracts
//	├── binding/         Binding table: module handle and resolved entry points
//	├── bridge/          Capture bridge: lifecycle calls and template encoding
//	├── native/          Shared library loader (dlopen / LoadLibrary)
//	├── sandbox/         WebAssembly driver loader backed by wazero
//	├── dispatch/        Dedicated worker that serializes blocking driver calls
//	├── enroll/          Enrolled template store and matcher
//	├── server/          HTTP and websocket surface for host applications
//	├── config/          Environment configuration and logger setup
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Load a driver and capture a template:
//
//	table := binding.NewTable(native.NewLoader(), binding.DefaultSymbols())
//	b := bridge.New(table)
//	defer b.UnloadModule()
//
//	if err := b.LoadModule(ctx, "/opt/mantra/libMFS100.so"); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := b.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Uninitialize(ctx)
//
//	res, err := b.CaptureTemplate(ctx, bridge.DefaultQuality)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.TemplateSize, res.Template)
//
// # Driver Contract
//
// A driver module exports exactly three entry points:
//
//	int Init(void);
//	int Uninit(void);
//	int CaptureFinger(int quality, unsigned char *out, int *size);
//
// Binding is all-or-nothing. If any entry point is missing the module is
// released before Load returns and the bridge stays unloaded.
//
// # Thread Safety
//
// A Bridge is meant to be driven by one caller at a time. Driver calls block
// for the duration of the hardware operation, so hosts should run them on a
// dispatch.Worker rather than on their control goroutine. The worker also
// serializes load, unload and capture so a module is never torn down mid-call.
package capturebridge
