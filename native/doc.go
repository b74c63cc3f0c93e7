// Package native loads driver modules as OS shared libraries.
//
// On unix platforms modules are opened with dlopen through purego, so no cgo
// toolchain is needed; on Windows LoadLibrary and GetProcAddress are used.
// Entry points are bound to typed Go functions with purego.RegisterFunc:
//
//	int Init(void)                                      -> func() int32
//	int Uninit(void)                                    -> func() int32
//	int CaptureFinger(int, unsigned char *, int *)      -> func(int32, *byte, *int32) int32
//
// Native code cannot be signature-checked. A symbol that exists with the wrong
// shape is undefined behavior, exactly as it would be from C.
package native
