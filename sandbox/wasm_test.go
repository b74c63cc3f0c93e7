package sandbox

// Minimal binary encoder for the test drivers below. Only what the driver
// contract needs: three function types, one memory, exports, code.

const (
	typeStatus  byte = 0 // () -> i32
	typeCapture byte = 1 // (i32, i32, i32) -> i32
	typeUnary   byte = 2 // (i32) -> i32
)

type guestFunc struct {
	name string
	body []byte
	typ  byte
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func section(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(content)))...)
	return append(out, content...)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

// i32Const returns `i32.const v`.
func i32Const(v int32) []byte {
	return append([]byte{0x41}, sleb(v)...)
}

// returnsConst is a status body returning v.
func returnsConst(v int32) []byte {
	return append(i32Const(v), 0x0b)
}

// fillsBuffer is a capture body that writes n bytes of the quality value to
// out, stores n at size and returns 0.
func fillsBuffer(n int32) []byte {
	var b []byte
	// memory.fill(out, quality, n)
	b = append(b, 0x20, 0x01, 0x20, 0x00)
	b = append(b, i32Const(n)...)
	b = append(b, 0xfc, 0x0b, 0x00)
	// i32.store(size, n)
	b = append(b, 0x20, 0x02)
	b = append(b, i32Const(n)...)
	b = append(b, 0x36, 0x02, 0x00)
	b = append(b, i32Const(0)...)
	return append(b, 0x0b)
}

// growsThenFills is fillsBuffer(n) preceded by memory.grow(1) and a fill of
// the new page with 0xAA, as a driver taking fresh heap during capture would.
func growsThenFills(n int32) []byte {
	var b []byte
	b = append(b, i32Const(1)...)
	b = append(b, 0x40, 0x00) // memory.grow -> previous page count
	b = append(b, i32Const(pageSize)...)
	b = append(b, 0x6c) // i32.mul -> base of the new page
	b = append(b, i32Const(0xAA)...)
	b = append(b, i32Const(pageSize)...)
	b = append(b, 0xfc, 0x0b, 0x00) // memory.fill
	return append(b, fillsBuffer(n)...)
}

// echoesSize is a capture body returning the incoming *size.
func echoesSize() []byte {
	return []byte{0x20, 0x02, 0x28, 0x02, 0x00, 0x0b} // local.get size; i32.load; end
}

// traps is a body that hits unreachable.
func traps() []byte {
	return []byte{0x00, 0x0b}
}

func buildDriver(funcs []guestFunc, exportMemory bool) []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	out = append(out, section(1, vec(
		[]byte{0x60, 0x00, 0x01, 0x7f},
		[]byte{0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x01, 0x7f},
		[]byte{0x60, 0x01, 0x7f, 0x01, 0x7f},
	))...)

	typeIdx := make([][]byte, len(funcs))
	for i, f := range funcs {
		typeIdx[i] = []byte{f.typ}
	}
	out = append(out, section(3, vec(typeIdx...))...)

	out = append(out, section(5, vec([]byte{0x00, 0x01}))...)

	var exports [][]byte
	for i, f := range funcs {
		exports = append(exports, append(name(f.name), append([]byte{0x00}, uleb(uint32(i))...)...))
	}
	if exportMemory {
		exports = append(exports, append(name(MemoryExport), 0x02, 0x00))
	}
	out = append(out, section(7, vec(exports...))...)

	bodies := make([][]byte, len(funcs))
	for i, f := range funcs {
		code := append([]byte{0x00}, f.body...) // no locals
		bodies[i] = append(uleb(uint32(len(code))), code...)
	}
	return append(out, section(10, vec(bodies...))...)
}

// compliantDriver captures 512 bytes and returns initStatus from Init.
func compliantDriver(initStatus int32) []byte {
	return buildDriver([]guestFunc{
		{name: "Init", typ: typeStatus, body: returnsConst(initStatus)},
		{name: "Uninit", typ: typeStatus, body: returnsConst(0)},
		{name: "CaptureFinger", typ: typeCapture, body: fillsBuffer(512)},
	}, true)
}
