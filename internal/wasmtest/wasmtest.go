// Package wasmtest builds small core WebAssembly modules for tests.
//
// Every function has the type () -> i32. Functions either return a constant
// or call an imported function and return its result.
package wasmtest

import (
	"bytes"
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionExport   = 7
	sectionCode     = 10

	opCall     = 0x10
	opI32Const = 0x41
	opEnd      = 0x0b
)

type importFunc struct {
	module string
	name   string
}

type function struct {
	name   string
	value  int32
	callee uint32
	call   bool
}

// Module is a module under construction.
type Module struct {
	imports []importFunc
	funcs   []function
}

func New() *Module {
	return &Module{}
}

// Import declares an imported () -> i32 function and returns its index.
// Imports must be declared before any exports.
func (m *Module) Import(module, name string) uint32 {
	m.imports = append(m.imports, importFunc{module: module, name: name})
	return uint32(len(m.imports) - 1)
}

// Const exports name returning v.
func (m *Module) Const(name string, v int32) *Module {
	m.funcs = append(m.funcs, function{name: name, value: v})
	return m
}

// Forward exports name returning the result of calling function index fn.
func (m *Module) Forward(name string, fn uint32) *Module {
	m.funcs = append(m.funcs, function{name: name, callee: fn, call: true})
	return m
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	var sec bytes.Buffer
	writeU(&sec, 1)
	sec.Write([]byte{0x60, 0x00, 0x01, 0x7f})
	writeSection(&out, sectionType, sec.Bytes())

	if len(m.imports) > 0 {
		sec.Reset()
		writeU(&sec, uint32(len(m.imports)))
		for _, imp := range m.imports {
			writeName(&sec, imp.module)
			writeName(&sec, imp.name)
			sec.WriteByte(0x00)
			writeU(&sec, 0)
		}
		writeSection(&out, sectionImport, sec.Bytes())
	}

	if len(m.funcs) == 0 {
		return out.Bytes()
	}

	sec.Reset()
	writeU(&sec, uint32(len(m.funcs)))
	for range m.funcs {
		writeU(&sec, 0)
	}
	writeSection(&out, sectionFunction, sec.Bytes())

	sec.Reset()
	writeU(&sec, uint32(len(m.funcs)))
	base := uint32(len(m.imports))
	for i, fn := range m.funcs {
		writeName(&sec, fn.name)
		sec.WriteByte(0x00)
		writeU(&sec, base+uint32(i))
	}
	writeSection(&out, sectionExport, sec.Bytes())

	sec.Reset()
	writeU(&sec, uint32(len(m.funcs)))
	for _, fn := range m.funcs {
		var body bytes.Buffer
		body.WriteByte(0x00)
		if fn.call {
			body.WriteByte(opCall)
			writeU(&body, fn.callee)
		} else {
			body.WriteByte(opI32Const)
			writeS(&body, fn.value)
		}
		body.WriteByte(opEnd)
		writeU(&sec, uint32(body.Len()))
		sec.Write(body.Bytes())
	}
	writeSection(&out, sectionCode, sec.Bytes())

	return out.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	writeU(w, uint32(len(data)))
	w.Write(data)
}

func writeName(w *bytes.Buffer, s string) {
	writeU(w, uint32(len(s)))
	w.WriteString(s)
}

func writeU(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

func writeS(w *bytes.Buffer, v int32) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.WriteByte(b)
	}
}
