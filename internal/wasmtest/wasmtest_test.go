package wasmtest

import (
	"bytes"
	"testing"
)

func TestConstModuleBytes(t *testing.T) {
	got := New().Const("supported", 1).Bytes()
	want := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
		0x03, 0x02, 0x01, 0x00,
		0x07, 0x0d, 0x01, 0x09, 's', 'u', 'p', 'p', 'o', 'r', 't', 'e', 'd', 0x00, 0x00,
		0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x01, 0x0b,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("encoding mismatch\n got: % x\nwant: % x", got, want)
	}
}

func TestSignedConst(t *testing.T) {
	var b bytes.Buffer
	writeS(&b, -1)
	if !bytes.Equal(b.Bytes(), []byte{0x7f}) {
		t.Errorf("writeS(-1) = % x", b.Bytes())
	}
	b.Reset()
	writeS(&b, 64)
	if !bytes.Equal(b.Bytes(), []byte{0xc0, 0x00}) {
		t.Errorf("writeS(64) = % x", b.Bytes())
	}
}
