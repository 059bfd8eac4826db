package binary

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func TestUnsignedLEB(t *testing.T) {
	tests := []struct {
		v    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xAC, 0x02}},
		{math.MaxUint32, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		PutU64(&buf, tt.v)
		if !bytes.Equal(buf.Bytes(), tt.want) {
			t.Errorf("PutU64(%d) = %x, want %x", tt.v, buf.Bytes(), tt.want)
		}
		got, err := NewReader(tt.want).ReadU64()
		if err != nil || got != tt.v {
			t.Errorf("ReadU64(%x) = %d, %v", tt.want, got, err)
		}
	}
}

func TestSignedLEB(t *testing.T) {
	tests := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7F}},
		{63, []byte{0x3F}},
		{64, []byte{0xC0, 0x00}},
		{-64, []byte{0x40}},
		{-65, []byte{0xBF, 0x7F}},
		{math.MinInt32, []byte{0x80, 0x80, 0x80, 0x80, 0x78}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		PutS64(&buf, tt.v)
		if !bytes.Equal(buf.Bytes(), tt.want) {
			t.Errorf("PutS64(%d) = %x, want %x", tt.v, buf.Bytes(), tt.want)
		}
		got, err := NewReader(tt.want).ReadS64()
		if err != nil || got != tt.v {
			t.Errorf("ReadS64(%x) = %d, %v", tt.want, got, err)
		}
	}

	v, err := NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x78}).ReadS32()
	if err != nil || v != math.MinInt32 {
		t.Errorf("ReadS32 = %d, %v", v, err)
	}
}

func TestLEBErrors(t *testing.T) {
	_, err := NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F}).ReadU32()
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("u32 with high bits set: got %v", err)
	}
	_, err = NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}).ReadU32()
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("six-byte u32: got %v", err)
	}
	_, err = NewReader([]byte{0x80}).ReadU32()
	if !errors.Is(err, io.EOF) {
		t.Errorf("truncated u32: got %v", err)
	}
}

func TestFloats(t *testing.T) {
	var buf bytes.Buffer
	PutF32(&buf, 1.5)
	PutF64(&buf, -2.25)

	r := NewReader(buf.Bytes())
	f32, err := r.ReadF32()
	if err != nil || f32 != 1.5 {
		t.Errorf("ReadF32 = %v, %v", f32, err)
	}
	f64, err := r.ReadF64()
	if err != nil || f64 != -2.25 {
		t.Errorf("ReadF64 = %v, %v", f64, err)
	}
	if !r.EOF() {
		t.Errorf("%d bytes left over", r.Len())
	}

	if _, err := NewReader([]byte{0, 0}).ReadF32(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("short f32: got %v", err)
	}
}

func TestSubKeepsAbsoluteOffsets(t *testing.T) {
	r := NewReaderAt([]byte{0xAA, 0x01, 0x02, 0x03}, 10)
	if _, err := r.ReadByte(); err != nil {
		t.Fatal(err)
	}
	sub, err := r.Sub(2)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Offset() != 11 || sub.Position() != 0 {
		t.Errorf("sub offset = %d, position = %d", sub.Offset(), sub.Position())
	}
	if r.Offset() != 13 {
		t.Errorf("parent offset = %d, want 13", r.Offset())
	}
	_, _ = sub.ReadByte()

	var pe *ParseError
	if !errors.As(sub.WrapError("code", io.EOF), &pe) {
		t.Fatal("WrapError should return a ParseError")
	}
	if pe.Position != 12 || pe.Section != "code" || !errors.Is(pe, io.EOF) {
		t.Errorf("ParseError = %+v", pe)
	}

	if _, err := r.Sub(5); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("oversized Sub: got %v", err)
	}
}

func TestWriter(t *testing.T) {
	w := NewWriter()
	w.Byte(0x01)
	w.WriteName("ok")
	w.WriteU32(200)
	w.WriteS64(-2)
	w.WriteU32LE(0x04030201)

	want := []byte{0x01, 0x02, 'o', 'k', 0xC8, 0x01, 0x7E, 0x01, 0x02, 0x03, 0x04}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("Bytes = %x, want %x", w.Bytes(), want)
	}
	if w.Len() != len(want) {
		t.Errorf("Len = %d", w.Len())
	}

	r := NewReader(w.Bytes())
	_, _ = r.ReadByte()
	if name, err := r.ReadName(); err != nil || name != "ok" {
		t.Errorf("ReadName = %q, %v", name, err)
	}
}

func TestReadNameRejectsInvalidUTF8(t *testing.T) {
	if _, err := NewReader([]byte{0x01, 0xFF}).ReadName(); err == nil {
		t.Fatal("expected invalid UTF-8 error")
	}
}
