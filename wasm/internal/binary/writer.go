package binary

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// PutU32 appends v as unsigned LEB128.
func PutU32(w io.ByteWriter, v uint32) {
	PutU64(w, uint64(v))
}

// PutU64 appends v as unsigned LEB128.
func PutU64(w io.ByteWriter, v uint64) {
	for v >= 0x80 {
		_ = w.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	_ = w.WriteByte(byte(v))
}

// PutS64 appends v as signed LEB128. Narrower signed immediates (s32,
// s33) share the encoding.
func PutS64(w io.ByteWriter, v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			_ = w.WriteByte(b)
			return
		}
		_ = w.WriteByte(b | 0x80)
	}
}

// PutF32 appends the IEEE 754 bits of v, little-endian.
func PutF32(w io.Writer, v float32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
	_, _ = w.Write(buf[:])
}

// PutF64 appends the IEEE 754 bits of v, little-endian.
func PutF64(w io.Writer, v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	_, _ = w.Write(buf[:])
}

// Writer accumulates an encoded module or section.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return w.buf.Len() }

// Byte writes a single byte.
func (w *Writer) Byte(b byte) { w.buf.WriteByte(b) }

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) { w.buf.Write(data) }

func (w *Writer) WriteU32(v uint32) { PutU32(&w.buf, v) }

func (w *Writer) WriteU64(v uint64) { PutU64(&w.buf, v) }

func (w *Writer) WriteS64(v int64) { PutS64(&w.buf, v) }

// WriteName writes a length-prefixed UTF-8 name.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// WriteU32LE writes a fixed-width little-endian uint32.
func (w *Writer) WriteU32LE(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}
