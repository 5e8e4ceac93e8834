package binio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Faultbox/chunkforge/pkg/encoding"
)

// Writer appends typed values to a growing byte slice.
type Writer struct {
	buf   []byte
	order binary.ByteOrder
	err   error
}

// NewWriter returns an empty writer using the given byte order.
func NewWriter(order binary.ByteOrder) *Writer {
	return &Writer{order: order}
}

// Order returns the current byte order.
func (w *Writer) Order() binary.ByteOrder { return w.order }

// SetOrder switches the byte order for subsequent writes.
func (w *Writer) SetOrder(order binary.ByteOrder) { w.order = order }

// WithOrder runs fn with the byte order temporarily set to order.
func (w *Writer) WithOrder(order binary.ByteOrder, fn func() error) error {
	prev := w.order
	w.order = order
	defer func() { w.order = prev }()
	return fn()
}

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// Fail records err unless an earlier error is already set.
func (w *Writer) Fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte { return w.buf }

// U8 writes a byte.
func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

// U16 writes an unsigned 16-bit integer.
func (w *Writer) U16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// I16 writes a signed 16-bit integer.
func (w *Writer) I16(v int16) { w.U16(uint16(v)) }

// U32 writes an unsigned 32-bit integer.
func (w *Writer) U32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// I32 writes a signed 32-bit integer.
func (w *Writer) I32(v int32) { w.U32(uint32(v)) }

// U64 writes an unsigned 64-bit integer.
func (w *Writer) U64(v uint64) {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// F32 writes an IEEE-754 single.
func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

// Vec2 writes two singles.
func (w *Writer) Vec2(v [2]float32) {
	w.F32(v[0])
	w.F32(v[1])
}

// Vec3 writes three singles.
func (w *Writer) Vec3(v [3]float32) {
	w.F32(v[0])
	w.F32(v[1])
	w.F32(v[2])
}

// F32s writes a run of singles.
func (w *Writer) F32s(v []float32) {
	for _, f := range v {
		w.F32(f)
	}
}

// Write appends raw bytes.
func (w *Writer) Write(b []byte) { w.buf = append(w.buf, b...) }

// Zero appends n zero bytes.
func (w *Writer) Zero(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// Align pads with zeros to the next multiple of n.
func (w *Writer) Align(n int) {
	w.Zero((n - len(w.buf)%n) % n)
}

// FixedString writes s as an n-byte NUL-padded Latin-1 field.
func (w *Writer) FixedString(s string, n int) {
	field, ok := encoding.UTF8ToFixedString(s, n)
	if !ok {
		w.Fail(fmt.Errorf("%w: name %q does not fit a %d-byte Latin-1 field", ErrInvalidData, s, n))
		w.Zero(n)
		return
	}
	w.Write(field)
}

// PutU32At overwrites four bytes at pos.
func (w *Writer) PutU32At(pos int, v uint32) {
	if pos < 0 || pos+4 > len(w.buf) {
		w.Fail(fmt.Errorf("%w: patch at %d of %d", ErrPosition, pos, len(w.buf)))
		return
	}
	w.order.PutUint32(w.buf[pos:], v)
}
