package binio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Faultbox/chunkforge/pkg/encoding"
)

// Reader reads typed values from an in-memory byte slice.
type Reader struct {
	data  []byte
	pos   int
	base  int
	order binary.ByteOrder
	err   error
	slack *[]Range
}

// NewReader returns a reader over data using the given byte order.
func NewReader(data []byte, order binary.ByteOrder) *Reader {
	return &Reader{data: data, order: order, slack: new([]Range)}
}

// Sub returns a reader bounded to data[offset:offset+size] of r, using order.
// Slack ranges recorded by the sub-reader land in the parent's list with
// absolute offsets.
func (r *Reader) Sub(offset, size int, order binary.ByteOrder) (*Reader, error) {
	if offset < 0 || size < 0 || offset+size > len(r.data) {
		return nil, fmt.Errorf("%w: range [%d,%d) outside %d bytes", ErrTruncated, offset, offset+size, len(r.data))
	}
	return &Reader{
		data:  r.data[offset : offset+size],
		base:  r.base + offset,
		order: order,
		slack: r.slack,
	}, nil
}

// Order returns the current byte order.
func (r *Reader) Order() binary.ByteOrder { return r.order }

// SetOrder switches the byte order for subsequent reads.
func (r *Reader) SetOrder(order binary.ByteOrder) { r.order = order }

// WithOrder runs fn with the byte order temporarily set to order.
func (r *Reader) WithOrder(order binary.ByteOrder, fn func() error) error {
	prev := r.order
	r.order = order
	defer func() { r.order = prev }()
	return fn()
}

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Pos returns the current position relative to the start of this reader.
func (r *Reader) Pos() int { return r.pos }

// Base returns the absolute offset of this reader's first byte.
func (r *Reader) Base() int { return r.base }

// Size returns the number of bytes the reader covers.
func (r *Reader) Size() int { return len(r.data) }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.data) - r.pos }

// Slack returns the don't-care ranges recorded so far.
func (r *Reader) Slack() []Range { return *r.slack }

// MarkSlack records [start, end) of this reader as don't-care bytes.
func (r *Reader) MarkSlack(start, end int) {
	if end > start {
		*r.slack = append(*r.slack, Range{Start: r.base + start, End: r.base + end})
	}
}

// Seek moves to an absolute position within the reader.
func (r *Reader) Seek(pos int) {
	if r.err != nil {
		return
	}
	if pos < 0 || pos > len(r.data) {
		r.err = fmt.Errorf("%w: seek to %d of %d", ErrTruncated, pos, len(r.data))
		return
	}
	r.pos = pos
}

// Expect asserts that the reader is at pos.
func (r *Reader) Expect(pos int) error {
	if r.err != nil {
		return r.err
	}
	if r.pos != pos {
		r.err = fmt.Errorf("%w: at %d, expected %d", ErrPosition, r.pos, pos)
	}
	return r.err
}

// Fail records err unless an earlier error is already set.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at %d, have %d", ErrTruncated, n, r.base+r.pos, len(r.data)-r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Skip advances n bytes.
func (r *Reader) Skip(n int) { r.take(n) }

// Reserved skips n bytes and marks them as slack.
func (r *Reader) Reserved(n int) {
	start := r.pos
	r.take(n)
	if r.err == nil {
		r.MarkSlack(start, r.pos)
	}
}

// Align advances to the next multiple of n and marks the skipped bytes as slack.
func (r *Reader) Align(n int) {
	pad := (n - r.pos%n) % n
	start := r.pos
	r.take(pad)
	if r.err == nil {
		r.MarkSlack(start, r.pos)
	}
}

// U8 reads a byte.
func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// U16 reads an unsigned 16-bit integer.
func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return r.order.Uint16(b)
}

// I16 reads a signed 16-bit integer.
func (r *Reader) I16() int16 { return int16(r.U16()) }

// U32 reads an unsigned 32-bit integer.
func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return r.order.Uint32(b)
}

// I32 reads a signed 32-bit integer.
func (r *Reader) I32() int32 { return int32(r.U32()) }

// U64 reads an unsigned 64-bit integer.
func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return r.order.Uint64(b)
}

// F32 reads an IEEE-754 single.
func (r *Reader) F32() float32 { return math.Float32frombits(r.U32()) }

// Vec2 reads two singles.
func (r *Reader) Vec2() [2]float32 {
	return [2]float32{r.F32(), r.F32()}
}

// Vec3 reads three singles.
func (r *Reader) Vec3() [3]float32 {
	return [3]float32{r.F32(), r.F32(), r.F32()}
}

// F32s reads n singles.
func (r *Reader) F32s(n int) []float32 {
	if n < 0 || n*4 > r.Len() {
		r.take(n * 4)
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = r.F32()
	}
	return out
}

// Bytes reads n bytes into a fresh slice.
func (r *Reader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// FixedString reads an n-byte NUL-terminated Latin-1 field. The bytes after
// the terminator are recorded as slack.
func (r *Reader) FixedString(n int) string {
	start := r.pos
	b := r.take(n)
	if b == nil {
		return ""
	}
	name := encoding.TrimNullBytes(b)
	r.MarkSlack(start+len(name)+1, start+n)
	return encoding.Latin1ToUTF8(name)
}

// Count reads a u32 element count and checks that at least count*elemSize
// bytes remain.
func (r *Reader) Count(elemSize int) int {
	n := r.U32()
	if r.err != nil {
		return 0
	}
	if elemSize > 0 && uint64(n)*uint64(elemSize) > uint64(r.Len()) {
		r.err = fmt.Errorf("%w: count %d of %d-byte elements exceeds %d remaining bytes", ErrTruncated, n, elemSize, r.Len())
		return 0
	}
	return int(n)
}
