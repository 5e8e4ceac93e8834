package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/Faultbox/chunkforge/pkg/binio"
)

// Container is an id-addressed arena of chunks. Chunks refer to each other by
// id and references are resolved through the container at use time.
type Container struct {
	FileType    FileType
	FileVersion uint32

	chunks map[int32]Chunk
	ids    []int32 // sorted
	slack  []Range
}

// New returns an empty container of the given file type.
func New(fileType FileType) *Container {
	return &Container{
		FileType:    fileType,
		FileVersion: FileVersion,
		chunks:      make(map[int32]Chunk),
	}
}

// Len returns the number of chunks.
func (c *Container) Len() int { return len(c.ids) }

// Get returns the chunk with the given id, or nil.
func (c *Container) Get(id int32) Chunk { return c.chunks[id] }

// Chunks returns all chunks in id order.
func (c *Container) Chunks() []Chunk {
	out := make([]Chunk, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.chunks[id]
	}
	return out
}

// ByType returns the chunks of type t in id order.
func (c *Container) ByType(t Type) []Chunk {
	var out []Chunk
	for _, id := range c.ids {
		if ch := c.chunks[id]; ch.Kind().Type == t {
			out = append(out, ch)
		}
	}
	return out
}

// Slack returns the byte ranges of the decoded file whose content does not
// survive a round trip: alignment padding, bytes after string terminators,
// reserved fields and unreferenced track data.
func (c *Container) Slack() []Range { return c.slack }

// Add assigns the next free id to ch, fills in its type and version and
// stores it. It returns the assigned id.
func (c *Container) Add(ch Chunk) int32 {
	var id int32 = 1
	if n := len(c.ids); n > 0 {
		id = c.ids[n-1] + 1
	}
	h := ch.ChunkHeader()
	h.ID = id
	k := ch.Kind()
	h.Type, h.Version = k.Type, k.Version
	c.chunks[id] = ch
	c.ids = append(c.ids, id)
	return id
}

// Put stores ch under the id already set in its header.
func (c *Container) Put(ch Chunk) error {
	id := ch.ChunkHeader().ID
	if _, ok := c.chunks[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	c.chunks[id] = ch
	i := sort.Search(len(c.ids), func(i int) bool { return c.ids[i] >= id })
	c.ids = append(c.ids, 0)
	copy(c.ids[i+1:], c.ids[i:])
	c.ids[i] = id
	return nil
}

// Lookup resolves id to a chunk of type T.
func Lookup[T Chunk](c *Container, id int32) (T, error) {
	var zero T
	ch, ok := c.chunks[id]
	if !ok {
		return zero, fmt.Errorf("%w: id %d", ErrMissingChunk, id)
	}
	t, ok := ch.(T)
	if !ok {
		return zero, fmt.Errorf("%w: chunk %d is %s", ErrInvalidData, id, ch.Kind().Type)
	}
	return t, nil
}

// First returns the lowest-id chunk of type T, if any.
func First[T Chunk](c *Container) (T, bool) {
	for _, id := range c.ids {
		if t, ok := c.chunks[id].(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// All returns every chunk of type T in id order.
func All[T Chunk](c *Container) []T {
	var out []T
	for _, id := range c.ids {
		if t, ok := c.chunks[id].(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// Decode parses a chunk file.
func Decode(data []byte) (*Container, error) {
	r := binio.NewReader(data, binary.LittleEndian)

	magic := r.Bytes(len(Magic))
	if r.Err() != nil {
		return nil, r.Err()
	}
	if string(magic) != Magic {
		return nil, ErrBadMagic
	}

	fileType := FileType(r.U32())
	fileVersion := r.U32()
	offset := r.U32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if fileType != FileGeometry && fileType != FileAnimation {
		return nil, fmt.Errorf("%w: %#x", ErrBadType, uint32(fileType))
	}
	if fileVersion != FileVersion {
		return nil, fmt.Errorf("%w: %#x", ErrBadVersion, fileVersion)
	}

	count := r.Count(tableEntrySize)
	if err := r.Expect(int(offset) + 4); err != nil {
		return nil, fmt.Errorf("chunk table: %w", err)
	}

	entries := make([]Header, count)
	for i := range entries {
		h, err := readTableEntry(r)
		if err != nil {
			return nil, fmt.Errorf("chunk table entry %d: %w", i, err)
		}
		entries[i] = h
	}

	c := New(fileType)
	c.FileVersion = fileVersion
	for _, h := range entries {
		ch, err := NewChunk(Kind{Type: h.Type, Version: h.Version})
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", h.ID, err)
		}
		*ch.ChunkHeader() = h

		sub, err := r.Sub(int(h.Offset), int(h.Size), h.Order())
		if err != nil {
			return nil, fmt.Errorf("chunk %d (%s): %w", h.ID, h.Type, err)
		}
		if err := ch.Decode(sub, int(h.Size)); err != nil {
			return nil, fmt.Errorf("decode chunk %d (%s): %w", h.ID, h.Type, err)
		}
		if sub.Len() != 0 {
			return nil, fmt.Errorf("%w: chunk %d (%s) left %d of %d bytes unread", ErrSizeMismatch, h.ID, h.Type, sub.Len(), h.Size)
		}
		if err := c.Put(ch); err != nil {
			return nil, err
		}
	}

	for _, ch := range c.Chunks() {
		h := ch.ChunkHeader()
		size, err := WrittenSize(ch)
		if err != nil {
			return nil, fmt.Errorf("re-encode chunk %d (%s): %w", h.ID, h.Type, err)
		}
		if size != int(h.Size) {
			return nil, fmt.Errorf("%w: chunk %d (%s) writes %d bytes, declared %d", ErrSizeMismatch, h.ID, h.Type, size, h.Size)
		}
	}

	c.slack = append(r.Slack(), gaps(entries, tableOffset+4+count*tableEntrySize, len(data))...)
	sort.Slice(c.slack, func(i, j int) bool { return c.slack[i].Start < c.slack[j].Start })
	return c, nil
}

// gaps returns the ranges between start and end not covered by any chunk.
func gaps(entries []Header, start, end int) []Range {
	spans := make([]Range, len(entries))
	for i, h := range entries {
		spans[i] = Range{Start: int(h.Offset), End: int(h.Offset) + int(h.Size)}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	var out []Range
	pos := start
	for _, s := range spans {
		if s.Start > pos {
			out = append(out, Range{Start: pos, End: s.Start})
		}
		pos = max(pos, s.End)
	}
	if end > pos {
		out = append(out, Range{Start: pos, End: end})
	}
	return out
}

// Encode writes the container. Chunks are laid out in id order, each
// starting on a 4-byte boundary, and every header's Offset and Size are
// updated to the written layout.
func (c *Container) Encode() ([]byte, error) {
	chunks := c.Chunks()
	bodies := make([][]byte, len(chunks))
	for i, ch := range chunks {
		body, err := EncodeChunk(ch)
		if err != nil {
			return nil, err
		}
		bodies[i] = body
	}

	w := binio.NewWriter(binary.LittleEndian)
	w.Write([]byte(Magic))
	w.U32(uint32(c.FileType))
	w.U32(c.FileVersion)
	w.U32(tableOffset)
	w.U32(uint32(len(chunks)))

	pos := tableOffset + 4 + len(chunks)*tableEntrySize
	for i, ch := range chunks {
		h := ch.ChunkHeader()
		h.Offset = int32(pos)
		h.Size = int32(len(bodies[i]))
		if err := writeTableEntry(w, *h); err != nil {
			return nil, err
		}
		pos = align(pos + len(bodies[i]))
	}
	for _, body := range bodies {
		w.Write(body)
		w.Align(chunkAlignment)
	}
	return w.Bytes(), w.Err()
}

// Compare checks that encoded reproduces original outside the whitelisted
// ranges.
func Compare(original, encoded []byte, whitelist []Range) error {
	if len(original) != len(encoded) {
		return fmt.Errorf("%w: length %d, original %d", ErrRoundTrip, len(encoded), len(original))
	}
	if bytes.Equal(original, encoded) {
		return nil
	}

	ranges := append([]Range(nil), whitelist...)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	next := 0
	for i := range original {
		if original[i] == encoded[i] {
			continue
		}
		for next < len(ranges) && ranges[next].End <= i {
			next++
		}
		if !whitelisted(ranges[next:], i) {
			return fmt.Errorf("%w: first difference at %#x (%#02x != %#02x)", ErrRoundTrip, i, encoded[i], original[i])
		}
	}
	return nil
}

func whitelisted(ranges []Range, offset int) bool {
	for _, r := range ranges {
		if r.Start > offset {
			return false
		}
		if r.Contains(offset) {
			return true
		}
	}
	return false
}

// Verify decodes data, re-encodes it and compares the result with data.
func Verify(data []byte) (*Container, error) {
	c, err := Decode(data)
	if err != nil {
		return nil, err
	}
	out, err := c.Encode()
	if err != nil {
		return nil, err
	}
	if err := Compare(data, out, c.Slack()); err != nil {
		return nil, err
	}
	return c, nil
}
