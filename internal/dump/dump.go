// Package dump writes a browsable catalog of the chunks in a chunk file:
// the chunk table, every decoded chunk's fields and a blake3 digest of each
// chunk's stored bytes. Catalogs are serialized as deterministic CBOR or as
// YAML and optionally compressed.
package dump

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/chunkforge/pkg/binio"
	"github.com/Faultbox/chunkforge/pkg/chunk"
)

// ErrCorrupt reports a dump whose header or digest does not check out.
var ErrCorrupt = errors.New("corrupt dump")

// Format selects the catalog serialization.
type Format uint8

const (
	FormatCBOR Format = 0
	FormatYAML Format = 1
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCBOR:
		return "cbor"
	case FormatYAML:
		return "yaml"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// ParseFormat parses a format name.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "cbor", "":
		return FormatCBOR, nil
	case "yaml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("unknown dump format %q", name)
	}
}

// Entry describes one chunk.
type Entry struct {
	ID        int32       `cbor:"id" yaml:"id"`
	Type      string      `cbor:"type" yaml:"type"`
	Tag       uint32      `cbor:"tag" yaml:"tag"`
	Version   uint32      `cbor:"version" yaml:"version"`
	BigEndian bool        `cbor:"big_endian" yaml:"big_endian"`
	Offset    int32       `cbor:"offset" yaml:"offset"`
	Size      int32       `cbor:"size" yaml:"size"`
	Digest    string      `cbor:"digest" yaml:"digest"` // blake3 of the stored bytes
	Fields    chunk.Chunk `cbor:"fields" yaml:"fields"`
}

// Catalog describes a whole chunk file.
type Catalog struct {
	FileType    string  `cbor:"file_type" yaml:"file_type"`
	FileVersion uint32  `cbor:"file_version" yaml:"file_version"`
	Size        int     `cbor:"size" yaml:"size"`
	Digest      string  `cbor:"digest" yaml:"digest"`
	SlackBytes  int     `cbor:"slack_bytes" yaml:"slack_bytes"` // padding and unreferenced bytes
	Chunks      []Entry `cbor:"chunks" yaml:"chunks"`
}

// Digest returns the hex blake3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Build decodes a chunk file and catalogs it.
func Build(data []byte) (*Catalog, error) {
	c, err := chunk.Decode(data)
	if err != nil {
		return nil, err
	}
	cat := &Catalog{
		FileType:    c.FileType.String(),
		FileVersion: c.FileVersion,
		Size:        len(data),
		Digest:      Digest(data),
	}
	for _, r := range c.Slack() {
		cat.SlackBytes += r.End - r.Start
	}
	for _, ch := range c.Chunks() {
		h := ch.ChunkHeader()
		cat.Chunks = append(cat.Chunks, Entry{
			ID:        h.ID,
			Type:      h.Type.String(),
			Tag:       uint32(h.Type),
			Version:   uint32(h.Version),
			BigEndian: h.BigEndian,
			Offset:    h.Offset,
			Size:      h.Size,
			Digest:    Digest(data[h.Offset : h.Offset+h.Size]),
			Fields:    ch,
		})
	}
	return cat, nil
}

var cborEnc cbor.EncMode

func init() {
	var err error
	// Core deterministic encoding: the same catalog always yields the same
	// bytes, so dumps of identical files can be compared by digest.
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("dump: CBOR encoder initialization failed: " + err.Error())
	}
}

// Marshal serializes the catalog without framing.
func Marshal(cat *Catalog, f Format) ([]byte, error) {
	switch f {
	case FormatCBOR:
		return cborEnc.Marshal(cat)
	case FormatYAML:
		return yaml.Marshal(cat)
	default:
		return nil, fmt.Errorf("unsupported dump format %d", f)
	}
}

// Options control dump encoding.
type Options struct {
	Format      Format
	Compression CompressionTag
}

// Header is the fixed-size frame that precedes a dump payload.
type Header struct {
	Format      Format
	Compression CompressionTag // as stored; may be none when compression did not pay off
	Size        uint32         // uncompressed payload size
	Digest      [32]byte       // blake3 of the uncompressed payload
}

var frameMagic = []byte("CFDUMP\x00\x01")

const headerSize = 8 + 4 + 4 + 32

// Encode serializes, compresses and frames a catalog.
func Encode(cat *Catalog, opts Options) ([]byte, error) {
	payload, err := Marshal(cat, opts.Format)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", opts.Format, err)
	}
	stored, tag, err := opts.pack(payload)
	if err != nil {
		return nil, err
	}

	w := binio.NewWriter(binary.LittleEndian)
	w.Write(frameMagic)
	w.U8(uint8(opts.Format))
	w.U8(uint8(tag))
	w.U16(0)
	w.U32(uint32(len(payload)))
	sum := blake3.Sum256(payload)
	w.Write(sum[:])
	w.Write(stored)
	return w.Bytes(), w.Err()
}

// Open checks a framed dump and returns its header and uncompressed payload.
func Open(data []byte) (Header, []byte, error) {
	var h Header
	if len(data) < headerSize || string(data[:len(frameMagic)]) != string(frameMagic) {
		return h, nil, fmt.Errorf("%w: bad frame header", ErrCorrupt)
	}
	r := binio.NewReader(data, binary.LittleEndian)
	r.Skip(len(frameMagic))
	h.Format = Format(r.U8())
	h.Compression = CompressionTag(r.U8())
	r.Skip(2)
	h.Size = r.U32()
	copy(h.Digest[:], r.Bytes(32))
	if err := r.Err(); err != nil {
		return h, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	payload, err := h.unpack(data[headerSize:])
	if err != nil {
		return h, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if blake3.Sum256(payload) != h.Digest {
		return h, nil, fmt.Errorf("%w: payload digest mismatch", ErrCorrupt)
	}
	return h, payload, nil
}

// Unmarshal decodes an opened payload into a generic tree; chunk fields come
// back as maps since their concrete types are not recorded.
func Unmarshal(h Header, payload []byte, v any) error {
	switch h.Format {
	case FormatCBOR:
		return cbor.Unmarshal(payload, v)
	case FormatYAML:
		return yaml.Unmarshal(payload, v)
	default:
		return fmt.Errorf("%w: format %d", ErrCorrupt, h.Format)
	}
}
