package dump

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression of a dump payload. Tags are
// stored in the dump header.
type CompressionTag uint8

const (
	CompressionNone CompressionTag = 0
	CompressionLZ4  CompressionTag = 1 // LZ4 block
	CompressionZstd CompressionTag = 2
)

// String returns the name used in config files and flags.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses a compression name.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// codec packs and unpacks one compression. unpack gets the payload size
// from the dump header.
type codec struct {
	pack   func(src []byte) ([]byte, error)
	unpack func(src []byte, size int) ([]byte, error)
}

var codecs = map[CompressionTag]codec{
	CompressionLZ4:  {pack: packLZ4, unpack: unpackLZ4},
	CompressionZstd: {pack: packZstd, unpack: unpackZstd},
}

// pack compresses a payload as opts asks. It returns the payload itself and
// CompressionNone when compression does not shrink it.
func (opts Options) pack(payload []byte) ([]byte, CompressionTag, error) {
	if opts.Compression == CompressionNone {
		return payload, CompressionNone, nil
	}
	c, ok := codecs[opts.Compression]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported compression %v", opts.Compression)
	}
	packed, err := c.pack(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("%v compress: %w", opts.Compression, err)
	}
	if len(packed) == 0 || len(packed) >= len(payload) {
		return payload, CompressionNone, nil
	}
	return packed, opts.Compression, nil
}

// unpack reverses pack for the payload behind h.
func (h Header) unpack(stored []byte) ([]byte, error) {
	out := stored
	if h.Compression != CompressionNone {
		c, ok := codecs[h.Compression]
		if !ok {
			return nil, fmt.Errorf("unsupported compression %v", h.Compression)
		}
		var err error
		if out, err = c.unpack(stored, int(h.Size)); err != nil {
			return nil, fmt.Errorf("%v decompress: %w", h.Compression, err)
		}
	}
	if len(out) != int(h.Size) {
		return nil, fmt.Errorf("%v payload is %d bytes, header says %d", h.Compression, len(out), h.Size)
	}
	return out, nil
}

func packLZ4(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

func unpackLZ4(src []byte, size int) ([]byte, error) {
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// The zstd coders are safe for concurrent EncodeAll/DecodeAll and are built
// on first use.
var zstdCoders = sync.OnceValues(func() (*zstd.Encoder, *zstd.Decoder) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("dump: zstd encoder: " + err.Error())
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic("dump: zstd decoder: " + err.Error())
	}
	return enc, dec
})

func packZstd(src []byte) ([]byte, error) {
	enc, _ := zstdCoders()
	return enc.EncodeAll(src, nil), nil
}

func unpackZstd(src []byte, size int) ([]byte, error) {
	_, dec := zstdCoders()
	return dec.DecodeAll(src, make([]byte, 0, size))
}
