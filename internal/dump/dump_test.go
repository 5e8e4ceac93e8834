package dump

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Faultbox/chunkforge/pkg/chunk"
)

func sampleFile(t *testing.T) []byte {
	t.Helper()
	c := chunk.New(chunk.FileGeometry)
	c.Add(&chunk.MtlName{Name: "crate", SubMaterials: []string{"wood", "metal"}, PhysicsTypes: []uint32{0, 1}})
	c.Add(&chunk.SourceInfo{Text: strings.Repeat("crate.max exported by the pipeline\n", 40)})
	c.Add(&chunk.ExportFlags{Flags: chunk.ExportMergeAllNodes, RCVersion: [4]uint32{1, 2, 3, 4}})
	data, err := c.Encode()
	if err != nil {
		t.Fatalf("encode sample: %v", err)
	}
	return data
}

func TestBuild(t *testing.T) {
	data := sampleFile(t)
	cat, err := Build(data)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cat.Size != len(data) || cat.FileVersion != chunk.FileVersion || cat.FileType != chunk.FileGeometry.String() {
		t.Errorf("catalog header = %+v", cat)
	}
	if cat.Digest != Digest(data) || len(cat.Digest) != 64 {
		t.Errorf("file digest = %q", cat.Digest)
	}
	if len(cat.Chunks) != 3 {
		t.Fatalf("got %d chunks", len(cat.Chunks))
	}
	for i, e := range cat.Chunks {
		if e.ID != int32(i+1) {
			t.Errorf("entry %d id %d", i, e.ID)
		}
		if e.Digest != Digest(data[e.Offset:e.Offset+e.Size]) {
			t.Errorf("entry %d digest does not cover its stored bytes", i)
		}
	}
	if cat.Chunks[0].Type != chunk.TypeMtlName.String() || cat.Chunks[0].Fields.(*chunk.MtlName).Name != "crate" {
		t.Errorf("first entry = %+v", cat.Chunks[0])
	}

	if _, err := Build(data[:10]); err == nil {
		t.Error("Build accepted a truncated file")
	}
}

func TestEncodeOpen(t *testing.T) {
	cat, err := Build(sampleFile(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, f := range []Format{FormatCBOR, FormatYAML} {
		for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
			t.Run(f.String()+"/"+tag.String(), func(t *testing.T) {
				framed, err := Encode(cat, Options{Format: f, Compression: tag})
				if err != nil {
					t.Fatalf("Encode: %v", err)
				}
				again, err := Encode(cat, Options{Format: f, Compression: tag})
				if err != nil || !bytes.Equal(again, framed) {
					t.Errorf("encoding is not deterministic (err %v)", err)
				}

				h, payload, err := Open(framed)
				if err != nil {
					t.Fatalf("Open: %v", err)
				}
				if h.Format != f {
					t.Errorf("format = %v", h.Format)
				}
				// The source info text repeats, so both codecs shrink it.
				if h.Compression != tag {
					t.Errorf("stored compression = %v, want %v", h.Compression, tag)
				}
				want, _ := Marshal(cat, f)
				if !bytes.Equal(payload, want) {
					t.Error("payload differs from the marshalled catalog")
				}

				var tree struct {
					FileType string           `cbor:"file_type" yaml:"file_type"`
					Chunks   []map[string]any `cbor:"chunks" yaml:"chunks"`
				}
				if err := Unmarshal(h, payload, &tree); err != nil {
					t.Fatalf("Unmarshal: %v", err)
				}
				if tree.FileType != cat.FileType || len(tree.Chunks) != 3 {
					t.Errorf("tree = %s with %d chunks", tree.FileType, len(tree.Chunks))
				}
			})
		}
	}
}

func TestOpenCorrupt(t *testing.T) {
	cat, err := Build(sampleFile(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	framed, err := Encode(cat, Options{Format: FormatCBOR, Compression: CompressionZstd})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	tests := map[string]func([]byte) []byte{
		"short":       func(b []byte) []byte { return b[:headerSize-1] },
		"magic":       func(b []byte) []byte { b[0] = 'X'; return b },
		"size":        func(b []byte) []byte { b[12]++; return b },
		"digest":      func(b []byte) []byte { b[20] ^= 0xFF; return b },
		"payload":     func(b []byte) []byte { return b[:len(b)-4] },
		"compression": func(b []byte) []byte { b[9] = 9; return b },
	}
	for name, corrupt := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Open(corrupt(bytes.Clone(framed)))
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestIncompressibleFallsBack(t *testing.T) {
	// High-entropy input does not shrink.
	data := make([]byte, 256)
	x := uint32(2463534242)
	for i := range data {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		data[i] = byte(x)
	}
	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		out, used, err := Options{Compression: tag}.pack(data)
		if err != nil {
			t.Fatalf("%v: %v", tag, err)
		}
		if used != CompressionNone || !bytes.Equal(out, data) {
			t.Errorf("%v: stored as %v", tag, used)
		}
	}
}

func TestParseNames(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		tag, err := ParseCompressionTag(name)
		if err != nil || tag.String() != name {
			t.Errorf("ParseCompressionTag(%q) = %v, %v", name, tag, err)
		}
	}
	if _, err := ParseCompressionTag("gzip"); err == nil {
		t.Error("gzip accepted")
	}
	for _, name := range []string{"cbor", "yaml"} {
		f, err := ParseFormat(name)
		if err != nil || f.String() != name {
			t.Errorf("ParseFormat(%q) = %v, %v", name, f, err)
		}
	}
	if _, err := ParseFormat("json"); err == nil {
		t.Error("json accepted")
	}
}
