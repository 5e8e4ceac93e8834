package chunk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Faultbox/chunkforge/pkg/binio"
	"github.com/Faultbox/chunkforge/pkg/keys"
	"github.com/Faultbox/chunkforge/pkg/math"
)

// sampleChunks returns one populated chunk of every registered kind.
func sampleChunks(t *testing.T, bigEndian bool) []Chunk {
	t.Helper()
	order := binary.ByteOrder(binary.LittleEndian)
	if bigEndian {
		order = binary.BigEndian
	}

	times, err := NewTimeEntry(order, keys.TimeF32, []float32{0, 10, 20})
	if err != nil {
		t.Fatalf("NewTimeEntry: %v", err)
	}
	bits, err := NewTimeEntry(order, keys.TimeBitset, []float32{0, 5, 9})
	if err != nil {
		t.Fatalf("NewTimeEntry(bitset): %v", err)
	}
	pos, err := NewPositionEntry(order, keys.NoCompressVec3, []math.Vec3{{X: 1}, {Y: 2}, {Z: 3}})
	if err != nil {
		t.Fatalf("NewPositionEntry: %v", err)
	}
	rot, err := NewRotationEntry(order, keys.SmallTree48BitQuat, []math.Quat{
		math.QuatIdentity(), {X: 1}, math.QuatFromAxisAngle(math.Vec3{Y: 1}, 0.5),
	})
	if err != nil {
		t.Fatalf("NewRotationEntry: %v", err)
	}
	times.Offset, bits.Offset, pos.Offset, rot.Offset = 0, 12, 20, 56

	chunks := []Chunk{
		&MtlName{Name: "body", SubMaterials: []string{"skin", "cloth"}, PhysicsTypes: []uint32{0, 1}},
		&Node{Name: "root", ObjectID: 3, ParentID: -1, Properties: "lod=1", Scale: [3]float32{1, 1, 1}},
		&Mesh{NumVertices: 3, NumIndices: 3, NumSubsets: 1, SubsetsChunkID: 4, BBoxMax: [3]float32{1, 1, 1}},
		&MeshSubsets{Flags: SubsetBoneIDs, Subsets: []MeshSubset{{NumIndices: 3, NumVertices: 3, Radius: 1, Bones: []uint16{0, NoBone, 1}}}},
		&DataStream{StreamType: StreamPositions, Vectors: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}},
		&DataStream{StreamType: StreamIndices, ElementSize: 2, Indices: []uint32{0, 1, 2}},
		&DataStream{StreamType: StreamTangents, Tangents: []Tangent{{Tangent: [4]int16{32767, 0, 0, 32767}}}},
		&DataStream{StreamType: StreamBoneMapping, BoneMap: []BoneMapping{{Bones: [4]uint16{1}, Weights: [4]uint8{255}}}},
		&DataStream{StreamType: StreamColors, Colors: [][4]uint8{{1, 2, 3, 4}}},
		&DataStream{StreamType: StreamTexCoords, TexCoords: [][2]float32{{0.5, 0.25}}},
		&CompiledBones{Bones: []CompiledBone{
			{ControllerID: 0x1234, Name: "Bip01", NumChildren: 1, OffsetChild: 1},
			{ControllerID: 0x5678, Name: "Bip01 Pelvis", OffsetParent: -1},
		}},
		&CompiledPhysicalBones{Bones: []PhysicalBone{{ParentID: -1, Prop: "prop"}}},
		&CompiledIntSkinVertices{Vertices: []IntSkinVertex{{Position: [3]float32{1, 2, 3}, Weights: [4]float32{1}}}},
		&CompiledIntFaces{Faces: []IntFace{{Indices: [3]uint16{0, 0, 0}}}},
		&CompiledExt2IntMap{Map: []uint16{0, 0, 0}},
		&BonesBoxes{BoneID: 1, Max: [3]float32{1, 2, 3}, Indices: []uint16{0, 2}},
		&CompiledMorphTargets{Targets: []MorphTarget{{MeshID: 3, Name: "smile", Internal: []MorphVertex{{Index: 1}}}}},
		&CompiledPhysicalProxies{Proxies: []PhysicalProxy{{ChunkID: 1, Points: [][3]float32{{1, 1, 1}}, Indices: []uint16{0, 0, 0}, Materials: []uint8{7}}}},
		&ExportFlags{Flags: ExportUseCustomNormals, RCVersion: [4]uint32{1, 2, 3, 4}, RCVersionString: "1.2.3.4"},
		&SourceInfo{Text: "exported by test"},
		&MeshPhysicsData{Flags: 1, Data: []byte{1, 2, 3}},
		&Timing{SecsPerTick: 1.0 / 4800, TicksPerFrame: 160, Global: TimeRange{Name: "Global", End: 100}},
		&Controller{
			Times:         []TimeEntry{times, bits},
			Positions:     []PositionEntry{pos},
			Rotations:     []RotationEntry{rot},
			TrackDataSize: 80,
			Animations: []AnimInfo{{
				Name:          "walk",
				Motion:        MotionParams{TicksPerFrame: 160, SecsPerTick: 1.0 / 4800, End: 20},
				FootPlantBits: []byte{0xF0, 0x0F, 0x01},
				Controllers: []ControllerInfo{
					{ControllerID: 0x1234, PosKeyTimeTrack: 0, PosTrack: 0, RotKeyTimeTrack: 1, RotTrack: 0},
					{ControllerID: 0x5678, PosKeyTimeTrack: NoTrack, PosTrack: NoTrack, RotKeyTimeTrack: 0, RotTrack: 0},
				},
			}},
		},
	}
	for _, c := range chunks {
		c.ChunkHeader().BigEndian = bigEndian
	}
	return chunks
}

func sampleContainer(t *testing.T, bigEndian bool) *Container {
	t.Helper()
	c := New(FileGeometry)
	for _, ch := range sampleChunks(t, bigEndian) {
		c.Add(ch)
	}
	return c
}

func TestContainerRoundTrip(t *testing.T) {
	for _, bigEndian := range []bool{false, true} {
		name := "little endian"
		if bigEndian {
			name = "big endian"
		}
		t.Run(name, func(t *testing.T) {
			data, err := sampleContainer(t, bigEndian).Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if len(data)%4 != 0 {
				t.Errorf("file length %d not 4-byte aligned", len(data))
			}

			decoded, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if decoded.Len() != len(sampleChunks(t, bigEndian)) {
				t.Fatalf("decoded %d chunks", decoded.Len())
			}
			for _, ch := range decoded.Chunks() {
				h := ch.ChunkHeader()
				if h.BigEndian != bigEndian {
					t.Errorf("chunk %d BigEndian = %v", h.ID, h.BigEndian)
				}
				if h.Offset%4 != 0 {
					t.Errorf("chunk %d at unaligned offset %d", h.ID, h.Offset)
				}
				size, err := WrittenSize(ch)
				if err != nil || size != int(h.Size) {
					t.Errorf("chunk %d (%s): WrittenSize = %d, %v; declared %d", h.ID, h.Type, size, err, h.Size)
				}
			}

			again, err := decoded.Encode()
			if err != nil {
				t.Fatalf("re-Encode: %v", err)
			}
			if !bytes.Equal(data, again) {
				t.Error("re-encoded container differs")
			}
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	c := New(FileAnimation)
	c.Add(&SourceInfo{Text: "abcde", Header: Header{BigEndian: true}})
	c.Add(&SourceInfo{Text: "xy"})
	data, err := c.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	le := binary.LittleEndian
	if string(data[:8]) != Magic {
		t.Errorf("magic = %q", data[:8])
	}
	if FileType(le.Uint32(data[8:])) != FileAnimation {
		t.Errorf("file type = %#x", le.Uint32(data[8:]))
	}
	if le.Uint32(data[16:]) != 20 || le.Uint32(data[20:]) != 2 {
		t.Errorf("table offset/count = %d/%d", le.Uint32(data[16:]), le.Uint32(data[20:]))
	}

	first := data[24:44]
	if le.Uint32(first[4:])&0x80000000 == 0 {
		t.Error("big-endian flag missing from version")
	}
	if got := le.Uint32(first[8:]); got != 64 {
		t.Errorf("first chunk offset = %d, want 64", got)
	}
	second := data[44:64]
	if got := le.Uint32(second[8:]); got != 72 {
		t.Errorf("second chunk offset = %d, want 72 (aligned after 5 bytes)", got)
	}
	if len(data) != 76 {
		t.Errorf("file length = %d, want 76", len(data))
	}
}

func TestDecodeErrors(t *testing.T) {
	valid, err := sampleContainer(t, false).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	patch := func(off int, v uint32) []byte {
		d := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint32(d[off:], v)
		return d
	}
	// The first table entry describes the MtlName chunk.
	entry := 24

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrFormat},
		{"bad magic", append([]byte("CryTeK\x00\x00"), valid[8:]...), ErrBadMagic},
		{"bad type", patch(8, 0xFFFF0002), ErrBadType},
		{"bad version", patch(12, 0x744), ErrBadVersion},
		{"table offset", patch(16, 24), binio.ErrPosition},
		{"unsupported version", patch(entry+4, 0x801), ErrUnsupportedChunk},
		{"unknown type", patch(entry, 0xCCCC0099), ErrUnsupportedChunk},
		{"declared size too large", patch(entry+16, binary.LittleEndian.Uint32(valid[entry+16:])+4), ErrSizeMismatch},
		{"chunk outside file", patch(entry+8, uint32(len(valid))), binio.ErrTruncated},
		{"huge count", patch(20, 1<<30), binio.ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrFormat) {
				t.Errorf("error %v should classify as a format error", err)
			}
		})
	}
}

func TestSlackIsIgnored(t *testing.T) {
	data, err := sampleContainer(t, true).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Slack()) == 0 {
		t.Fatal("no slack ranges recorded")
	}

	ctrl, ok := First[*Controller](c)
	if !ok {
		t.Fatal("no controller chunk")
	}
	h := ctrl.ChunkHeader()
	inController := false
	for _, r := range c.Slack() {
		if r.Start >= int(h.Offset) && r.End <= int(h.Offset+h.Size) {
			inController = true
		}
	}
	if !inController {
		t.Error("unreferenced track data not recorded as slack")
	}

	dirty := append([]byte(nil), data...)
	for _, r := range c.Slack() {
		for i := r.Start; i < r.End; i++ {
			dirty[i] = 0xAA
		}
	}
	if _, err := Verify(dirty); err != nil {
		t.Errorf("Verify with garbage padding: %v", err)
	}

	node, _ := First[*Node](c)
	broken := append([]byte(nil), data...)
	broken[node.Offset+nodeNameSize] ^= 0xFF // ObjectID
	if err := Compare(broken, data, c.Slack()); !errors.Is(err, ErrRoundTrip) {
		t.Errorf("Compare error = %v, want ErrRoundTrip", err)
	}
	if err := Compare(data, data[:len(data)-4], nil); !errors.Is(err, ErrRoundTrip) {
		t.Errorf("length mismatch error = %v", err)
	}
}

func TestContainerAccessors(t *testing.T) {
	c := sampleContainer(t, false)
	if got := len(c.ByType(TypeDataStream)); got != 6 {
		t.Errorf("ByType(DataStream) = %d chunks, want 6", got)
	}
	if got := len(All[*DataStream](c)); got != 6 {
		t.Errorf("All[*DataStream] = %d", got)
	}

	mesh, ok := First[*Mesh](c)
	if !ok {
		t.Fatal("no mesh")
	}
	subsets, err := Lookup[*MeshSubsets](c, mesh.SubsetsChunkID)
	if err != nil {
		t.Fatalf("Lookup subsets: %v", err)
	}
	if len(subsets.Subsets) != 1 {
		t.Errorf("subsets = %d", len(subsets.Subsets))
	}
	if _, err := Lookup[*Node](c, mesh.SubsetsChunkID); !errors.Is(err, ErrInvalidData) {
		t.Errorf("wrong-type lookup error = %v", err)
	}
	if _, err := Lookup[*Node](c, 999); !errors.Is(err, ErrMissingChunk) {
		t.Errorf("missing lookup error = %v", err)
	}

	ids := make(map[int32]bool)
	for _, ch := range c.Chunks() {
		h := ch.ChunkHeader()
		if ids[h.ID] {
			t.Errorf("duplicate id %d", h.ID)
		}
		ids[h.ID] = true
		if h.Type != ch.Kind().Type || h.Version != ch.Kind().Version {
			t.Errorf("chunk %d header %s/%#x, kind %s", h.ID, h.Type, h.Version, ch.Kind())
		}
	}
	dup := &SourceInfo{}
	dup.ID = 1
	if err := c.Put(dup); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Put duplicate error = %v", err)
	}
}

func TestRegistry(t *testing.T) {
	kinds := Supported()
	if len(kinds) != 18 {
		t.Errorf("registry has %d kinds, want 18", len(kinds))
	}
	for _, k := range kinds {
		c, err := NewChunk(k)
		if err != nil {
			t.Fatalf("NewChunk(%s): %v", k, err)
		}
		if c.Kind() != k || c.ChunkHeader().Type != k.Type {
			t.Errorf("NewChunk(%s) built %s", k, c.Kind())
		}
	}
	if _, err := NewChunk(Kind{Type: TypeController, Version: 0x827}); !errors.Is(err, ErrUnsupportedChunk) {
		t.Errorf("legacy controller error = %v", err)
	}
}

func TestHeaderCodec(t *testing.T) {
	h := Header{Type: TypeNode, Version: 0x824, Offset: 64, ID: 7, BigEndian: true}
	w := binioWriter()
	if err := WriteHeader(w, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	got, err := ReadHeader(binioReader(w.Bytes()))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got != h {
		t.Errorf("header = %+v, want %+v", got, h)
	}
}

func binioWriter() *binio.Writer { return binio.NewWriter(binary.LittleEndian) }

func binioReader(b []byte) *binio.Reader { return binio.NewReader(b, binary.LittleEndian) }
