package chunk

import (
	"fmt"

	"github.com/Faultbox/chunkforge/pkg/binio"
)

// StreamType identifies the content of a DataStream chunk.
type StreamType uint32

const (
	StreamPositions   StreamType = 0
	StreamNormals     StreamType = 1
	StreamTexCoords   StreamType = 2
	StreamColors      StreamType = 3
	StreamColors2     StreamType = 4
	StreamIndices     StreamType = 5
	StreamTangents    StreamType = 6
	StreamShCoeffs    StreamType = 7
	StreamShapeDeform StreamType = 8
	StreamBoneMapping StreamType = 9
)

// StreamTypeCount is the number of stream slots in a Mesh chunk.
const StreamTypeCount = 16

var streamNames = map[StreamType]string{
	StreamPositions:   "Positions",
	StreamNormals:     "Normals",
	StreamTexCoords:   "TexCoords",
	StreamColors:      "Colors",
	StreamColors2:     "Colors2",
	StreamIndices:     "Indices",
	StreamTangents:    "Tangents",
	StreamShCoeffs:    "ShCoeffs",
	StreamShapeDeform: "ShapeDeformation",
	StreamBoneMapping: "BoneMapping",
}

// String returns the stream type name.
func (t StreamType) String() string {
	if name, ok := streamNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint32(t))
}

// Mesh is the geometry header of a model. Stream and subset data live in
// separate chunks referenced by id; an id of 0 means absent.
type Mesh struct {
	Header
	Flags               uint32
	Flags2              uint32
	NumVertices         int32
	NumIndices          int32
	NumSubsets          int32
	SubsetsChunkID      int32
	VertAnimID          int32
	StreamChunkIDs      [StreamTypeCount]int32 // indexed by StreamType
	PhysicsDataChunkIDs [4]int32
	BBoxMin             [3]float32
	BBoxMax             [3]float32
	TexMappingDensity   float32
}

// Kind implements Chunk.
func (*Mesh) Kind() Kind { return Kind{Type: TypeMesh, Version: 0x801} }

// Decode implements Chunk.
func (m *Mesh) Decode(r *binio.Reader, size int) error {
	m.Flags = r.U32()
	m.Flags2 = r.U32()
	m.NumVertices = r.I32()
	m.NumIndices = r.I32()
	m.NumSubsets = r.I32()
	m.SubsetsChunkID = r.I32()
	m.VertAnimID = r.I32()
	for i := range m.StreamChunkIDs {
		m.StreamChunkIDs[i] = r.I32()
	}
	for i := range m.PhysicsDataChunkIDs {
		m.PhysicsDataChunkIDs[i] = r.I32()
	}
	m.BBoxMin = r.Vec3()
	m.BBoxMax = r.Vec3()
	m.TexMappingDensity = r.F32()
	return r.Err()
}

// Encode implements Chunk.
func (m *Mesh) Encode(w *binio.Writer) error {
	w.U32(m.Flags)
	w.U32(m.Flags2)
	w.I32(m.NumVertices)
	w.I32(m.NumIndices)
	w.I32(m.NumSubsets)
	w.I32(m.SubsetsChunkID)
	w.I32(m.VertAnimID)
	for _, id := range m.StreamChunkIDs {
		w.I32(id)
	}
	for _, id := range m.PhysicsDataChunkIDs {
		w.I32(id)
	}
	w.Vec3(m.BBoxMin)
	w.Vec3(m.BBoxMax)
	w.F32(m.TexMappingDensity)
	return w.Err()
}

// NoBone marks an unused bone palette slot.
const NoBone uint16 = 0xFFFF

// SubsetBoneIDs is set in MeshSubsets.Flags when every subset carries a
// bone palette.
const SubsetBoneIDs uint32 = 0x1

const subsetSize = 36

// MeshSubset is a contiguous index run sharing a material and bone palette.
type MeshSubset struct {
	FirstIndex  int32
	NumIndices  int32
	FirstVertex int32
	NumVertices int32
	MaterialID  int32
	Radius      float32
	Center      [3]float32
	Bones       []uint16 // palette slot -> bone index, NoBone for holes
}

// MeshSubsets lists the subsets of a Mesh. Bone palettes follow the subset
// records when SubsetBoneIDs is set.
type MeshSubsets struct {
	Header
	Flags   uint32
	Subsets []MeshSubset
}

// Kind implements Chunk.
func (*MeshSubsets) Kind() Kind { return Kind{Type: TypeMeshSubsets, Version: 0x800} }

// Decode implements Chunk.
func (m *MeshSubsets) Decode(r *binio.Reader, size int) error {
	m.Flags = r.U32()
	n := r.Count(subsetSize)
	m.Subsets = make([]MeshSubset, n)
	for i := range m.Subsets {
		s := &m.Subsets[i]
		s.FirstIndex = r.I32()
		s.NumIndices = r.I32()
		s.FirstVertex = r.I32()
		s.NumVertices = r.I32()
		s.MaterialID = r.I32()
		s.Radius = r.F32()
		s.Center = r.Vec3()
	}
	if m.Flags&SubsetBoneIDs != 0 {
		for i := range m.Subsets {
			nb := r.Count(2)
			bones := make([]uint16, nb)
			for j := range bones {
				bones[j] = r.U16()
			}
			m.Subsets[i].Bones = bones
		}
	}
	return r.Err()
}

// Encode implements Chunk.
func (m *MeshSubsets) Encode(w *binio.Writer) error {
	withBones := m.Flags&SubsetBoneIDs != 0
	w.U32(m.Flags)
	w.U32(uint32(len(m.Subsets)))
	for i, s := range m.Subsets {
		if !withBones && len(s.Bones) > 0 {
			return fmt.Errorf("%w: subset %d has a bone palette but flags %#x lack it", ErrInvalidData, i, m.Flags)
		}
		w.I32(s.FirstIndex)
		w.I32(s.NumIndices)
		w.I32(s.FirstVertex)
		w.I32(s.NumVertices)
		w.I32(s.MaterialID)
		w.F32(s.Radius)
		w.Vec3(s.Center)
	}
	if withBones {
		for _, s := range m.Subsets {
			w.U32(uint32(len(s.Bones)))
			for _, b := range s.Bones {
				w.U16(b)
			}
		}
	}
	return w.Err()
}

// Tangent is a packed tangent frame; components are signed fractions of
// 32767.
type Tangent struct {
	Tangent  [4]int16
	Binormal [4]int16
}

// BoneMapping holds up to four bone influences of a vertex. Bones index the
// subset palette-independent bone list; weights sum to 255.
type BoneMapping struct {
	Bones   [4]uint16
	Weights [4]uint8
}

// DataStream is one per-vertex (or index) array of a Mesh.
//
// Layout: flags u32, stream type u32, element count u32, element size u16,
// 6 reserved bytes, then count elements.
type DataStream struct {
	Header
	Flags       uint32
	StreamType  StreamType
	ElementSize uint16 // set on decode; 0 lets Encode pick the natural size

	Vectors   [][3]float32 // positions or normals
	TexCoords [][2]float32
	Colors    [][4]uint8
	Indices   []uint32
	Tangents  []Tangent
	BoneMap   []BoneMapping
}

// Kind implements Chunk.
func (*DataStream) Kind() Kind { return Kind{Type: TypeDataStream, Version: 0x800} }

// Len returns the number of elements.
func (d *DataStream) Len() int {
	switch d.StreamType {
	case StreamPositions, StreamNormals:
		return len(d.Vectors)
	case StreamTexCoords:
		return len(d.TexCoords)
	case StreamColors:
		return len(d.Colors)
	case StreamIndices:
		return len(d.Indices)
	case StreamTangents:
		return len(d.Tangents)
	case StreamBoneMapping:
		return len(d.BoneMap)
	}
	return 0
}

// elementSize returns the stored element size for the stream, validating an
// explicit size against the stream type.
func (d *DataStream) elementSize(explicit uint16) (int, error) {
	var natural int
	switch d.StreamType {
	case StreamPositions, StreamNormals:
		natural = 12
	case StreamTexCoords:
		natural = 8
	case StreamColors:
		natural = 4
	case StreamIndices:
		if explicit == 2 || explicit == 4 {
			return int(explicit), nil
		}
		natural = 2
		for _, idx := range d.Indices {
			if idx > 0xFFFF {
				natural = 4
				break
			}
		}
	case StreamTangents:
		natural = 16
	case StreamBoneMapping:
		natural = 12
	default:
		return 0, fmt.Errorf("%w: %s data stream", ErrNotSupported, d.StreamType)
	}
	if explicit != 0 && int(explicit) != natural {
		return 0, fmt.Errorf("%w: %s elements of %d bytes", ErrNotSupported, d.StreamType, explicit)
	}
	return natural, nil
}

// Decode implements Chunk.
func (d *DataStream) Decode(r *binio.Reader, size int) error {
	d.Flags = r.U32()
	d.StreamType = StreamType(r.U32())
	count := r.U32()
	d.ElementSize = r.U16()
	r.Reserved(6)
	if r.Err() != nil {
		return r.Err()
	}
	if d.ElementSize == 0 {
		return fmt.Errorf("%w: %s stream without element size", ErrFormat, d.StreamType)
	}

	elem, err := d.elementSize(d.ElementSize)
	if err != nil {
		return err
	}
	if uint64(count)*uint64(elem) > uint64(r.Len()) {
		return fmt.Errorf("%w: %d %s elements of %d bytes in %d bytes", binio.ErrTruncated, count, d.StreamType, elem, r.Len())
	}
	n := int(count)

	switch d.StreamType {
	case StreamPositions, StreamNormals:
		d.Vectors = make([][3]float32, n)
		for i := range d.Vectors {
			d.Vectors[i] = r.Vec3()
		}
	case StreamTexCoords:
		d.TexCoords = make([][2]float32, n)
		for i := range d.TexCoords {
			d.TexCoords[i] = r.Vec2()
		}
	case StreamColors:
		d.Colors = make([][4]uint8, n)
		for i := range d.Colors {
			copy(d.Colors[i][:], r.Bytes(4))
		}
	case StreamIndices:
		d.Indices = make([]uint32, n)
		for i := range d.Indices {
			if elem == 2 {
				d.Indices[i] = uint32(r.U16())
			} else {
				d.Indices[i] = r.U32()
			}
		}
	case StreamTangents:
		d.Tangents = make([]Tangent, n)
		for i := range d.Tangents {
			t := &d.Tangents[i]
			for k := range t.Tangent {
				t.Tangent[k] = r.I16()
			}
			for k := range t.Binormal {
				t.Binormal[k] = r.I16()
			}
		}
	case StreamBoneMapping:
		d.BoneMap = make([]BoneMapping, n)
		for i := range d.BoneMap {
			m := &d.BoneMap[i]
			for k := range m.Bones {
				m.Bones[k] = r.U16()
			}
			copy(m.Weights[:], r.Bytes(4))
		}
	}
	return r.Err()
}

// Encode implements Chunk.
func (d *DataStream) Encode(w *binio.Writer) error {
	elem, err := d.elementSize(d.ElementSize)
	if err != nil {
		return err
	}
	w.U32(d.Flags)
	w.U32(uint32(d.StreamType))
	w.U32(uint32(d.Len()))
	w.U16(uint16(elem))
	w.Zero(6)

	switch d.StreamType {
	case StreamPositions, StreamNormals:
		for _, v := range d.Vectors {
			w.Vec3(v)
		}
	case StreamTexCoords:
		for _, v := range d.TexCoords {
			w.Vec2(v)
		}
	case StreamColors:
		for _, c := range d.Colors {
			w.Write(c[:])
		}
	case StreamIndices:
		for _, idx := range d.Indices {
			if elem == 2 {
				if idx > 0xFFFF {
					return fmt.Errorf("%w: index %d in a 16-bit index stream", ErrInvalidData, idx)
				}
				w.U16(uint16(idx))
			} else {
				w.U32(idx)
			}
		}
	case StreamTangents:
		for _, t := range d.Tangents {
			for _, v := range t.Tangent {
				w.I16(v)
			}
			for _, v := range t.Binormal {
				w.I16(v)
			}
		}
	case StreamBoneMapping:
		for _, m := range d.BoneMap {
			for _, b := range m.Bones {
				w.U16(b)
			}
			w.Write(m.Weights[:])
		}
	}
	return w.Err()
}

// MeshPhysicsData carries an opaque physics geometry blob.
type MeshPhysicsData struct {
	Header
	Flags          int32
	TetrahedraID   int32
	Data           []byte
	TetrahedraData []byte
}

// Kind implements Chunk.
func (*MeshPhysicsData) Kind() Kind { return Kind{Type: TypeMeshPhysicsData, Version: 0x800} }

// Decode implements Chunk.
func (p *MeshPhysicsData) Decode(r *binio.Reader, size int) error {
	dataSize := r.I32()
	p.Flags = r.I32()
	tetraSize := r.I32()
	p.TetrahedraID = r.I32()
	r.Reserved(8)
	if r.Err() != nil {
		return r.Err()
	}
	if dataSize < 0 || tetraSize < 0 {
		return fmt.Errorf("%w: negative physics data size", ErrFormat)
	}
	p.Data = r.Bytes(int(dataSize))
	p.TetrahedraData = r.Bytes(int(tetraSize))
	return r.Err()
}

// Encode implements Chunk.
func (p *MeshPhysicsData) Encode(w *binio.Writer) error {
	w.I32(int32(len(p.Data)))
	w.I32(p.Flags)
	w.I32(int32(len(p.TetrahedraData)))
	w.I32(p.TetrahedraID)
	w.Zero(8)
	w.Write(p.Data)
	w.Write(p.TetrahedraData)
	return w.Err()
}
