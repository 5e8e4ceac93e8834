package chunk

import (
	"fmt"

	"github.com/Faultbox/chunkforge/pkg/binio"
)

const (
	intSkinReservedSize = 32
	intSkinVertexSize   = 12 + 4*2 + 4*4 + 4
	intFaceSize         = 8
)

// IntSkinVertex is a deduplicated internal skinning vertex. Bone ids index
// CompiledBones.
type IntSkinVertex struct {
	Position [3]float32
	Bones    [4]uint16
	Weights  [4]float32
	Color    [4]uint8
}

// CompiledIntSkinVertices holds the internal skinning vertices. The element
// count is derived from the chunk size.
type CompiledIntSkinVertices struct {
	Header
	Vertices []IntSkinVertex
}

// Kind implements Chunk.
func (*CompiledIntSkinVertices) Kind() Kind {
	return Kind{Type: TypeCompiledIntSkinVertices, Version: 0x800}
}

// Decode implements Chunk.
func (c *CompiledIntSkinVertices) Decode(r *binio.Reader, size int) error {
	body := size - intSkinReservedSize
	if body < 0 || body%intSkinVertexSize != 0 {
		return fmt.Errorf("%w: %d bytes of skin vertices", ErrSizeMismatch, size)
	}
	r.Reserved(intSkinReservedSize)
	c.Vertices = make([]IntSkinVertex, body/intSkinVertexSize)
	for i := range c.Vertices {
		v := &c.Vertices[i]
		v.Position = r.Vec3()
		for k := range v.Bones {
			v.Bones[k] = r.U16()
		}
		for k := range v.Weights {
			v.Weights[k] = r.F32()
		}
		copy(v.Color[:], r.Bytes(4))
	}
	return r.Err()
}

// Encode implements Chunk.
func (c *CompiledIntSkinVertices) Encode(w *binio.Writer) error {
	w.Zero(intSkinReservedSize)
	for _, v := range c.Vertices {
		w.Vec3(v.Position)
		for _, b := range v.Bones {
			w.U16(b)
		}
		for _, f := range v.Weights {
			w.F32(f)
		}
		w.Write(v.Color[:])
	}
	return w.Err()
}

// IntFace is a triangle over internal skin vertices.
type IntFace struct {
	Indices    [3]uint16
	MaterialID uint16
}

// CompiledIntFaces lists the internal triangles. The element count is derived
// from the chunk size.
type CompiledIntFaces struct {
	Header
	Faces []IntFace
}

// Kind implements Chunk.
func (*CompiledIntFaces) Kind() Kind { return Kind{Type: TypeCompiledIntFaces, Version: 0x800} }

// Decode implements Chunk.
func (c *CompiledIntFaces) Decode(r *binio.Reader, size int) error {
	if size%intFaceSize != 0 {
		return fmt.Errorf("%w: %d bytes of faces", ErrSizeMismatch, size)
	}
	c.Faces = make([]IntFace, size/intFaceSize)
	for i := range c.Faces {
		f := &c.Faces[i]
		f.Indices = [3]uint16{r.U16(), r.U16(), r.U16()}
		f.MaterialID = r.U16()
	}
	return r.Err()
}

// Encode implements Chunk.
func (c *CompiledIntFaces) Encode(w *binio.Writer) error {
	for _, f := range c.Faces {
		for _, idx := range f.Indices {
			w.U16(idx)
		}
		w.U16(f.MaterialID)
	}
	return w.Err()
}

// CompiledExt2IntMap maps every external (render) vertex to its internal skin
// vertex. The element count is derived from the chunk size.
type CompiledExt2IntMap struct {
	Header
	Map []uint16
}

// Kind implements Chunk.
func (*CompiledExt2IntMap) Kind() Kind { return Kind{Type: TypeCompiledExt2IntMap, Version: 0x800} }

// Decode implements Chunk.
func (c *CompiledExt2IntMap) Decode(r *binio.Reader, size int) error {
	if size%2 != 0 {
		return fmt.Errorf("%w: %d bytes of vertex map", ErrSizeMismatch, size)
	}
	c.Map = make([]uint16, size/2)
	for i := range c.Map {
		c.Map[i] = r.U16()
	}
	return r.Err()
}

// Encode implements Chunk.
func (c *CompiledExt2IntMap) Encode(w *binio.Writer) error {
	for _, v := range c.Map {
		w.U16(v)
	}
	return w.Err()
}
