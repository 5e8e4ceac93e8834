package chunk

import "github.com/Faultbox/chunkforge/pkg/binio"

// MorphVertex is one displaced vertex of a morph target.
type MorphVertex struct {
	Index    uint32
	Position [3]float32
}

// MorphTarget is a named set of vertex displacements, stored for both the
// internal and the external vertex numbering.
type MorphTarget struct {
	MeshID   uint32
	Name     string
	Internal []MorphVertex
	External []MorphVertex
}

// CompiledMorphTargets lists the morph targets of a model.
//
// Layout: count u32, then per target mesh id, name length, internal count and
// external count (u32 each), the name bytes and both vertex lists.
type CompiledMorphTargets struct {
	Header
	Targets []MorphTarget
}

// Kind implements Chunk.
func (*CompiledMorphTargets) Kind() Kind {
	return Kind{Type: TypeCompiledMorphTargets, Version: 0x800}
}

func readMorphVertices(r *binio.Reader, n uint32) []MorphVertex {
	if uint64(n)*16 > uint64(r.Len()) {
		r.Skip(int(n) * 16)
		return nil
	}
	out := make([]MorphVertex, n)
	for i := range out {
		out[i] = MorphVertex{Index: r.U32(), Position: r.Vec3()}
	}
	return out
}

// Decode implements Chunk.
func (c *CompiledMorphTargets) Decode(r *binio.Reader, size int) error {
	n := r.Count(16)
	c.Targets = make([]MorphTarget, n)
	for i := range c.Targets {
		t := &c.Targets[i]
		t.MeshID = r.U32()
		nameLen := r.U32()
		numInt := r.U32()
		numExt := r.U32()
		if uint64(nameLen) > uint64(r.Len()) {
			r.Skip(r.Len() + 1)
			break
		}
		t.Name = string(r.Bytes(int(nameLen)))
		t.Internal = readMorphVertices(r, numInt)
		t.External = readMorphVertices(r, numExt)
	}
	return r.Err()
}

// Encode implements Chunk.
func (c *CompiledMorphTargets) Encode(w *binio.Writer) error {
	w.U32(uint32(len(c.Targets)))
	for _, t := range c.Targets {
		w.U32(t.MeshID)
		w.U32(uint32(len(t.Name)))
		w.U32(uint32(len(t.Internal)))
		w.U32(uint32(len(t.External)))
		w.Write([]byte(t.Name))
		for _, v := range t.Internal {
			w.U32(v.Index)
			w.Vec3(v.Position)
		}
		for _, v := range t.External {
			w.U32(v.Index)
			w.Vec3(v.Position)
		}
	}
	return w.Err()
}

// PhysicalProxy is a collision hull attached to a bone.
type PhysicalProxy struct {
	ChunkID   uint32
	Points    [][3]float32
	Indices   []uint16
	Materials []uint8
}

// CompiledPhysicalProxies lists the collision hulls of a model.
type CompiledPhysicalProxies struct {
	Header
	Proxies []PhysicalProxy
}

// Kind implements Chunk.
func (*CompiledPhysicalProxies) Kind() Kind {
	return Kind{Type: TypeCompiledPhysicalProxies, Version: 0x800}
}

// Decode implements Chunk.
func (c *CompiledPhysicalProxies) Decode(r *binio.Reader, size int) error {
	n := r.Count(16)
	c.Proxies = make([]PhysicalProxy, n)
	for i := range c.Proxies {
		p := &c.Proxies[i]
		p.ChunkID = r.U32()
		numPoints := r.U32()
		numIndices := r.U32()
		numMaterials := r.U32()
		need := uint64(numPoints)*12 + uint64(numIndices)*2 + uint64(numMaterials)
		if r.Err() != nil || need > uint64(r.Len()) {
			r.Skip(r.Len() + 1)
			break
		}
		p.Points = make([][3]float32, numPoints)
		for k := range p.Points {
			p.Points[k] = r.Vec3()
		}
		p.Indices = make([]uint16, numIndices)
		for k := range p.Indices {
			p.Indices[k] = r.U16()
		}
		p.Materials = r.Bytes(int(numMaterials))
	}
	return r.Err()
}

// Encode implements Chunk.
func (c *CompiledPhysicalProxies) Encode(w *binio.Writer) error {
	w.U32(uint32(len(c.Proxies)))
	for _, p := range c.Proxies {
		w.U32(p.ChunkID)
		w.U32(uint32(len(p.Points)))
		w.U32(uint32(len(p.Indices)))
		w.U32(uint32(len(p.Materials)))
		for _, v := range p.Points {
			w.Vec3(v)
		}
		for _, idx := range p.Indices {
			w.U16(idx)
		}
		w.Write(p.Materials)
	}
	return w.Err()
}
