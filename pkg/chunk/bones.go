package chunk

import "github.com/Faultbox/chunkforge/pkg/binio"

const (
	boneNameSize     = 64
	compiledBoneSize = 4 + boneNameSize + 4*4 + 2*12*4
)

// CompiledBone is one skeleton joint in breadth-first order. Offsets are
// relative to the bone's own index; children are contiguous.
type CompiledBone struct {
	ControllerID uint32 // CRC32 of the bone name, used by animation tracks
	Name         string
	LimbID       int32
	OffsetParent int32 // 0 for the root
	NumChildren  uint32
	OffsetChild  int32 // 0 without children
	WorldToBone  [12]float32 // row-major 3x4 inverse bind
	BoneToWorld  [12]float32 // row-major 3x4 absolute bind
}

// CompiledBones is the skeleton of a skinned model.
type CompiledBones struct {
	Header
	Bones []CompiledBone
}

// Kind implements Chunk.
func (*CompiledBones) Kind() Kind { return Kind{Type: TypeCompiledBones, Version: 0x800} }

// Decode implements Chunk.
func (c *CompiledBones) Decode(r *binio.Reader, size int) error {
	n := r.Count(compiledBoneSize)
	c.Bones = make([]CompiledBone, n)
	for i := range c.Bones {
		b := &c.Bones[i]
		b.ControllerID = r.U32()
		b.Name = r.FixedString(boneNameSize)
		b.LimbID = r.I32()
		b.OffsetParent = r.I32()
		b.NumChildren = r.U32()
		b.OffsetChild = r.I32()
		copy(b.WorldToBone[:], r.F32s(12))
		copy(b.BoneToWorld[:], r.F32s(12))
	}
	return r.Err()
}

// Encode implements Chunk.
func (c *CompiledBones) Encode(w *binio.Writer) error {
	w.U32(uint32(len(c.Bones)))
	for _, b := range c.Bones {
		w.U32(b.ControllerID)
		w.FixedString(b.Name, boneNameSize)
		w.I32(b.LimbID)
		w.I32(b.OffsetParent)
		w.U32(b.NumChildren)
		w.I32(b.OffsetChild)
		w.F32s(b.WorldToBone[:])
		w.F32s(b.BoneToWorld[:])
	}
	return w.Err()
}

const (
	physPropSize     = 32
	physicalBoneSize = 4*4 + physPropSize + 2*4 + 5*12 + 9*4
)

// PhysicalBone holds the ragdoll parameters of a bone. Physical bones are
// stored depth-first.
type PhysicalBone struct {
	BoneID        int32 // index into CompiledBones
	ParentID      int32 // index of the parent physical bone, -1 for the root
	NumChildren   int32
	ControllerID  uint32
	Prop          string // [32]
	Physicalized  int32
	Flags         int32
	Min           [3]float32
	Max           [3]float32
	SpringAngle   [3]float32
	SpringTension [3]float32
	Damping       [3]float32
	Frame         [9]float32 // row-major 3x3
}

// CompiledPhysicalBones lists the physical skeleton.
type CompiledPhysicalBones struct {
	Header
	Bones []PhysicalBone
}

// Kind implements Chunk.
func (*CompiledPhysicalBones) Kind() Kind {
	return Kind{Type: TypeCompiledPhysicalBones, Version: 0x800}
}

// Decode implements Chunk.
func (c *CompiledPhysicalBones) Decode(r *binio.Reader, size int) error {
	n := r.Count(physicalBoneSize)
	c.Bones = make([]PhysicalBone, n)
	for i := range c.Bones {
		b := &c.Bones[i]
		b.BoneID = r.I32()
		b.ParentID = r.I32()
		b.NumChildren = r.I32()
		b.ControllerID = r.U32()
		b.Prop = r.FixedString(physPropSize)
		b.Physicalized = r.I32()
		b.Flags = r.I32()
		b.Min = r.Vec3()
		b.Max = r.Vec3()
		b.SpringAngle = r.Vec3()
		b.SpringTension = r.Vec3()
		b.Damping = r.Vec3()
		copy(b.Frame[:], r.F32s(9))
	}
	return r.Err()
}

// Encode implements Chunk.
func (c *CompiledPhysicalBones) Encode(w *binio.Writer) error {
	w.U32(uint32(len(c.Bones)))
	for _, b := range c.Bones {
		w.I32(b.BoneID)
		w.I32(b.ParentID)
		w.I32(b.NumChildren)
		w.U32(b.ControllerID)
		w.FixedString(b.Prop, physPropSize)
		w.I32(b.Physicalized)
		w.I32(b.Flags)
		w.Vec3(b.Min)
		w.Vec3(b.Max)
		w.Vec3(b.SpringAngle)
		w.Vec3(b.SpringTension)
		w.Vec3(b.Damping)
		w.F32s(b.Frame[:])
	}
	return w.Err()
}

// BonesBoxes lists the vertices weighted to one bone and their bounds.
type BonesBoxes struct {
	Header
	BoneID  uint32
	Min     [3]float32
	Max     [3]float32
	Indices []uint16 // external vertex indices
}

// Kind implements Chunk.
func (*BonesBoxes) Kind() Kind { return Kind{Type: TypeBonesBoxes, Version: 0x801} }

// Decode implements Chunk.
func (b *BonesBoxes) Decode(r *binio.Reader, size int) error {
	b.BoneID = r.U32()
	b.Min = r.Vec3()
	b.Max = r.Vec3()
	n := r.Count(2)
	b.Indices = make([]uint16, n)
	for i := range b.Indices {
		b.Indices[i] = r.U16()
	}
	return r.Err()
}

// Encode implements Chunk.
func (b *BonesBoxes) Encode(w *binio.Writer) error {
	w.U32(b.BoneID)
	w.Vec3(b.Min)
	w.Vec3(b.Max)
	w.U32(uint32(len(b.Indices)))
	for _, idx := range b.Indices {
		w.U16(idx)
	}
	return w.Err()
}
