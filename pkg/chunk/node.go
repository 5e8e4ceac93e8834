package chunk

import "github.com/Faultbox/chunkforge/pkg/binio"

const nodeNameSize = 64

// Node places an object (usually a mesh) in the scene hierarchy.
type Node struct {
	Header
	Name          string
	ObjectID      int32 // chunk id of the mesh or helper
	ParentID      int32 // -1 for the root
	NumChildren   int32
	MaterialID    int32 // chunk id of the MtlName
	IsGroupHead   bool
	IsGroupMember bool
	Transform     [16]float32 // column-major world transform
	Position      [3]float32
	Rotation      [4]float32 // x, y, z, w
	Scale         [3]float32
	PosCtrlID     int32
	RotCtrlID     int32
	SclCtrlID     int32
	Properties    string // raw user properties
}

// Kind implements Chunk.
func (*Node) Kind() Kind { return Kind{Type: TypeNode, Version: 0x824} }

// Decode implements Chunk.
func (n *Node) Decode(r *binio.Reader, size int) error {
	n.Name = r.FixedString(nodeNameSize)
	n.ObjectID = r.I32()
	n.ParentID = r.I32()
	n.NumChildren = r.I32()
	n.MaterialID = r.I32()
	n.IsGroupHead = r.U8() != 0
	n.IsGroupMember = r.U8() != 0
	r.Reserved(2)
	copy(n.Transform[:], r.F32s(16))
	n.Position = r.Vec3()
	copy(n.Rotation[:], r.F32s(4))
	n.Scale = r.Vec3()
	n.PosCtrlID = r.I32()
	n.RotCtrlID = r.I32()
	n.SclCtrlID = r.I32()
	propLen := r.Count(1)
	n.Properties = string(r.Bytes(propLen))
	return r.Err()
}

// Encode implements Chunk.
func (n *Node) Encode(w *binio.Writer) error {
	w.FixedString(n.Name, nodeNameSize)
	w.I32(n.ObjectID)
	w.I32(n.ParentID)
	w.I32(n.NumChildren)
	w.I32(n.MaterialID)
	w.U8(boolByte(n.IsGroupHead))
	w.U8(boolByte(n.IsGroupMember))
	w.Zero(2)
	w.F32s(n.Transform[:])
	w.Vec3(n.Position)
	w.F32s(n.Rotation[:])
	w.Vec3(n.Scale)
	w.I32(n.PosCtrlID)
	w.I32(n.RotCtrlID)
	w.I32(n.SclCtrlID)
	w.U32(uint32(len(n.Properties)))
	w.Write([]byte(n.Properties))
	return w.Err()
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
