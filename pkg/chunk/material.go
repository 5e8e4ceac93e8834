package chunk

import "github.com/Faultbox/chunkforge/pkg/binio"

const materialNameSize = 128

// MtlName lists the material names of a model.
//
// Layout: flags u32, name[128], count u32, count × name[128],
// count × physics type u32.
type MtlName struct {
	Header
	Flags        uint32
	Name         string
	SubMaterials []string
	PhysicsTypes []uint32 // one per sub-material
}

// Kind implements Chunk.
func (*MtlName) Kind() Kind { return Kind{Type: TypeMtlName, Version: 0x800} }

// Decode implements Chunk.
func (m *MtlName) Decode(r *binio.Reader, size int) error {
	m.Flags = r.U32()
	m.Name = r.FixedString(materialNameSize)
	n := r.Count(materialNameSize + 4)
	m.SubMaterials = make([]string, n)
	for i := range m.SubMaterials {
		m.SubMaterials[i] = r.FixedString(materialNameSize)
	}
	m.PhysicsTypes = make([]uint32, n)
	for i := range m.PhysicsTypes {
		m.PhysicsTypes[i] = r.U32()
	}
	return r.Err()
}

// Encode implements Chunk.
func (m *MtlName) Encode(w *binio.Writer) error {
	if len(m.PhysicsTypes) != len(m.SubMaterials) {
		return errCount("physics types", len(m.PhysicsTypes), len(m.SubMaterials))
	}
	w.U32(m.Flags)
	w.FixedString(m.Name, materialNameSize)
	w.U32(uint32(len(m.SubMaterials)))
	for _, name := range m.SubMaterials {
		w.FixedString(name, materialNameSize)
	}
	for _, t := range m.PhysicsTypes {
		w.U32(t)
	}
	return w.Err()
}
