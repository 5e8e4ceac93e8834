package model

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/Faultbox/chunkforge/pkg/chunk"
)

// DefaultPaletteSize is the number of bones one subset may reference.
const DefaultPaletteSize = 12

// triangleBones returns the sorted set of bones with nonzero weight among the
// vertices of triangle t.
func triangleBones(m *Mesh, t int) []int {
	var set []int
	for k := 0; k < 3; k++ {
		v := &m.Vertices[m.Indices[3*t+k]]
		for i, w := range v.Weights {
			if w > 0 && !slices.Contains(set, int(v.Bones[i])) {
				set = append(set, int(v.Bones[i]))
			}
		}
	}
	slices.Sort(set)
	return set
}

// partitioner tracks palette slot assignment while walking one mesh.
type partitioner struct {
	mesh    *Mesh
	slots   []int       // slot -> bone, -1 when free
	slotOf  map[int]int // bone -> slot
	lastUse map[int]int // bone -> last triangle referencing it
	active  map[int]bool
	log     *zap.Logger
}

func (p *partitioner) free(slot int) {
	delete(p.slotOf, p.slots[slot])
	p.slots[slot] = -1
}

// assign gives bone b a slot: the lowest free one, else the lowest slot whose
// bone is neither active nor needed by the current triangle.
func (p *partitioner) assign(b int, needed []int) {
	if _, ok := p.slotOf[b]; ok {
		return
	}
	slot := slices.Index(p.slots, -1)
	if slot < 0 {
		for s, owner := range p.slots {
			if !p.active[owner] && !slices.Contains(needed, owner) {
				slot = s
				break
			}
		}
		p.free(slot)
	}
	p.slots[slot] = b
	p.slotOf[b] = slot
}

// subset snapshots triangles [first, end) as a mesh subset.
func (p *partitioner) subset(first, end int) chunk.MeshSubset {
	m := p.mesh
	lo, hi := uint32(len(m.Vertices)), uint32(0)
	for _, idx := range m.Indices[3*first : 3*end] {
		lo = min(lo, idx)
		hi = max(hi, idx)
	}

	bmin := m.Vertices[m.Indices[3*first]].Position
	bmax := bmin
	for _, idx := range m.Indices[3*first : 3*end] {
		pos := m.Vertices[idx].Position
		bmin = bmin.Min(pos)
		bmax = bmax.Max(pos)
	}
	center := bmin.Add(bmax).Scale(0.5)
	var radius float32
	for _, idx := range m.Indices[3*first : 3*end] {
		radius = max(radius, center.Distance(m.Vertices[idx].Position))
	}

	var palette []uint16
	if len(p.slots) > 0 {
		palette = make([]uint16, len(p.slots))
		last := -1
		for s, b := range p.slots {
			palette[s] = chunk.NoBone
			if b >= 0 && p.active[b] {
				palette[s] = uint16(b)
				last = s
			}
		}
		palette = palette[:last+1]
	}

	return chunk.MeshSubset{
		FirstIndex:  int32(3 * first),
		NumIndices:  int32(3 * (end - first)),
		FirstVertex: int32(lo),
		NumVertices: int32(hi - lo + 1),
		MaterialID:  int32(m.MaterialID),
		Radius:      radius,
		Center:      center.Array(),
		Bones:       palette,
	}
}

// Partition splits a mesh into subsets whose bone palettes hold at most
// paletteSize bones. Triangles are taken in order and a subset is flushed
// when the next triangle would overflow the palette. Slot assignments carry
// over between subsets; a slot is released at a flush once its bone is not
// used by any later triangle. Index and vertex ranges are local to the mesh.
//
// For meshes without bone weights the result is a single subset with an empty
// palette.
func Partition(m *Mesh, paletteSize int, log *zap.Logger) ([]chunk.MeshSubset, error) {
	if paletteSize <= 0 {
		paletteSize = DefaultPaletteSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	tris := m.Triangles()
	if tris == 0 {
		return nil, nil
	}

	sets := make([][]int, tris)
	skinned := false
	p := &partitioner{
		mesh:    m,
		slotOf:  make(map[int]int),
		lastUse: make(map[int]int),
		active:  make(map[int]bool),
		log:     log,
	}
	for t := range sets {
		sets[t] = triangleBones(m, t)
		if len(sets[t]) > paletteSize {
			return nil, fmt.Errorf("%w: triangle %d uses %d bones, palette holds %d", ErrPaletteFull, t, len(sets[t]), paletteSize)
		}
		for _, b := range sets[t] {
			p.lastUse[b] = t
			skinned = true
		}
	}
	if skinned {
		p.slots = make([]int, paletteSize)
		for s := range p.slots {
			p.slots[s] = -1
		}
	}

	var subsets []chunk.MeshSubset
	first := 0
	for t, bones := range sets {
		union := len(p.active)
		for _, b := range bones {
			if !p.active[b] {
				union++
			}
		}
		if union > paletteSize {
			subsets = append(subsets, p.flush(first, t))
			first = t
		}
		for _, b := range bones {
			p.assign(b, bones)
			p.active[b] = true
		}
	}
	subsets = append(subsets, p.flush(first, tris))
	return subsets, nil
}

// flush emits the subset for [first, end) and prepares the slots for the
// subset starting at end.
func (p *partitioner) flush(first, end int) chunk.MeshSubset {
	s := p.subset(first, end)
	p.log.Debug("subset flushed",
		zap.Int("material", p.mesh.MaterialID),
		zap.Int("first_triangle", first),
		zap.Int("triangles", end-first),
		zap.Int("bones", len(p.active)),
	)

	clear(p.active)
	for slot, b := range p.slots {
		if b >= 0 && p.lastUse[b] < end {
			p.free(slot)
		}
	}
	return s
}

// paletteBones returns the bones referenced by a subset palette.
func paletteBones(palette []uint16) map[int]bool {
	out := make(map[int]bool, len(palette))
	for _, b := range palette {
		if b != chunk.NoBone {
			out[int(b)] = true
		}
	}
	return out
}
