package model

import (
	"fmt"
	"slices"

	"github.com/Faultbox/chunkforge/pkg/chunk"
	"github.com/Faultbox/chunkforge/pkg/math"
)

// DecodeBytes parses a geometry file into a model.
func DecodeBytes(data []byte) (*Model, error) {
	c, err := chunk.Decode(data)
	if err != nil {
		return nil, err
	}
	return Decode(c)
}

// meshNode returns the first node whose object is a Mesh chunk.
func meshNode(c *chunk.Container) (*chunk.Node, *chunk.Mesh, error) {
	for _, n := range chunk.All[*chunk.Node](c) {
		if mesh, ok := c.Get(n.ObjectID).(*chunk.Mesh); ok {
			return n, mesh, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: no node references a mesh", chunk.ErrMissingChunk)
}

// streams resolves the data streams of a mesh by type.
func streams(c *chunk.Container, mesh *chunk.Mesh) (map[chunk.StreamType]*chunk.DataStream, error) {
	out := make(map[chunk.StreamType]*chunk.DataStream)
	for st, id := range mesh.StreamChunkIDs {
		if id == 0 {
			continue
		}
		ds, err := chunk.Lookup[*chunk.DataStream](c, id)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", chunk.StreamType(st), err)
		}
		if ds.StreamType != chunk.StreamType(st) {
			return nil, fmt.Errorf("%w: mesh slot %s holds a %s stream", ErrInconsistent, chunk.StreamType(st), ds.StreamType)
		}
		want := int(mesh.NumVertices)
		if ds.StreamType == chunk.StreamIndices {
			want = int(mesh.NumIndices)
		}
		if ds.Len() != want {
			return nil, fmt.Errorf("%w: %s stream has %d elements, mesh declares %d", ErrInconsistent, ds.StreamType, ds.Len(), want)
		}
		out[ds.StreamType] = ds
	}
	for _, st := range []chunk.StreamType{chunk.StreamPositions, chunk.StreamIndices} {
		if out[st] == nil {
			return nil, fmt.Errorf("%w: mesh without %s stream", chunk.ErrMissingChunk, st)
		}
	}
	return out, nil
}

// materialRun is a contiguous run of subsets sharing a material.
type materialRun struct {
	material   int
	subsets    []chunk.MeshSubset
	firstIndex int
	endIndex   int
	firstVert  int
	endVert    int
}

// materialRuns groups subsets and checks that index and vertex ranges tile
// the shared pools.
func materialRuns(subsets []chunk.MeshSubset, numIndices, numVertices int) ([]materialRun, error) {
	var runs []materialRun
	nextIndex := 0
	for i, s := range subsets {
		if int(s.FirstIndex) != nextIndex || s.NumIndices <= 0 || s.NumIndices%3 != 0 {
			return nil, fmt.Errorf("%w: subset %d index range [%d,+%d) does not continue at %d", ErrInconsistent, i, s.FirstIndex, s.NumIndices, nextIndex)
		}
		nextIndex += int(s.NumIndices)

		lo, hi := int(s.FirstVertex), int(s.FirstVertex)+int(s.NumVertices)
		if lo < 0 || s.NumVertices <= 0 || hi > numVertices {
			return nil, fmt.Errorf("%w: subset %d vertex range [%d,+%d) outside %d vertices", ErrInconsistent, i, s.FirstVertex, s.NumVertices, numVertices)
		}
		if n := len(runs); n > 0 && runs[n-1].material == int(s.MaterialID) {
			r := &runs[n-1]
			r.subsets = append(r.subsets, s)
			r.endIndex = nextIndex
			r.firstVert = min(r.firstVert, lo)
			r.endVert = max(r.endVert, hi)
			continue
		}
		runs = append(runs, materialRun{
			material:   int(s.MaterialID),
			subsets:    []chunk.MeshSubset{s},
			firstIndex: int(s.FirstIndex),
			endIndex:   nextIndex,
			firstVert:  lo,
			endVert:    hi,
		})
	}
	if nextIndex != numIndices {
		return nil, fmt.Errorf("%w: subsets cover %d of %d indices", ErrInconsistent, nextIndex, numIndices)
	}

	nextVert := 0
	for i, r := range runs {
		if r.firstVert != nextVert {
			return nil, fmt.Errorf("%w: material run %d vertices start at %d, want %d", ErrInconsistent, i, r.firstVert, nextVert)
		}
		nextVert = r.endVert
	}
	if nextVert != numVertices {
		return nil, fmt.Errorf("%w: material runs cover %d of %d vertices", ErrInconsistent, nextVert, numVertices)
	}
	return runs, nil
}

// Decode cross-links the chunks of a geometry container into a model.
func Decode(c *chunk.Container) (*Model, error) {
	node, mesh, err := meshNode(c)
	if err != nil {
		return nil, err
	}
	m := &Model{
		Name:       node.Name,
		Properties: node.Properties,
		BigEndian:  mesh.BigEndian,
		Node: &NodeAttrs{
			Transform:     node.Transform,
			Position:      node.Position,
			Rotation:      node.Rotation,
			Scale:         node.Scale,
			PosCtrlID:     node.PosCtrlID,
			RotCtrlID:     node.RotCtrlID,
			SclCtrlID:     node.SclCtrlID,
			IsGroupHead:   node.IsGroupHead,
			IsGroupMember: node.IsGroupMember,
		},
		Mesh: MeshAttrs{
			Flags:             mesh.Flags,
			Flags2:            mesh.Flags2,
			TexMappingDensity: mesh.TexMappingDensity,
		},
	}

	if node.MaterialID != 0 {
		mtl, err := chunk.Lookup[*chunk.MtlName](c, node.MaterialID)
		if err != nil {
			return nil, fmt.Errorf("material: %w", err)
		}
		m.Material = mtl.Name
		m.Materials = mtl.SubMaterials
		m.PhysicsTypes = mtl.PhysicsTypes
	}

	subsets, err := chunk.Lookup[*chunk.MeshSubsets](c, mesh.SubsetsChunkID)
	if err != nil {
		return nil, fmt.Errorf("subsets: %w", err)
	}
	if len(subsets.Subsets) != int(mesh.NumSubsets) {
		return nil, fmt.Errorf("%w: %d subsets, mesh declares %d", ErrInconsistent, len(subsets.Subsets), mesh.NumSubsets)
	}
	ds, err := streams(c, mesh)
	if err != nil {
		return nil, err
	}
	m.Streams = Streams{
		Normals:   ds[chunk.StreamNormals] != nil,
		TexCoords: ds[chunk.StreamTexCoords] != nil,
		Colors:    ds[chunk.StreamColors] != nil,
		Tangents:  ds[chunk.StreamTangents] != nil,
	}
	for st, d := range ds {
		m.Streams.Flags[st] = d.Flags
	}
	for slot, id := range mesh.PhysicsDataChunkIDs {
		if id == 0 {
			continue
		}
		if m.Physics[slot], err = chunk.Lookup[*chunk.MeshPhysicsData](c, id); err != nil {
			return nil, fmt.Errorf("physics data %d: %w", slot, err)
		}
	}

	numVerts := int(mesh.NumVertices)
	pool := make([]Vertex, numVerts)
	for i := range pool {
		v := &pool[i]
		v.Position = math.Vec3FromArray(ds[chunk.StreamPositions].Vectors[i])
		if s := ds[chunk.StreamNormals]; s != nil {
			v.Normal = math.Vec3FromArray(s.Vectors[i])
		}
		if s := ds[chunk.StreamTexCoords]; s != nil {
			v.UV = s.TexCoords[i]
		}
		if s := ds[chunk.StreamColors]; s != nil {
			v.Color = s.Colors[i]
		}
		if s := ds[chunk.StreamTangents]; s != nil {
			v.Tangent = s.Tangents[i]
		}
	}

	if bones, ok := chunk.First[*chunk.CompiledBones](c); ok {
		if m.Bones, err = bonesFromChunk(bones); err != nil {
			return nil, err
		}
		if phys, ok := chunk.First[*chunk.CompiledPhysicalBones](c); ok {
			if err := checkPhysical(m.Bones, phys.Bones); err != nil {
				return nil, err
			}
			m.PhysicalBones = phys.Bones
		}
		if err := decodeSkin(c, m, pool, ds[chunk.StreamBoneMapping]); err != nil {
			return nil, err
		}
	}

	indices := ds[chunk.StreamIndices].Indices
	runs, err := materialRuns(subsets.Subsets, len(indices), numVerts)
	if err != nil {
		return nil, err
	}
	if m.Skinned() {
		if err := checkSkinTopology(c, runs, indices, pool); err != nil {
			return nil, err
		}
	}

	for _, r := range runs {
		me := Mesh{
			MaterialID: r.material,
			Vertices:   pool[r.firstVert:r.endVert],
			Indices:    make([]uint32, 0, r.endIndex-r.firstIndex),
		}
		if r.material >= 0 && r.material < len(m.Materials) {
			me.Material = m.Materials[r.material]
		}
		for _, idx := range indices[r.firstIndex:r.endIndex] {
			if int(idx) < r.firstVert || int(idx) >= r.endVert {
				return nil, fmt.Errorf("%w: index %d outside material run vertices [%d,%d)", ErrInconsistent, idx, r.firstVert, r.endVert)
			}
			me.Indices = append(me.Indices, idx-uint32(r.firstVert))
		}
		m.Meshes = append(m.Meshes, me)
	}

	if morphs, ok := chunk.First[*chunk.CompiledMorphTargets](c); ok {
		m.MorphTargets = morphs.Targets
	}
	if proxies, ok := chunk.First[*chunk.CompiledPhysicalProxies](c); ok {
		m.Proxies = proxies.Proxies
	}
	if flags, ok := chunk.First[*chunk.ExportFlags](c); ok {
		m.Export = ExportInfo{
			Flags:             flags.Flags,
			RCVersion:         flags.RCVersion,
			RCVersionString:   flags.RCVersionString,
			AssetAuthorTool:   flags.AssetAuthorTool,
			AuthorToolVersion: flags.AuthorToolVersion,
		}
	}
	if info, ok := chunk.First[*chunk.SourceInfo](c); ok {
		m.SourceInfo = info.Text
	}
	return m, nil
}

// decodeSkin fills vertex weights from the internal skin vertices and checks
// them against the bone mapping stream and the bone boxes.
func decodeSkin(c *chunk.Container, m *Model, pool []Vertex, boneMap *chunk.DataStream) error {
	skin, ok := chunk.First[*chunk.CompiledIntSkinVertices](c)
	if !ok {
		return fmt.Errorf("%w: skeleton without internal skin vertices", chunk.ErrMissingChunk)
	}
	ext2int, ok := chunk.First[*chunk.CompiledExt2IntMap](c)
	if !ok {
		return fmt.Errorf("%w: skeleton without vertex map", chunk.ErrMissingChunk)
	}
	if len(ext2int.Map) != len(pool) {
		return fmt.Errorf("%w: vertex map has %d entries for %d vertices", ErrInconsistent, len(ext2int.Map), len(pool))
	}
	if boneMap == nil {
		return fmt.Errorf("%w: skinned mesh without bone mapping stream", ErrInconsistent)
	}

	for i := range pool {
		iv := int(ext2int.Map[i])
		if iv >= len(skin.Vertices) {
			return fmt.Errorf("%w: vertex %d maps to internal vertex %d of %d", ErrInconsistent, i, iv, len(skin.Vertices))
		}
		sv := skin.Vertices[iv]
		if d := weightSum(sv.Weights) - 1; d > weightTolerance || d < -weightTolerance {
			return fmt.Errorf("%w: internal vertex %d weights sum to %v", ErrInconsistent, iv, weightSum(sv.Weights))
		}

		bm := boneMap.BoneMap[i]
		byteSum := 0
		for k := 0; k < MaxInfluences; k++ {
			byteSum += int(bm.Weights[k])
			if sv.Weights[k] > 0 {
				if int(sv.Bones[k]) >= len(m.Bones) {
					return fmt.Errorf("%w: vertex %d references bone %d of %d", ErrInconsistent, i, sv.Bones[k], len(m.Bones))
				}
				if bm.Bones[k] != sv.Bones[k] {
					return fmt.Errorf("%w: vertex %d bone mapping %v disagrees with skin %v", ErrInconsistent, i, bm.Bones, sv.Bones)
				}
			}
		}
		if byteSum != 255 {
			return fmt.Errorf("%w: vertex %d byte weights sum to %d", ErrInconsistent, i, byteSum)
		}
		pool[i].Bones = sv.Bones
		pool[i].Weights = sv.Weights
		pool[i].SkinColor = sv.Color
	}

	return checkBoneBoxes(c, len(m.Bones), pool)
}

// weightedVertices lists, per bone, the vertices with nonzero weight for it.
// Bone ids in zero-weight slots are ignored; callers check the weighted ones.
func weightedVertices(numBones int, pool []Vertex) [][]uint16 {
	out := make([][]uint16, numBones)
	for i, v := range pool {
		for k, w := range v.Weights {
			if w <= 0 {
				continue
			}
			b := int(v.Bones[k])
			if n := len(out[b]); n == 0 || out[b][n-1] != uint16(i) {
				out[b] = append(out[b], uint16(i))
			}
		}
	}
	return out
}

func checkBoneBoxes(c *chunk.Container, numBones int, pool []Vertex) error {
	weighted := weightedVertices(numBones, pool)
	seen := make([]bool, numBones)
	for _, box := range chunk.All[*chunk.BonesBoxes](c) {
		b := int(box.BoneID)
		if b >= numBones || seen[b] {
			return fmt.Errorf("%w: unexpected bone box for bone %d", ErrInconsistent, b)
		}
		seen[b] = true
		if !slices.Equal(box.Indices, weighted[b]) {
			return fmt.Errorf("%w: bone box %d lists %d vertices, %d are weighted", ErrInconsistent, b, len(box.Indices), len(weighted[b]))
		}
		lo, hi := math.Vec3FromArray(box.Min), math.Vec3FromArray(box.Max)
		for _, idx := range box.Indices {
			p := pool[idx].Position
			if p.Min(lo) != lo || p.Max(hi) != hi {
				return fmt.Errorf("%w: vertex %d lies outside the box of bone %d", ErrInconsistent, idx, b)
			}
		}
	}
	for b, verts := range weighted {
		if len(verts) > 0 && !seen[b] {
			return fmt.Errorf("%w: bone %d has weighted vertices but no box", ErrInconsistent, b)
		}
	}
	return nil
}

// checkSkinTopology verifies internal faces against the mapped triangles and
// subset palettes against the bones their triangles use.
func checkSkinTopology(c *chunk.Container, runs []materialRun, indices []uint32, pool []Vertex) error {
	ext2int, _ := chunk.First[*chunk.CompiledExt2IntMap](c)
	faces, ok := chunk.First[*chunk.CompiledIntFaces](c)
	if !ok {
		return fmt.Errorf("%w: skinned mesh without internal faces", chunk.ErrMissingChunk)
	}
	if len(faces.Faces)*3 != len(indices) {
		return fmt.Errorf("%w: %d internal faces for %d indices", ErrInconsistent, len(faces.Faces), len(indices))
	}

	for _, r := range runs {
		for _, s := range r.subsets {
			palette := paletteBones(s.Bones)
			for t := int(s.FirstIndex) / 3; t < int(s.FirstIndex+s.NumIndices)/3; t++ {
				f := faces.Faces[t]
				if int(f.MaterialID) != r.material {
					return fmt.Errorf("%w: face %d material %d, subset material %d", ErrInconsistent, t, f.MaterialID, r.material)
				}
				for k := 0; k < 3; k++ {
					idx := indices[3*t+k]
					if int(idx) >= len(pool) {
						return fmt.Errorf("%w: index %d of %d vertices", ErrInconsistent, idx, len(pool))
					}
					if f.Indices[k] != ext2int.Map[idx] {
						return fmt.Errorf("%w: face %d does not match mapped triangle", ErrInconsistent, t)
					}
					v := pool[idx]
					for i, w := range v.Weights {
						if w > 0 && !palette[int(v.Bones[i])] {
							return fmt.Errorf("%w: triangle %d uses bone %d missing from its subset palette", ErrInconsistent, t, v.Bones[i])
						}
					}
				}
			}
		}
	}
	return nil
}
