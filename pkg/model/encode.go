package model

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/chunkforge/pkg/chunk"
	"github.com/Faultbox/chunkforge/pkg/math"
)

// Options control model encoding.
type Options struct {
	PaletteSize int         // bones per subset, DefaultPaletteSize when 0
	Logger      *zap.Logger // receives partitioner events, may be nil
}

// EncodeBytes encodes a model as a geometry file.
func EncodeBytes(m *Model, opts Options) ([]byte, error) {
	c, err := Encode(m, opts)
	if err != nil {
		return nil, err
	}
	return c.Encode()
}

// skinKey identifies a deduplicated internal skin vertex.
type skinKey struct {
	pos     math.Vec3
	bones   [MaxInfluences]uint16
	weights [MaxInfluences]float32
	color   [4]uint8
}

// encoder holds the flattened vertex and index pools of a model.
type encoder struct {
	m       *Model
	opts    Options
	log     *zap.Logger
	verts   []Vertex
	indices []uint32
	subsets []chunk.MeshSubset
}

// flatten concatenates the meshes into shared pools and partitions them.
func (e *encoder) flatten() error {
	for mi := range e.m.Meshes {
		me := e.m.Meshes[mi]
		if len(me.Indices) == 0 || len(me.Indices)%3 != 0 {
			return fmt.Errorf("%w: mesh %d has %d indices", ErrBadIndex, mi, len(me.Indices))
		}
		used := make([]bool, len(me.Vertices))
		for _, idx := range me.Indices {
			if int(idx) >= len(me.Vertices) {
				return fmt.Errorf("%w: mesh %d index %d of %d vertices", ErrBadIndex, mi, idx, len(me.Vertices))
			}
			used[idx] = true
		}
		for vi, u := range used {
			if !u {
				return fmt.Errorf("%w: mesh %d vertex %d is not referenced by any triangle", ErrBadIndex, mi, vi)
			}
		}

		verts := append([]Vertex(nil), me.Vertices...)
		if e.m.Skinned() {
			for vi := range verts {
				v := &verts[vi]
				if err := normalizeWeights(v); err != nil {
					return fmt.Errorf("mesh %d vertex %d: %w", mi, vi, err)
				}
				for k, w := range v.Weights {
					if w > 0 && int(v.Bones[k]) >= len(e.m.Bones) {
						return fmt.Errorf("%w: mesh %d vertex %d bone %d of %d", ErrBadIndex, mi, vi, v.Bones[k], len(e.m.Bones))
					}
				}
			}
		} else {
			for vi := range verts {
				verts[vi].Bones = [MaxInfluences]uint16{}
				verts[vi].Weights = [MaxInfluences]float32{}
			}
		}
		local := Mesh{MaterialID: me.MaterialID, Vertices: verts, Indices: me.Indices}

		subsets, err := Partition(&local, e.opts.PaletteSize, e.log)
		if err != nil {
			return fmt.Errorf("mesh %d: %w", mi, err)
		}
		vbase, ibase := int32(len(e.verts)), int32(len(e.indices))
		for _, s := range subsets {
			s.FirstIndex += ibase
			s.FirstVertex += vbase
			e.subsets = append(e.subsets, s)
		}
		for _, idx := range me.Indices {
			e.indices = append(e.indices, idx+uint32(vbase))
		}
		e.verts = append(e.verts, verts...)
	}
	if len(e.verts) == 0 {
		return fmt.Errorf("%w: model has no geometry", ErrBadIndex)
	}
	if e.m.Skinned() && len(e.verts) > 0x10000 {
		return fmt.Errorf("%w: %d vertices exceed the 16-bit skin vertex map", ErrBadIndex, len(e.verts))
	}
	return nil
}

func (e *encoder) streams() []*chunk.DataStream {
	n := len(e.verts)
	var out []*chunk.DataStream
	add := func(ds *chunk.DataStream) { out = append(out, ds) }

	pos := &chunk.DataStream{StreamType: chunk.StreamPositions, Vectors: make([][3]float32, n)}
	for i, v := range e.verts {
		pos.Vectors[i] = v.Position.Array()
	}
	add(pos)

	if e.m.Streams.Normals {
		ds := &chunk.DataStream{StreamType: chunk.StreamNormals, Vectors: make([][3]float32, n)}
		for i, v := range e.verts {
			ds.Vectors[i] = v.Normal.Array()
		}
		add(ds)
	}
	if e.m.Streams.TexCoords {
		ds := &chunk.DataStream{StreamType: chunk.StreamTexCoords, TexCoords: make([][2]float32, n)}
		for i, v := range e.verts {
			ds.TexCoords[i] = v.UV
		}
		add(ds)
	}
	if e.m.Streams.Colors {
		ds := &chunk.DataStream{StreamType: chunk.StreamColors, Colors: make([][4]uint8, n)}
		for i, v := range e.verts {
			ds.Colors[i] = v.Color
		}
		add(ds)
	}

	idx := &chunk.DataStream{StreamType: chunk.StreamIndices, ElementSize: 2, Indices: e.indices}
	if n > 0xFFFF {
		idx.ElementSize = 4
	}
	add(idx)

	if e.m.Streams.Tangents {
		ds := &chunk.DataStream{StreamType: chunk.StreamTangents, Tangents: make([]chunk.Tangent, n)}
		for i, v := range e.verts {
			ds.Tangents[i] = v.Tangent
		}
		add(ds)
	}
	if e.m.Skinned() {
		ds := &chunk.DataStream{StreamType: chunk.StreamBoneMapping, BoneMap: make([]chunk.BoneMapping, n)}
		for i, v := range e.verts {
			ds.BoneMap[i] = chunk.BoneMapping{Bones: v.Bones, Weights: QuantizeWeights(v.Weights)}
		}
		add(ds)
	}
	return out
}

// skin builds the internal skin vertices, the external-to-internal map and
// the internal faces.
func (e *encoder) skin() (*chunk.CompiledIntSkinVertices, *chunk.CompiledExt2IntMap, *chunk.CompiledIntFaces) {
	skin := &chunk.CompiledIntSkinVertices{}
	ext2int := &chunk.CompiledExt2IntMap{Map: make([]uint16, len(e.verts))}
	seen := make(map[skinKey]uint16)
	for i, v := range e.verts {
		key := skinKey{pos: v.Position, bones: v.Bones, weights: v.Weights, color: v.SkinColor}
		iv, ok := seen[key]
		if !ok {
			iv = uint16(len(skin.Vertices))
			seen[key] = iv
			skin.Vertices = append(skin.Vertices, chunk.IntSkinVertex{
				Position: v.Position.Array(),
				Bones:    v.Bones,
				Weights:  v.Weights,
				Color:    v.SkinColor,
			})
		}
		ext2int.Map[i] = iv
	}

	faces := &chunk.CompiledIntFaces{Faces: make([]chunk.IntFace, 0, len(e.indices)/3)}
	for _, s := range e.subsets {
		for t := s.FirstIndex / 3; t < (s.FirstIndex+s.NumIndices)/3; t++ {
			faces.Faces = append(faces.Faces, chunk.IntFace{
				Indices: [3]uint16{
					ext2int.Map[e.indices[3*t]],
					ext2int.Map[e.indices[3*t+1]],
					ext2int.Map[e.indices[3*t+2]],
				},
				MaterialID: uint16(s.MaterialID),
			})
		}
	}
	return skin, ext2int, faces
}

// boneBoxes emits one box per bone with at least one weighted vertex.
func (e *encoder) boneBoxes() []*chunk.BonesBoxes {
	var out []*chunk.BonesBoxes
	for b, verts := range weightedVertices(len(e.m.Bones), e.verts) {
		if len(verts) == 0 {
			continue
		}
		lo := e.verts[verts[0]].Position
		hi := lo
		for _, idx := range verts {
			lo = lo.Min(e.verts[idx].Position)
			hi = hi.Max(e.verts[idx].Position)
		}
		out = append(out, &chunk.BonesBoxes{BoneID: uint32(b), Min: lo.Array(), Max: hi.Array(), Indices: verts})
	}
	return out
}

// Encode emits the chunk graph of a model. Chunk ids follow a fixed order:
// material, node, mesh, subsets, data streams, physics data, skeleton,
// skinning, bone boxes, morph targets, proxies, export flags and source info.
func Encode(m *Model, opts Options) (*chunk.Container, error) {
	e := &encoder{m: m, opts: opts, log: opts.Logger}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if err := e.flatten(); err != nil {
		return nil, err
	}
	if len(m.Materials) != len(m.PhysicsTypes) {
		return nil, fmt.Errorf("%w: %d materials, %d physics types", chunk.ErrInvalidData, len(m.Materials), len(m.PhysicsTypes))
	}

	var compiled *chunk.CompiledBones
	if m.Skinned() {
		var err error
		if compiled, err = bonesToChunk(m.Bones); err != nil {
			return nil, err
		}
		if err := checkPhysical(m.Bones, m.PhysicalBones); err != nil {
			return nil, err
		}
	}

	c := chunk.New(chunk.FileGeometry)
	add := func(ch chunk.Chunk) int32 {
		ch.ChunkHeader().BigEndian = m.BigEndian
		return c.Add(ch)
	}

	mtlID := add(&chunk.MtlName{Name: m.Material, SubMaterials: m.Materials, PhysicsTypes: m.PhysicsTypes})
	attrs := m.Node
	if attrs == nil {
		attrs = &NodeAttrs{Transform: math.Identity(), Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}}
	}
	node := &chunk.Node{
		Name:          m.Name,
		ParentID:      -1,
		MaterialID:    mtlID,
		IsGroupHead:   attrs.IsGroupHead,
		IsGroupMember: attrs.IsGroupMember,
		Transform:     attrs.Transform,
		Position:      attrs.Position,
		Rotation:      attrs.Rotation,
		Scale:         attrs.Scale,
		PosCtrlID:     attrs.PosCtrlID,
		RotCtrlID:     attrs.RotCtrlID,
		SclCtrlID:     attrs.SclCtrlID,
		Properties:    m.Properties,
	}
	add(node)

	mesh := &chunk.Mesh{
		Flags:             m.Mesh.Flags,
		Flags2:            m.Mesh.Flags2,
		NumVertices:       int32(len(e.verts)),
		NumIndices:        int32(len(e.indices)),
		NumSubsets:        int32(len(e.subsets)),
		TexMappingDensity: m.Mesh.TexMappingDensity,
	}
	node.ObjectID = add(mesh)

	lo, hi := e.verts[0].Position, e.verts[0].Position
	for _, v := range e.verts {
		lo, hi = lo.Min(v.Position), hi.Max(v.Position)
	}
	mesh.BBoxMin, mesh.BBoxMax = lo.Array(), hi.Array()

	subsets := &chunk.MeshSubsets{Subsets: e.subsets}
	if m.Skinned() {
		subsets.Flags = chunk.SubsetBoneIDs
	}
	mesh.SubsetsChunkID = add(subsets)
	for _, ds := range e.streams() {
		ds.Flags = m.Streams.Flags[ds.StreamType]
		mesh.StreamChunkIDs[ds.StreamType] = add(ds)
	}
	for slot, p := range m.Physics {
		if p != nil {
			pd := *p
			pd.Header = chunk.Header{}
			mesh.PhysicsDataChunkIDs[slot] = add(&pd)
		}
	}

	if m.Skinned() {
		add(compiled)
		if len(m.PhysicalBones) > 0 {
			add(&chunk.CompiledPhysicalBones{Bones: m.PhysicalBones})
		}
		skin, ext2int, faces := e.skin()
		add(skin)
		add(faces)
		add(ext2int)
		for _, box := range e.boneBoxes() {
			add(box)
		}
	}
	if len(m.MorphTargets) > 0 {
		add(&chunk.CompiledMorphTargets{Targets: m.MorphTargets})
	}
	if len(m.Proxies) > 0 {
		add(&chunk.CompiledPhysicalProxies{Proxies: m.Proxies})
	}
	add(&chunk.ExportFlags{
		Flags:             m.Export.Flags,
		RCVersion:         m.Export.RCVersion,
		RCVersionString:   m.Export.RCVersionString,
		AssetAuthorTool:   m.Export.AssetAuthorTool,
		AuthorToolVersion: m.Export.AuthorToolVersion,
	})
	if m.SourceInfo != "" {
		add(&chunk.SourceInfo{Text: m.SourceInfo})
	}

	e.log.Debug("model encoded",
		zap.Int("meshes", len(m.Meshes)),
		zap.Int("subsets", len(e.subsets)),
		zap.Int("vertices", len(e.verts)),
		zap.Int("bones", len(m.Bones)),
		zap.Int("chunks", c.Len()),
	)
	return c, nil
}
