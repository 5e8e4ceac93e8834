// Package model assembles the chunks of a geometry file into a skinned
// mesh + skeleton model and emits the full chunk graph back from one.
package model

import (
	"fmt"

	"github.com/Faultbox/chunkforge/pkg/binio"
	"github.com/Faultbox/chunkforge/pkg/chunk"
	"github.com/Faultbox/chunkforge/pkg/math"
)

// Model assembly errors.
var (
	ErrInconsistent = fmt.Errorf("%w: inconsistent model chunks", binio.ErrNotSupported)
	ErrMultiRoot    = fmt.Errorf("%w: skeleton must have exactly one root", binio.ErrNotSupported)
	ErrBadWeights   = fmt.Errorf("%w: skin weights", binio.ErrInvalidData)
	ErrBadIndex     = fmt.Errorf("%w: index out of range", binio.ErrInvalidData)
	ErrPaletteFull  = fmt.Errorf("%w: triangle needs more bones than the palette holds", binio.ErrInvalidData)
)

// MaxInfluences is the number of bone influences per vertex.
const MaxInfluences = 4

// Vertex is one render vertex of a mesh.
type Vertex struct {
	Position math.Vec3
	Normal   math.Vec3
	UV       [2]float32
	Color    [4]uint8
	Tangent  chunk.Tangent // packed tangent + binormal
	Bones    [MaxInfluences]uint16
	Weights  [MaxInfluences]float32 // sum to 1 for skinned models

	SkinColor [4]uint8 // color of the internal skin vertex
}

// Mesh is the geometry of one material.
type Mesh struct {
	MaterialID int
	Material   string
	Vertices   []Vertex
	Indices    []uint32 // triangle list into Vertices
}

// Triangles returns the number of triangles.
func (m *Mesh) Triangles() int { return len(m.Indices) / 3 }

// Bone is a skeleton joint. Bones are kept in breadth-first order, so a
// parent always precedes its children.
type Bone struct {
	ControllerID uint32
	Name         string
	LimbID       int32
	Parent       int // -1 for the root
	Children     []int
	BoneToWorld  math.Mat4 // absolute bind pose
	WorldToBone  math.Mat4 // inverse bind pose
}

// Streams selects the optional per-vertex streams of a model.
type Streams struct {
	Normals   bool
	TexCoords bool
	Colors    bool
	Tangents  bool

	Flags [chunk.StreamTypeCount]uint32 // per stream type
}

// NodeAttrs are the node fields a model carries through unchanged. A model
// without them is placed at the origin.
type NodeAttrs struct {
	Transform     math.Mat4
	Position      [3]float32
	Rotation      [4]float32
	Scale         [3]float32
	PosCtrlID     int32
	RotCtrlID     int32
	SclCtrlID     int32
	IsGroupHead   bool
	IsGroupMember bool
}

// MeshAttrs are the mesh header fields that do not follow from geometry.
type MeshAttrs struct {
	Flags             uint32
	Flags2            uint32
	TexMappingDensity float32
}

// ExportInfo describes the tool that wrote a file.
type ExportInfo struct {
	Flags             uint32
	RCVersion         [4]uint32
	RCVersionString   string
	AssetAuthorTool   uint32
	AuthorToolVersion uint32
}

// Model is a decoded character model.
type Model struct {
	Name         string // node name
	Properties   string // node user properties
	Material     string // material library name
	Materials    []string
	PhysicsTypes []uint32
	Meshes       []Mesh
	Bones        []Bone

	// PhysicalBones are stored depth-first; see PhysicalOrder.
	PhysicalBones []chunk.PhysicalBone
	MorphTargets  []chunk.MorphTarget
	Proxies       []chunk.PhysicalProxy

	// Physics holds the physics geometry per mesh slot, nil for empty slots.
	Physics [4]*chunk.MeshPhysicsData

	Node       *NodeAttrs
	Mesh       MeshAttrs
	Streams    Streams
	Export     ExportInfo
	SourceInfo string
	BigEndian  bool
}

// Skinned reports whether the model has a skeleton.
func (m *Model) Skinned() bool { return len(m.Bones) > 0 }

// LocalBind returns the bind transform of bone i relative to its parent.
func (m *Model) LocalBind(i int) math.Mat4 {
	b := m.Bones[i]
	if b.Parent < 0 {
		return b.BoneToWorld
	}
	return m.Bones[b.Parent].WorldToBone.Mul(b.BoneToWorld)
}

// BoneByName returns the index of the named bone, or -1.
func (m *Model) BoneByName(name string) int {
	for i, b := range m.Bones {
		if b.Name == name {
			return i
		}
	}
	return -1
}
