package chunk

import (
	"encoding/binary"
	"fmt"

	"github.com/Faultbox/chunkforge/pkg/binio"
)

// Magic starts every chunk file.
const Magic = "CryTek\x00\x00"

// FileType tags the content of a chunk file.
type FileType uint32

const (
	FileGeometry  FileType = 0xFFFF0000
	FileAnimation FileType = 0xFFFF0001
)

// String returns the file type name.
func (t FileType) String() string {
	switch t {
	case FileGeometry:
		return "Geometry"
	case FileAnimation:
		return "Animation"
	default:
		return fmt.Sprintf("Unknown(%#x)", uint32(t))
	}
}

// FileVersion is the only container version in use.
const FileVersion uint32 = 0x745

// Container layout constants.
const (
	tableOffset     = 20 // position of the chunk count
	tableEntrySize  = 20
	chunkAlignment  = 4
	bigEndianFlag   = 0x80000000
	versionMask     = 0x7fffffff
)

// Type is a chunk type tag.
type Type uint32

// Chunk type tags.
const (
	TypeMesh                    Type = 0xCCCC0000
	TypeNode                    Type = 0xCCCC000B
	TypeController              Type = 0xCCCC000D
	TypeTiming                  Type = 0xCCCC000E
	TypeSourceInfo              Type = 0xCCCC0013
	TypeMtlName                 Type = 0xCCCC0014
	TypeExportFlags             Type = 0xCCCC0015
	TypeDataStream              Type = 0xCCCC0016
	TypeMeshSubsets             Type = 0xCCCC0017
	TypeBonesBoxes              Type = 0xCCCC0018
	TypeMeshPhysicsData         Type = 0xCCCC0019
	TypeCompiledBones           Type = 0xCCCC1000
	TypeCompiledPhysicalBones   Type = 0xCCCC1001
	TypeCompiledMorphTargets    Type = 0xCCCC1002
	TypeCompiledPhysicalProxies Type = 0xCCCC1003
	TypeCompiledIntFaces        Type = 0xCCCC1004
	TypeCompiledIntSkinVertices Type = 0xCCCC1005
	TypeCompiledExt2IntMap      Type = 0xCCCC1006
)

var typeNames = map[Type]string{
	TypeMesh:                    "Mesh",
	TypeNode:                    "Node",
	TypeController:              "Controller",
	TypeTiming:                  "Timing",
	TypeSourceInfo:              "SourceInfo",
	TypeMtlName:                 "MtlName",
	TypeExportFlags:             "ExportFlags",
	TypeDataStream:              "DataStream",
	TypeMeshSubsets:             "MeshSubsets",
	TypeBonesBoxes:              "BonesBoxes",
	TypeMeshPhysicsData:         "MeshPhysicsData",
	TypeCompiledBones:           "CompiledBones",
	TypeCompiledPhysicalBones:   "CompiledPhysicalBones",
	TypeCompiledMorphTargets:    "CompiledMorphTargets",
	TypeCompiledPhysicalProxies: "CompiledPhysicalProxies",
	TypeCompiledIntFaces:        "CompiledIntFaces",
	TypeCompiledIntSkinVertices: "CompiledIntSkinVertices",
	TypeCompiledExt2IntMap:      "CompiledExt2IntMap",
}

// String returns the chunk type name.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%#x)", uint32(t))
}

// Kind identifies a chunk decoder.
type Kind struct {
	Type    Type
	Version uint32
}

// String formats the kind as "Type/0xVersion".
func (k Kind) String() string {
	return fmt.Sprintf("%s/%#x", k.Type, k.Version)
}

// Header is the identity record shared by every chunk.
type Header struct {
	Type      Type
	Version   uint32
	Offset    int32 // byte offset in the file
	ID        int32 // unique per container, used as a reference by other chunks
	Size      int32 // declared size from the chunk table
	BigEndian bool  // chunk fields are big-endian
}

// ChunkHeader returns h. Chunk types embed Header to satisfy Chunk.
func (h *Header) ChunkHeader() *Header { return h }

// Order returns the byte order of the chunk's fields.
func (h *Header) Order() binary.ByteOrder {
	if h.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (h *Header) versionRaw() uint32 {
	v := h.Version & versionMask
	if h.BigEndian {
		v |= bigEndianFlag
	}
	return v
}

func (h *Header) setVersionRaw(raw uint32) {
	h.BigEndian = raw&bigEndianFlag != 0
	h.Version = raw & versionMask
}

// ReadHeader decodes a {type, versionRaw, offset, id} record.
func ReadHeader(r *binio.Reader) (Header, error) {
	var h Header
	h.Type = Type(r.U32())
	h.setVersionRaw(r.U32())
	h.Offset = r.I32()
	h.ID = r.I32()
	return h, r.Err()
}

// WriteHeader encodes a {type, versionRaw, offset, id} record.
func WriteHeader(w *binio.Writer, h Header) error {
	w.U32(uint32(h.Type))
	w.U32(h.versionRaw())
	w.I32(h.Offset)
	w.I32(h.ID)
	return w.Err()
}

func readTableEntry(r *binio.Reader) (Header, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return h, err
	}
	h.Size = r.I32()
	return h, r.Err()
}

func writeTableEntry(w *binio.Writer, h Header) error {
	if err := WriteHeader(w, h); err != nil {
		return err
	}
	w.I32(h.Size)
	return w.Err()
}

func align(n int) int {
	return (n + chunkAlignment - 1) &^ (chunkAlignment - 1)
}
