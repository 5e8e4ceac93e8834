package chunk

import (
	"fmt"
	"sort"

	"github.com/Faultbox/chunkforge/pkg/binio"
)

// Chunk is a typed, sized record inside a container.
//
// Decode reads exactly size bytes from r, which is bounded to the chunk and
// already uses the chunk's byte order. Encode writes the chunk body in w's
// byte order.
type Chunk interface {
	ChunkHeader() *Header
	Kind() Kind
	Decode(r *binio.Reader, size int) error
	Encode(w *binio.Writer) error
}

// registry maps every supported (type, version) pair to a constructor.
var registry = func() map[Kind]func() Chunk {
	ctors := []func() Chunk{
		func() Chunk { return new(Mesh) },
		func() Chunk { return new(Node) },
		func() Chunk { return new(Controller) },
		func() Chunk { return new(Timing) },
		func() Chunk { return new(SourceInfo) },
		func() Chunk { return new(MtlName) },
		func() Chunk { return new(ExportFlags) },
		func() Chunk { return new(DataStream) },
		func() Chunk { return new(MeshSubsets) },
		func() Chunk { return new(BonesBoxes) },
		func() Chunk { return new(MeshPhysicsData) },
		func() Chunk { return new(CompiledBones) },
		func() Chunk { return new(CompiledPhysicalBones) },
		func() Chunk { return new(CompiledMorphTargets) },
		func() Chunk { return new(CompiledPhysicalProxies) },
		func() Chunk { return new(CompiledIntFaces) },
		func() Chunk { return new(CompiledIntSkinVertices) },
		func() Chunk { return new(CompiledExt2IntMap) },
	}
	m := make(map[Kind]func() Chunk, len(ctors))
	for _, ctor := range ctors {
		m[ctor().Kind()] = ctor
	}
	return m
}()

// NewChunk returns an empty chunk for the (type, version) pair.
func NewChunk(k Kind) (Chunk, error) {
	ctor, ok := registry[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChunk, k)
	}
	c := ctor()
	h := c.ChunkHeader()
	h.Type, h.Version = k.Type, k.Version
	return c, nil
}

// Supported returns every registered kind, ordered by type then version.
func Supported() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if kinds[i].Type != kinds[j].Type {
			return kinds[i].Type < kinds[j].Type
		}
		return kinds[i].Version < kinds[j].Version
	})
	return kinds
}

// WrittenSize returns the number of bytes c encodes to in its own byte order.
func WrittenSize(c Chunk) (int, error) {
	w := binio.NewWriter(c.ChunkHeader().Order())
	if err := c.Encode(w); err != nil {
		return 0, err
	}
	return w.Len(), nil
}

// EncodeChunk returns the encoded body of c in its own byte order.
func EncodeChunk(c Chunk) ([]byte, error) {
	w := binio.NewWriter(c.ChunkHeader().Order())
	if err := c.Encode(w); err != nil {
		return nil, fmt.Errorf("encode %s chunk %d: %w", c.Kind().Type, c.ChunkHeader().ID, err)
	}
	return w.Bytes(), nil
}
