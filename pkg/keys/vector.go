package keys

import (
	"github.com/Faultbox/chunkforge/pkg/binio"
	"github.com/Faultbox/chunkforge/pkg/math"
)

// ReadPositions decodes n position keys stored in format f.
func ReadPositions(r *binio.Reader, f Format, n int) ([]math.Vec3, error) {
	size, err := PositionKeySize(f)
	if err != nil {
		return nil, err
	}
	if n*size > r.Len() {
		r.Skip(n * size)
		return nil, r.Err()
	}
	out := make([]math.Vec3, n)
	for i := range out {
		out[i] = math.Vec3FromArray(r.Vec3())
	}
	return out, r.Err()
}

// WritePositions encodes position keys in format f.
func WritePositions(w *binio.Writer, f Format, keys []math.Vec3) error {
	if _, err := PositionKeySize(f); err != nil {
		return err
	}
	for _, k := range keys {
		w.Vec3(k.Array())
	}
	return w.Err()
}
