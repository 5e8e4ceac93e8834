// Package anim cross-links the pooled key arrays of a controller chunk into
// per-clip, per-bone animation tracks and pools them back on encode.
//
// Curves are shared by pointer. Two tracks that reference the same pool entry
// hold the same *TimeCurve, *PositionCurve or *RotationCurve, and encoding
// deduplicates by pointer only: value-equal curves that are distinct objects
// get distinct pool entries.
package anim

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/Faultbox/chunkforge/pkg/binio"
	"github.com/Faultbox/chunkforge/pkg/chunk"
	"github.com/Faultbox/chunkforge/pkg/keys"
	"github.com/Faultbox/chunkforge/pkg/math"
)

// Animation assembly errors.
var (
	ErrNoController = fmt.Errorf("%w: no controller chunk", chunk.ErrMissingChunk)
	ErrKeyCount     = fmt.Errorf("%w: curve and time key counts differ", binio.ErrInvalidData)
	ErrUnpaired     = fmt.Errorf("%w: curve without time keys", binio.ErrInvalidData)
)

// stored remembers the pool entry a curve was decoded from, so an unchanged
// curve encodes to the same bytes.
type stored[K comparable] struct {
	bigEndian bool
	format    uint32
	length    int
	data      []byte
	keys      []K
}

func (s *stored[K]) matches(bigEndian bool, format uint32, k []K) bool {
	return s != nil && s.bigEndian == bigEndian && s.format == format && slices.Equal(s.keys, k)
}

// TimeCurve is a time key pool entry. Ticks increase strictly.
type TimeCurve struct {
	Format keys.TimeFormat
	Ticks  []float32

	src *stored[float32]
}

// PositionCurve is a position key pool entry.
type PositionCurve struct {
	Format keys.Format
	Keys   []math.Vec3

	src *stored[math.Vec3]
}

// RotationCurve is a rotation key pool entry.
type RotationCurve struct {
	Format keys.Format
	Keys   []math.Quat

	src *stored[math.Quat]
}

// Track animates one bone. Either curve of a pair may be nil, but a curve
// always comes with its time keys.
type Track struct {
	ControllerID uint32
	PosTimes     *TimeCurve
	Positions    *PositionCurve
	RotTimes     *TimeCurve
	Rotations    *RotationCurve
}

// Clip is one named animation.
type Clip struct {
	Name          string
	Motion        chunk.MotionParams
	FootPlantBits []byte
	Tracks        []*Track
}

// Database is the set of clips stored in one controller chunk.
type Database struct {
	Clips     []*Clip
	BigEndian bool
}

// Clip returns the named clip, or nil.
func (db *Database) Clip(name string) *Clip {
	for _, c := range db.Clips {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Track returns the track of the bone with the given controller id, or nil.
func (c *Clip) Track(controllerID uint32) *Track {
	for _, t := range c.Tracks {
		if t.ControllerID == controllerID {
			return t
		}
	}
	return nil
}

// Duration is the length of the clip's time range.
func (c *Clip) Duration() time.Duration {
	ticks := float64(c.Motion.End - c.Motion.Start)
	return time.Duration(ticks * float64(c.Motion.SecsPerTick) * float64(time.Second))
}

// segment finds the keys surrounding tick and the blend factor between them.
func segment(ticks []float32, tick float32) (int, int, float32) {
	n := len(ticks)
	i := sort.Search(n, func(i int) bool { return ticks[i] > tick })
	switch {
	case i == 0:
		return 0, 0, 0
	case i == n:
		return n - 1, n - 1, 0
	}
	a, b := ticks[i-1], ticks[i]
	return i - 1, i, (tick - a) / (b - a)
}

// Position samples the position curve at tick, clamping outside the keyed
// range. ok is false when the track has no position curve.
func (t *Track) Position(tick float32) (p math.Vec3, ok bool) {
	if t.Positions == nil || t.PosTimes == nil || len(t.Positions.Keys) == 0 {
		return p, false
	}
	a, b, f := segment(t.PosTimes.Ticks, tick)
	k := t.Positions.Keys
	return math.Vec3FromArray(math.LerpVec3(k[a].Array(), k[b].Array(), f)), true
}

// Rotation samples the rotation curve at tick with spherical interpolation.
func (t *Track) Rotation(tick float32) (q math.Quat, ok bool) {
	if t.Rotations == nil || t.RotTimes == nil || len(t.Rotations.Keys) == 0 {
		return q, false
	}
	a, b, f := segment(t.RotTimes.Ticks, tick)
	k := t.Rotations.Keys
	return k[a].Slerp(k[b], f), true
}

func checkPair(times *TimeCurve, n int, hasCurve bool, what string) error {
	if !hasCurve {
		return nil
	}
	if times == nil {
		return fmt.Errorf("%w: %s", ErrUnpaired, what)
	}
	if len(times.Ticks) != n {
		return fmt.Errorf("%w: %d %s keys, %d times", ErrKeyCount, n, what, len(times.Ticks))
	}
	return nil
}

// check verifies that each curve of the track has matching time keys.
func (t *Track) check() error {
	var nPos, nRot int
	if t.Positions != nil {
		nPos = len(t.Positions.Keys)
	}
	if t.Rotations != nil {
		nRot = len(t.Rotations.Keys)
	}
	if err := checkPair(t.PosTimes, nPos, t.Positions != nil, "position"); err != nil {
		return err
	}
	return checkPair(t.RotTimes, nRot, t.Rotations != nil, "rotation")
}
