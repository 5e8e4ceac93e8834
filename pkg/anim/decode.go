package anim

import (
	"fmt"
	"slices"

	"github.com/Faultbox/chunkforge/pkg/chunk"
)

// DecodeBytes parses an animation file.
func DecodeBytes(data []byte) (*Database, error) {
	c, err := chunk.Decode(data)
	if err != nil {
		return nil, err
	}
	return Decode(c)
}

// Decode builds the clips of the first controller chunk in c. Tracks that
// reference the same pool entry share the curve.
func Decode(c *chunk.Container) (*Database, error) {
	ctrl, ok := chunk.First[*chunk.Controller](c)
	if !ok {
		return nil, ErrNoController
	}
	order := ctrl.Order()
	db := &Database{BigEndian: ctrl.BigEndian}

	times := make([]*TimeCurve, len(ctrl.Times))
	for i, e := range ctrl.Times {
		ticks, err := e.Ticks(order)
		if err != nil {
			return nil, fmt.Errorf("time entry %d: %w", i, err)
		}
		times[i] = &TimeCurve{
			Format: e.Format,
			Ticks:  ticks,
			src:    remember(db.BigEndian, uint32(e.Format), e.Length, e.Data, ticks),
		}
	}
	positions := make([]*PositionCurve, len(ctrl.Positions))
	for i, e := range ctrl.Positions {
		k, err := e.Keys(order)
		if err != nil {
			return nil, fmt.Errorf("position entry %d: %w", i, err)
		}
		positions[i] = &PositionCurve{
			Format: e.Format,
			Keys:   k,
			src:    remember(db.BigEndian, uint32(e.Format), e.Length, e.Data, k),
		}
	}
	rotations := make([]*RotationCurve, len(ctrl.Rotations))
	for i, e := range ctrl.Rotations {
		k, err := e.Keys(order)
		if err != nil {
			return nil, fmt.Errorf("rotation entry %d: %w", i, err)
		}
		rotations[i] = &RotationCurve{
			Format: e.Format,
			Keys:   k,
			src:    remember(db.BigEndian, uint32(e.Format), e.Length, e.Data, k),
		}
	}

	for _, a := range ctrl.Animations {
		clip := &Clip{
			Name:          a.Name,
			Motion:        a.Motion,
			FootPlantBits: a.FootPlantBits,
			Tracks:        make([]*Track, 0, len(a.Controllers)),
		}
		for _, ci := range a.Controllers {
			t := &Track{
				ControllerID: ci.ControllerID,
				PosTimes:     pick(times, ci.PosKeyTimeTrack),
				Positions:    pick(positions, ci.PosTrack),
				RotTimes:     pick(times, ci.RotKeyTimeTrack),
				Rotations:    pick(rotations, ci.RotTrack),
			}
			if err := t.check(); err != nil {
				return nil, fmt.Errorf("clip %q controller %#08x: %w", a.Name, ci.ControllerID, err)
			}
			clip.Tracks = append(clip.Tracks, t)
		}
		db.Clips = append(db.Clips, clip)
	}
	return db, nil
}

func remember[K comparable](bigEndian bool, format uint32, length int, data []byte, k []K) *stored[K] {
	return &stored[K]{bigEndian: bigEndian, format: format, length: length, data: data, keys: slices.Clone(k)}
}

// pick resolves a pool index; the controller chunk has already range-checked
// it against the pool.
func pick[T any](pool []*T, idx int32) *T {
	if idx == chunk.NoTrack {
		return nil
	}
	return pool[idx]
}
