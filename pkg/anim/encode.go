package anim

import (
	"fmt"
	"sort"

	"github.com/Faultbox/chunkforge/pkg/chunk"
)

// EncodeBytes encodes a database as an animation file.
func EncodeBytes(db *Database) ([]byte, error) {
	c, err := Encode(db)
	if err != nil {
		return nil, err
	}
	return c.Encode()
}

// pool collects curves in first-seen order, deduplicated by pointer.
type pool[T any] struct {
	items []*T
	index map[*T]int32
}

func (p *pool[T]) add(v *T) {
	if v == nil {
		return
	}
	if p.index == nil {
		p.index = make(map[*T]int32)
	}
	if _, ok := p.index[v]; ok {
		return
	}
	p.index[v] = int32(len(p.items))
	p.items = append(p.items, v)
}

// group orders the pool by format tag, keeping first-seen order within a tag,
// and renumbers the index.
func (p *pool[T]) group(tag func(*T) uint32) {
	sort.SliceStable(p.items, func(i, j int) bool { return tag(p.items[i]) < tag(p.items[j]) })
	for i, v := range p.items {
		p.index[v] = int32(i)
	}
}

func (p *pool[T]) ref(v *T) int32 {
	if v == nil {
		return chunk.NoTrack
	}
	return p.index[v]
}

func align4(n int) int { return (n + 3) &^ 3 }

// Encode emits a container holding one controller chunk. Pools are gathered
// in clip and track order, grouped by format tag, and laid out in the track
// data as times, then positions, then rotations with each entry 4-byte
// aligned.
func Encode(db *Database) (*chunk.Container, error) {
	var times pool[TimeCurve]
	var positions pool[PositionCurve]
	var rotations pool[RotationCurve]
	for _, clip := range db.Clips {
		for _, t := range clip.Tracks {
			if err := t.check(); err != nil {
				return nil, fmt.Errorf("clip %q controller %#08x: %w", clip.Name, t.ControllerID, err)
			}
			times.add(t.PosTimes)
			positions.add(t.Positions)
			times.add(t.RotTimes)
			rotations.add(t.Rotations)
		}
	}
	times.group(func(c *TimeCurve) uint32 { return uint32(c.Format) })
	positions.group(func(c *PositionCurve) uint32 { return uint32(c.Format) })
	rotations.group(func(c *RotationCurve) uint32 { return uint32(c.Format) })

	ctrl := &chunk.Controller{}
	ctrl.BigEndian = db.BigEndian
	order := ctrl.Order()
	offset := 0

	for i, tc := range times.items {
		e := chunk.TimeEntry{Format: tc.Format}
		if tc.src.matches(db.BigEndian, uint32(tc.Format), tc.Ticks) {
			e.Length, e.Data = tc.src.length, tc.src.data
		} else {
			var err error
			if e, err = chunk.NewTimeEntry(order, tc.Format, tc.Ticks); err != nil {
				return nil, fmt.Errorf("time curve %d: %w", i, err)
			}
		}
		e.Offset = uint32(offset)
		offset = align4(offset + len(e.Data))
		ctrl.Times = append(ctrl.Times, e)
	}
	for i, pc := range positions.items {
		e := chunk.PositionEntry{Format: pc.Format}
		if pc.src.matches(db.BigEndian, uint32(pc.Format), pc.Keys) {
			e.Length, e.Data = pc.src.length, pc.src.data
		} else {
			var err error
			if e, err = chunk.NewPositionEntry(order, pc.Format, pc.Keys); err != nil {
				return nil, fmt.Errorf("position curve %d: %w", i, err)
			}
		}
		e.Offset = uint32(offset)
		offset = align4(offset + len(e.Data))
		ctrl.Positions = append(ctrl.Positions, e)
	}
	for i, rc := range rotations.items {
		e := chunk.RotationEntry{Format: rc.Format}
		if rc.src.matches(db.BigEndian, uint32(rc.Format), rc.Keys) {
			e.Length, e.Data = rc.src.length, rc.src.data
		} else {
			var err error
			if e, err = chunk.NewRotationEntry(order, rc.Format, rc.Keys); err != nil {
				return nil, fmt.Errorf("rotation curve %d: %w", i, err)
			}
		}
		e.Offset = uint32(offset)
		offset = align4(offset + len(e.Data))
		ctrl.Rotations = append(ctrl.Rotations, e)
	}
	ctrl.TrackDataSize = uint32(offset)

	for _, clip := range db.Clips {
		a := chunk.AnimInfo{
			Name:          clip.Name,
			Motion:        clip.Motion,
			FootPlantBits: clip.FootPlantBits,
			Controllers:   make([]chunk.ControllerInfo, len(clip.Tracks)),
		}
		for i, t := range clip.Tracks {
			a.Controllers[i] = chunk.ControllerInfo{
				ControllerID:    t.ControllerID,
				PosKeyTimeTrack: times.ref(t.PosTimes),
				PosTrack:        positions.ref(t.Positions),
				RotKeyTimeTrack: times.ref(t.RotTimes),
				RotTrack:        rotations.ref(t.Rotations),
			}
		}
		ctrl.Animations = append(ctrl.Animations, a)
	}

	c := chunk.New(chunk.FileAnimation)
	c.Add(ctrl)
	return c, nil
}
