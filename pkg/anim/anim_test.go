package anim

import (
	"bytes"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/Faultbox/chunkforge/pkg/chunk"
	"github.com/Faultbox/chunkforge/pkg/keys"
	"github.com/Faultbox/chunkforge/pkg/math"
)

func walkDatabase() *Database {
	shared := &TimeCurve{Format: keys.TimeUInt16, Ticks: []float32{0, 10, 20}}
	turn := &RotationCurve{Format: keys.NoCompressQuat, Keys: []math.Quat{
		math.QuatIdentity(),
		math.QuatFromAxisAngle(math.Vec3{Z: 1}, 1),
		math.QuatFromAxisAngle(math.Vec3{Z: 1}, 2),
	}}
	return &Database{Clips: []*Clip{
		{
			Name: "walk",
			Motion: chunk.MotionParams{
				TicksPerFrame: 4,
				SecsPerTick:   1.0 / 32,
				Start:         0,
				End:           32,
				MoveSpeed:     1.5,
			},
			FootPlantBits: []byte{1, 0, 1},
			Tracks: []*Track{
				{
					ControllerID: 0x100,
					PosTimes:     shared,
					Positions:    &PositionCurve{Format: keys.NoCompressVec3, Keys: []math.Vec3{{}, {X: 1}, {X: 2}}},
					RotTimes:     shared,
					Rotations:    turn,
				},
				{
					ControllerID: 0x200,
					RotTimes:     &TimeCurve{Format: keys.TimeF32, Ticks: []float32{0, 20}},
					Rotations:    &RotationCurve{Format: keys.NoCompressQuat, Keys: []math.Quat{math.QuatIdentity(), math.QuatIdentity()}},
				},
			},
		},
		{
			Name: "idle",
			Tracks: []*Track{
				{ControllerID: 0x100, RotTimes: shared, Rotations: turn},
			},
		},
	}}
}

func TestEncodePools(t *testing.T) {
	c, err := Encode(walkDatabase())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if c.FileType != chunk.FileAnimation || c.Len() != 1 {
		t.Fatalf("container %v with %d chunks", c.FileType, c.Len())
	}
	ctrl, _ := chunk.First[*chunk.Controller](c)

	if len(ctrl.Times) != 2 || len(ctrl.Positions) != 1 || len(ctrl.Rotations) != 2 {
		t.Fatalf("pools = %d times, %d positions, %d rotations", len(ctrl.Times), len(ctrl.Positions), len(ctrl.Rotations))
	}
	// F32 sorts before UInt16 even though the UInt16 curve was seen first.
	if ctrl.Times[0].Format != keys.TimeF32 || ctrl.Times[1].Format != keys.TimeUInt16 {
		t.Errorf("time formats = %v, %v", ctrl.Times[0].Format, ctrl.Times[1].Format)
	}

	// Offsets: F32 times 8 bytes, UInt16 times 6 bytes padded to 8, then the
	// 36-byte position entry, then two rotation entries of 48 and 32 bytes.
	wantOffsets := []uint32{0, 8, 16, 52, 100}
	var got []uint32
	for _, e := range ctrl.Times {
		got = append(got, e.Offset)
	}
	for _, e := range ctrl.Positions {
		got = append(got, e.Offset)
	}
	for _, e := range ctrl.Rotations {
		got = append(got, e.Offset)
	}
	if !slices.Equal(got, wantOffsets) {
		t.Errorf("offsets = %v, want %v", got, wantOffsets)
	}
	if ctrl.TrackDataSize != 132 {
		t.Errorf("track data size = %d, want 132", ctrl.TrackDataSize)
	}

	walk := ctrl.Animations[0].Controllers
	want := []chunk.ControllerInfo{
		{ControllerID: 0x100, PosKeyTimeTrack: 1, PosTrack: 0, RotKeyTimeTrack: 1, RotTrack: 0},
		{ControllerID: 0x200, PosKeyTimeTrack: chunk.NoTrack, PosTrack: chunk.NoTrack, RotKeyTimeTrack: 0, RotTrack: 1},
	}
	if !slices.Equal(walk, want) {
		t.Errorf("walk controllers = %+v, want %+v", walk, want)
	}
	idle := ctrl.Animations[1].Controllers[0]
	if idle.RotKeyTimeTrack != 1 || idle.RotTrack != 0 || idle.PosTrack != chunk.NoTrack {
		t.Errorf("idle controller = %+v", idle)
	}
}

func TestGroupByFormatIsStable(t *testing.T) {
	times := &TimeCurve{Format: keys.TimeF32, Ticks: []float32{0}}
	rot := func(f keys.Format) *RotationCurve {
		return &RotationCurve{Format: f, Keys: []math.Quat{math.QuatIdentity()}}
	}
	a, b, c := rot(keys.SmallTree64BitQuat), rot(keys.NoCompressQuat), rot(keys.SmallTree64BitQuat)
	db := &Database{Clips: []*Clip{{Name: "pose", Tracks: []*Track{
		{ControllerID: 1, RotTimes: times, Rotations: a},
		{ControllerID: 2, RotTimes: times, Rotations: b},
		{ControllerID: 3, RotTimes: times, Rotations: c},
	}}}}
	cont, err := Encode(db)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ctrl, _ := chunk.First[*chunk.Controller](cont)
	var refs []int32
	for _, ci := range ctrl.Animations[0].Controllers {
		refs = append(refs, ci.RotTrack)
	}
	if !slices.Equal(refs, []int32{1, 0, 2}) {
		t.Errorf("rotation refs = %v, want [1 0 2]", refs)
	}
}

func TestIdentityDeduplication(t *testing.T) {
	ticks := []float32{0, 5}
	k := []math.Vec3{{X: 1}, {X: 2}}
	same := &TimeCurve{Format: keys.TimeF32, Ticks: ticks}
	db := &Database{Clips: []*Clip{{Name: "a", Tracks: []*Track{
		{ControllerID: 1, PosTimes: same, Positions: &PositionCurve{Format: keys.NoCompressVec3, Keys: k}},
		{ControllerID: 2, PosTimes: same, Positions: &PositionCurve{Format: keys.NoCompressVec3, Keys: k}},
		{ControllerID: 3, PosTimes: &TimeCurve{Format: keys.TimeF32, Ticks: ticks}, Positions: &PositionCurve{Format: keys.NoCompressVec3, Keys: k}},
	}}}}
	c, err := Encode(db)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ctrl, _ := chunk.First[*chunk.Controller](c)
	if len(ctrl.Times) != 2 {
		t.Errorf("value-equal time curves merged: %d entries, want 2", len(ctrl.Times))
	}
	if len(ctrl.Positions) != 3 {
		t.Errorf("value-equal position curves merged: %d entries, want 3", len(ctrl.Positions))
	}
}

func TestDatabaseRoundTrip(t *testing.T) {
	for _, bigEndian := range []bool{false, true} {
		in := walkDatabase()
		in.BigEndian = bigEndian
		data, err := EncodeBytes(in)
		if err != nil {
			t.Fatalf("EncodeBytes: %v", err)
		}
		out, err := DecodeBytes(data)
		if err != nil {
			t.Fatalf("DecodeBytes: %v", err)
		}
		if out.BigEndian != bigEndian || len(out.Clips) != 2 {
			t.Fatalf("decoded %+v", out)
		}

		walk := out.Clip("walk")
		if walk == nil {
			t.Fatal("walk clip missing")
		}
		if walk.Motion != in.Clips[0].Motion || !bytes.Equal(walk.FootPlantBits, in.Clips[0].FootPlantBits) {
			t.Errorf("walk motion = %+v", walk.Motion)
		}
		root := walk.Track(0x100)
		if root == nil || root.PosTimes != root.RotTimes {
			t.Fatal("shared time curve not shared after decode")
		}
		if !slices.Equal(root.PosTimes.Ticks, []float32{0, 10, 20}) {
			t.Errorf("ticks = %v", root.PosTimes.Ticks)
		}
		if !slices.Equal(root.Positions.Keys, in.Clips[0].Tracks[0].Positions.Keys) {
			t.Errorf("positions = %v", root.Positions.Keys)
		}
		if idle := out.Clip("idle"); idle.Tracks[0].Rotations != root.Rotations {
			t.Error("rotation curve shared across clips was split")
		}
		if walk.Track(0x999) != nil || out.Clip("run") != nil {
			t.Error("lookup of a missing name succeeded")
		}

		again, err := EncodeBytes(out)
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		if !bytes.Equal(again, data) {
			t.Errorf("bigEndian=%v: re-encoded database differs", bigEndian)
		}
	}
}

func TestLossyCurveReencodesSameBytes(t *testing.T) {
	q := math.QuatFromAxisAngle(math.Vec3{X: 0.6, Y: 0.8}, 0.7)
	db := &Database{Clips: []*Clip{{Name: "lossy", Tracks: []*Track{{
		ControllerID: 7,
		RotTimes:     &TimeCurve{Format: keys.TimeBitset, Ticks: []float32{0, 3, 4, 17}},
		Rotations:    &RotationCurve{Format: keys.SmallTree48BitQuat, Keys: []math.Quat{q, q, q.Neg(), math.QuatIdentity()}},
	}}}}}
	data, err := EncodeBytes(db)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	out, err := DecodeBytes(data)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	again, err := EncodeBytes(out)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(again, data) {
		t.Error("decoded lossy curve re-encoded to different bytes")
	}

	// Editing a key drops the stored bytes.
	out.Clips[0].Tracks[0].Rotations.Keys[3] = q
	edited, err := EncodeBytes(out)
	if err != nil {
		t.Fatalf("encode edited: %v", err)
	}
	if bytes.Equal(edited, data) {
		t.Error("edited curve still encoded from the stored bytes")
	}
}

// Scenario B: the 48-bit smallest-three layout keeps the identity rotation.
func TestSmallTree48IdentityTrack(t *testing.T) {
	db := &Database{Clips: []*Clip{{Name: "rest", Tracks: []*Track{{
		ControllerID: 1,
		RotTimes:     &TimeCurve{Format: keys.TimeF32, Ticks: []float32{0}},
		Rotations:    &RotationCurve{Format: keys.SmallTree48BitQuat, Keys: []math.Quat{math.QuatIdentity()}},
	}}}}}
	data, err := EncodeBytes(db)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	out, err := DecodeBytes(data)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	got := out.Clips[0].Tracks[0].Rotations.Keys[0]
	for i, d := range []float32{got.X, got.Y, got.Z, got.W - 1} {
		if d > 1e-4 || d < -1e-4 {
			t.Errorf("component %d off by %v: %+v", i, d, got)
		}
	}

	c, _ := chunk.Decode(data)
	ctrl, _ := chunk.First[*chunk.Controller](c)
	raw := ctrl.Rotations[0].Data
	if top := raw[5] >> 6; top != 3 {
		t.Errorf("omitted component index = %d, want 3", top)
	}
}

func TestEncodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		track *Track
		want  error
	}{
		{"positions without times", &Track{Positions: &PositionCurve{Format: keys.NoCompressVec3, Keys: []math.Vec3{{}}}}, ErrUnpaired},
		{"key count", &Track{
			RotTimes:  &TimeCurve{Format: keys.TimeF32, Ticks: []float32{0, 1}},
			Rotations: &RotationCurve{Format: keys.NoCompressQuat, Keys: []math.Quat{math.QuatIdentity()}},
		}, ErrKeyCount},
		{"decreasing ticks", &Track{
			RotTimes:  &TimeCurve{Format: keys.TimeF32, Ticks: []float32{1, 0}},
			Rotations: &RotationCurve{Format: keys.NoCompressQuat, Keys: []math.Quat{math.QuatIdentity(), math.QuatIdentity()}},
		}, keys.ErrTicksDecreasing},
		{"legacy position format", &Track{
			PosTimes:  &TimeCurve{Format: keys.TimeF32, Ticks: []float32{0}},
			Positions: &PositionCurve{Format: keys.PolarQuat, Keys: []math.Vec3{{}}},
		}, chunk.ErrNotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &Database{Clips: []*Clip{{Name: "bad", Tracks: []*Track{tt.track}}}}
			if _, err := Encode(db); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	c := chunk.New(chunk.FileAnimation)
	if _, err := Decode(c); !errors.Is(err, ErrNoController) || !errors.Is(err, chunk.ErrMissingChunk) {
		t.Errorf("empty container: error = %v", err)
	}

	c, err := Encode(walkDatabase())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ctrl, _ := chunk.First[*chunk.Controller](c)
	ctrl.Animations[0].Controllers[1].RotKeyTimeTrack = 1 // three ticks for two keys
	if _, err := Decode(c); !errors.Is(err, ErrKeyCount) {
		t.Errorf("mismatched times: error = %v", err)
	}
}

func TestSampling(t *testing.T) {
	db := walkDatabase()
	root := db.Clips[0].Track(0x100)

	tests := []struct {
		tick float32
		want math.Vec3
	}{
		{-5, math.Vec3{}},
		{0, math.Vec3{}},
		{5, math.Vec3{X: 0.5}},
		{15, math.Vec3{X: 1.5}},
		{20, math.Vec3{X: 2}},
		{40, math.Vec3{X: 2}},
	}
	for _, tt := range tests {
		got, ok := root.Position(tt.tick)
		if !ok || got.Distance(tt.want) > 1e-6 {
			t.Errorf("Position(%v) = %v, %v; want %v", tt.tick, got, ok, tt.want)
		}
	}

	q, ok := root.Rotation(10)
	if !ok || q != root.Rotations.Keys[1] {
		t.Errorf("Rotation(10) = %v", q)
	}
	mid, _ := root.Rotation(5)
	want := math.QuatFromAxisAngle(math.Vec3{Z: 1}, 0.5)
	if d := mid.Dot(want); d < 1-1e-5 {
		t.Errorf("Rotation(5) = %v, want %v", mid, want)
	}

	if _, ok := db.Clips[0].Track(0x200).Position(0); ok {
		t.Error("track without positions sampled a position")
	}
}

func TestDuration(t *testing.T) {
	if got := walkDatabase().Clips[0].Duration(); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
	if got := (&Clip{}).Duration(); got != 0 {
		t.Errorf("empty clip Duration = %v", got)
	}
}
