package verify

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/chunkforge/pkg/anim"
	"github.com/Faultbox/chunkforge/pkg/chunk"
	"github.com/Faultbox/chunkforge/pkg/keys"
	"github.com/Faultbox/chunkforge/pkg/math"
	"github.com/Faultbox/chunkforge/pkg/model"
)

func crateFile(t *testing.T) []byte {
	t.Helper()
	m := &model.Model{
		Name:         "crate",
		Material:     "crate_mtl",
		Materials:    []string{"wood"},
		PhysicsTypes: []uint32{0},
		Meshes: []model.Mesh{{
			Vertices: []model.Vertex{
				{Position: math.Vec3{}},
				{Position: math.Vec3{X: 1}},
				{Position: math.Vec3{Y: 1}},
			},
			Indices: []uint32{0, 1, 2},
		}},
	}
	data, err := model.EncodeBytes(m, model.Options{})
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	return data
}

func swayFile(t *testing.T) []byte {
	t.Helper()
	times := &anim.TimeCurve{Format: keys.TimeByte, Ticks: []float32{0, 8}}
	db := &anim.Database{Clips: []*anim.Clip{{
		Name:   "sway",
		Motion: chunk.MotionParams{SecsPerTick: 1.0 / 32, End: 8},
		Tracks: []*anim.Track{{
			ControllerID: 7,
			RotTimes:     times,
			Rotations: &anim.RotationCurve{Format: keys.NoCompressQuat, Keys: []math.Quat{
				math.QuatIdentity(),
				math.QuatFromAxisAngle(math.Vec3{Y: 1}, 0.5),
			}},
		}},
	}}}
	data, err := anim.EncodeBytes(db)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	return data
}

func TestBytesIdentical(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		fileType chunk.FileType
		assembly string
	}{
		{"geometry", crateFile(t), chunk.FileGeometry, `model "crate": 1 meshes, 1 subsets, 0 bones`},
		{"animation", swayFile(t), chunk.FileAnimation, "animation: 1 clips, 1 tracks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := Bytes(tt.name, tt.data, Options{Assemble: true, MaxDiffs: 4})
			if !rep.OK() {
				t.Fatalf("Err = %v", rep.Err)
			}
			if !rep.Identical || rep.InputDigest != rep.OutputDigest || len(rep.Diffs) != 0 {
				t.Errorf("report = %+v", rep)
			}
			if rep.FileType != tt.fileType || rep.Size != len(tt.data) || rep.Chunks == 0 {
				t.Errorf("report = %+v", rep)
			}
			if rep.Assembly != tt.assembly {
				t.Errorf("Assembly = %q, want %q", rep.Assembly, tt.assembly)
			}
		})
	}
}

func TestSlackDifference(t *testing.T) {
	data := crateFile(t)
	at := bytes.Index(data, []byte("crate\x00"))
	if at < 0 {
		t.Fatal("node name not found")
	}
	data[at+len("crate")+1] = 0xAA

	rep := Bytes("crate", data, Options{MaxDiffs: 4})
	if !rep.OK() {
		t.Fatalf("Err = %v", rep.Err)
	}
	if rep.Identical || rep.SlackBytes == 0 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Diffs) != 1 {
		t.Fatalf("Diffs = %+v", rep.Diffs)
	}
	d := rep.Diffs[0]
	want := at + len("crate") + 1
	if d.Start != want || d.End != want+1 || !d.Whitelisted || d.ChunkID == 0 {
		t.Errorf("diff = %+v, want whitelisted [%d,%d) inside a chunk", d, want, want+1)
	}

	strict := Bytes("crate", data, Options{Strict: true, MaxDiffs: 4})
	if !errors.Is(strict.Err, chunk.ErrRoundTrip) {
		t.Errorf("strict Err = %v, want ErrRoundTrip", strict.Err)
	}
}

func TestMaxDiffs(t *testing.T) {
	data := crateFile(t)
	at := bytes.Index(data, []byte("crate\x00")) + len("crate") + 1
	for i := 0; i < 10; i += 2 {
		data[at+i] = 0x55
	}
	rep := Bytes("crate", data, Options{MaxDiffs: 3})
	if len(rep.Diffs) != 3 {
		t.Errorf("Diffs = %+v, want 3", rep.Diffs)
	}
}

func TestBytesDecodeError(t *testing.T) {
	data := crateFile(t)
	data[0] = 'X'
	rep := Bytes("bad", data, Options{})
	if !errors.Is(rep.Err, chunk.ErrBadMagic) {
		t.Errorf("Err = %v, want ErrBadMagic", rep.Err)
	}
	if rep.InputDigest == "" || rep.OutputDigest != "" {
		t.Errorf("report = %+v", rep)
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	geom := filepath.Join(dir, "crate.cgf")
	animFile := filepath.Join(dir, "sway.caf")
	if err := os.WriteFile(geom, crateFile(t), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(animFile, swayFile(t), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing.cgf")

	reports := Files([]string{geom, missing, animFile}, Options{Assemble: true})
	if len(reports) != 3 {
		t.Fatalf("got %d reports", len(reports))
	}
	if !reports[0].OK() || reports[0].Name != geom || !strings.HasPrefix(reports[0].Assembly, "model") {
		t.Errorf("reports[0] = %+v", reports[0])
	}
	if !errors.Is(reports[1].Err, fs.ErrNotExist) {
		t.Errorf("reports[1].Err = %v", reports[1].Err)
	}
	if !reports[2].OK() || reports[2].FileType != chunk.FileAnimation {
		t.Errorf("reports[2] = %+v", reports[2])
	}
}
