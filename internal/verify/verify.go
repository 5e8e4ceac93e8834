// Package verify runs the decode, encode and compare round trip over chunk
// files and reports the outcome per file.
package verify

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/chunkforge/internal/dump"
	"github.com/Faultbox/chunkforge/pkg/anim"
	"github.com/Faultbox/chunkforge/pkg/chunk"
	"github.com/Faultbox/chunkforge/pkg/model"
)

// Options control verification.
type Options struct {
	Strict   bool // padding bytes must match too
	Assemble bool // also build the model or animation database
	MaxDiffs int  // differing ranges kept per report
	Logger   *zap.Logger
}

// Diff is a run of differing bytes.
type Diff struct {
	chunk.Range
	ChunkID     int32 // chunk containing Start, 0 for the header and table
	Whitelisted bool  // inside a padding or unreferenced range
}

// Report is the outcome for one file.
type Report struct {
	Name         string
	Size         int
	FileType     chunk.FileType
	Chunks       int
	SlackBytes   int
	InputDigest  string
	OutputDigest string
	Identical    bool   // output is byte-identical to the input
	Diffs        []Diff // first MaxDiffs differing ranges
	Assembly     string // summary of the assembled model or database
	Err          error
}

// OK reports whether the file passed.
func (r *Report) OK() bool { return r.Err == nil }

// Bytes verifies one in-memory file.
func Bytes(name string, data []byte, opts Options) *Report {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	rep := &Report{Name: name, Size: len(data), InputDigest: dump.Digest(data)}

	c, err := chunk.Decode(data)
	if err != nil {
		rep.Err = fmt.Errorf("decode: %w", err)
		return rep
	}
	rep.FileType = c.FileType
	rep.Chunks = c.Len()
	for _, r := range c.Slack() {
		rep.SlackBytes += r.End - r.Start
	}
	spans := chunkSpans(c)

	out, err := c.Encode()
	if err != nil {
		rep.Err = fmt.Errorf("encode: %w", err)
		return rep
	}
	rep.OutputDigest = dump.Digest(out)
	rep.Identical = bytes.Equal(data, out)

	whitelist := c.Slack()
	if opts.Strict {
		whitelist = nil
	}
	if !rep.Identical {
		rep.Diffs = diffs(spans, data, out, c.Slack(), opts.MaxDiffs)
		if err := chunk.Compare(data, out, whitelist); err != nil {
			rep.Err = err
			return rep
		}
	}

	if opts.Assemble {
		rep.Assembly, err = assemble(c)
		if err != nil {
			rep.Err = fmt.Errorf("assemble: %w", err)
			return rep
		}
	}
	log.Debug("file verified",
		zap.String("file", name),
		zap.Int("chunks", rep.Chunks),
		zap.Bool("identical", rep.Identical),
		zap.Int("diffs", len(rep.Diffs)),
	)
	return rep
}

// assemble builds the model or animation database of c.
func assemble(c *chunk.Container) (string, error) {
	switch c.FileType {
	case chunk.FileGeometry:
		m, err := model.Decode(c)
		if err != nil {
			return "", err
		}
		subsets := 0
		if s, ok := chunk.First[*chunk.MeshSubsets](c); ok {
			subsets = len(s.Subsets)
		}
		return fmt.Sprintf("model %q: %d meshes, %d subsets, %d bones", m.Name, len(m.Meshes), subsets, len(m.Bones)), nil
	case chunk.FileAnimation:
		db, err := anim.Decode(c)
		if err != nil {
			return "", err
		}
		tracks := 0
		for _, clip := range db.Clips {
			tracks += len(clip.Tracks)
		}
		return fmt.Sprintf("animation: %d clips, %d tracks", len(db.Clips), tracks), nil
	}
	return "", nil
}

type span struct {
	chunk.Range
	id int32
}

// chunkSpans records where each chunk was stored in the decoded file. Encode
// rewrites the headers, so this must run first.
func chunkSpans(c *chunk.Container) []span {
	out := make([]span, 0, c.Len())
	for _, ch := range c.Chunks() {
		h := ch.ChunkHeader()
		out = append(out, span{Range: chunk.Range{Start: int(h.Offset), End: int(h.Offset + h.Size)}, id: h.ID})
	}
	return out
}

// diffs lists up to limit runs of differing bytes. Inputs of different length
// compare over the shorter one.
func diffs(spans []span, a, b []byte, slack []chunk.Range, limit int) []Diff {
	var out []Diff
	n := min(len(a), len(b))
	for i := 0; i < n && len(out) < limit; i++ {
		if a[i] == b[i] {
			continue
		}
		start := i
		for i < n && a[i] != b[i] {
			i++
		}
		d := Diff{Range: chunk.Range{Start: start, End: i}, ChunkID: owner(spans, start)}
		for _, r := range slack {
			if r.Start <= start && i <= r.End {
				d.Whitelisted = true
				break
			}
		}
		out = append(out, d)
	}
	return out
}

// owner returns the id of the chunk whose stored bytes contain offset.
func owner(spans []span, offset int) int32 {
	for _, s := range spans {
		if s.Contains(offset) {
			return s.id
		}
	}
	return 0
}

// File verifies the file at path.
func File(path string, opts Options) *Report {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Report{Name: path, Err: err}
	}
	return Bytes(path, data, opts)
}

// Files verifies several files concurrently. Each file is decoded into its
// own container; reports come back in input order.
func Files(paths []string, opts Options) []*Report {
	reports := make([]*Report, len(paths))
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			reports[i] = File(path, opts)
		}()
	}
	wg.Wait()
	return reports
}
