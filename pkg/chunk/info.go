package chunk

import "github.com/Faultbox/chunkforge/pkg/binio"

// ExportFlags records which tool produced the file.
type ExportFlags struct {
	Header
	Flags             uint32
	RCVersion         [4]uint32
	RCVersionString   string // [16]
	AssetAuthorTool   uint32
	AuthorToolVersion uint32
}

// Export flag bits.
const (
	ExportMergeAllNodes    uint32 = 0x1
	ExportHaveAutoLODs     uint32 = 0x2
	ExportUseCustomNormals uint32 = 0x4
	ExportWantF32Vertices  uint32 = 0x8
	ExportEightWeightsSkin uint32 = 0x10
)

const (
	exportFlagsReservedSize = 30 * 4
	rcVersionStringSize     = 16
)

// Kind implements Chunk.
func (*ExportFlags) Kind() Kind { return Kind{Type: TypeExportFlags, Version: 0x1} }

// Decode implements Chunk.
func (e *ExportFlags) Decode(r *binio.Reader, size int) error {
	e.Flags = r.U32()
	for i := range e.RCVersion {
		e.RCVersion[i] = r.U32()
	}
	e.RCVersionString = r.FixedString(rcVersionStringSize)
	e.AssetAuthorTool = r.U32()
	e.AuthorToolVersion = r.U32()
	r.Reserved(exportFlagsReservedSize)
	return r.Err()
}

// Encode implements Chunk.
func (e *ExportFlags) Encode(w *binio.Writer) error {
	w.U32(e.Flags)
	for _, v := range e.RCVersion {
		w.U32(v)
	}
	w.FixedString(e.RCVersionString, rcVersionStringSize)
	w.U32(e.AssetAuthorTool)
	w.U32(e.AuthorToolVersion)
	w.Zero(exportFlagsReservedSize)
	return w.Err()
}

// SourceInfo holds free-form text about the source asset. Its length is the
// declared chunk size.
type SourceInfo struct {
	Header
	Text string
}

// Kind implements Chunk.
func (*SourceInfo) Kind() Kind { return Kind{Type: TypeSourceInfo, Version: 0x0} }

// Decode implements Chunk.
func (s *SourceInfo) Decode(r *binio.Reader, size int) error {
	s.Text = string(r.Bytes(size))
	return r.Err()
}

// Encode implements Chunk.
func (s *SourceInfo) Encode(w *binio.Writer) error {
	w.Write([]byte(s.Text))
	return w.Err()
}

const rangeNameSize = 32

// TimeRange is a named tick interval.
type TimeRange struct {
	Name  string // [32]
	Start int32
	End   int32
}

func readTimeRange(r *binio.Reader) TimeRange {
	return TimeRange{Name: r.FixedString(rangeNameSize), Start: r.I32(), End: r.I32()}
}

func writeTimeRange(w *binio.Writer, t TimeRange) {
	w.FixedString(t.Name, rangeNameSize)
	w.I32(t.Start)
	w.I32(t.End)
}

// Timing describes the tick rate and animation ranges of an animation file.
type Timing struct {
	Header
	SecsPerTick   float32
	TicksPerFrame int32
	Global        TimeRange
	SubRanges     []TimeRange
}

// Kind implements Chunk.
func (*Timing) Kind() Kind { return Kind{Type: TypeTiming, Version: 0x918} }

// Decode implements Chunk.
func (t *Timing) Decode(r *binio.Reader, size int) error {
	t.SecsPerTick = r.F32()
	t.TicksPerFrame = r.I32()
	t.Global = readTimeRange(r)
	n := r.Count(rangeNameSize + 8)
	t.SubRanges = make([]TimeRange, n)
	for i := range t.SubRanges {
		t.SubRanges[i] = readTimeRange(r)
	}
	return r.Err()
}

// Encode implements Chunk.
func (t *Timing) Encode(w *binio.Writer) error {
	w.F32(t.SecsPerTick)
	w.I32(t.TicksPerFrame)
	writeTimeRange(w, t.Global)
	w.U32(uint32(len(t.SubRanges)))
	for _, sr := range t.SubRanges {
		writeTimeRange(w, sr)
	}
	return w.Err()
}
