package chunk

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/Faultbox/chunkforge/pkg/binio"
	"github.com/Faultbox/chunkforge/pkg/keys"
	"github.com/Faultbox/chunkforge/pkg/math"
)

// NoTrack marks an absent pool reference in a ControllerInfo.
const NoTrack int32 = -1

// TimeEntry is one time key pool entry. Data holds the stored bytes in the
// controller's byte order.
type TimeEntry struct {
	Format keys.TimeFormat
	Length int    // keys, or 16-bit words for bitsets
	Offset uint32 // byte offset in the track data
	Data   []byte
}

// NewTimeEntry encodes ticks as a time pool entry.
func NewTimeEntry(order binary.ByteOrder, f keys.TimeFormat, ticks []float32) (TimeEntry, error) {
	w := binio.NewWriter(order)
	length, err := keys.WriteTimes(w, f, ticks)
	if err != nil {
		return TimeEntry{}, err
	}
	return TimeEntry{Format: f, Length: length, Data: w.Bytes()}, nil
}

// Ticks decodes the entry.
func (e TimeEntry) Ticks(order binary.ByteOrder) ([]float32, error) {
	return keys.ReadTimes(binio.NewReader(e.Data, order), e.Format, e.Length)
}

// PositionEntry is one position key pool entry.
type PositionEntry struct {
	Format keys.Format
	Length int
	Offset uint32
	Data   []byte
}

// NewPositionEntry encodes position keys as a pool entry.
func NewPositionEntry(order binary.ByteOrder, f keys.Format, k []math.Vec3) (PositionEntry, error) {
	w := binio.NewWriter(order)
	if err := keys.WritePositions(w, f, k); err != nil {
		return PositionEntry{}, err
	}
	return PositionEntry{Format: f, Length: len(k), Data: w.Bytes()}, nil
}

// Keys decodes the entry.
func (e PositionEntry) Keys(order binary.ByteOrder) ([]math.Vec3, error) {
	return keys.ReadPositions(binio.NewReader(e.Data, order), e.Format, e.Length)
}

// RotationEntry is one rotation key pool entry.
type RotationEntry struct {
	Format keys.Format
	Length int
	Offset uint32
	Data   []byte
}

// NewRotationEntry encodes rotation keys as a pool entry.
func NewRotationEntry(order binary.ByteOrder, f keys.Format, k []math.Quat) (RotationEntry, error) {
	w := binio.NewWriter(order)
	if err := keys.WriteRotations(w, f, k); err != nil {
		return RotationEntry{}, err
	}
	return RotationEntry{Format: f, Length: len(k), Data: w.Bytes()}, nil
}

// Keys decodes the entry.
func (e RotationEntry) Keys(order binary.ByteOrder) ([]math.Quat, error) {
	return keys.ReadRotations(binio.NewReader(e.Data, order), e.Format, e.Length)
}

// Location is a root-motion transform.
type Location struct {
	Rotation [4]float32 // x, y, z, w
	Position [3]float32
}

// Foot plant timing slots in MotionParams.FootPlants.
const (
	LHeelStart = iota
	LHeelEnd
	LToe0Start
	LToe0End
	RHeelStart
	RHeelEnd
	RToe0Start
	RToe0End
	footPlantCount
)

// MotionParams describes the time range and root motion of a clip.
type MotionParams struct {
	AssetFlags    uint32
	Compression   uint32
	TicksPerFrame int32
	SecsPerTick   float32
	Start         int32
	End           int32
	MoveSpeed     float32
	TurnSpeed     float32
	AssetTurn     float32
	Distance      float32
	Slope         float32
	StartLocation Location
	EndLocation   Location
	FootPlants    [footPlantCount]float32
}

// ControllerInfo binds one bone of a clip to pool entries; NoTrack marks an
// absent curve.
type ControllerInfo struct {
	ControllerID    uint32
	PosKeyTimeTrack int32
	PosTrack        int32
	RotKeyTimeTrack int32
	RotTrack        int32
}

// AnimInfo is one clip of a controller chunk.
type AnimInfo struct {
	Name          string
	Motion        MotionParams
	FootPlantBits []byte
	Controllers   []ControllerInfo
}

// Controller is the compressed animation database chunk. The three key pools
// are grouped by format in increasing tag order; entries live in a shared
// track data block at their stored offsets.
type Controller struct {
	Header
	Times         []TimeEntry
	Positions     []PositionEntry
	Rotations     []RotationEntry
	TrackDataSize uint32 // at least the end of the last entry
	Animations    []AnimInfo
}

// Kind implements Chunk.
func (*Controller) Kind() Kind { return Kind{Type: TypeController, Version: 0x905} }

// formatsFromCounts expands per-tag counts into one tag per entry.
func formatsFromCounts(counts []uint32, n int, pool string) ([]uint32, error) {
	out := make([]uint32, 0, n)
	for tag, c := range counts {
		if uint64(len(out))+uint64(c) > uint64(n) {
			return nil, fmt.Errorf("%w: %s format counts exceed %d entries", ErrFormat, pool, n)
		}
		for i := uint32(0); i < c; i++ {
			out = append(out, uint32(tag))
		}
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: %s format counts cover %d of %d entries", ErrFormat, pool, len(out), n)
	}
	return out, nil
}

// countsFromFormats is the inverse of formatsFromCounts; tags must not decrease.
func countsFromFormats(tags []uint32, numTags int, pool string) ([]uint32, error) {
	counts := make([]uint32, numTags)
	for i, tag := range tags {
		if int(tag) >= numTags {
			return nil, fmt.Errorf("%w: %s entry %d has tag %d", ErrInvalidData, pool, i, tag)
		}
		if i > 0 && tag < tags[i-1] {
			return nil, fmt.Errorf("%w: %s entries not grouped by format at %d", ErrInvalidData, pool, i)
		}
		counts[tag]++
	}
	return counts, nil
}

func readU16s(r *binio.Reader, n int) []int {
	if n*2 > r.Len() {
		r.Skip(n * 2)
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = int(r.U16())
	}
	return out
}

func readU32s(r *binio.Reader, n int) []uint32 {
	if n*4 > r.Len() {
		r.Skip(n * 4)
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = r.U32()
	}
	return out
}

// trackSpan is the byte range of one pool entry inside the track data.
type trackSpan struct {
	start, end int
}

func entrySpan(offset uint32, size int, dataLen int, pool string, i int) (trackSpan, error) {
	start := int(offset)
	end := start + size
	if end > dataLen {
		return trackSpan{}, fmt.Errorf("%w: %s entry %d [%d,%d) outside %d bytes of track data", ErrFormat, pool, i, start, end, dataLen)
	}
	return trackSpan{start, end}, nil
}

// Decode implements Chunk.
func (c *Controller) Decode(r *binio.Reader, size int) error {
	numPos := r.Count(2)
	numRot := r.Count(2)
	numTime := r.Count(2)
	numAnims := r.Count(0)

	timeLens := readU16s(r, numTime)
	timeCounts := readU32s(r, keys.TimeFormatCount)
	posLens := readU16s(r, numPos)
	posCounts := readU32s(r, keys.FormatCount)
	rotLens := readU16s(r, numRot)
	rotCounts := readU32s(r, keys.FormatCount)
	timeOffsets := readU32s(r, numTime)
	posOffsets := readU32s(r, numPos)
	rotOffsets := readU32s(r, numRot)
	trackLen := r.U32()
	r.Align(4)
	if r.Err() != nil {
		return r.Err()
	}

	data, err := r.Sub(r.Pos(), int(trackLen), r.Order())
	if err != nil {
		return err
	}
	r.Skip(int(trackLen))
	c.TrackDataSize = trackLen

	timeTags, err := formatsFromCounts(timeCounts, numTime, "time")
	if err != nil {
		return err
	}
	posTags, err := formatsFromCounts(posCounts, numPos, "position")
	if err != nil {
		return err
	}
	rotTags, err := formatsFromCounts(rotCounts, numRot, "rotation")
	if err != nil {
		return err
	}

	var spans []trackSpan
	raw := func(span trackSpan) []byte {
		spans = append(spans, span)
		data.Seek(span.start)
		return data.Bytes(span.end - span.start)
	}

	c.Times = make([]TimeEntry, numTime)
	for i := range c.Times {
		e := TimeEntry{Format: keys.TimeFormat(timeTags[i]), Length: timeLens[i], Offset: timeOffsets[i]}
		n, err := keys.TimeEntrySize(e.Format, e.Length)
		if err != nil {
			return fmt.Errorf("time entry %d: %w", i, err)
		}
		span, err := entrySpan(e.Offset, n, data.Size(), "time", i)
		if err != nil {
			return err
		}
		e.Data = raw(span)
		if _, err := e.Ticks(r.Order()); err != nil {
			return fmt.Errorf("time entry %d: %w", i, err)
		}
		c.Times[i] = e
	}

	c.Positions = make([]PositionEntry, numPos)
	for i := range c.Positions {
		e := PositionEntry{Format: keys.Format(posTags[i]), Length: posLens[i], Offset: posOffsets[i]}
		keySize, err := keys.PositionKeySize(e.Format)
		if err != nil {
			return fmt.Errorf("position entry %d: %w", i, err)
		}
		span, err := entrySpan(e.Offset, keySize*e.Length, data.Size(), "position", i)
		if err != nil {
			return err
		}
		e.Data = raw(span)
		c.Positions[i] = e
	}

	c.Rotations = make([]RotationEntry, numRot)
	for i := range c.Rotations {
		e := RotationEntry{Format: keys.Format(rotTags[i]), Length: rotLens[i], Offset: rotOffsets[i]}
		keySize, err := keys.RotationKeySize(e.Format)
		if err != nil {
			return fmt.Errorf("rotation entry %d: %w", i, err)
		}
		span, err := entrySpan(e.Offset, keySize*e.Length, data.Size(), "rotation", i)
		if err != nil {
			return err
		}
		e.Data = raw(span)
		c.Rotations[i] = e
	}
	if data.Err() != nil {
		return data.Err()
	}
	markUnreferenced(data, spans)

	c.Animations = make([]AnimInfo, 0, min(numAnims, r.Len()))
	for i := 0; i < numAnims; i++ {
		a, err := c.readAnim(r)
		if err != nil {
			return fmt.Errorf("animation %d: %w", i, err)
		}
		c.Animations = append(c.Animations, a)
	}
	return r.Err()
}

// markUnreferenced records track data bytes no pool entry covers.
func markUnreferenced(data *binio.Reader, spans []trackSpan) {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	pos := 0
	for _, s := range spans {
		if s.start > pos {
			data.MarkSlack(pos, s.start)
		}
		pos = max(pos, s.end)
	}
	data.MarkSlack(pos, data.Size())
}

func readLocation(r *binio.Reader) Location {
	var l Location
	copy(l.Rotation[:], r.F32s(4))
	l.Position = r.Vec3()
	return l
}

func writeLocation(w *binio.Writer, l Location) {
	w.F32s(l.Rotation[:])
	w.Vec3(l.Position)
}

func (c *Controller) checkTrack(idx int32, n int, what string) error {
	if idx != NoTrack && (idx < 0 || int(idx) >= n) {
		return fmt.Errorf("%w: %s index %d outside pool of %d", ErrInvalidData, what, idx, n)
	}
	return nil
}

func (c *Controller) readAnim(r *binio.Reader) (AnimInfo, error) {
	var a AnimInfo
	nameLen := int(r.U16())
	a.Name = string(r.Bytes(nameLen))

	m := &a.Motion
	m.AssetFlags = r.U32()
	m.Compression = r.U32()
	m.TicksPerFrame = r.I32()
	m.SecsPerTick = r.F32()
	m.Start = r.I32()
	m.End = r.I32()
	m.MoveSpeed = r.F32()
	m.TurnSpeed = r.F32()
	m.AssetTurn = r.F32()
	m.Distance = r.F32()
	m.Slope = r.F32()
	m.StartLocation = readLocation(r)
	m.EndLocation = readLocation(r)
	copy(m.FootPlants[:], r.F32s(footPlantCount))

	a.FootPlantBits = r.Bytes(int(r.U16()))
	numCtrl := int(r.U16())
	if r.Err() != nil {
		return a, r.Err()
	}
	if numCtrl*20 > r.Len() {
		r.Skip(numCtrl * 20)
		return a, r.Err()
	}
	a.Controllers = make([]ControllerInfo, numCtrl)
	for i := range a.Controllers {
		ci := ControllerInfo{
			ControllerID:    r.U32(),
			PosKeyTimeTrack: r.I32(),
			PosTrack:        r.I32(),
			RotKeyTimeTrack: r.I32(),
			RotTrack:        r.I32(),
		}
		for _, err := range []error{
			c.checkTrack(ci.PosKeyTimeTrack, len(c.Times), "position time"),
			c.checkTrack(ci.PosTrack, len(c.Positions), "position"),
			c.checkTrack(ci.RotKeyTimeTrack, len(c.Times), "rotation time"),
			c.checkTrack(ci.RotTrack, len(c.Rotations), "rotation"),
		} {
			if err != nil {
				return a, fmt.Errorf("controller %#08x: %w", ci.ControllerID, err)
			}
		}
		a.Controllers[i] = ci
	}
	return a, r.Err()
}

// Encode implements Chunk.
func (c *Controller) Encode(w *binio.Writer) error {
	timeTags := make([]uint32, len(c.Times))
	for i, e := range c.Times {
		timeTags[i] = uint32(e.Format)
	}
	posTags := make([]uint32, len(c.Positions))
	for i, e := range c.Positions {
		posTags[i] = uint32(e.Format)
	}
	rotTags := make([]uint32, len(c.Rotations))
	for i, e := range c.Rotations {
		rotTags[i] = uint32(e.Format)
	}
	timeCounts, err := countsFromFormats(timeTags, keys.TimeFormatCount, "time")
	if err != nil {
		return err
	}
	posCounts, err := countsFromFormats(posTags, keys.FormatCount, "position")
	if err != nil {
		return err
	}
	rotCounts, err := countsFromFormats(rotTags, keys.FormatCount, "rotation")
	if err != nil {
		return err
	}

	track, err := c.trackData()
	if err != nil {
		return err
	}

	w.U32(uint32(len(c.Positions)))
	w.U32(uint32(len(c.Rotations)))
	w.U32(uint32(len(c.Times)))
	w.U32(uint32(len(c.Animations)))

	for _, e := range c.Times {
		w.U16(uint16(e.Length))
	}
	for _, n := range timeCounts {
		w.U32(n)
	}
	for _, e := range c.Positions {
		w.U16(uint16(e.Length))
	}
	for _, n := range posCounts {
		w.U32(n)
	}
	for _, e := range c.Rotations {
		w.U16(uint16(e.Length))
	}
	for _, n := range rotCounts {
		w.U32(n)
	}
	for _, e := range c.Times {
		w.U32(e.Offset)
	}
	for _, e := range c.Positions {
		w.U32(e.Offset)
	}
	for _, e := range c.Rotations {
		w.U32(e.Offset)
	}
	w.U32(uint32(len(track)))
	w.Align(4)
	w.Write(track)

	for i, a := range c.Animations {
		if err := c.writeAnim(w, a); err != nil {
			return fmt.Errorf("animation %d: %w", i, err)
		}
	}
	return w.Err()
}

// trackData lays every entry out at its offset; uncovered bytes are zero.
func (c *Controller) trackData() ([]byte, error) {
	type placed struct {
		offset uint32
		data   []byte
		length int
		size   int
		pool   string
	}
	var all []placed
	for _, e := range c.Times {
		size, err := keys.TimeEntrySize(e.Format, e.Length)
		if err != nil {
			return nil, err
		}
		all = append(all, placed{e.Offset, e.Data, e.Length, size, "time"})
	}
	for _, e := range c.Positions {
		keySize, err := keys.PositionKeySize(e.Format)
		if err != nil {
			return nil, err
		}
		all = append(all, placed{e.Offset, e.Data, e.Length, keySize * e.Length, "position"})
	}
	for _, e := range c.Rotations {
		keySize, err := keys.RotationKeySize(e.Format)
		if err != nil {
			return nil, err
		}
		all = append(all, placed{e.Offset, e.Data, e.Length, keySize * e.Length, "rotation"})
	}

	end := int(c.TrackDataSize)
	for _, p := range all {
		if p.length < 0 || p.length > 0xFFFF {
			return nil, fmt.Errorf("%w: %s entry of length %d", ErrInvalidData, p.pool, p.length)
		}
		if len(p.data) != p.size {
			return nil, fmt.Errorf("%w: %s entry holds %d bytes, format needs %d", ErrInvalidData, p.pool, len(p.data), p.size)
		}
		end = max(end, int(p.offset)+p.size)
	}

	buf := make([]byte, end)
	for _, p := range all {
		copy(buf[p.offset:], p.data)
	}
	return buf, nil
}

func (c *Controller) writeAnim(w *binio.Writer, a AnimInfo) error {
	if len(a.Name) > 0xFFFF || len(a.FootPlantBits) > 0xFFFF || len(a.Controllers) > 0xFFFF {
		return fmt.Errorf("%w: clip %q exceeds 16-bit counts", ErrInvalidData, a.Name)
	}
	w.U16(uint16(len(a.Name)))
	w.Write([]byte(a.Name))

	m := a.Motion
	w.U32(m.AssetFlags)
	w.U32(m.Compression)
	w.I32(m.TicksPerFrame)
	w.F32(m.SecsPerTick)
	w.I32(m.Start)
	w.I32(m.End)
	w.F32(m.MoveSpeed)
	w.F32(m.TurnSpeed)
	w.F32(m.AssetTurn)
	w.F32(m.Distance)
	w.F32(m.Slope)
	writeLocation(w, m.StartLocation)
	writeLocation(w, m.EndLocation)
	w.F32s(m.FootPlants[:])

	w.U16(uint16(len(a.FootPlantBits)))
	w.Write(a.FootPlantBits)
	w.U16(uint16(len(a.Controllers)))
	for _, ci := range a.Controllers {
		w.U32(ci.ControllerID)
		w.I32(ci.PosKeyTimeTrack)
		w.I32(ci.PosTrack)
		w.I32(ci.RotKeyTimeTrack)
		w.I32(ci.RotTrack)
	}
	return w.Err()
}
