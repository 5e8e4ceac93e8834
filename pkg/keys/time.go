package keys

import (
	"fmt"
	stdmath "math"

	"github.com/Faultbox/chunkforge/pkg/binio"
)

// TimeFormat tags a time key pool entry.
type TimeFormat uint32

// Time key formats in on-disk enum order.
const (
	TimeF32             TimeFormat = 0
	TimeUInt16          TimeFormat = 1
	TimeByte            TimeFormat = 2
	TimeF32StartStop    TimeFormat = 3
	TimeUInt16StartStop TimeFormat = 4
	TimeByteStartStop   TimeFormat = 5
	TimeBitset          TimeFormat = 6
)

// TimeFormatCount is the number of time format tags.
const TimeFormatCount = 7

// bitsetHeaderWords is the {start, end, count} header of a bitset entry.
const bitsetHeaderWords = 3

// String returns the format name.
func (f TimeFormat) String() string {
	switch f {
	case TimeF32:
		return "F32"
	case TimeUInt16:
		return "UInt16"
	case TimeByte:
		return "Byte"
	case TimeF32StartStop:
		return "F32StartStop"
	case TimeUInt16StartStop:
		return "UInt16StartStop"
	case TimeByteStartStop:
		return "ByteStartStop"
	case TimeBitset:
		return "Bitset"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(f))
	}
}

// Valid reports whether f is one of the known tags.
func (f TimeFormat) Valid() bool {
	return f < TimeFormatCount
}

func (f TimeFormat) check() error {
	switch f {
	case TimeF32, TimeUInt16, TimeByte, TimeBitset:
		return nil
	}
	if !f.Valid() {
		return fmt.Errorf("%w: time tag %d", ErrUnknownFormat, uint32(f))
	}
	return fmt.Errorf("%w: time keys in %s", ErrUnsupportedFormat, f)
}

// TimeEntrySize returns the stored byte size of a time pool entry of the given
// pool length. For bitset entries the length counts 16-bit words, header
// included; otherwise it counts keys.
func TimeEntrySize(f TimeFormat, length int) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	switch f {
	case TimeF32:
		return 4 * length, nil
	case TimeUInt16, TimeBitset:
		return 2 * length, nil
	default:
		return length, nil
	}
}

// ReadTimes decodes a time pool entry of the given pool length.
func ReadTimes(r *binio.Reader, f TimeFormat, length int) ([]float32, error) {
	size, err := TimeEntrySize(f, length)
	if err != nil {
		return nil, err
	}
	if size > r.Len() {
		r.Skip(size)
		return nil, r.Err()
	}

	if f == TimeBitset {
		words := make([]uint16, length)
		for i := range words {
			words[i] = r.U16()
		}
		if r.Err() != nil {
			return nil, r.Err()
		}
		return DecodeBitset(words)
	}

	ticks := make([]float32, length)
	for i := range ticks {
		switch f {
		case TimeF32:
			ticks[i] = r.F32()
		case TimeUInt16:
			ticks[i] = float32(r.U16())
		case TimeByte:
			ticks[i] = float32(r.U8())
		}
		if i > 0 && ticks[i] < ticks[i-1] {
			return nil, fmt.Errorf("%w: key %d (%v) after %v", ErrTicksDecreasing, i, ticks[i], ticks[i-1])
		}
	}
	return ticks, r.Err()
}

// WriteTimes encodes ticks in format f and returns the pool length to record
// for the entry.
func WriteTimes(w *binio.Writer, f TimeFormat, ticks []float32) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] < ticks[i-1] {
			return 0, fmt.Errorf("%w: key %d (%v) after %v", ErrTicksDecreasing, i, ticks[i], ticks[i-1])
		}
	}

	switch f {
	case TimeF32:
		w.F32s(ticks)
	case TimeUInt16:
		for _, t := range ticks {
			v, err := integralTick(t, stdmath.MaxUint16)
			if err != nil {
				return 0, err
			}
			w.U16(uint16(v))
		}
	case TimeByte:
		for _, t := range ticks {
			v, err := integralTick(t, stdmath.MaxUint8)
			if err != nil {
				return 0, err
			}
			w.U8(uint8(v))
		}
	case TimeBitset:
		words, err := EncodeBitset(ticks)
		if err != nil {
			return 0, err
		}
		for _, v := range words {
			w.U16(v)
		}
		return len(words), w.Err()
	}
	return len(ticks), w.Err()
}

// TimeLength returns the pool length WriteTimes records for ticks.
func TimeLength(f TimeFormat, ticks []float32) (int, error) {
	if f != TimeBitset {
		return len(ticks), nil
	}
	words, err := EncodeBitset(ticks)
	if err != nil {
		return 0, err
	}
	return len(words), nil
}

func integralTick(t float32, limit int) (int, error) {
	if t < 0 || t > float32(limit) || t != float32(int(t)) {
		return 0, fmt.Errorf("%w: %v does not fit [0, %d] integers", ErrTickRange, t, limit)
	}
	return int(t), nil
}

// DecodeBitset expands a bitset entry: header {start, end, count} followed by
// words where bit j of word i marks tick start+16*i+j.
func DecodeBitset(words []uint16) ([]float32, error) {
	if len(words) < bitsetHeaderWords {
		return nil, fmt.Errorf("%w: bitset entry has %d words", ErrBitsetMismatch, len(words))
	}
	start, end, count := int(words[0]), int(words[1]), int(words[2])

	ticks := make([]float32, 0, count)
	for i, word := range words[bitsetHeaderWords:] {
		for j := 0; j < 16; j++ {
			if word&(1<<j) != 0 {
				ticks = append(ticks, float32(start+16*i+j))
			}
		}
	}

	if len(ticks) != count {
		return nil, fmt.Errorf("%w: %d ticks flagged, header says %d", ErrBitsetMismatch, len(ticks), count)
	}
	if count > 0 && int(ticks[len(ticks)-1]) != end {
		return nil, fmt.Errorf("%w: last tick %v, header end %d", ErrBitsetMismatch, ticks[len(ticks)-1], end)
	}
	return ticks, nil
}

// EncodeBitset builds a bitset entry from strictly increasing integral ticks.
func EncodeBitset(ticks []float32) ([]uint16, error) {
	if len(ticks) == 0 {
		return []uint16{0, 0, 0}, nil
	}
	if len(ticks) > stdmath.MaxUint16 {
		return nil, fmt.Errorf("%w: %d ticks exceed bitset count field", ErrTickRange, len(ticks))
	}

	start, err := integralTick(ticks[0], stdmath.MaxUint16)
	if err != nil {
		return nil, err
	}
	end, err := integralTick(ticks[len(ticks)-1], stdmath.MaxUint16)
	if err != nil {
		return nil, err
	}

	span := end - start + 1
	words := make([]uint16, bitsetHeaderWords+(span+15)/16)
	words[0] = uint16(start)
	words[1] = uint16(end)
	words[2] = uint16(len(ticks))

	prev := start - 1
	for _, t := range ticks {
		v, err := integralTick(t, stdmath.MaxUint16)
		if err != nil {
			return nil, err
		}
		if v <= prev {
			return nil, fmt.Errorf("%w: bitset ticks must strictly increase (%d after %d)", ErrTicksDecreasing, v, prev)
		}
		off := v - start
		words[bitsetHeaderWords+off/16] |= 1 << (off % 16)
		prev = v
	}
	return words, nil
}
