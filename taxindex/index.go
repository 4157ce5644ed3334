package taxindex

import (
	"encoding/binary"
	"fmt"
)

// ErrOutOfRange is returned by At when BoundsChecked is enabled and i is
// past the end of the offset array. It is the debug-only failure mode
// named in spec.md §7; disabling BoundsChecked downgrades At to an
// unchecked slice access for the release-build hot path.
var ErrOutOfRange = fmt.Errorf("taxindex: index out of range")

// BoundsChecked controls whether Index.At validates its argument. It
// defaults to true; query-latency-sensitive callers that have already
// established i is in range (as Database.Query has, since it derives i
// from BinKey's own masked output) may set it to false.
var BoundsChecked = true

// Index is an ordered sequence of (4^nt)+1 64-bit offsets into a
// Database's pair array, as described in spec.md §3-4.3. It keeps no
// reference to the byte region it was opened from: Open decodes the
// offsets into a slice of its own, so the region may be released once
// Open returns.
type Index struct {
	header
	offsets []uint64
}

// Open parses an index file (or an in-memory copy of one) from buf. It
// fails with ErrBadFormat if the magic doesn't match a known generation.
// The returned Index holds a decoded copy of the offsets, not a view into
// buf; Open allocates (4^nt)+1 uint64s.
func Open(buf []byte) (*Index, error) {
	h, err := loadHeader(buf)
	if err != nil {
		return nil, err
	}
	numBins := uint64(1) << uint(2*h.nt)
	wantLen := fixedHeaderLen + int((numBins+1)*8)
	if len(buf) < wantLen {
		return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrBadFormat, wantLen, len(buf))
	}

	offsets := make([]uint64, numBins+1)
	rest := buf[fixedHeaderLen:]
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(rest[i*8 : i*8+8])
	}

	return &Index{header: h, offsets: offsets}, nil
}

// Version reports whether this is a v1 or v2 index; it determines which
// XOR scramble BinKey queries must use.
func (idx *Index) Version() Version { return idx.header.version }

// Nt returns the minimizer length the index was built with.
func (idx *Index) Nt() int { return int(idx.header.nt) }

// NumBins returns 4^nt, the number of distinct minimizer bins.
func (idx *Index) NumBins() uint64 { return uint64(1) << uint(2*idx.header.nt) }

// Offsets exposes the raw (4^nt)+1 offset array read-only.
func (idx *Index) Offsets() []uint64 { return idx.offsets }

// At returns B[i], the index of the first pair whose minimizer bin key
// is >= i. If BoundsChecked is true and i > NumBins(), it returns
// ErrOutOfRange instead of panicking; otherwise the access is unchecked.
func (idx *Index) At(i uint64) (uint64, error) {
	if BoundsChecked && i > idx.NumBins() {
		return 0, fmt.Errorf("%w: %d > %d", ErrOutOfRange, i, idx.NumBins())
	}
	return idx.offsets[i], nil
}

// BinRange returns the [lo, hi) pair-array range occupied by minimizer
// bin b: offsets[b] and offsets[b+1].
func (idx *Index) BinRange(b uint64) (lo, hi uint64, err error) {
	lo, err = idx.At(b)
	if err != nil {
		return 0, 0, err
	}
	hi, err = idx.At(b + 1)
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

// Bytes serializes the index back to its on-disk representation.
func (idx *Index) Bytes() []byte {
	out := make([]byte, 0, fixedHeaderLen+len(idx.offsets)*8)
	out = append(out, idx.header.bytes()...)
	var tmp [8]byte
	for _, o := range idx.offsets {
		binary.LittleEndian.PutUint64(tmp[:], o)
		out = append(out, tmp[:]...)
	}
	return out
}
