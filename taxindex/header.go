// Package taxindex implements the minimizer-bin offset index: a sorted
// array of (4^nt)+1 monotone offsets delimiting bins inside a Database's
// pair array. It holds no ownership of its backing byte region.
package taxindex

import (
	"fmt"

	"github.com/biotax/kmerdb/bitkmer"
)

// Version distinguishes the two supported index file generations. The
// version selects the XOR scramble applied in the bin-key computation
// (see bitkmer.BinKey); it is not otherwise observable.
type Version uint8

const (
	// V1 is the original index generation (no XOR scramble).
	V1 Version = iota + 1
	// V2 adds an XOR scramble to the minimizer order for better bin
	// balance.
	V2
)

// magicV1 and magicV2 are the 7-byte ASCII magic sequences identifying
// each index generation on disk.
var (
	magicV1 = [7]byte{'K', 'R', 'A', 'K', 'I', 'D', 'X'}
	magicV2 = [7]byte{'K', 'R', 'A', 'K', 'I', 'X', '2'}
)

// ErrBadFormat is returned when an index's magic bytes don't match a
// known generation.
var ErrBadFormat = fmt.Errorf("taxindex: bad format")

// magicLen + 1 byte for nt.
const fixedHeaderLen = 7 + 1

// header holds the fixed-size prefix of an index file: its version and
// minimizer length. The offsets array that follows is owned by Index.
type header struct {
	version Version
	nt      uint8
}

// loadHeader reads and validates the magic and nt byte from the start of
// buf. It does not read the offsets array.
func loadHeader(buf []byte) (header, error) {
	if len(buf) < fixedHeaderLen {
		return header{}, fmt.Errorf("%w: short buffer (%d bytes)", ErrBadFormat, len(buf))
	}
	var magic [7]byte
	copy(magic[:], buf[:7])

	var version Version
	switch magic {
	case magicV1:
		version = V1
	case magicV2:
		version = V2
	default:
		return header{}, fmt.Errorf("%w: unrecognized magic %q", ErrBadFormat, magic)
	}

	nt := buf[7]
	if nt < 1 || nt > 15 {
		return header{}, fmt.Errorf("%w: nt=%d out of range [1,15]", ErrBadFormat, nt)
	}
	return header{version: version, nt: nt}, nil
}

// bytes serializes the header (magic + nt), writing the v1 magic for a V1
// header and the v2 magic otherwise, so an opened index round-trips to
// its original generation.
func (h header) bytes() []byte {
	out := make([]byte, 0, fixedHeaderLen)
	switch h.version {
	case V1:
		out = append(out, magicV1[:]...)
	default:
		out = append(out, magicV2[:]...)
	}
	out = append(out, h.nt)
	return out
}

// XorMask returns the bin-key XOR scramble associated with this index's
// version, per spec.md §4.1.
func (v Version) XorMask() uint64 {
	if v == V1 {
		return bitkmer.XorMaskV1
	}
	return bitkmer.XorMaskV2
}
