// Package taxodb implements the pair-array database: the sorted array of
// fixed-stride (canonical k-mer, taxon id) records, its file header, and
// the hybrid binary+linear query engine that searches it. A Database
// holds a non-owning reference to its backing byte region (typically
// memory-mapped); that region must outlive every Database/QueryState
// derived from it.
package taxodb

import (
	"encoding/binary"
	"fmt"

	"github.com/biotax/kmerdb/taxindex"
)

// Magic is the 8-byte ASCII sequence at the start of every pair-array
// file, inherited unchanged from the upstream hash-table format this
// header layout is borrowed from.
var Magic = [8]byte{'J', 'F', 'L', 'I', 'S', 'T', 'D', 'N'}

// ValLen is the only supported value width: a 4-byte taxon id.
// Non-goal per spec.md §1: other value widths are not supported.
const ValLen = 4

// ErrBadFormat is returned from Open when the magic doesn't match or the
// value width isn't 4 bytes.
var ErrBadFormat = fmt.Errorf("taxodb: bad format")

// minHeaderFixedLen is the number of leading bytes this package reads
// directly (through key_ct at byte 56); everything from there up to
// HeaderSize() is opaque reserved space the core does not interpret.
const minHeaderFixedLen = 56

// Database is a parsed pair-array file: the fixed-offset header fields
// plus a non-owning view of the backing bytes (header and pair array
// together). It holds no Index until BindIndex is called.
type Database struct {
	keyBits uint64
	valLen  uint64
	keyCt   uint64

	data  []byte
	index *taxindex.Index
}

// BindIndex attaches idx to db. Required before Query/QueryWithState;
// calling it again replaces the previously bound index. Database does
// not take ownership of idx or validate that idx was built from this
// exact pair array (spec.md §4.2).
func (db *Database) BindIndex(idx *taxindex.Index) {
	db.index = idx
}

// Index returns the currently bound index, or nil if none has been
// bound yet.
func (db *Database) Index() *taxindex.Index { return db.index }

// Open parses a pair-array file's header from buf. buf must contain at
// least the full header (HeaderSize() bytes); the pair array itself may
// be appended afterward in the same slice, or absent (header-only opens
// are useful for inspecting key_bits/key_ct before mmap'ing the rest).
//
// Open fails with ErrBadFormat if the magic doesn't match, or val_len
// isn't 4.
func Open(buf []byte) (*Database, error) {
	if len(buf) < minHeaderFixedLen {
		return nil, fmt.Errorf("%w: short buffer (%d bytes)", ErrBadFormat, len(buf))
	}
	var magic [8]byte
	copy(magic[:], buf[:8])
	if magic != Magic {
		return nil, fmt.Errorf("%w: unrecognized magic %q", ErrBadFormat, magic)
	}

	keyBits := binary.LittleEndian.Uint64(buf[8:16])
	valLen := binary.LittleEndian.Uint64(buf[16:24])
	if valLen != ValLen {
		return nil, fmt.Errorf("%w: val_len=%d, only %d is supported", ErrBadFormat, valLen, ValLen)
	}
	keyCt := binary.LittleEndian.Uint64(buf[48:56])

	db := &Database{
		keyBits: keyBits,
		valLen:  valLen,
		keyCt:   keyCt,
		data:    buf,
	}
	return db, nil
}

// K returns the k-mer length in bases (key_bits / 2).
func (db *Database) K() int { return int(db.keyBits / 2) }

// KeyBits returns the key width in bits (2*K).
func (db *Database) KeyBits() uint64 { return db.keyBits }

// KeyLen returns the key width in bytes, ceil(key_bits/8).
func (db *Database) KeyLen() int { return int((db.keyBits + 7) / 8) }

// ValLen returns the value width in bytes; always 4.
func (db *Database) ValLen() int { return int(db.valLen) }

// PairStride returns the size of one pair record: KeyLen()+ValLen().
func (db *Database) PairStride() int { return db.KeyLen() + db.ValLen() }

// PairCount returns the number of pairs in the array (key_ct).
func (db *Database) PairCount() uint64 { return db.keyCt }

// HeaderSize returns the total header length in bytes:
// 72 + 2*(4 + 8*key_bits), per spec.md §3/§6. The pair array begins at
// this offset.
func (db *Database) HeaderSize() int64 {
	return 72 + 2*(4+8*int64(db.keyBits))
}

// PairPtr returns the offset of the pair array within the backing byte
// region; an alias for HeaderSize() under the name used in spec.md §4.2.
func (db *Database) PairPtr() int64 { return db.HeaderSize() }

// keyMask masks off any high-order garbage above key_bits bits, per the
// "key comparison detail" in spec.md §4.5.
func (db *Database) keyMask() uint64 {
	if db.keyBits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << db.keyBits) - 1
}

// KeyAt reads the canonical k-mer stored at pair index i.
func (db *Database) KeyAt(i uint64) uint64 {
	off := db.HeaderSize() + int64(i)*int64(db.PairStride())
	keyLen := db.KeyLen()
	var buf [8]byte
	copy(buf[:], db.data[off:off+int64(keyLen)])
	return binary.LittleEndian.Uint64(buf[:]) & db.keyMask()
}

// ValueAt reads the 32-bit taxon id stored at pair index i.
func (db *Database) ValueAt(i uint64) uint32 {
	off := db.HeaderSize() + int64(i)*int64(db.PairStride()) + int64(db.KeyLen())
	return binary.LittleEndian.Uint32(db.data[off : off+4])
}

// EncodeHeader serializes a pair-array file header for the given key
// width and pair count. The opaque reserved region (bytes 24..header
// end, excluding the key_ct field itself) is zero-filled; this core
// never interprets it, only the external builder's upstream hash-format
// ancestry gives it meaning.
func EncodeHeader(keyBits, keyCt uint64) []byte {
	size := 72 + 2*(4+8*int64(keyBits))
	buf := make([]byte, size)
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint64(buf[8:16], keyBits)
	binary.LittleEndian.PutUint64(buf[16:24], ValLen)
	binary.LittleEndian.PutUint64(buf[48:56], keyCt)
	return buf
}
