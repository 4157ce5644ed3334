package taxodb

import (
	"encoding/binary"
	"fmt"

	"github.com/valyala/bytebufferpool"

	"github.com/biotax/kmerdb/bitkmer"
)

// ErrNoIndex names the condition in which no Index has been bound via
// BindIndex. Query and QueryWithState do not return it: they return no
// error at all and report every k-mer as absent in that case.
var ErrNoIndex = fmt.Errorf("taxodb: no index bound")

// linearScanThreshold is the window size at which the hybrid search
// switches from binary search to a linear scan (spec.md §4.5). It is a
// tuning constant, not a correctness parameter.
const linearScanThreshold = 16

// QueryState caches the bin found by the previous query so that
// successive queries on neighbouring k-mers from the same read can skip
// recomputing the minimizer bin key when they share a minimizer
// (spec.md §4.5, "Amortised neighbour query").
//
// A QueryState must not be shared across goroutines; each concurrent
// query stream owns its own (spec.md §5).
type QueryState struct {
	lastBinKey uint64
	lo, hi     int64 // hi < lo means "no cached window"
}

// NewQueryState returns a QueryState whose initial window is empty,
// forcing a full bin lookup on the first call to QueryWithState.
func NewQueryState() QueryState {
	return QueryState{lo: 0, hi: -1}
}

// Query looks up kmer (already in canonical form) and returns its taxon
// id and whether it was found. It recomputes the minimizer bin key on
// every call; see QueryWithState for the amortised form.
//
// Query never returns an error: a missing k-mer is absence, not a
// failure (spec.md §7).
func (db *Database) Query(kmer uint64) (taxon uint32, found bool) {
	if db.index == nil {
		return 0, false
	}
	b := db.binKey(kmer)
	lo, hiExclusive, err := db.index.BinRange(b)
	if err != nil {
		return 0, false
	}
	return db.hybridSearch(kmer, int64(lo), int64(hiExclusive)-1)
}

// QueryWithState is the amortised form of Query. On a cache hit (the
// k-mer is found in the window cached from the previous call) it avoids
// recomputing the bin key entirely. On a cache miss it recomputes the
// bin key; if the bin hasn't changed, the k-mer is simply absent (no
// retry needed); otherwise it loads the new bin's window, updates state,
// and retries once in the new window.
//
// This is a flat two-attempt loop (attempt 1: cached bin; attempt 2:
// freshly computed bin), not the one-level recursive retry with a
// "no retry" flag used upstream (spec.md §9).
func (db *Database) QueryWithState(kmer uint64, state *QueryState) (taxon uint32, found bool) {
	if db.index == nil {
		return 0, false
	}

	if state.lo <= state.hi {
		if v, ok := db.hybridSearch(kmer, state.lo, state.hi); ok {
			return v, true
		}
	}

	b := db.binKey(kmer)
	if state.lo <= state.hi && b == state.lastBinKey {
		// Same bin as before; the miss above already searched it.
		return 0, false
	}

	lo, hiExclusive, err := db.index.BinRange(b)
	if err != nil {
		return 0, false
	}
	state.lastBinKey = b
	state.lo = int64(lo)
	state.hi = int64(hiExclusive) - 1

	return db.hybridSearch(kmer, state.lo, state.hi)
}

// binKey computes the minimizer bin key for kmer using this database's
// k and the bound index's nt and XOR mask.
func (db *Database) binKey(kmer uint64) uint64 {
	return bitkmer.BinKey(kmer, db.K(), db.index.Nt(), db.index.Version().XorMask())
}

// hybridSearch searches pair-array indices [lo,hi] (inclusive) for a
// pair whose key equals kmer: classical binary search while the window
// holds more than linearScanThreshold elements, then a linear scan over
// the cache-friendly tail (spec.md §4.5).
func (db *Database) hybridSearch(kmer uint64, lo, hi int64) (uint32, bool) {
	for lo+linearScanThreshold <= hi {
		mid := lo + (hi-lo)/2
		k := db.KeyAt(uint64(mid))
		switch {
		case k == kmer:
			return db.ValueAt(uint64(mid)), true
		case k < kmer:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return db.linearScan(kmer, lo, hi)
}

// linearScan searches the narrowed [lo,hi] tail by copying the whole
// window into a pooled buffer in one shot and scanning it there, rather
// than re-slicing db.data pair by pair, mirroring the buffered Has/Lookup
// reads on the teacher's own bin-read hot path.
func (db *Database) linearScan(kmer uint64, lo, hi int64) (uint32, bool) {
	if lo > hi {
		return 0, false
	}
	stride := int64(db.PairStride())
	keyLen := int64(db.KeyLen())
	start := db.HeaderSize() + lo*stride
	n := (hi - lo + 1) * stride

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.Reset()
	buf.Write(db.data[start : start+n])
	window := buf.Bytes()

	var kbuf [8]byte
	mask := db.keyMask()
	for i := int64(0); i <= hi-lo; i++ {
		rec := window[i*stride : i*stride+stride]
		kbuf = [8]byte{}
		copy(kbuf[:keyLen], rec[:keyLen])
		if binary.LittleEndian.Uint64(kbuf[:])&mask == kmer {
			return binary.LittleEndian.Uint32(rec[keyLen : keyLen+4]), true
		}
	}
	return 0, false
}
