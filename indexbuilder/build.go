// Package indexbuilder computes the minimizer-bin offset index from an
// already-sorted pair array and serializes it to the v2 index file
// format (spec.md §4.4). The counting phase is data-parallel over pair
// indices; the prefix-sum and serialization phases are sequential.
package indexbuilder

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/biotax/kmerdb/bitkmer"
	"github.com/biotax/kmerdb/taxodb"
)

// magicV2 is the on-disk marker for the index generation this builder
// always emits (spec.md §4.4: "Emit the v2 header").
var magicV2 = [7]byte{'K', 'R', 'A', 'K', 'I', 'X', '2'}

// fixedHeaderLen is the magic + nt byte preceding the offsets array.
const fixedHeaderLen = 7 + 1

// Options configures Build. The zero value counts across
// runtime.NumCPU() goroutines with no progress reporting; the resulting
// counts are the same for any Parallelism.
type Options struct {
	// Parallelism is the number of goroutines used for the counting
	// phase. 0 selects runtime.NumCPU().
	Parallelism int
	// ShowProgress prints a progress bar over the counting-phase scan.
	// Intended for interactive builder-pipeline invocations; never
	// enabled on the query path.
	ShowProgress bool
}

// Build scans db's pair array, histograms pairs into 4^nt minimizer
// bins, prefix-sums the histogram into (4^nt)+1 offsets, and returns the
// serialized v2 index file: magic, nt, then the offsets as little-endian
// u64s.
//
// db's pair array must already be sorted consistently with the
// histogram this function computes (ascending minimizer bin key, then
// canonical k-mer) — sorting the pair array is an upstream, out-of-core
// concern (spec.md §4.4), not this function's job.
func Build(db *taxodb.Database, nt int, opts Options) ([]byte, error) {
	if nt < 1 || nt > bitkmer.MaxNt {
		return nil, fmt.Errorf("indexbuilder: nt=%d out of range [1,%d]", nt, bitkmer.MaxNt)
	}
	if nt > db.K() {
		return nil, fmt.Errorf("indexbuilder: nt=%d exceeds k=%d", nt, db.K())
	}

	numBins := uint64(1) << uint(2*nt)
	counts := make([]uint64, numBins)

	if err := countBins(db, nt, counts, opts); err != nil {
		return nil, err
	}

	offsets := prefixSum(counts)
	if got := offsets[numBins]; got != db.PairCount() {
		return nil, fmt.Errorf("indexbuilder: internal inconsistency: offsets[4^nt]=%d, want key_ct=%d", got, db.PairCount())
	}

	return serialize(nt, offsets), nil
}

// countBins increments counts[bin_key(pair.key)] for every pair in db,
// splitting the scan across Parallelism goroutines with atomic
// fetch-add on the shared counter array (spec.md §5, §9).
func countBins(db *taxodb.Database, nt int, counts []uint64, opts Options) error {
	total := db.PairCount()
	if total == 0 {
		return nil
	}

	workers := opts.Parallelism
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if uint64(workers) > total {
		workers = int(total)
	}
	if workers < 1 {
		workers = 1
	}

	var bar progressReporter = noopProgress{}
	if opts.ShowProgress {
		bar = newBar(total)
	}

	k := db.K()
	chunk := (total + uint64(workers) - 1) / uint64(workers)

	var wg sync.WaitGroup
	started := time.Now()
	klog.Infof("indexbuilder: counting %s pairs into %s bins across %d workers",
		humanize.Comma(int64(total)), humanize.Comma(int64(len(counts))), workers)

	for w := 0; w < workers; w++ {
		lo := uint64(w) * chunk
		hi := lo + chunk
		if hi > total {
			hi = total
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(lo, hi uint64) {
			defer wg.Done()
			for p := lo; p < hi; p++ {
				kmer := db.KeyAt(p)
				b := bitkmer.BinKey(kmer, k, nt, bitkmer.XorMaskV2)
				atomic.AddUint64(&counts[b], 1)
				bar.Add(1)
			}
		}(lo, hi)
	}
	wg.Wait()
	bar.Close()

	klog.Infof("indexbuilder: counting phase done in %s", time.Since(started))
	return nil
}

// prefixSum turns a per-bin histogram into a monotone offset array of
// length len(counts)+1 with offsets[0]=0, satisfying spec.md §3's Index
// invariants.
func prefixSum(counts []uint64) []uint64 {
	offsets := make([]uint64, len(counts)+1)
	var running uint64
	for i, c := range counts {
		offsets[i] = running
		running += c
	}
	offsets[len(counts)] = running
	return offsets
}

// serialize writes the v2 index header (magic, nt) followed by offsets
// as little-endian u64s.
func serialize(nt int, offsets []uint64) []byte {
	out := make([]byte, 0, fixedHeaderLen+len(offsets)*8)
	out = append(out, magicV2[:]...)
	out = append(out, byte(nt))
	var tmp [8]byte
	for _, o := range offsets {
		binary.LittleEndian.PutUint64(tmp[:], o)
		out = append(out, tmp[:]...)
	}
	return out
}
