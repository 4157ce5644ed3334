// Package mmapsrc provides the memory-mapping plumbing that feeds the
// core taxodb/taxindex types a byte region, following the same
// open-mmap-then-fadvise-then-warm-up pattern as the teacher's
// bucketteer and compactindexsized readers. It is deliberately thin and
// lives outside the pure, I/O-free core (spec.md §1 names
// memory-mapping as part of the system it describes, unlike the
// classifier/builder/taxonomy collaborators that are excluded).
package mmapsrc

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/biotax/kmerdb/taxindex"
	"github.com/biotax/kmerdb/taxodb"
)

// Mapping is a live mmap(2) region. Closing it unmaps the memory; every
// Database derived from its Bytes() becomes invalid once Close returns,
// since it holds a non-owning view into exactly this region. An Index
// keeps its own copy of the offsets and stays usable after Close.
type Mapping struct {
	data []byte
	file *os.File
}

// Bytes returns the mapped region. The slice is backed directly by the
// kernel's page cache, not a heap copy: bytes that are never touched are
// never faulted in.
func (m *Mapping) Bytes() []byte { return m.data }

// Close unmaps the region and closes the underlying file descriptor.
func (m *Mapping) Close() error {
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
		m.data = nil
	}
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func openMapping(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("mmapsrc: %q is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %q: %w", path, err)
	}

	if err := unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM); err != nil {
		slog.Warn("fadvise(RANDOM) failed", "path", path, "error", err)
	}

	return &Mapping{data: data, file: f}, nil
}

// OpenDatabase memory-maps path and parses the pair-array header out of
// the mapping in place — no copy of the file is made. The returned
// *Mapping must be closed after every Database derived from it is done
// being used, and not before: Database holds a non-owning view into
// exactly these mapped bytes, so random-access queries fault in only the
// O(log n) pages a binary search touches, not the whole file.
func OpenDatabase(path string) (*taxodb.Database, *Mapping, error) {
	m, err := openMapping(path)
	if err != nil {
		return nil, nil, fmt.Errorf("mmapsrc: open database %q: %w", path, err)
	}

	db, err := taxodb.Open(m.data)
	if err != nil {
		m.Close()
		return nil, nil, err
	}

	return db, m, nil
}

// OpenIndex memory-maps path and parses the index header out of the
// mapping; the offsets are decoded into a heap slice owned by the Index
// (see taxindex.Open). Use WarmUp afterward, once the Index has been
// bound to its Database, to pre-fault the bin boundaries in the
// pair-array mapping.
func OpenIndex(path string) (*taxindex.Index, *Mapping, error) {
	m, err := openMapping(path)
	if err != nil {
		return nil, nil, fmt.Errorf("mmapsrc: open index %q: %w", path, err)
	}

	idx, err := taxindex.Open(m.data)
	if err != nil {
		m.Close()
		return nil, nil, err
	}

	return idx, m, nil
}

// WarmUp touches one byte per bin boundary in dbMapping's pair array so
// the first pair of every bin is resident in the page cache before the
// first query, mirroring the warmup loop in bucketteer.NewReader (which
// does the same thing for its own bucket offsets). db must already have
// idx bound, since the byte offset of bin i within the mapping is
// PairPtr() + offsets[i]*PairStride(), not offsets[i] itself.
func WarmUp(dbMapping *Mapping, db *taxodb.Database, idx *taxindex.Index) {
	started := time.Now()
	data := dbMapping.Bytes()
	stride := int64(db.PairStride())
	base := db.PairPtr()
	warmed := 0
	var sink byte
	for _, off := range idx.Offsets() {
		byteOff := base + int64(off)*stride
		if byteOff < 0 || byteOff >= int64(len(data)) {
			continue
		}
		sink ^= data[byteOff]
		warmed++
	}
	runtime.KeepAlive(sink)
	slog.Info("index warmup complete", "bins_warmed", warmed, "duration", time.Since(started))
}
