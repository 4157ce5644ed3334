package indexbuilder

import (
	"encoding/binary"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotax/kmerdb/bitkmer"
	"github.com/biotax/kmerdb/taxindex"
	"github.com/biotax/kmerdb/taxodb"
)

// buildSortedDatabase assembles a pair-array Database from canonical
// k-mers, sorted ascending by (v2 bin key, k-mer) as Build requires.
func buildSortedDatabase(t *testing.T, k, nt int, kmers []uint64) *taxodb.Database {
	t.Helper()
	sort.Slice(kmers, func(i, j int) bool {
		bi := bitkmer.BinKey(kmers[i], k, nt, bitkmer.XorMaskV2)
		bj := bitkmer.BinKey(kmers[j], k, nt, bitkmer.XorMaskV2)
		if bi != bj {
			return bi < bj
		}
		return kmers[i] < kmers[j]
	})

	keyBits := uint64(2 * k)
	keyLen := int((keyBits + 7) / 8)
	pairBytes := make([]byte, 0, len(kmers)*(keyLen+4))
	for i, km := range kmers {
		var kbuf [8]byte
		binary.LittleEndian.PutUint64(kbuf[:], km)
		pairBytes = append(pairBytes, kbuf[:keyLen]...)
		var vbuf [4]byte
		binary.LittleEndian.PutUint32(vbuf[:], uint32(i)+1)
		pairBytes = append(pairBytes, vbuf[:]...)
	}

	header := taxodb.EncodeHeader(keyBits, uint64(len(kmers)))
	data := append(header, pairBytes...)
	db, err := taxodb.Open(data)
	require.NoError(t, err)
	return db
}

func distinctCanonicalKmers(k, n int, seedState uint64) []uint64 {
	seen := map[uint64]bool{}
	out := make([]uint64, 0, n)
	state := seedState
	maxVal := uint64(1)<<uint(2*k) - 1
	for len(out) < n {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		canon := bitkmer.Canonical(state&maxVal, k)
		if seen[canon] {
			continue
		}
		seen[canon] = true
		out = append(out, canon)
	}
	return out
}

func TestBuild_Invariants(t *testing.T) {
	const k, nt = 10, 3
	kmers := distinctCanonicalKmers(k, 500, 0xabad1dea)
	db := buildSortedDatabase(t, k, nt, kmers)

	indexBytes, err := Build(db, nt, Options{})
	require.NoError(t, err)

	idx, err := taxindex.Open(indexBytes)
	require.NoError(t, err)
	assert.Equal(t, taxindex.V2, idx.Version())

	offsets := idx.Offsets()
	require.EqualValues(t, 0, offsets[0])
	require.EqualValues(t, db.PairCount(), offsets[len(offsets)-1])
	for i := 1; i < len(offsets); i++ {
		require.GreaterOrEqual(t, offsets[i], offsets[i-1], "offsets must be monotone")
	}

	// Property 7: every pair at position i falls within
	// [offsets[bin_key], offsets[bin_key+1]).
	for i := uint64(0); i < db.PairCount(); i++ {
		key := db.KeyAt(i)
		b := bitkmer.BinKey(key, k, nt, bitkmer.XorMaskV2)
		lo, hi, err := idx.BinRange(b)
		require.NoError(t, err)
		assert.True(t, lo <= i && i < hi, "pair %d (bin %d) not within [%d,%d)", i, b, lo, hi)
	}
}

func TestBuild_QueryRoundTrip(t *testing.T) {
	const k, nt = 8, 2
	kmers := distinctCanonicalKmers(k, 300, 0xfeedface)
	db := buildSortedDatabase(t, k, nt, kmers)

	indexBytes, err := Build(db, nt, Options{Parallelism: 4})
	require.NoError(t, err)

	idx, err := taxindex.Open(indexBytes)
	require.NoError(t, err)
	db.BindIndex(idx)

	for i, km := range kmers {
		v, ok := db.Query(km)
		require.True(t, ok)
		assert.EqualValues(t, i+1, v)
	}
}

func TestBuild_RejectsNtGreaterThanK(t *testing.T) {
	db := buildSortedDatabase(t, 4, 4, distinctCanonicalKmers(4, 5, 1))
	_, err := Build(db, 5, Options{})
	require.Error(t, err)
}

func TestBuild_EmptyDatabase(t *testing.T) {
	db := buildSortedDatabase(t, 4, 2, nil)
	indexBytes, err := Build(db, 2, Options{})
	require.NoError(t, err)

	idx, err := taxindex.Open(indexBytes)
	require.NoError(t, err)
	for _, o := range idx.Offsets() {
		assert.EqualValues(t, 0, o)
	}
}
