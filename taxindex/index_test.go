package taxindex

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotax/kmerdb/bitkmer"
)

func buildIndexBytes(t *testing.T, magic [7]byte, nt uint8, offsets []uint64) []byte {
	t.Helper()
	buf := append([]byte{}, magic[:]...)
	buf = append(buf, nt)
	var tmp [8]byte
	for _, o := range offsets {
		binary.LittleEndian.PutUint64(tmp[:], o)
		buf = append(buf, tmp[:]...)
	}
	return buf
}

func TestOpen_V1(t *testing.T) {
	// nt=1 => 4 bins, 5 offsets.
	offsets := []uint64{0, 1, 3, 3, 5}
	buf := buildIndexBytes(t, magicV1, 1, offsets)

	idx, err := Open(buf)
	require.NoError(t, err)
	assert.Equal(t, V1, idx.Version())
	assert.Equal(t, 1, idx.Nt())
	assert.EqualValues(t, 4, idx.NumBins())
	assert.Equal(t, offsets, idx.Offsets())
}

func TestOpen_V2(t *testing.T) {
	offsets := []uint64{0, 2, 2, 4, 5}
	buf := buildIndexBytes(t, magicV2, 1, offsets)

	idx, err := Open(buf)
	require.NoError(t, err)
	assert.Equal(t, V2, idx.Version())
	assert.Equal(t, bitkmer.XorMaskV2, idx.Version().XorMask())
}

func TestOpen_BadMagic(t *testing.T) {
	buf := buildIndexBytes(t, [7]byte{'X', 'X', 'X', 'X', 'X', 'X', 'X'}, 1, []uint64{0, 0, 0, 0, 0})
	idx, err := Open(buf)
	require.Nil(t, idx)
	require.ErrorIs(t, err, ErrBadFormat)
}

func TestOpen_TruncatedOffsets(t *testing.T) {
	buf := buildIndexBytes(t, magicV1, 2, []uint64{0, 1, 2}) // needs 17 offsets, only 3 given
	idx, err := Open(buf)
	require.Nil(t, idx)
	require.ErrorIs(t, err, ErrBadFormat)
}

func TestAt_BoundsChecked(t *testing.T) {
	old := BoundsChecked
	BoundsChecked = true
	defer func() { BoundsChecked = old }()

	offsets := []uint64{0, 1, 3, 3, 5}
	buf := buildIndexBytes(t, magicV1, 1, offsets)
	idx, err := Open(buf)
	require.NoError(t, err)

	v, err := idx.At(4)
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)

	_, err = idx.At(5)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestBinRange(t *testing.T) {
	offsets := []uint64{0, 1, 3, 3, 5}
	buf := buildIndexBytes(t, magicV1, 1, offsets)
	idx, err := Open(buf)
	require.NoError(t, err)

	lo, hi, err := idx.BinRange(1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, lo)
	assert.EqualValues(t, 3, hi)
}

func TestBytes_RoundTrip(t *testing.T) {
	offsets := []uint64{0, 2, 2, 4, 5}
	buf := buildIndexBytes(t, magicV2, 1, offsets)
	idx, err := Open(buf)
	require.NoError(t, err)
	assert.Equal(t, buf, idx.Bytes())
}
