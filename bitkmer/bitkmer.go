// Package bitkmer implements bit-packed fixed-length DNA k-mers.
//
// A k-mer of length k (1 <= k <= 32) is stored in the low 2k bits of a
// uint64, two bits per base, most-significant pair first. All operations
// in this package are pure and bit-exact: on-disk ordering of the
// database depends on them matching byte-for-byte across builds.
package bitkmer

import (
	"fmt"
	"strings"
)

// Kmer is a DNA k-mer packed two bits per base into the low bits of a
// uint64. Unused high bits are always zero.
type Kmer = uint64

// MaxK is the largest k-mer length representable in a single uint64.
const MaxK = 32

// ErrInvalidBase is returned by Encode when the input string contains a
// character outside {A,C,G,T,a,c,g,t}.
var ErrInvalidBase = fmt.Errorf("bitkmer: invalid base")

// baseCode maps an ASCII base to its 2-bit code. -1 marks an invalid byte.
var baseCode = [256]int8{}

func init() {
	for i := range baseCode {
		baseCode[i] = -1
	}
	baseCode['A'], baseCode['a'] = 0, 0
	baseCode['C'], baseCode['c'] = 1, 1
	baseCode['G'], baseCode['g'] = 2, 2
	baseCode['T'], baseCode['t'] = 3, 3
}

var baseLetter = [4]byte{'A', 'C', 'G', 'T'}

// Encode packs s (length 1..32, characters in {A,C,G,T,a,c,g,t}) into a
// Kmer, with the first character of s in the most significant 2 bits of
// the result.
func Encode(s string) (Kmer, error) {
	if len(s) == 0 || len(s) > MaxK {
		return 0, fmt.Errorf("bitkmer: encode: length %d out of range [1,%d]", len(s), MaxK)
	}
	var out Kmer
	for i := 0; i < len(s); i++ {
		code := baseCode[s[i]]
		if code < 0 {
			return 0, fmt.Errorf("%w: %q at position %d", ErrInvalidBase, s[i], i)
		}
		out = out<<2 | Kmer(code)
	}
	return out, nil
}

// Decode unpacks a Kmer of length n (1..32) into its uppercase string
// representation. It is the inverse of Encode.
func Decode(kmer Kmer, n int) (string, error) {
	if n <= 0 || n > MaxK {
		return "", fmt.Errorf("bitkmer: decode: length %d out of range [1,%d]", n, MaxK)
	}
	var sb strings.Builder
	sb.Grow(n)
	for i := n - 1; i >= 0; i-- {
		code := (kmer >> uint(2*i)) & 0x3
		sb.WriteByte(baseLetter[code])
	}
	return sb.String(), nil
}

// MustEncode is like Encode but panics on an invalid base. Useful for
// compile-time-known test fixtures.
func MustEncode(s string) Kmer {
	k, err := Encode(s)
	if err != nil {
		panic(err)
	}
	return k
}
