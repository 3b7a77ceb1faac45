// Package simhash computes 64-bit locality-sensitive fingerprints of
// text. Similar documents produce fingerprints with a small Hamming
// distance, which lets the crawler detect that a posting's content is
// unchanged without storing the previous body.
package simhash

import (
	"math/bits"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes each token of the text to 64 bits and accumulates a
// per-bit vote: +1 where the token hash has the bit set, -1 where it does
// not. Bits with a positive final vote are set in the fingerprint.
// Tokens are lowercased runs of letters and digits, so punctuation and
// whitespace layout do not affect the result. An empty or token-free text
// fingerprints to zero.
func Fingerprint(text string) uint64 {
	var votes [64]int

	for _, token := range tokenize(text) {
		h := xxhash.Sum64String(token)
		for i := 0; i < 64; i++ {
			if h&(1<<uint(i)) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}

	var fingerprint uint64
	for i := 0; i < 64; i++ {
		if votes[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}
	return fingerprint
}

// Distance returns the Hamming distance between two fingerprints: the
// number of bit positions at which they differ.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
