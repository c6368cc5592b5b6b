package shortkey

import (
	"crypto/rand"
	"math/big"
)

// KeyLength is the number of characters in a generated short key.
const KeyLength = 8

// alphabet deliberately excludes visually ambiguous glyphs (0/O, 1/l/I) so
// keys survive being read aloud or retyped from print.
const alphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var alphabetLen = big.NewInt(int64(len(alphabet)))

// Generate returns a fresh 8-character short key. The key space
// (57^8 ≈ 1.1e14) makes blind collisions rare, but callers still perform an
// existence check before accepting a key.
func Generate() string {
	buf := make([]byte, KeyLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			// crypto/rand only fails when the platform's entropy source is
			// broken, at which point nothing else in the process works either.
			panic(err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf)
}

// Valid reports whether s could have been produced by Generate.
func Valid(s string) bool {
	if len(s) != KeyLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !inAlphabet(s[i]) {
			return false
		}
	}
	return true
}

func inAlphabet(c byte) bool {
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == c {
			return true
		}
	}
	return false
}
