package task

import "crypto/rand"

// idAlphabet has 32 symbols: digits and lowercase letters with the visually
// ambiguous 0, o, 1 and l removed.
const idAlphabet = "23456789abcdefghijkmnpqrstuvwxyz"

const idLength = 24

// NewID returns a fresh 24-character task identifier.
func NewID() string {
	var buf [idLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("task: reading random bytes: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)&31]
	}
	return string(buf[:])
}
