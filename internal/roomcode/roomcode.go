// Package roomcode generates short lobby codes over a restricted alphabet.
//
// The alphabet drops the visually ambiguous characters (0/O, 1/I/L) so a
// code read off a screen survives being typed back in.
package roomcode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	alphabet = "23456789ABCDEFGHJKMNPQRSTVWXYZ"
	// Length is the fixed code length. Five characters over a 30-symbol
	// alphabet gives ~24 million codes, plenty for one process.
	Length = 5
)

// RandSource is the randomness hook used by Generator, satisfied by
// *rand.Rand for deterministic tests.
type RandSource interface {
	IntN(n int) int
}

// Generator produces room codes with configurable randomness.
type Generator struct {
	src RandSource
}

// NewGenerator returns a Generator. A nil src uses crypto/rand.
func NewGenerator(src RandSource) *Generator {
	return &Generator{src: src}
}

// Generate returns a fresh code. Uniqueness is the caller's concern; the
// lobby table retries on collision.
func (g *Generator) Generate() string {
	var sb strings.Builder
	sb.Grow(Length)
	for i := 0; i < Length; i++ {
		sb.WriteByte(alphabet[g.index()])
	}
	return sb.String()
}

func (g *Generator) index() int {
	if g.src != nil {
		return g.src.IntN(len(alphabet))
	}
	var b [1]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic("roomcode: crypto/rand failed: " + err.Error())
		}
		// Rejection sample to keep the distribution uniform.
		if int(b[0]) < 256-256%len(alphabet) {
			return int(b[0]) % len(alphabet)
		}
	}
}

// Normalize upper-cases and trims a user-supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks length and alphabet membership.
func Validate(code string) error {
	if len(code) != Length {
		return fmt.Errorf("room code must be %d characters, got %d", Length, len(code))
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(alphabet, rune(code[i])) {
			return fmt.Errorf("invalid character %c at position %d", code[i], i)
		}
	}
	return nil
}
