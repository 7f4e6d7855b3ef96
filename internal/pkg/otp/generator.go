package otp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// Digits is the fixed length of a generated code.
const Digits = 6

const (
	codeSpace = 1_000_000
	// largest multiple of codeSpace that fits in 2^32; draws at or above it are rejected.
	sampleLimit = (1 << 32) - (1<<32)%codeSpace
)

// Generator produces uniformly distributed decimal codes.
type Generator struct {
	r io.Reader
}

// NewGenerator returns a Generator reading from r, or crypto/rand when r is nil.
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{r: r}
}

// Generate returns a code in the range 000000-999999.
func (g *Generator) Generate() (string, error) {
	var buf [4]byte
	for {
		if _, err := io.ReadFull(g.r, buf[:]); err != nil {
			return "", fmt.Errorf("otp: read random: %w", err)
		}

		v := uint64(binary.BigEndian.Uint32(buf[:]))
		if v >= sampleLimit {
			continue
		}

		return fmt.Sprintf("%0*d", Digits, v%codeSpace), nil
	}
}

// IsCode reports whether s is exactly Digits ASCII digits.
func IsCode(s string) bool {
	if len(s) != Digits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
