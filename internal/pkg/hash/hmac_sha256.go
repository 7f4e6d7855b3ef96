package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HMACSHA256 implements the Hash interface using SHA-256.
type HMACSHA256 struct {
	secret []byte
}

// NewHMACSHA256 creates a new hasher with a secret.
func NewHMACSHA256(secret []byte) *HMACSHA256 {
	return &HMACSHA256{secret: append([]byte(nil), secret...)}
}

// Hash returns the HMAC SHA-256 of the input string, hex-encoded.
func (s *HMACSHA256) Hash(str string) ([]byte, error) {
	return s.gen(str), nil
}

// HashString is Hash for callers that use the digest as a key.
func (s *HMACSHA256) HashString(str string) string {
	return string(s.gen(str))
}

// Verify checks whether the plaintext string matches the given hash.
func (s *HMACSHA256) Verify(hashed, str string) bool {
	expected := s.gen(str)
	return subtle.ConstantTimeCompare([]byte(hashed), expected) == 1
}

// Sum returns the raw 32-byte MAC of data.
func (s *HMACSHA256) Sum(data []byte) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write(data)
	return h.Sum(nil)
}

func (s *HMACSHA256) gen(str string) []byte {
	sum := s.Sum([]byte(str))
	result := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(result, sum)
	return result
}
