package hash

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MinSecretSize is the smallest master secret accepted by DeriveKey.
const MinSecretSize = 32

// ErrWeakSecret is returned when the master secret is shorter than MinSecretSize.
var ErrWeakSecret = errors.New("hash: master secret must be at least 32 bytes")

// DeriveKey expands master into a size-byte key bound to purpose.
//
// Different purposes always yield unrelated keys, so a token MAC key cannot be
// replayed as a code-hash key.
func DeriveKey(master []byte, purpose string, size int) ([]byte, error) {
	if len(master) < MinSecretSize {
		return nil, ErrWeakSecret
	}

	out := make([]byte, size)
	r := hkdf.New(sha256.New, master, nil, []byte(purpose))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}

	return out, nil
}
