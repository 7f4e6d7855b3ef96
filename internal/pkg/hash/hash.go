package hash

// Hash hashes a value with a key held by the implementation and verifies it later.
type Hash interface {
	Hash(str string) ([]byte, error)
	Verify(hashed, str string) bool
}
