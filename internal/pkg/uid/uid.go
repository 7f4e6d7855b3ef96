// Package uid generates identifiers: UUIDv7 strings for correlation and
// session ids, snowflake numbers for event ids.
package uid

// StringID generates string identifiers.
type StringID interface {
	Generate() string
}

// NumberID generates numeric identifiers that sort by creation time.
type NumberID interface {
	Generate() int64
}
