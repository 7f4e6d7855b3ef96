// Package hash provides keyed hashing and key derivation helpers.
//
// OTP codes and session tokens are never stored in clear: callers keep the
// HMAC-SHA256 of the value and verify candidates in constant time. Subkeys for
// each purpose are derived from one master secret with HKDF.
package hash
