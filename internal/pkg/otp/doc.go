// Package otp generates email one-time codes and seals them into
// tamper-evident verification tokens.
//
// Generator draws 6-digit codes uniformly from crypto/rand using rejection
// sampling. Codec produces base64url(payload || HMAC-SHA256(payload)) tokens
// whose payload carries the normalized email, a keyed digest of the code and
// the issue/expiry instants, so a verifier can check a code without any
// server-side state.
package otp
