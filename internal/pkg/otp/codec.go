package otp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
)

const macSize = sha256.Size

var tokenEncoding = base64.RawURLEncoding.Strict()

var (
	// ErrTampered is returned when the token is malformed or its MAC does not match.
	ErrTampered = errors.New("otp: token tampered")
	// ErrEmailMismatch is returned when the token was issued for another email.
	ErrEmailMismatch = errors.New("otp: email mismatch")
	// ErrExpired is returned when the token expiry has passed.
	ErrExpired = errors.New("otp: token expired")
	// ErrInvalidCode is returned when the submitted code does not match the sealed one.
	ErrInvalidCode = errors.New("otp: invalid code")
	// ErrWeakKey is returned by NewCodec when a key is too short.
	ErrWeakKey = errors.New("otp: key must be at least 32 bytes")
)

// payload is serialized with encoding/json; field order is fixed by the struct
// so the same claims always produce the same bytes.
type payload struct {
	Email     string `json:"email"`
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expires_at"`
	IssuedAt  int64  `json:"issued_at"`
}

// Claims is the verified content of a token.
type Claims struct {
	Email       string
	ExpiresAt   time.Time
	IssuedAt    time.Time
	Fingerprint string
}

// Sealed is the result of Issue.
type Sealed struct {
	Token string
	Claims
}

// Codec signs and verifies verification tokens.
type Codec struct {
	macKey    []byte
	digestKey []byte
	clock     clock.Clocker
}

// NewCodec builds a Codec. macKey signs the envelope and digestKey hides the
// code inside the payload, since the token travels through the client.
func NewCodec(macKey, digestKey []byte, clk clock.Clocker) (*Codec, error) {
	if len(macKey) < 32 || len(digestKey) < 32 {
		return nil, ErrWeakKey
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Codec{
		macKey:    append([]byte(nil), macKey...),
		digestKey: append([]byte(nil), digestKey...),
		clock:     clk,
	}, nil
}

// Issue seals code for email, valid for ttl from now.
func (c *Codec) Issue(email, code string, ttl time.Duration) (*Sealed, error) {
	now := c.clock.Now()
	p := payload{
		Email:     NormalizeEmail(email),
		Code:      c.digest(code),
		ExpiresAt: now.Add(ttl).UnixMilli(),
		IssuedAt:  now.UnixMilli(),
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	mac := c.mac(raw)
	envelope := make([]byte, 0, len(raw)+macSize)
	envelope = append(envelope, raw...)
	envelope = append(envelope, mac...)

	return &Sealed{
		Token: tokenEncoding.EncodeToString(envelope),
		Claims: Claims{
			Email:       p.Email,
			ExpiresAt:   time.UnixMilli(p.ExpiresAt).UTC(),
			IssuedAt:    time.UnixMilli(p.IssuedAt).UTC(),
			Fingerprint: hex.EncodeToString(mac),
		},
	}, nil
}

// Verify checks token against email and code.
//
// Exactly one error is returned on failure, checked in this order: ErrTampered,
// ErrEmailMismatch, ErrExpired, ErrInvalidCode. Claims are returned whenever the
// MAC is valid so callers can still key replay or lockout state on them.
func (c *Codec) Verify(token, code, email string) (*Claims, error) {
	p, mac, err := c.open(token)
	if err != nil {
		return nil, err
	}

	claims := &Claims{
		Email:       p.Email,
		ExpiresAt:   time.UnixMilli(p.ExpiresAt).UTC(),
		IssuedAt:    time.UnixMilli(p.IssuedAt).UTC(),
		Fingerprint: hex.EncodeToString(mac),
	}

	if !strings.EqualFold(claims.Email, NormalizeEmail(email)) {
		return claims, ErrEmailMismatch
	}

	if c.clock.Now().After(claims.ExpiresAt) {
		return claims, ErrExpired
	}

	if !hmac.Equal([]byte(p.Code), []byte(c.digest(code))) {
		return claims, ErrInvalidCode
	}

	return claims, nil
}

// Inspect returns the claims of an authentic token without checking expiry or code.
func (c *Codec) Inspect(token string) (*Claims, error) {
	p, mac, err := c.open(token)
	if err != nil {
		return nil, err
	}

	return &Claims{
		Email:       p.Email,
		ExpiresAt:   time.UnixMilli(p.ExpiresAt).UTC(),
		IssuedAt:    time.UnixMilli(p.IssuedAt).UTC(),
		Fingerprint: hex.EncodeToString(mac),
	}, nil
}

func (c *Codec) open(token string) (*payload, []byte, error) {
	envelope, err := tokenEncoding.DecodeString(token)
	if err != nil || len(envelope) <= macSize {
		return nil, nil, ErrTampered
	}

	raw, mac := envelope[:len(envelope)-macSize], envelope[len(envelope)-macSize:]
	if !hmac.Equal(mac, c.mac(raw)) {
		return nil, nil, ErrTampered
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, ErrTampered
	}

	return &p, mac, nil
}

func (c *Codec) mac(b []byte) []byte {
	h := hmac.New(sha256.New, c.macKey)
	h.Write(b)
	return h.Sum(nil)
}

func (c *Codec) digest(code string) string {
	h := hmac.New(sha256.New, c.digestKey)
	h.Write([]byte(code))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeEmail trims and lowercases an email for comparison and keying.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
