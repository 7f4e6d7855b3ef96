package entity

import "time"

// Session is a post-authentication session. ID is the keyed hash of the
// bearer token; the token itself is never stored.
type Session struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the session is past its expiry at now.
func (s Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
