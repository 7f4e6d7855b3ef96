package entity

import (
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/valueobject"
)

// DefaultListLimit and MaxListLimit bound ListEvents pages.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Event types that trigger a security alert to the affected admin.
const (
	TypeAccountLocked  = "account_locked"
	TypeLoginSucceeded = "login_succeeded"
)

// Event is one persisted admin authentication event.
type Event struct {
	ID         int64
	Type       string
	Email      string
	IP         string
	UserAgent  string
	Metadata   valueobject.JSONMap
	OccurredAt time.Time
}

// Filter narrows ListEvents. Empty fields match everything.
type Filter struct {
	Email string
	Type  string
	Limit int
}
