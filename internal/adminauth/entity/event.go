package entity

import "time"

// EventType names an admin authentication event.
type EventType string

const (
	EventOTPRequested      EventType = "otp_requested"
	EventOTPDeliveryFailed EventType = "otp_delivery_failed"
	EventOTPVerifyFailed   EventType = "otp_verify_failed"
	EventAccountLocked     EventType = "account_locked"
	EventLoginSucceeded    EventType = "login_succeeded"
	EventLogout            EventType = "logout"
)

// AuthEvent is published on every flow transition.
type AuthEvent struct {
	ID         int64
	Type       EventType
	Email      string
	IP         string
	UserAgent  string
	Metadata   map[string]string
	OccurredAt time.Time
}
