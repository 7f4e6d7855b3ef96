package entity

// Machine readable reasons returned to callers.
const (
	ReasonInvalidEmail   = "INVALID_EMAIL"
	ReasonRateLimited    = "RATE_LIMITED"
	ReasonAccountLocked  = "ACCOUNT_LOCKED"
	ReasonOTPExpired     = "OTP_EXPIRED"
	ReasonOTPInvalid     = "OTP_INVALID"
	ReasonOTPAlreadyUsed = "OTP_ALREADY_USED"
	ReasonDeliveryFailed = "DELIVERY_FAILED"
	ReasonSessionExpired = "SESSION_EXPIRED"
	ReasonSessionInvalid = "SESSION_INVALID"
)

// Error fields attached next to the reason.
const (
	FieldStep              = "step"
	FieldRemainingAttempts = "remaining_attempts"
	FieldRetryAfter        = "retry_after_seconds"
)
