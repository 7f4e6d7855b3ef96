package entity

import "time"

// Challenge is a live OTP challenge held by the store strategy.
type Challenge struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CodeHash  string    `json:"code_hash"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// IssuedChallenge is returned once, right after issuance. Code must only
// reach the delivery sender.
type IssuedChallenge struct {
	Code      string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Outcome is the result of validating a code.
type Outcome int

const (
	OutcomeValid Outcome = iota
	// OutcomeNotFound means there is no live challenge for the email.
	OutcomeNotFound
	OutcomeAlreadyUsed
	OutcomeExpired
	OutcomeInvalid
	// OutcomeExhausted means the last allowed attempt failed and the challenge is gone.
	OutcomeExhausted
	// OutcomeSuperseded means a newer challenge was issued for the email.
	OutcomeSuperseded
	OutcomeTampered
	OutcomeEmailMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeAlreadyUsed:
		return "already_used"
	case OutcomeExpired:
		return "expired"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeTampered:
		return "tampered"
	case OutcomeEmailMismatch:
		return "email_mismatch"
	default:
		return "unknown"
	}
}

// Validation is what a challenge store reports for a submitted code.
type Validation struct {
	Outcome Outcome
	// Remaining is the number of attempts the challenge still accepts, or -1
	// when the strategy does not count attempts.
	Remaining int
}
