package goerror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates that the requested resource could not be found.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict indicates that the request could not be completed due to a conflict.
	ErrConflict = errors.New("resource conflict")
)

// Type classifies errors into high-level buckets used by the application.
type Type int

const (
	// TypeServer represents server-side failures.
	TypeServer Type = iota
	// TypeBusiness represents business rule violations.
	TypeBusiness
	// TypeValidation represents input validation failures.
	TypeValidation
)

// String returns the string representation of the error type.
func (t Type) String() string {
	switch t {
	case TypeValidation:
		return "ERROR_TYPE_VALIDATION"
	case TypeBusiness:
		return "ERROR_TYPE_BUSINESS"
	case TypeServer:
		return "ERROR_TYPE_SERVER"
	default:
		return "ERROR_TYPE_UNKNOWN"
	}
}

// Code is a stable identifier used for mapping errors to HTTP status codes.
type Code int

const (
	// CodeInternal represents an internal or unspecified error.
	CodeInternal Code = iota
	// CodeInvalidFormat indicates invalid request format.
	CodeInvalidFormat
	// CodeInvalidInput indicates invalid request input.
	CodeInvalidInput
	// CodeNotFound indicates a missing resource.
	CodeNotFound
	// CodeConflict indicates a conflict (e.g., duplicate).
	CodeConflict
	// CodeTooManyRequest indicates rate limiting.
	CodeTooManyRequest
	// CodeUnauthorized indicates authentication failure.
	CodeUnauthorized
	// CodeForbidden indicates authorization failure.
	CodeForbidden
	// CodeTimeout indicates a timeout.
	CodeTimeout
	// CodeLocked indicates the principal is temporarily locked out.
	CodeLocked
	// CodeUnavailable indicates a collaborator failed and the call can be retried.
	CodeUnavailable
)

// String returns the string representation of the error code.
func (c Code) String() string {
	switch c {
	case CodeInvalidFormat:
		return "ERROR_CODE_INVALID_FORMAT"
	case CodeInvalidInput:
		return "ERROR_CODE_INVALID_INPUT"
	case CodeNotFound:
		return "ERROR_CODE_NOT_FOUND"
	case CodeConflict:
		return "ERROR_CODE_CONFLICT"
	case CodeTooManyRequest:
		return "ERROR_CODE_TOO_MANY_REQUESTS"
	case CodeUnauthorized:
		return "ERROR_CODE_UNAUTHORIZED"
	case CodeForbidden:
		return "ERROR_CODE_FORBIDDEN"
	case CodeTimeout:
		return "ERROR_CODE_TIMEOUT"
	case CodeLocked:
		return "ERROR_CODE_LOCKED"
	case CodeUnavailable:
		return "ERROR_CODE_UNAVAILABLE"
	default:
		return "ERROR_CODE_INTERNAL"
	}
}

// Error is a structured error used across the application.
//
// It can wrap an underlying error while also carrying a user-facing message,
// a high-level type, a stable error code, an optional machine readable reason
// and extra string fields that are rendered next to the message.
type Error struct {
	err     error
	msg     string
	errType Type
	code    Code
	reason  string
	fields  map[string]string
}

// Option decorates an Error at construction time.
type Option func(*Error)

// WithReason sets the machine readable reason, e.g. "OTP_INVALID".
func WithReason(reason string) Option {
	return func(e *Error) { e.reason = reason }
}

// WithField attaches a key/value pair rendered in the error response.
func WithField(key, value string) Option {
	return func(e *Error) {
		if key == "" {
			return
		}
		if e.fields == nil {
			e.fields = make(map[string]string)
		}
		e.fields[key] = value
	}
}

// WithCause wraps an underlying error without changing the user-facing message.
func WithCause(err error) Option {
	return func(e *Error) { e.err = err }
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}

	if e.msg != "" {
		return e.msg
	}

	switch e.errType {
	case TypeValidation:
		return "Validation violation"
	case TypeBusiness:
		return "Logical business not meet with requirement"
	case TypeServer:
		return "Internal error"
	default:
		return "Unknown error"
	}
}

// String returns a verbose representation of the error for debugging/logging.
func (e *Error) String() string {
	return fmt.Sprintf(
		"Error Type: %s, Code: %s, Reason: %s, Message: %s, Underlying Error: %v",
		e.errType.String(),
		e.code.String(),
		e.reason,
		e.msg,
		e.err,
	)
}

// Msg returns the user-facing error message, if set.
func (e *Error) Msg() string {
	return e.msg
}

// Type returns the high-level error type.
func (e *Error) Type() Type {
	return e.errType
}

// Code returns the stable error code.
func (e *Error) Code() Code {
	return e.code
}

// Reason returns the machine readable reason, if set.
func (e *Error) Reason() string {
	return e.reason
}

// Fields returns the extra fields (validation messages or metadata), if any.
func (e *Error) Fields() map[string]string {
	return e.fields
}

// Field returns a single field value.
func (e *Error) Field(key string) string {
	return e.fields[key]
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.err
}

// StatusCode maps the error code to an HTTP status code.
func (e *Error) StatusCode() int {
	switch e.code {
	case CodeInvalidFormat:
		return http.StatusBadRequest
	case CodeInvalidInput:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusRequestTimeout
	case CodeTooManyRequest:
		return http.StatusTooManyRequests
	case CodeConflict:
		return http.StatusConflict
	case CodeLocked:
		return http.StatusLocked
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(err error, msg string, et Type, code Code, opts ...Option) *Error {
	e := &Error{err: err, msg: msg, errType: et, code: code}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// NewServer creates a server-type error with the provided error.
//
// The message is deliberately generic; the wrapped error is only meant for logs.
func NewServer(err error, opts ...Option) error {
	return newError(err, "Something went wrong, please try again", TypeServer, CodeInternal, opts...)
}

// NewBusiness creates a business-type error with the specified message and code.
func NewBusiness(msg string, code Code, opts ...Option) error {
	return newError(nil, msg, TypeBusiness, code, opts...)
}

// NewInvalidInput creates a validation error for invalid input with a message and underlying error.
func NewInvalidInput(err error, kv ...string) error {
	if err != nil {
		return newError(err, "Validation error", TypeValidation, CodeInvalidInput)
	}

	if len(kv)%2 != 0 {
		return newError(nil, "Invalid request body", TypeValidation, CodeInvalidFormat)
	}

	e := newError(nil, "Validation error", TypeValidation, CodeInvalidInput)
	for i := 0; i+1 < len(kv); i += 2 {
		WithField(kv[i], kv[i+1])(e)
	}

	return e
}

// NewInvalidFormat creates a validation error for an invalid request body format.
func NewInvalidFormat(msgs ...string) error {
	if len(msgs) == 0 {
		return newError(nil, "Invalid request body", TypeValidation, CodeInvalidFormat)
	}
	return newError(nil, msgs[0], TypeValidation, CodeInvalidFormat)
}

// ReasonOf returns the reason of the first *Error in the chain, or "" when there is none.
func ReasonOf(err error) string {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.reason
	}
	return ""
}

// FieldOf returns a field of the first *Error in the chain, or "" when absent.
func FieldOf(err error, key string) string {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Field(key)
	}
	return ""
}
