package domain

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrStatementNotFound  = errors.New("statement not found")
	ErrUnsupportedValue   = errors.New("unsupported vote value")
	ErrInvalidStatementID = errors.New("invalid statement id")
	ErrInvalidWindow      = errors.New("invalid series window")
	ErrIdentityUnresolved = errors.New("no identity could be resolved for caller")
	ErrWriteConflict      = errors.New("write conflict")
	ErrWriteFailed        = errors.New("vote write failed")
	ErrBrokerUnavailable  = errors.New("broker unavailable")
	ErrSubscription       = errors.New("subscription failed")
	ErrInternal           = errors.New("internal server error")
)

// ValidationError rejects a request synchronously. It matches both
// ErrValidation and its specific cause under errors.Is.
type ValidationError struct {
	Cause  error
	Detail string
}

func NewValidationError(cause error, detail string) *ValidationError {
	return &ValidationError{Cause: cause, Detail: detail}
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Cause.Error()
	}
	return e.Cause.Error() + ": " + e.Detail
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Cause}
}
