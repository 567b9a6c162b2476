package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an error code
type ErrorCode string

const (
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden           ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest          ErrorCode = "BAD_REQUEST"
	ErrCodeInternalError       ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeDuplicateFeedback   ErrorCode = "DUPLICATE_FEEDBACK"
	ErrCodeInvalidBookingState ErrorCode = "INVALID_BOOKING_STATE"
	ErrCodeInvalidRating       ErrorCode = "INVALID_RATING"
	ErrCodeTransport           ErrorCode = "TRANSPORT_ERROR"
	ErrCodeMalformedPayload    ErrorCode = "MALFORMED_PAYLOAD"
)

// AppError represents an application error
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so sentinel values can be
// compared with errors.Is regardless of message or wrapped cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or
// ErrCodeInternalError when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}

func hasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is NotFound
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsUnauthorized checks if error is Unauthorized
func IsUnauthorized(err error) bool {
	return hasCode(err, ErrCodeUnauthorized)
}

// IsForbidden checks if error is Forbidden
func IsForbidden(err error) bool {
	return hasCode(err, ErrCodeForbidden)
}

// IsDuplicateFeedback checks if error is DuplicateFeedback
func IsDuplicateFeedback(err error) bool {
	return hasCode(err, ErrCodeDuplicateFeedback)
}

// IsInvalidBookingState checks if error is InvalidBookingState
func IsInvalidBookingState(err error) bool {
	return hasCode(err, ErrCodeInvalidBookingState)
}

// IsInvalidRating checks if error is InvalidRating
func IsInvalidRating(err error) bool {
	return hasCode(err, ErrCodeInvalidRating)
}

// IsTransport checks if error is a TransportError
func IsTransport(err error) bool {
	return hasCode(err, ErrCodeTransport)
}

// IsMalformedPayload checks if error is MalformedPayload
func IsMalformedPayload(err error) bool {
	return hasCode(err, ErrCodeMalformedPayload)
}
