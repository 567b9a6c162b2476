package services

import (
	"errors"
	"net/http"
	"strings"

	apperrors "cater/pkg/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeBadRequest, message)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeUnauthorized, message)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeNotFound, message)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *apperrors.AppError {
	return apperrors.Wrap(apperrors.ErrCodeInternalError, message, err)
}

// HTTPStatus maps an error from the service layer to an HTTP status code
func HTTPStatus(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeBadRequest, apperrors.ErrCodeMalformedPayload:
		return http.StatusBadRequest
	case apperrors.ErrCodeDuplicateFeedback:
		return http.StatusConflict
	case apperrors.ErrCodeValidation, apperrors.ErrCodeInvalidBookingState, apperrors.ErrCodeInvalidRating:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// isUniqueViolation reports whether err is a unique constraint failure from
// either supported database.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	// modernc.org/sqlite errors are not translated by the gorm dialector
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
