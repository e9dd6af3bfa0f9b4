package domain

import (
	"context"
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrQuotaExceeded      = errors.New("storage quota exceeded")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInternal           = errors.New("internal error")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")

	// ErrConcurrentUpdate marks a lost race against another writer
	// (stale version, serialization failure, txn conflict). Services retry
	// it a bounded number of times and then surface a ConflictError.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// Error kinds exposed to callers. Stable strings, safe to put on the wire.
const (
	KindNotFound           = "not_found"
	KindConflict           = "conflict"
	KindValidation         = "validation"
	KindInvalidOperation   = "invalid_operation"
	KindQuotaExceeded      = "quota_exceeded"
	KindStorageUnavailable = "storage_unavailable"
	KindUnauthorized       = "unauthorized"
	KindForbidden          = "forbidden"
	KindInternal           = "internal"
)

// ConflictError represents a resource conflict with details about the existing resource
type ConflictError struct {
	Message      string // Human-readable error message
	ResourceType string // "file" or "folder"
	ResourceID   string // ID of the existing/conflicting entry, empty for lost races
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return e.Message
}

// StatusCode implements the HTTPError interface
func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// QuotaError carries the numbers behind a rejected reservation.
type QuotaError struct {
	Requested int64
	Used      int64
	Limit     int64
}

func (e *QuotaError) Error() string {
	return ErrQuotaExceeded.Error()
}

func (e *QuotaError) StatusCode() int {
	return http.StatusInsufficientStorage
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Kind classifies an error into one of the stable error kinds.
// Unknown errors are Internal.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrConcurrentUpdate):
		return KindConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvalidOperation):
		return KindInvalidOperation
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return KindStorageUnavailable
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	default:
		return KindInternal
	}
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}

	switch Kind(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidOperation:
		return http.StatusUnprocessableEntity
	case KindQuotaExceeded:
		return http.StatusInsufficientStorage
	case KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
