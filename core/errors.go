package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorCodeBadInput             = "bad_input"
	ErrorCodeNotFound             = "not_found"
	ErrorCodeIdempotencyKeyReused = "idempotency_key_reused"
	ErrorCodeIdempotencyInFlight  = "idempotency_in_flight"
	ErrorCodeSignatureInvalid     = "signature_invalid"
	ErrorCodeDeliveryExhausted    = "delivery_exhausted"
	ErrorCodeRateLimited          = "rate_limited"
	ErrorCodeInternal             = "internal_error"
)

// NewConflictError marks an idempotency key reused with a different request
// fingerprint. The operation never reaches business logic.
func NewConflictError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(ErrorCodeIdempotencyKeyReused)
}

// NewLockedError signals that the original request is still in flight and
// the client should retry later.
func NewLockedError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorCodeIdempotencyInFlight)
}

// NewSignatureError rejects a request before anything is persisted.
func NewSignatureError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorCodeSignatureInvalid)
}

func NewBadInputError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorCodeBadInput)
}

func NewNotFoundError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorCodeNotFound)
}

// IsNotFound reports whether err carries the not-found category, as opposed
// to an infrastructure failure while looking something up.
func IsNotFound(err error) bool {
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryNotFound
}

// MapError normalizes any error into the delivery envelope: rich errors keep
// their category and codes, everything else becomes a 500 internal error.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusForCategory(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorCodeBadInput
	case goerrors.CategoryNotFound:
		return ErrorCodeNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorCodeSignatureInvalid
	case goerrors.CategoryConflict:
		return ErrorCodeIdempotencyInFlight
	case goerrors.CategoryRateLimit:
		return ErrorCodeRateLimited
	default:
		return ErrorCodeInternal
	}
}

func httpStatusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusBadRequest
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
