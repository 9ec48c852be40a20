package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeTokenExpired    Code = "TOKEN_EXPIRED"
	CodeTokenRevoked    Code = "TOKEN_REVOKED"
	CodeAccountDisabled Code = "ACCOUNT_DISABLED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeUnsupported     Code = "UNSUPPORTED_OPERATION"
	CodeIdempotency     Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit       Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeDependency      Code = "DEPENDENCY_ERROR"
)

// Metadata is how a Code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	noDetails   = false
	withDetails = true
)

func meta(status int, retryable bool, public string, details bool) Metadata {
	return Metadata{HTTPStatus: status, Retryable: retryable, PublicMessage: public, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	// caller mistakes
	CodeValidation:   meta(http.StatusBadRequest, false, "validation failed", withDetails),
	CodeNotFound:     meta(http.StatusNotFound, false, "resource not found", noDetails),
	CodeConflict:     meta(http.StatusConflict, true, "conflict detected", noDetails),
	CodeIdempotency:  meta(http.StatusConflict, false, "idempotency key reused", withDetails),
	CodeRateLimit:    meta(http.StatusTooManyRequests, false, "rate limit exceeded", noDetails),
	CodeInvalidState: meta(http.StatusConflict, false, "record is not in a state that allows this operation", withDetails),
	CodeUnsupported:  meta(http.StatusUnprocessableEntity, false, "operation not supported for this record", withDetails),

	// sessions and roles
	CodeUnauthorized:    meta(http.StatusUnauthorized, false, "authentication required", noDetails),
	CodeTokenExpired:    meta(http.StatusUnauthorized, false, "session expired", noDetails),
	CodeTokenRevoked:    meta(http.StatusUnauthorized, false, "session revoked", noDetails),
	CodeAccountDisabled: meta(http.StatusForbidden, false, "account disabled", noDetails),
	CodeForbidden:       meta(http.StatusForbidden, false, "access denied", noDetails),

	// server side
	CodeInternal:   meta(http.StatusInternalServerError, true, "internal server error", noDetails),
	CodeDependency: meta(http.StatusServiceUnavailable, true, "dependency unavailable", withDetails),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether any *Error in err's chain carries code.
func IsCode(err error, code Code) bool {
	for err != nil {
		if typed, ok := err.(*Error); ok && typed != nil && typed.code == code {
			return true
		}
		err = stdErrors.Unwrap(err)
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
