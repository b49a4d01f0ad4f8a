package cmn

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Code is the engine's tagged error taxonomy.
type Code string

const (
	// Protocol errors (4xx).
	CodeNoHostOrgURL Code = "NO_HOST_ORG_URL"
	CodeNoAvailOffer Code = "NO_AVAILABLE_OFFER"
	CodeOfferChanged Code = "OFFER_HAS_CHANGED"
	CodeInvalidChain Code = "INVALID_CHAIN"
	CodeAuthError    Code = "AUTH_ERROR"
	CodeBadGCSPath   Code = "BAD_GCS_PATH"

	// Validation errors.
	CodePatchRejected Code = "PATCH_REJECTED"
	CodeSchemaInvalid Code = "SCHEMA_INVALID"

	// Internal invariant violations (5xx).
	CodeTimelineOverlap      Code = "INTERNAL_CHECK_FAILED_SQL_DATABASE_TIMELINE_OVERLAP"
	CodeMultipleReservations Code = "INTERNAL_CHECK_FAILED_SQL_DATABASE_MULTIPLE_RESERVATIONS"
	CodeBadUpdateSet         Code = "INTERNAL_ERROR_BAD_UPDATE_SET"
	CodeDatabase             Code = "ERROR_DATABASE"
)

var httpStatusByCode = map[Code]int{
	CodeNoHostOrgURL: http.StatusBadRequest,
	CodeNoAvailOffer: http.StatusNotFound,
	CodeOfferChanged: http.StatusConflict,
	CodeInvalidChain: http.StatusForbidden,
	CodeAuthError:    http.StatusUnauthorized,
	CodeBadGCSPath:   http.StatusBadRequest,

	CodePatchRejected: http.StatusUnprocessableEntity,
	CodeSchemaInvalid: http.StatusUnprocessableEntity,

	CodeTimelineOverlap:      http.StatusInternalServerError,
	CodeMultipleReservations: http.StatusInternalServerError,
	CodeBadUpdateSet:         http.StatusInternalServerError,
	CodeDatabase:             http.StatusInternalServerError,
}

// Error is the engine's single tagged error value: {code, httpStatus?,
// details?, cause?}.
type Error struct {
	Code       Code
	HTTPStatus int
	Details    map[string]interface{}
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs a tagged Error for code, defaulting HTTPStatus from
// the taxonomy table above.
func NewError(code Code, cause error, details map[string]interface{}) *Error {
	return &Error{
		Code:       code,
		HTTPStatus: httpStatusByCode[code],
		Details:    details,
		Cause:      cause,
	}
}

// Wrap attaches cause via pkg/errors.Wrap before tagging it, preserving the
// wrapped stack trace for CodeDatabase-class failures surfaced from the
// storage layer.
func Wrap(code Code, cause error, msg string) *Error {
	return NewError(code, errors.Wrap(cause, msg), nil)
}

// IsCode reports whether err is a *Error carrying code (unwrapping through
// any number of wrapping errors).
func IsCode(err error, code Code) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		err = errors.Unwrap(err)
	}
	return e != nil && e.Code == code
}

// CodeOf extracts the tagged Code from err, or "" if err isn't a *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
