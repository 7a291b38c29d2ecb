// Package errors provides standardized error handling for the entry service.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code for the entry service.
type ErrorCode string

const (
	// Validation errors
	ENTRY_VALIDATION    ErrorCode = "ENTRY_VALIDATION"    // General validation error
	ENTRY_SCHEMA_REJECT ErrorCode = "ENTRY_SCHEMA_REJECT" // Section payload failed schema validation
	ENTRY_BAD_REQUEST   ErrorCode = "ENTRY_BAD_REQUEST"   // Bad request

	// Authentication/Authorization errors
	ENTRY_AUTHZ         ErrorCode = "ENTRY_AUTHZ"         // Authorization failed
	ENTRY_AUTHN         ErrorCode = "ENTRY_AUTHN"         // Authentication failed
	ENTRY_JWT_INVALID   ErrorCode = "ENTRY_JWT_INVALID"   // Invalid JWT
	ENTRY_JWT_EXPIRED   ErrorCode = "ENTRY_JWT_EXPIRED"   // Expired JWT
	ENTRY_JWT_MALFORMED ErrorCode = "ENTRY_JWT_MALFORMED" // Malformed JWT
	ENTRY_USER_MISMATCH ErrorCode = "ENTRY_USER_MISMATCH" // Entry owned by a different user

	// Resource errors
	ENTRY_NOT_FOUND ErrorCode = "ENTRY_NOT_FOUND" // Resource not found
	ENTRY_CONFLICT  ErrorCode = "ENTRY_CONFLICT"  // Resource conflict

	// Lifecycle errors
	ENTRY_INVALID_TRANSITION ErrorCode = "ENTRY_INVALID_TRANSITION" // Illegal status change attempted
	ENTRY_NOT_READY          ErrorCode = "ENTRY_NOT_READY"          // markAsReady on an incomplete entry
	ENTRY_READ_ONLY          ErrorCode = "ENTRY_READ_ONLY"          // Edit attempted on a non-editable entry

	// Submission errors
	ENTRY_SUBMISSION_FAILED ErrorCode = "ENTRY_SUBMISSION_FAILED" // Arrival-card API reported failure

	// Server errors
	ENTRY_INTERNAL    ErrorCode = "ENTRY_INTERNAL"    // Internal server error
	ENTRY_UNAVAILABLE ErrorCode = "ENTRY_UNAVAILABLE" // Service unavailable
)

// Error represents a standardized error response.
type Error struct {
	Code          ErrorCode   `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlationId"`
	Details       interface{} `json:"details,omitempty"`
	HTTPStatus    int         `json:"-"`
}

// New creates a new Error with the specified code and message.
func New(code ErrorCode, message string, correlationID string) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// NewWithDetails creates a new Error with the specified code, message, and details.
// Details typically carries the human-readable validation string list.
func NewWithDetails(code ErrorCode, message string, correlationID string, details interface{}) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		Details:       details,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// httpStatusCodeForCode maps error codes to HTTP status codes.
func httpStatusCodeForCode(code ErrorCode) int {
	switch code {
	case ENTRY_VALIDATION, ENTRY_SCHEMA_REJECT, ENTRY_BAD_REQUEST:
		return http.StatusBadRequest
	case ENTRY_AUTHZ, ENTRY_USER_MISMATCH:
		return http.StatusForbidden
	case ENTRY_AUTHN, ENTRY_JWT_INVALID, ENTRY_JWT_EXPIRED, ENTRY_JWT_MALFORMED:
		return http.StatusUnauthorized
	case ENTRY_NOT_FOUND:
		return http.StatusNotFound
	case ENTRY_CONFLICT, ENTRY_INVALID_TRANSITION, ENTRY_NOT_READY, ENTRY_READ_ONLY:
		return http.StatusConflict
	case ENTRY_SUBMISSION_FAILED:
		return http.StatusBadGateway
	case ENTRY_UNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
