// Package core provides the error model, HTTP helpers and request validation
// shared by the poimap packages.
package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	// Input validation errors
	ErrInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrInvalidLatitude  ErrorCode = "INVALID_LATITUDE"
	ErrInvalidLongitude ErrorCode = "INVALID_LONGITUDE"
	ErrMissingParameter ErrorCode = "MISSING_PARAMETER"

	// Dataset ingestion errors
	ErrIngestionNetwork       ErrorCode = "INGESTION_NETWORK"
	ErrIngestionHTTPStatus    ErrorCode = "INGESTION_HTTP_STATUS"
	ErrIngestionEmpty         ErrorCode = "INGESTION_EMPTY"
	ErrMissingRequiredColumns ErrorCode = "MISSING_REQUIRED_COLUMNS"
	ErrRefreshSuperseded      ErrorCode = "REFRESH_SUPERSEDED"
	ErrEmptyCatalog           ErrorCode = "EMPTY_CATALOG"
	ErrLocationNotFound       ErrorCode = "LOCATION_NOT_FOUND"

	// Positioning errors
	ErrPositioningServiceDisabled     ErrorCode = "POSITIONING_SERVICE_DISABLED"
	ErrPositioningPermissionDenied    ErrorCode = "POSITIONING_PERMISSION_DENIED"
	ErrPositioningPermissionPermanent ErrorCode = "POSITIONING_PERMISSION_DENIED_FOREVER"
	ErrPositioningFailed              ErrorCode = "POSITIONING_FAILED"
	ErrPositioningUnavailable         ErrorCode = "POSITIONING_UNAVAILABLE"

	// Tile and transport errors
	ErrTileFailure        ErrorCode = "TILE_FAILURE"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrSessionClosed      ErrorCode = "SESSION_CLOSED"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
)

// Error is a coded failure carrying a short user-facing remedy in Guidance.
type Error struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Guidance string    `json:"guidance,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error with the same code, so sentinel values can be
// compared with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithGuidance sets the user-facing remedy.
func (e *Error) WithGuidance(guidance string) *Error {
	e.Guidance = guidance
	return e
}

// WithCause records the error that triggered this one.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// ToMCPResult converts the error to an MCP tool error result.
func (e *Error) ToMCPResult() *mcp.CallToolResult {
	data, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ERROR: %s - %s", e.Code, e.Message))
	}
	return mcp.NewToolResultError(string(data))
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrInternalError when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternalError
}

// GuidanceOf returns the user-facing remedy carried by err, if any.
func GuidanceOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Guidance
	}
	return ""
}

// NewValidationError creates an error for validation failures
func NewValidationError(code ErrorCode, message string) *Error {
	return NewError(code, message).
		WithGuidance("Please correct the parameters and try again.")
}
