package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned to callers. UI layers branch on these, so they are
// part of the contract and must stay stable.
const (
	CodeInvalidTransition       = "INVALID_TRANSITION"
	CodeValidationFailed        = "VALIDATION_FAILED"
	CodePermissionDenied        = "PERMISSION_DENIED"
	CodeAlreadyInRequestedState = "ALREADY_IN_REQUESTED_STATE"
	CodePolicyUnavailable       = "POLICY_UNAVAILABLE"
	CodeNotFound                = "NOT_FOUND"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeInternal                = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewInvalidTransition signals a state-machine guard failure: the requested
// transition is not legal from the current state or for the current actor.
func NewInvalidTransition(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidTransition, message, http.StatusConflict, details)
}

// NewValidationError signals a missing or malformed required input.
func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

// NewPermissionDenied signals that the actor lacks the role for the operation.
func NewPermissionDenied(message string) error {
	return NewDomainError(CodePermissionDenied, message, http.StatusForbidden, nil)
}

// NewAlreadyInRequestedState signals a redundant request (pause-when-paused,
// resume-when-running). Distinct from InvalidTransition so callers can
// detect duplicate submissions such as a double-click.
func NewAlreadyInRequestedState(message string) error {
	return NewDomainError(CodeAlreadyInRequestedState, message, http.StatusConflict, nil)
}

// NewPolicyUnavailable signals that the SLA policy source could not answer.
func NewPolicyUnavailable(err error) error {
	return &DomainError{
		Code:       CodePolicyUnavailable,
		Message:    "sla policy could not be resolved",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError. Errors that are not
// already domain errors are treated as infrastructure failures so UI layers
// can distinguish "your action was invalid" from "the system failed".
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts generic errors to DomainError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
