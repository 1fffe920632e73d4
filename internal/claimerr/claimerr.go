// Package claimerr defines the pipeline error taxonomy. Every failure that
// crosses the pipeline boundary carries one of the stable external codes
// below, so transports can map errors without string matching.
package claimerr

import (
	"errors"
	"net/http"
)

// Code is a stable external error code.
type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeInvalidImage         Code = "INVALID_IMAGE"
	CodeUnsupportedFormat    Code = "UNSUPPORTED_FORMAT"
	CodeQualityTooLow        Code = "QUALITY_TOO_LOW"
	CodeClaimNotFound        Code = "CLAIM_NOT_FOUND"
	CodeOverrideNotPermitted Code = "OVERRIDE_NOT_PERMITTED"
	CodeInference            Code = "INFERENCE_ERROR"
	CodeStorage              Code = "STORAGE_ERROR"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Error is a coded pipeline error. Details and Feedback carry user-facing
// context for expected outcomes (quality rejections in particular) and are
// omitted for unexpected faults.
type Error struct {
	Code     Code
	Message  string
	Details  map[string]any
	Feedback string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithDetails returns e with user-facing detail fields attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithFeedback returns e with a human-readable remediation hint attached.
func (e *Error) WithFeedback(feedback string) *Error {
	e.Feedback = feedback
	return e
}

// CodeOf extracts the external code from an error chain. Anything without a
// coded error in its chain is an internal fault.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// AsError returns the coded error in the chain, if any.
func AsError(err error) (*Error, bool) {
	var ce *Error
	ok := errors.As(err, &ce)
	return ce, ok
}

// Expected reports whether the code names an expected, user-facing outcome.
// Expected outcomes are never logged as faults.
func Expected(code Code) bool {
	switch code {
	case CodeValidation, CodeInvalidImage, CodeUnsupportedFormat,
		CodeQualityTooLow, CodeClaimNotFound, CodeOverrideNotPermitted:
		return true
	}
	return false
}

// HTTPStatus maps a code to its transport status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidImage, CodeUnsupportedFormat, CodeQualityTooLow:
		return http.StatusBadRequest
	case CodeClaimNotFound:
		return http.StatusNotFound
	case CodeOverrideNotPermitted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
