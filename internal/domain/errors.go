package domain

import (
	"errors"
	"fmt"
)

// ReasonCode is a stable, machine readable reason attached to every denial
// and failure so presenters never need to match on message text.
type ReasonCode string

const (
	CodeUnknownStep         ReasonCode = "UNKNOWN_STEP"
	CodeNotCurrentStep      ReasonCode = "NOT_CURRENT_STEP"
	CodeSkippedRequiredStep ReasonCode = "SKIPPED_REQUIRED_STEP"
	CodeNotReversible       ReasonCode = "NOT_REVERSIBLE"
	CodeRoleNotPermitted    ReasonCode = "ROLE_NOT_PERMITTED"
	CodeWorkflowFrozen      ReasonCode = "WORKFLOW_FROZEN"
	CodeInvalidPayload      ReasonCode = "INVALID_PAYLOAD"
	CodeNotFound            ReasonCode = "NOT_FOUND"
	CodeStorage             ReasonCode = "STORAGE_ERROR"
	CodeStorageTimeout      ReasonCode = "STORAGE_TIMEOUT"
	CodeVersionConflict     ReasonCode = "VERSION_CONFLICT"
)

func (c ReasonCode) String() string { return string(c) }

// Error is the single error type surfaced by the onboarding core.
type Error struct {
	Code    ReasonCode
	Step    StepID
	Message string
	Err     error
}

// NewError builds an Error for the given code and step.
func NewError(code ReasonCode, step StepID, msg string) *Error {
	return &Error{Code: code, Step: step, Message: msg}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("onboarding: %s: %v", msg, e.Err)
	}
	return "onboarding: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on reason code so errors.Is(err, ErrNotReversible) works
// regardless of step or message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnknownStep         = &Error{Code: CodeUnknownStep}
	ErrNotCurrentStep      = &Error{Code: CodeNotCurrentStep}
	ErrSkippedRequiredStep = &Error{Code: CodeSkippedRequiredStep}
	ErrNotReversible       = &Error{Code: CodeNotReversible}
	ErrRoleNotPermitted    = &Error{Code: CodeRoleNotPermitted}
	ErrWorkflowFrozen      = &Error{Code: CodeWorkflowFrozen}
	ErrInvalidPayload      = &Error{Code: CodeInvalidPayload}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrStorage             = &Error{Code: CodeStorage}
	ErrStorageTimeout      = &Error{Code: CodeStorageTimeout}
	ErrVersionConflict     = &Error{Code: CodeVersionConflict}
)

// StorageError wraps a backend failure.
func StorageError(op string, err error) *Error {
	return &Error{Code: CodeStorage, Message: op + " failed", Err: err}
}

// StorageTimeout reports a backend call that exceeded its deadline.
func StorageTimeout(op string, err error) *Error {
	return &Error{Code: CodeStorageTimeout, Message: op + " timed out", Err: err}
}

// VersionConflict is returned by stores when a write does not carry a
// version newer than the stored one.
func VersionConflict(ownerID string, stored, attempted int) *Error {
	return &Error{
		Code:    CodeVersionConflict,
		Message: fmt.Sprintf("progress of %s is at version %d, refusing version %d", ownerID, stored, attempted),
	}
}

// CodeOf extracts the reason code of err, or "" when err is not an Error.
func CodeOf(err error) ReasonCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsDenial reports whether err is a guard or gate denial: the caller should
// show a message and stay on the current step.
func IsDenial(err error) bool {
	switch CodeOf(err) {
	case CodeNotCurrentStep, CodeSkippedRequiredStep, CodeNotReversible,
		CodeRoleNotPermitted, CodeWorkflowFrozen, CodeInvalidPayload:
		return true
	}
	return false
}

// IsRetryable reports whether repeating the same operation may succeed.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeStorage, CodeStorageTimeout, CodeVersionConflict:
		return true
	}
	return false
}
