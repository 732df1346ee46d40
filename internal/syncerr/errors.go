// Package syncerr defines the failure kinds a token acquisition run can
// produce. The scheduler keys its retry and alerting decisions off these
// types, so every error that crosses a component boundary is one of them.
package syncerr

import (
	"errors"
	"fmt"
	"time"
)

// AcquisitionTimeoutError indicates the session pool had no free slot within
// the caller's wait budget.
type AcquisitionTimeoutError struct {
	Waited time.Duration // how long the caller waited
	Limit  int           // pool concurrency cap at the time
}

func (e *AcquisitionTimeoutError) Error() string {
	return fmt.Sprintf("session acquisition timed out after %s (pool limit %d)", e.Waited, e.Limit)
}

// NewAcquisitionTimeoutError creates an AcquisitionTimeoutError.
func NewAcquisitionTimeoutError(waited time.Duration, limit int) *AcquisitionTimeoutError {
	return &AcquisitionTimeoutError{Waited: waited, Limit: limit}
}

// IsAcquisitionTimeout returns true if the error is an AcquisitionTimeoutError.
func IsAcquisitionTimeout(err error) bool {
	var timeoutErr *AcquisitionTimeoutError
	return errors.As(err, &timeoutErr)
}

// LoginError indicates the login drive against the portal failed before any
// artifact could be read: navigation, form submission, or the post-submit
// redirect.
type LoginError struct {
	Stage string // "navigate", "submit" or "redirect"
	Cause error
}

func (e *LoginError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("portal login failed at %s: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("portal login failed at %s", e.Stage)
}

// Unwrap returns the underlying cause for errors.As/Is support.
func (e *LoginError) Unwrap() error {
	return e.Cause
}

// NewLoginError creates a LoginError.
func NewLoginError(stage string, cause error) *LoginError {
	return &LoginError{Stage: stage, Cause: cause}
}

// IsLoginError returns true if the error is a LoginError.
func IsLoginError(err error) bool {
	var loginErr *LoginError
	return errors.As(err, &loginErr)
}

// ExtractionError indicates login appeared to succeed but the expected
// artifact fields were missing from the resulting session.
type ExtractionError struct {
	Missing []string // cookie names that were absent or empty
	Message string
}

func (e *ExtractionError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("credential extraction failed, missing fields %v", e.Missing)
	}
	return fmt.Sprintf("credential extraction failed: %s", e.Message)
}

// NewExtractionError creates an ExtractionError.
func NewExtractionError(missing []string, message string) *ExtractionError {
	return &ExtractionError{Missing: missing, Message: message}
}

// IsExtractionError returns true if the error is an ExtractionError.
func IsExtractionError(err error) bool {
	var extractErr *ExtractionError
	return errors.As(err, &extractErr)
}

// ValidationError indicates an artifact was extracted but the authenticated
// probe against the portal API rejected it, or the probe itself could not
// complete.
type ValidationError struct {
	StatusCode int // HTTP status from the probe, 0 when the probe never completed
	Cause      error
}

func (e *ValidationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("credential validation rejected with status %d", e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("credential validation probe failed: %v", e.Cause)
	}
	return "credential validation failed"
}

// Unwrap returns the underlying cause for errors.As/Is support.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a ValidationError.
func NewValidationError(statusCode int, cause error) *ValidationError {
	return &ValidationError{StatusCode: statusCode, Cause: cause}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// PersistenceError indicates the durable credential backing is unreachable.
// This never fails a run; the store degrades to memory and keeps serving.
type PersistenceError struct {
	Operation string // "save", "load" or "ping"
	Cause     error
}

func (e *PersistenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("credential persistence %s failed: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("credential persistence %s failed", e.Operation)
}

// Unwrap returns the underlying cause for errors.As/Is support.
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// NewPersistenceError creates a PersistenceError.
func NewPersistenceError(operation string, cause error) *PersistenceError {
	return &PersistenceError{Operation: operation, Cause: cause}
}

// IsPersistenceError returns true if the error is a PersistenceError.
func IsPersistenceError(err error) bool {
	var persistErr *PersistenceError
	return errors.As(err, &persistErr)
}

// UnexpectedError wraps anything outside the known taxonomy. It is never
// retried and is surfaced through the alert path immediately.
type UnexpectedError struct {
	Operation string
	Cause     error
}

func (e *UnexpectedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unexpected failure during %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("unexpected failure during %s", e.Operation)
}

// Unwrap returns the underlying cause for errors.As/Is support.
func (e *UnexpectedError) Unwrap() error {
	return e.Cause
}

// NewUnexpectedError creates an UnexpectedError.
func NewUnexpectedError(operation string, cause error) *UnexpectedError {
	return &UnexpectedError{Operation: operation, Cause: cause}
}

// IsUnexpectedError returns true if the error is an UnexpectedError.
func IsUnexpectedError(err error) bool {
	var unexpectedErr *UnexpectedError
	return errors.As(err, &unexpectedErr)
}

// Retryable reports whether the scheduler's backoff loop should retry after
// this error. Only login, extraction, validation and pool-timeout failures
// qualify; everything else aborts the run.
func Retryable(err error) bool {
	return IsLoginError(err) ||
		IsExtractionError(err) ||
		IsValidationError(err) ||
		IsAcquisitionTimeout(err)
}

// Kind returns a short stable name for the error's category, used in run
// bookkeeping, logs and alert payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsAcquisitionTimeout(err):
		return "acquisition_timeout"
	case IsLoginError(err):
		return "login_failure"
	case IsExtractionError(err):
		return "extraction_failure"
	case IsValidationError(err):
		return "validation_failure"
	case IsPersistenceError(err):
		return "persistence_unavailable"
	default:
		return "unexpected_failure"
	}
}
