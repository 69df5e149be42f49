// Package domain defines the core domain models for slotkeep.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents an engine error with a structured error code.
//
// Codes follow the format SK-<AREA>-<NNNN>. Two DomainErrors match under
// errors.Is when their codes are equal, regardless of details or cause.
type DomainError struct {
	Code    string // Error code (e.g., "SK-SLT-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsFatal reports whether err aborts a whole save or load operation.
// Per-object and forward-compatibility errors are not fatal.
func IsFatal(err error) bool {
	switch GetErrorCode(err) {
	case ErrObjectOp.Code, ErrSchemaMismatch.Code, ErrUnknownType.Code, ErrUnknownField.Code:
		return false
	case "":
		return err != nil
	default:
		return true
	}
}

// ============================================================================
// Transport and format errors
// ============================================================================

var (
	// ErrIO indicates a transport failure. The engine never retries these;
	// retry policy belongs to the caller.
	ErrIO = NewDomainError("SK-IO-5000", "transport failure")

	// ErrCorruptFormat indicates an unreadable header, index or envelope.
	// Fatal to the operation; the slot is reported unusable.
	ErrCorruptFormat = NewDomainError("SK-FMT-4220", "corrupt slot format")

	// ErrBufferOverflow indicates a slot buffer grew past the configured limit.
	ErrBufferOverflow = NewDomainError("SK-BUF-5070", "slot buffer overflow")
)

// ============================================================================
// Schema errors (non-fatal, forward/backward compatibility)
// ============================================================================

var (
	// ErrSchemaMismatch indicates a field resolved but carried an unexpected kind.
	ErrSchemaMismatch = NewDomainError("SK-SCH-4221", "schema mismatch")

	// ErrUnknownType indicates a type identifier with no registered descriptor.
	ErrUnknownType = NewDomainError("SK-TYP-4040", "unknown type")

	// ErrUnknownField indicates a field tag with no descriptor in its type.
	ErrUnknownField = NewDomainError("SK-FLD-4041", "unknown field")
)

// ============================================================================
// Operation errors
// ============================================================================

var (
	// ErrObjectOp indicates a single object's encode, decode or apply failed.
	ErrObjectOp = NewDomainError("SK-OBJ-5001", "object operation failed")

	// ErrBusy indicates the slot already has an in-flight operation.
	ErrBusy = NewDomainError("SK-OPS-4090", "slot busy")

	// ErrCancelled indicates the operation was cancelled before its commit step.
	ErrCancelled = NewDomainError("SK-OPS-4990", "operation cancelled")

	// ErrInternal indicates an unexpected engine failure.
	ErrInternal = NewDomainError("SK-SYS-5000", "internal error")
)

// ============================================================================
// Slot errors
// ============================================================================

var (
	// ErrSlotNotFound indicates the requested slot does not exist.
	ErrSlotNotFound = NewDomainError("SK-SLT-4040", "slot not found")

	// ErrInvalidSlotID indicates a slot id outside the accepted alphabet or length.
	ErrInvalidSlotID = NewDomainError("SK-SLT-4000", "invalid slot id")

	// ErrSlotLimit indicates the maximum number of slots is already in use.
	ErrSlotLimit = NewDomainError("SK-SLT-4290", "slot limit reached")
)
