// Package errors provides structured error types for the Stratum engine.
// All errors include a category, code, message, and retryable flag so that
// callers can distinguish structural problems from missing records and
// lineage conflicts without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by engine component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStore      ErrorCategory = "STORE"
	ErrCategoryGraph      ErrorCategory = "GRAPH"
	ErrCategorySafety     ErrorCategory = "SAFETY"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes: structural problems in entity definitions or models.
	CodeInvalidEntity       = "INVALID_ENTITY"
	CodeUnknownFieldType    = "UNKNOWN_FIELD_TYPE"
	CodeUnresolvedReference = "UNRESOLVED_REFERENCE"
	CodeCircularReference   = "CIRCULAR_REFERENCE"
	CodeInvalidStep         = "INVALID_STEP"

	// Store codes.
	CodeSnapshotNotFound   = "SNAPSHOT_NOT_FOUND"
	CodeTransitionNotFound = "TRANSITION_NOT_FOUND"
	CodeCorruptionDetected = "CORRUPTION_DETECTED"
	CodeWriteFailed        = "WRITE_FAILED"
	CodeReadFailed         = "READ_FAILED"

	// Graph codes.
	CodeLineageDiverged  = "LINEAGE_DIVERGED"
	CodeIrreversibleStep = "IRREVERSIBLE_STEP"

	// Internal codes.
	CodeUnexpected = "UNEXPECTED"
)

// StratumError is the structured error type used throughout the engine.
type StratumError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *StratumError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *StratumError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *StratumError) Is(target error) bool {
	var t *StratumError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new StratumError.
func New(category ErrorCategory, code, message string) *StratumError {
	return &StratumError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new StratumError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *StratumError {
	return &StratumError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *StratumError) WithDetails(details map[string]interface{}) *StratumError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *StratumError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a StratumError.
func GetCategory(err error) ErrorCategory {
	var se *StratumError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a StratumError.
func GetCode(err error) string {
	var se *StratumError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsNotFound reports whether the error is a missing snapshot or transition.
// Distinct from structural errors so callers can offer regeneration guidance.
func IsNotFound(err error) bool {
	code := GetCode(err)
	return code == CodeSnapshotNotFound || code == CodeTransitionNotFound
}

// IsConflict reports whether the error is a lineage divergence: two snapshot
// hashes not connected by any recorded transition chain. The remediation is
// manual reconciliation, not regeneration, so it is kept apart from not-found.
func IsConflict(err error) bool {
	return GetCode(err) == CodeLineageDiverged
}

// isRetryable determines if an error code is retryable.
// Only transient store I/O qualifies.
func isRetryable(category ErrorCategory, code string) bool {
	if category != ErrCategoryStore {
		return false
	}
	return code == CodeWriteFailed || code == CodeReadFailed
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *StratumError {
	return New(ErrCategoryValidation, code, message)
}

func NewStoreError(code, message string, cause error) *StratumError {
	return Wrap(ErrCategoryStore, code, message, cause)
}

func NewGraphError(code, message string) *StratumError {
	return New(ErrCategoryGraph, code, message)
}

func NewInternalError(message string, cause error) *StratumError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
