package models

import "fmt"

// ErrorCode classifies boundary failures crossing the core boundary.
type ErrorCode string

const (
	// ErrInvalidResidence indicates a residence path failed validation.
	ErrInvalidResidence ErrorCode = "INVALID_RESIDENCE"
	// ErrPathTraversal indicates a residence attempted to escape the trust root.
	ErrPathTraversal ErrorCode = "PATH_TRAVERSAL"
	// ErrInvalidRepoRoot indicates the configured trust root is unusable.
	ErrInvalidRepoRoot ErrorCode = "INVALID_REPO_ROOT"
	// ErrBadRequest indicates malformed caller input.
	ErrBadRequest ErrorCode = "BAD_REQUEST"
	// ErrContractViolation indicates agent output failed its role contract.
	ErrContractViolation ErrorCode = "CONTRACT_VIOLATION"
	// ErrInvalidPlan indicates a plan failed validation.
	ErrInvalidPlan ErrorCode = "INVALID_PLAN"
	// ErrEscalationRequired is a privilege-boundary signal, not a failure.
	ErrEscalationRequired ErrorCode = "ESCALATION_REQUIRED"
	// ErrInternal is the catch-all for unexpected failures.
	ErrInternal ErrorCode = "INTERNAL"
)

// CodedError is a boundary error carrying a taxonomy code and optional
// detail payload. The orchestrator normalizes these into step results;
// raw errors never cross the core boundary.
type CodedError struct {
	// Code classifies the failure.
	Code ErrorCode
	// Message is the human-readable description.
	Message string
	// Details carries optional structured context.
	Details map[string]string
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewCodedError creates a CodedError with the given code and formatted message.
func NewCodedError(code ErrorCode, format string, args ...interface{}) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}
