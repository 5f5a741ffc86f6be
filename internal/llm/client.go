// Package llm defines the model-client boundary the orchestrator
// depends on, plus the Anthropic implementation.
package llm

import (
	"context"
	"fmt"
	"time"
)

// GenerateRequest is one model invocation.
type GenerateRequest struct {
	// System is the system prompt.
	System string
	// Context is optional background prepended to the task.
	Context string
	// Task is the user-facing instruction.
	Task string
	// MaxTokens caps the response length. Zero means the client default.
	MaxTokens int64
	// Temperature is the sampling temperature. Zero or negative means
	// the provider default.
	Temperature float64
	// Timeout bounds the call. Zero means no per-call timeout.
	Timeout time.Duration
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// GenerateResponse is the model's reply.
type GenerateResponse struct {
	// Text is the concatenated text output.
	Text string
	// Usage reports token consumption, when the provider supplies it.
	Usage Usage
	// Model is the model that produced the response.
	Model string
	// FinishReason is the provider's stop reason.
	FinishReason string
}

// GenerateError is a typed provider failure with a retryability flag.
type GenerateError struct {
	// Message describes the failure.
	Message string
	// Retryable is true when the same call may succeed later.
	Retryable bool
	// RetryAfter optionally hints how long to wait before retrying.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *GenerateError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("llm: %s (retryable)", e.Message)
	}
	return fmt.Sprintf("llm: %s", e.Message)
}

// Client is the LLM boundary. Implementations must honor context
// cancellation inside Generate.
type Client interface {
	// IsConfigured reports whether the client can actually reach a model.
	// Unconfigured clients make the orchestrator run in bundle-only mode.
	IsConfigured() bool
	// Generate performs one model invocation.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Unconfigured is a Client that is never configured. It stands in when
// no provider credentials are available, forcing bundle-only results.
type Unconfigured struct{}

// IsConfigured always returns false.
func (Unconfigured) IsConfigured() bool { return false }

// Generate always fails; the orchestrator must not call it.
func (Unconfigured) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	return nil, &GenerateError{Message: "no LLM provider configured"}
}
