// Package apierr defines the error taxonomy shared by the orchestrator,
// the HTTP surface, and the terminal driver.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for retry decisions and HTTP status mapping.
type Kind string

const (
	KindInvalidInput   Kind = "invalid_input"
	KindNotFound       Kind = "not_found"
	KindUpstream       Kind = "upstream_error"
	KindRateLimited    Kind = "rate_limited"
	KindTimeout        Kind = "timeout"
	KindCancelled      Kind = "cancelled"
	KindInsufficientBudget Kind = "insufficient_budget"
	KindInternal       Kind = "internal"
)

// Error is the structured error carried on a Job and returned by the HTTP
// surface. It wraps an underlying cause the way pipeline.PipelineError did
// for the teacher, with a Kind added for status-code mapping.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the fallback/retry driver should treat this
// error as transient.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindUpstream, KindRateLimited, KindTimeout:
		return true
	default:
		return false
	}
}

// StatusCode maps a Kind onto the HTTP status the REST surface returns.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCancelled:
		return http.StatusConflict
	case KindInsufficientBudget:
		return http.StatusPaymentRequired
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New constructs an Error at the given stage.
func New(kind Kind, stage, message string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Err: cause}
}

// Of extracts an *Error from err if present, wrapping it as internal
// otherwise so every call site can rely on a Kind being present.
func Of(stage string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Stage: stage, Message: err.Error(), Err: err}
}
