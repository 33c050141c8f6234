// Package procerr defines the error taxonomy shared by the inference gateway,
// the batch processor, and the folder monitor. Every per-item failure in the
// processing pipeline is reduced to one of the Kind values below so callers
// can render a stable, human-readable category regardless of which network
// hop produced the underlying error.
package procerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind categorizes processing failures.
type Kind int

const (
	// KindUnknown is the fallback for errors that fit no other category.
	KindUnknown Kind = iota
	// KindCredentialMissing indicates the user has no inference token configured.
	KindCredentialMissing
	// KindCredentialInvalid indicates the stored token was rejected upstream.
	KindCredentialInvalid
	// KindUploadFailed indicates the object storage upload failed.
	KindUploadFailed
	// KindInferenceFailed indicates the inference provider failed or timed out.
	KindInferenceFailed
	// KindRateLimited indicates a 429-class response; retryable after a delay.
	KindRateLimited
	// KindNetworkError indicates a transport-level failure; retryable.
	KindNetworkError
	// KindValidation indicates bad input (file type, size, prompt length); not retryable.
	KindValidation
)

// String returns the stable name of the kind, used in logs and item results.
func (k Kind) String() string {
	switch k {
	case KindCredentialMissing:
		return "credential_missing"
	case KindCredentialInvalid:
		return "credential_invalid"
	case KindUploadFailed:
		return "upload_failed"
	case KindInferenceFailed:
		return "inference_failed"
	case KindRateLimited:
		return "rate_limited"
	case KindNetworkError:
		return "network_error"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Retryable reports whether an error of this kind is worth retrying
// after a delay.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindNetworkError
}

// Error is a classified processing error. It wraps the underlying cause
// and carries a user-facing message. RetryAfter is set on rate-limit
// errors when the server supplied a wait hint.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
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

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error without losing the cause.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err. Classification order:
//  1. a *Error anywhere in the chain wins;
//  2. otherwise the legacy substring shim is applied to the message.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return classifyMessage(err.Error())
}

// RetryAfterOf returns the server-supplied wait hint from err, or zero
// when err carries none.
func RetryAfterOf(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// FromStatus maps an HTTP status code from the gateway or the inference
// provider to a Kind. Status-code classification is authoritative; the
// substring shim below only covers errors that carry no status.
func FromStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindCredentialInvalid
	case status == 429:
		return KindRateLimited
	case status == 400 || status == 413 || status == 422:
		return KindValidation
	case status >= 500:
		return KindInferenceFailed
	default:
		return KindUnknown
	}
}

// classifyMessage is the legacy substring classifier carried over from the
// original client. It is deliberately coarse: token-related text maps to a
// credential error, storage/upload text to an upload error, failed/timeout
// text to a processing error, rate-limit text to a rate limit, and
// everything else to unknown.
func classifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "TOKEN") || strings.Contains(lower, "token"):
		return KindCredentialMissing
	case strings.Contains(lower, "429") || strings.Contains(lower, "too many requests"):
		return KindRateLimited
	case strings.Contains(lower, "storage") || strings.Contains(lower, "upload"):
		return KindUploadFailed
	case strings.Contains(lower, "failed") || strings.Contains(lower, "timeout"):
		return KindInferenceFailed
	case strings.Contains(lower, "network") || strings.Contains(lower, "connection") ||
		strings.Contains(lower, "dial") || strings.Contains(lower, "no such host"):
		return KindNetworkError
	default:
		return KindUnknown
	}
}
