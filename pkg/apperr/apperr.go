// Package apperr provides a structured error envelope shared across the
// execution engine's components.
package apperr

import (
	"strconv"
	"strings"
)

// Code identifies the category of failure represented by an error.
type Code string

const (
	// CodeInvalidRequest indicates the caller supplied a malformed request.
	CodeInvalidRequest Code = "invalid_request"
	// CodeNotFound indicates the referenced resource does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict indicates a state transition was attempted out of order.
	CodeConflict Code = "conflict"
	// CodeUnavailable indicates a dependency (store, queue substrate) is down.
	CodeUnavailable Code = "unavailable"
	// CodeUpstreamFailed indicates a Router/Chain capability returned an error.
	CodeUpstreamFailed Code = "upstream_failed"
	// CodeTimeout indicates an operation exceeded its deadline.
	CodeTimeout Code = "timeout"
)

// E is a structured error envelope. It is comparable by Code for callers
// that need to branch on failure category without string matching.
type E struct {
	Op          string
	Code        Code
	Message     string
	Remediation string

	cause error
}

// Option configures an E during construction.
type Option func(*E)

// New constructs an error envelope for operation op and category code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{Op: strings.TrimSpace(op), Code: code}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) { e.Message = trimmed }
}

// WithRemediation attaches guidance for resolving the error.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) { e.Remediation = trimmed }
}

// WithCause wraps an underlying error.
func WithCause(err error) Option {
	return func(e *E) { e.cause = err }
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string
	op := strings.TrimSpace(e.Op)
	if op == "" {
		op = "unknown"
	}
	parts = append(parts, "op="+op)
	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Remediation != "" {
		parts = append(parts, "remediation="+strconv.Quote(e.Remediation))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}
	return strings.Join(parts, " ")
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *E) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether target shares this error's Code, so that
// errors.Is(err, apperr.New("", apperr.CodeNotFound)) style checks work
// without comparing messages.
func (e *E) Is(target error) bool {
	other, ok := target.(*E)
	if !ok || e == nil {
		return false
	}
	return e.Code == other.Code
}

// NotFound is a convenience constructor for CodeNotFound errors.
func NotFound(op, message string) *E {
	return New(op, CodeNotFound, WithMessage(message))
}

// Invalid is a convenience constructor for CodeInvalidRequest errors.
func Invalid(op, message string) *E {
	return New(op, CodeInvalidRequest, WithMessage(message))
}

// Unavailable is a convenience constructor for CodeUnavailable errors.
func Unavailable(op, message string) *E {
	return New(op, CodeUnavailable, WithMessage(message))
}

// Upstream wraps an error returned by a Router/Chain capability.
func Upstream(op, message string, cause error) *E {
	return New(op, CodeUpstreamFailed, WithMessage(message), WithCause(cause))
}
