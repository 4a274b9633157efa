package services

import (
	"fmt"
	"time"
)

// ErrorKind classifies a failed operation. Handlers map it onto a status code.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindTooEarly
	KindRateLimited
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTooEarly:
		return "too_early"
	case KindRateLimited:
		return "rate_limited"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Error is returned by every service operation that fails for a reason the
// caller should see. Reason is a short machine-checkable code.
type Error struct {
	Kind       ErrorKind
	Reason     string
	RetryAfter time.Duration
	// WinnerID is set on conflicts with an already finished match.
	WinnerID string
	// State optionally carries the current server view for the caller to resync.
	State any
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func invalid(reason string) *Error {
	return &Error{Kind: KindValidation, Reason: reason}
}

func forbidden(reason string) *Error {
	return &Error{Kind: KindForbidden, Reason: reason}
}

func notFound(reason string) *Error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

func conflict(reason string) *Error {
	return &Error{Kind: KindConflict, Reason: reason}
}

func tooEarly(reason string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindTooEarly, Reason: reason, RetryAfter: retryAfter}
}

func rateLimited(reason string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Reason: reason, RetryAfter: retryAfter}
}

func internal(reason string, err error) *Error {
	return &Error{Kind: KindInternal, Reason: reason, Err: err}
}
