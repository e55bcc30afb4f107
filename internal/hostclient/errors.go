// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hostclient

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUpstreamUnavailable = errors.New("host: unreachable or transport failure")
	ErrUpstreamRejected    = errors.New("host: request rejected (4xx)")
	ErrUpstreamError       = errors.New("host: internal error (5xx)")
	ErrUpstreamBadResponse = errors.New("host: invalid response format or malformed data")
	ErrTimeout             = errors.New("host: request timed out")
	ErrCanceled            = errors.New("host: request canceled by caller")
)

// Error is a rich error type that wraps the sentinel errors with context.
type Error struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error // Nested lower-level error (e.g. net.Error)
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("hostclient: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

// Class returns a short metric label for err.
func Class(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstreamRejected):
		return "rejected"
	case errors.Is(err, ErrUpstreamError):
		return "upstream_error"
	case errors.Is(err, ErrUpstreamBadResponse):
		return "bad_response"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "unavailable"
	default:
		return "unknown"
	}
}

// IsTransient reports whether err means the host could not be reached or failed
// internally, as opposed to rejecting the request. Only transient errors count
// toward the circuit breaker.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrUpstreamError) ||
		errors.Is(err, ErrTimeout)
}

func classifyStatus(op string, status int, body string) error {
	switch {
	case status >= 500:
		return &Error{Sentinel: ErrUpstreamError, Operation: op, Status: status, Body: body}
	case status >= 400:
		return &Error{Sentinel: ErrUpstreamRejected, Operation: op, Status: status, Body: body}
	default:
		return &Error{Sentinel: ErrUpstreamBadResponse, Operation: op, Status: status, Body: body}
	}
}

func classifyTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return &Error{Sentinel: ErrCanceled, Operation: op, Err: err}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Sentinel: ErrTimeout, Operation: op, Err: err}
	}
	return &Error{Sentinel: ErrUpstreamUnavailable, Operation: op, Err: err}
}
