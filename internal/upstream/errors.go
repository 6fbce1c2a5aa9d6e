// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds. Every error returned by Client matches exactly one of these with
// errors.Is, except context cancellation which is returned as is.
var (
	// ErrNetwork covers timeouts and connection failures after retries.
	ErrNetwork = errors.New("upstream network error")
	// ErrRateLimitExceeded means the API kept answering 429 past the retry ceiling.
	ErrRateLimitExceeded = errors.New("upstream rate limit exceeded")
	// ErrUpstream is a non-success HTTP status. 5xx are retried first; 4xx are not.
	ErrUpstream = errors.New("upstream error response")
	// ErrProtocol is a malformed body or an envelope whose type is not "success".
	ErrProtocol = errors.New("upstream protocol error")
	// ErrCircuitOpen is returned by BreakerClient while the circuit is open.
	ErrCircuitOpen = errors.New("upstream circuit open")
)

// RequestError carries the context of a failed upstream call.
type RequestError struct {
	Kind       error
	Path       string
	StatusCode int
	Attempts   int
	// Body is a short prefix of the response body, for diagnostics.
	Body string
	Err  error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Path != "" {
		fmt.Fprintf(&b, " on %s", e.Path)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, " (body: %s)", e.Body)
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

// tripsBreaker reports whether err indicates the upstream itself is unhealthy.
// Protocol errors, client errors and caller cancellation do not count.
func tripsBreaker(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrRateLimitExceeded):
		return true
	case errors.Is(err, ErrUpstream):
		return StatusCode(err) >= http.StatusInternalServerError
	default:
		return false
	}
}

// Aborts reports whether err should end a whole sync run rather than count against
// a single record.
func Aborts(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimitExceeded)
}
