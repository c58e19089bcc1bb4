// Package http provides the transport layer shared by the GitLab client and
// the webhook notifiers: a typed error taxonomy, a retry policy, and a
// page iterator.
package http

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for API failures. Typed errors below unwrap to these.
var (
	// ErrNotFound indicates the requested resource does not exist (or has expired).
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized indicates invalid or missing authentication.
	ErrUnauthorized = errors.New("authentication failed")

	// ErrForbidden indicates the token lacks permission for the resource.
	ErrForbidden = errors.New("permission denied")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrServerError indicates a server-side error occurred.
	ErrServerError = errors.New("server error")

	// ErrTransient indicates a retryable failure that outlasted the retry budget.
	ErrTransient = errors.New("transient failure")

	// ErrUnexpectedResponse indicates a non-2xx status outside the known classes.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// APIError represents a non-2xx response from an external API.
type APIError struct {
	// Service is the name of the integration (e.g., "gitlab", "webhook").
	Service string

	// StatusCode is the HTTP status code returned.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Endpoint is the API endpoint that was called.
	Endpoint string

	// RequestID is the request ID for debugging (if available).
	RequestID string

	// RetryAfter is the server-requested wait before the next attempt.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s API error (%d) at %s [%s]: %s",
			e.Service, e.StatusCode, e.Endpoint, e.RequestID, e.Message)
	}
	return fmt.Sprintf("%s API error (%d) at %s: %s",
		e.Service, e.StatusCode, e.Endpoint, e.Message)
}

// Unwrap returns the sentinel for the status code class.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == 401:
		return ErrUnauthorized
	case e.StatusCode == 403:
		return ErrForbidden
	case e.StatusCode == 404:
		return ErrNotFound
	case e.StatusCode == 429:
		return ErrRateLimited
	case e.StatusCode >= 500 && e.StatusCode < 600:
		return ErrServerError
	default:
		return ErrUnexpectedResponse
	}
}

// AuthError represents credentials rejected or missing before any request was made.
type AuthError struct {
	// Service is the integration that failed authentication.
	Service string

	// Reason explains why authentication failed.
	Reason string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %s", e.Service, e.Reason)
}

// Unwrap returns ErrUnauthorized.
func (e *AuthError) Unwrap() error {
	return ErrUnauthorized
}

// NetworkError wraps a transport-level failure: connection refused, reset,
// DNS, TLS, or client timeout.
type NetworkError struct {
	Service  string
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s request to %s failed: %v", e.Service, e.Endpoint, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TransientError is returned when a retryable failure persists through
// every attempt of a RetryPolicy.
type TransientError struct {
	// Attempts is the number of requests made.
	Attempts int

	// Err is the failure from the last attempt.
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes both ErrTransient and the last attempt's error.
func (e *TransientError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

// IsNotFound reports whether the error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized reports whether the error indicates authentication failed.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden reports whether the error indicates permission was denied.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsAuthFailure reports whether the error means the token cannot be used.
// Both 401 and 403 count: neither improves on a later request in the same run.
func IsAuthFailure(err error) bool {
	return IsUnauthorized(err) || IsForbidden(err)
}

// IsTransient reports whether the error is a retry budget that ran out.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsUnexpected reports whether the error is an unclassified API response.
func IsUnexpected(err error) bool {
	return errors.Is(err, ErrUnexpectedResponse)
}

// IsRetryable reports whether a single attempt's error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError) {
		return true
	}

	var netErr *NetworkError
	return errors.As(err, &netErr)
}
