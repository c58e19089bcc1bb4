package errors

import (
	"errors"
	"fmt"
	"strings"

	ahttp "github.com/randalmurphal/artifetch/http"
)

// CLIError wraps an error with user-friendly context and suggestions.
type CLIError struct {
	// Err is the underlying error
	Err error

	// Message is a user-friendly description of what went wrong
	Message string

	// Suggestion is an actionable hint for the user
	Suggestion string

	// Details provides additional context (optional)
	Details string
}

func (e *CLIError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Details)
	}

	if e.Suggestion != "" {
		sb.WriteString("\n\n")
		sb.WriteString(e.Suggestion)
	}

	return sb.String()
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// ErrorMessenger provides customizable error messages.
type ErrorMessenger interface {
	// AuthErrorMessage returns the message and suggestion for rejected or missing tokens.
	AuthErrorMessage() (message, suggestion string)

	// PermissionDeniedMessage returns the message and suggestion for permission errors.
	PermissionDeniedMessage() (message, suggestion string)

	// ConnectionErrorMessage returns the message and suggestion for connection errors.
	// The serverURL parameter is the URL that failed to connect.
	ConnectionErrorMessage(serverURL string) (message, suggestion string)

	// TLSErrorMessage returns the message and suggestion for TLS/certificate errors.
	TLSErrorMessage(serverURL string) (message, suggestion string)

	// TimeoutErrorMessage returns the message and suggestion for timeout errors.
	TimeoutErrorMessage(serverURL string) (message, suggestion string)

	// ConfigErrorMessage returns the message and suggestion for unusable configuration.
	ConfigErrorMessage() (message, suggestion string)
}

// DefaultMessenger provides default error messages.
type DefaultMessenger struct{}

func (m DefaultMessenger) AuthErrorMessage() (string, string) {
	return "GitLab rejected the access token.",
		"Set GITLAB_TOKEN, or run 'artifetch config set token <token>'.\n" +
			"The token needs the read_api scope."
}

func (m DefaultMessenger) PermissionDeniedMessage() (string, string) {
	return "The access token cannot read this project's pipelines.",
		"Check that the token's user is at least a Reporter on the project."
}

func (m DefaultMessenger) ConnectionErrorMessage(serverURL string) (string, string) {
	return fmt.Sprintf("Cannot connect to GitLab at %s", serverURL),
		"Check that:\n  - The base URL is correct (it should end in /api/v4)\n  - Your network connection is working"
}

func (m DefaultMessenger) TLSErrorMessage(serverURL string) (string, string) {
	return fmt.Sprintf("TLS/certificate error connecting to %s", serverURL),
		"Check that the server certificate is valid."
}

func (m DefaultMessenger) TimeoutErrorMessage(serverURL string) (string, string) {
	return fmt.Sprintf("Connection to %s timed out", serverURL),
		"The server may be overloaded or unreachable.\nTry again, or raise the timeout with --timeout."
}

func (m DefaultMessenger) ConfigErrorMessage() (string, string) {
	return "The configuration is invalid.",
		"Run 'artifetch config list' to see the effective settings."
}

// WrapConfig configures error wrapping behavior.
type WrapConfig struct {
	Messenger ErrorMessenger
}

// Option configures WrapConfig.
type Option func(*WrapConfig)

// WithMessenger sets a custom error messenger.
func WithMessenger(m ErrorMessenger) Option {
	return func(c *WrapConfig) {
		c.Messenger = m
	}
}

func getMessenger(opts []Option) ErrorMessenger {
	cfg := &WrapConfig{
		Messenger: DefaultMessenger{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg.Messenger
}

// WrapAuthError wraps authentication-related errors with helpful guidance.
// Other errors are returned unchanged.
func WrapAuthError(err error, opts ...Option) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	messenger := getMessenger(opts)

	switch {
	case ahttp.IsForbidden(err) || IsPermissionError(err):
		msg, suggestion := messenger.PermissionDeniedMessage()
		return &CLIError{
			Err:        multiple(ErrPermissionDenied, err),
			Message:    msg,
			Details:    err.Error(),
			Suggestion: suggestion,
		}

	case ahttp.IsUnauthorized(err) || IsAuthError(err):
		msg, suggestion := messenger.AuthErrorMessage()
		return &CLIError{
			Err:        multiple(ErrNotAuthenticated, err),
			Message:    msg,
			Details:    err.Error(),
			Suggestion: suggestion,
		}
	}

	return err
}

// WrapConnectionError wraps connection-related errors with helpful guidance.
func WrapConnectionError(err error, serverURL string, opts ...Option) error {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())
	messenger := getMessenger(opts)

	// Check for TLS/certificate errors
	if strings.Contains(errStr, "certificate") || strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") {
		msg, suggestion := messenger.TLSErrorMessage(serverURL)
		return &CLIError{
			Err:        multiple(ErrConnectionFailed, err),
			Message:    msg,
			Details:    err.Error(),
			Suggestion: suggestion,
		}
	}

	// Check for timeout
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		msg, suggestion := messenger.TimeoutErrorMessage(serverURL)
		return &CLIError{
			Err:        multiple(ErrConnectionFailed, err),
			Message:    msg,
			Suggestion: suggestion,
		}
	}

	// Check for connection refused
	var netErr *ahttp.NetworkError
	if errors.As(err, &netErr) ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp") {
		msg, suggestion := messenger.ConnectionErrorMessage(serverURL)
		return &CLIError{
			Err:        multiple(ErrConnectionFailed, err),
			Message:    msg,
			Details:    err.Error(),
			Suggestion: suggestion,
		}
	}

	return err
}

// NewConfigError wraps a settings or targets file error.
func NewConfigError(err error, opts ...Option) error {
	if err == nil {
		return nil
	}
	messenger := getMessenger(opts)
	msg, suggestion := messenger.ConfigErrorMessage()
	return &CLIError{
		Err:        multiple(ErrInvalidConfig, err),
		Message:    msg,
		Details:    err.Error(),
		Suggestion: suggestion,
	}
}

// NewPartialFailureError reports that failed of total downloads failed.
func NewPartialFailureError(failed, total int) error {
	return &CLIError{
		Err:        ErrPartialFailure,
		Message:    fmt.Sprintf("%d of %d downloads failed.", failed, total),
		Suggestion: "Re-run to retry; files already downloaded are rewritten.",
	}
}

// NewNotAuthenticatedError creates an error for a missing token.
func NewNotAuthenticatedError(opts ...Option) error {
	messenger := getMessenger(opts)
	msg, suggestion := messenger.AuthErrorMessage()
	return &CLIError{
		Err:        ErrNotAuthenticated,
		Message:    msg,
		Suggestion: suggestion,
	}
}

// multiple keeps both the sentinel and the cause reachable through errors.Is.
func multiple(sentinel, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}
