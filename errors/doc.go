// Package errors turns run failures into messages for the terminal and
// into process exit codes.
//
// Core types:
//   - CLIError: wraps an error with a message, suggestion, and details
//   - ErrorMessenger: customizes the messages
//
// Sentinel errors:
//   - ErrNotAuthenticated: token missing or rejected
//   - ErrPermissionDenied: token lacks access
//   - ErrConnectionFailed: server unreachable
//   - ErrInvalidConfig: settings or targets file unusable
//   - ErrPartialFailure: some downloads failed
//
// Example usage:
//
//	report, err := orchestrator.Run(ctx, targets)
//	if err != nil {
//	    err = errors.WrapAuthError(err)
//	}
//	os.Exit(errors.ExitCode(err))
package errors
