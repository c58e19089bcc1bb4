package errors

import (
	"errors"

	ahttp "github.com/randalmurphal/artifetch/http"
)

// Process exit codes.
const (
	// ExitOK means every job was downloaded or was a soft miss.
	ExitOK = 0

	// ExitPartial means at least one download failed, or some other
	// error ended the run.
	ExitPartial = 1

	// ExitConfig means settings or the targets file could not be used.
	ExitConfig = 2

	// ExitAuth means the token was missing or rejected.
	ExitAuth = 3
)

// ExitCode maps the error a command returned to the process exit code.
// Authentication wins over configuration, which wins over everything else.
// Only typed errors are considered; message text never changes the code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrPermissionDenied) || ahttp.IsAuthFailure(err):
		return ExitAuth
	case IsConfigError(err):
		return ExitConfig
	default:
		return ExitPartial
	}
}
