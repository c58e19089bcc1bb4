package errors

import "errors"

// Common CLI errors with actionable guidance.
var (
	// ErrNotAuthenticated indicates the token is missing or was rejected.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrPermissionDenied indicates the token lacks access to a project.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConnectionFailed indicates the GitLab server is unreachable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrInvalidConfig indicates unusable settings or an unusable targets file.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPartialFailure indicates some downloads failed.
	ErrPartialFailure = errors.New("some downloads failed")
)
