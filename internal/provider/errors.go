package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrLineNotInDiff indicates an inline comment targeted a line outside the PR diff.
	ErrLineNotInDiff = errors.New("line is not part of the pull request diff")

	// ErrMissingOrigin indicates a self-hosted variant was configured without an origin.
	ErrMissingOrigin = errors.New("server origin is required")

	// ErrMissingUsername indicates an operation needs the acting platform username.
	ErrMissingUsername = errors.New("acting username is required")

	// ErrUnsupportedAction indicates an unknown review action.
	ErrUnsupportedAction = errors.New("unsupported review action")
)

// APIError is returned when a platform answers with a non-success status.
type APIError struct {
	Platform   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Platform, e.StatusCode, e.Body)
}

// StatusCode returns the HTTP status carried by err, or 0 if err holds no APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// lineNotInDiffError ties ErrLineNotInDiff to the platform error that caused it.
type lineNotInDiffError struct {
	path  string
	line  int
	cause error
}

// LineNotInDiff wraps cause so that errors.Is matches both ErrLineNotInDiff and the cause.
func LineNotInDiff(path string, line int, cause error) error {
	return &lineNotInDiffError{path: path, line: line, cause: cause}
}

func (e *lineNotInDiffError) Error() string {
	return fmt.Sprintf("cannot comment on %s:%d: %v (inline comments must target a line inside a diff hunk): %v",
		e.path, e.line, ErrLineNotInDiff, e.cause)
}

func (e *lineNotInDiffError) Unwrap() []error {
	return []error{ErrLineNotInDiff, e.cause}
}
