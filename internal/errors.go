package internal

import (
	"errors"
	"fmt"
)

var (
	ErrExtractionFailed   = errors.New("extraction failed")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrSyncPartialFailure = errors.New("sync partial failure")
	ErrAuthExpired        = errors.New("auth expired")
	ErrTimeout            = errors.New("timeout")
	ErrRemoteNotFound     = errors.New("remote event not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCursor      = errors.New("invalid cursor")

	// ErrIDCollision is returned when two different notifications hash to the
	// same truncated ID. It is also an ErrAlreadyExists.
	ErrIDCollision = fmt.Errorf("%w: notification id collision", ErrAlreadyExists)
)

// RemoteError is a failure returned by a calendar provider. Body holds the
// provider response verbatim for diagnostics.
type RemoteError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote status %d: %v: %s", e.StatusCode, e.Err, e.Body)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
