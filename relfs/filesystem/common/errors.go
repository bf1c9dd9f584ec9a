package common

import (
	"errors"
	"fmt"
)

// Common error types used across filesystem packages
var (
	ErrNotFound          = errors.New("entry does not exist")
	ErrAccessDenied      = errors.New("access denied")
	ErrRecursiveLinkLoop = errors.New("recursive symlink loop")
	ErrAlreadyExists     = errors.New("destination already exists")
	ErrShortTransfer     = errors.New("short transfer")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrSubprocessFailure = errors.New("subprocess failure")
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrAborted is returned by Visit when the visitor requests a
	// non-veto abort; the walk unwinds immediately.
	ErrAborted = errors.New("walk aborted by visitor")
)

// WrapError wraps an error with additional context
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	context := fmt.Sprintf(message, args...)
	return fmt.Errorf("%s: %w", context, err)
}
