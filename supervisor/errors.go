package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
)

// Sentinel errors for unit operations.
var (
	// ErrLaunch indicates the unit could not be started.
	ErrLaunch = errors.New("launch failed")

	// ErrRuntime indicates the unit failed after it started.
	ErrRuntime = errors.New("unit failed")

	// ErrAborted indicates the unit was cancelled. It is never reported to
	// the client as an error.
	ErrAborted = errors.New("aborted")

	// ErrTeardown indicates a cleanup step failed. Teardown failures are
	// logged and never block the terminal event.
	ErrTeardown = errors.New("teardown failed")

	// ErrCLINotFound indicates the claude binary is missing.
	ErrCLINotFound = errors.New("claude CLI not found")

	// ErrWorkDir indicates the unit's working directory does not exist or
	// is not a directory.
	ErrWorkDir = errors.New("working directory unusable")

	// ErrUnknownBackend indicates the request named a backend that is not
	// configured.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrShutdown indicates the supervisor no longer accepts work.
	ErrShutdown = errors.New("supervisor shut down")
)

// Error wraps unit errors with context.
type Error struct {
	SessionID string // Session or provisional id
	Op        string // Operation that failed ("launch", "run", "release sandbox")
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("session %s: %s: %v", e.SessionID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the claude binary could not be found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCLINotFound) || errors.Is(err, exec.ErrNotFound)
}

// checkWorkDir verifies dir before launch. A missing directory otherwise
// fails the same way as a missing binary.
func checkWorkDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWorkDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrWorkDir, dir)
	}
	return nil
}

// startError classifies a failed start. The working directory has been
// checked already, so a missing file is the binary itself.
func startError(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrCLINotFound, err)
	}
	return err
}

// IsAbort reports whether err stems from cancellation rather than failure.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}
