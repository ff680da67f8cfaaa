package stream

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrBackendUnavailable is returned when the synthesis call cannot be initiated.
	ErrBackendUnavailable = errors.New("synthesis backend unavailable")

	// ErrDecodeRejected is returned by a Sink that cannot decode a chunk for the
	// negotiated media type.
	ErrDecodeRejected = errors.New("chunk rejected by decoder")

	// ErrSourceFailure marks a backend stream that failed mid-transfer.
	ErrSourceFailure = errors.New("audio source failed")

	// ErrInvalidFinalizeState is returned by Sink.EndOfStream while an append is
	// still in flight. Seeing it means the pipeline broke its own ordering.
	ErrInvalidFinalizeState = errors.New("end of stream requested while data is pending")

	// ErrAborted is reported by a session that was aborted before it finished.
	ErrAborted = errors.New("session aborted")

	// ErrSessionClosed is returned by a Sink or Controller used after release.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidRequest wraps synthesis request validation failures.
	ErrInvalidRequest = errors.New("invalid synthesis request")

	// ErrUnsupportedFormat is returned for output formats no sink can play.
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// SessionError carries the session and the operation that failed.
type SessionError struct {
	ID  string // Session identifier
	Op  string // Operation being performed, e.g. "start", "accept"
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("stream %s [%s]: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether retrying with a new session may succeed.
// Invariant breaches and invalid requests are not worth retrying.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrInvalidFinalizeState):
		return false
	}
	return true
}

func sourceFailure(err error) error {
	if errors.Is(err, ErrSourceFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSourceFailure, err)
}

func backendUnavailable(err error) error {
	if errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
