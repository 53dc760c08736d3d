package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned by CreateSession when the binary
	// already has a live orchestrator owning it.
	ErrAlreadyActive = errors.New("session: binary already being analyzed")

	// ErrMaxSessions is returned by CreateSession once the supervisor
	// is holding its configured maximum number of sessions.
	ErrMaxSessions = errors.New("session: maximum number of sessions reached")

	// ErrSpawnFailed is returned by CreateSession when the orchestrator
	// process could not be started.
	ErrSpawnFailed = errors.New("session: failed to spawn orchestrator process")

	// ErrPipeFailed is returned by CreateSession when the named pipes
	// could not be created or opened.
	ErrPipeFailed = errors.New("session: failed to set up session pipes")

	// ErrNotFound is returned for operations against an unknown or
	// already-closed session id.
	ErrNotFound = errors.New("session: not found or inactive")

	// ErrPending is returned by SendMessage when a previous request's
	// response has not yet been consumed (the single-flight invariant).
	ErrPending = errors.New("session: previous response not yet consumed")

	// ErrTimeout is returned by WaitForResponse when no response arrives
	// within the requested window. The pending flag is left set: the
	// caller may poll again with WaitForResponse rather than resend.
	ErrTimeout = errors.New("session: timed out waiting for response")

	// ErrInactive is returned by SendMessage once a session has begun
	// closing or has died. WaitForResponse does not check it, so a
	// response already buffered can still be collected.
	ErrInactive = errors.New("session: session is not active")
)

// PendingError reports ErrPending along with the text of the request
// still awaiting a response, so the caller knows what to wait for
// instead of guessing.
type PendingError struct {
	PendingText string
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("session: previous response not yet consumed (pending request: %q); call WaitForResponse instead", e.PendingText)
}

func (e *PendingError) Unwrap() error {
	return ErrPending
}
