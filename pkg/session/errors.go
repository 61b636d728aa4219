package session

import "errors"

var (
	// ErrValidation reports malformed input such as a bad identity, server
	// address or command text.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyActive is returned when the identity already owns a live
	// session.
	ErrAlreadyActive = errors.New("session already active")

	// ErrNotFound is returned when no session or tombstone exists for the
	// identity.
	ErrNotFound = errors.New("session not found")

	// ErrConnectTimeout is returned when a session does not reach Online
	// within the start deadline, or when a single attempt times out.
	ErrConnectTimeout = errors.New("connect timed out")

	// ErrConnection wraps failures reported by the game client.
	ErrConnection = errors.New("connection failed")

	// ErrNonRetryableDisconnect marks a kick that must not be retried
	// (banned, not whitelisted, duplicate login).
	ErrNonRetryableDisconnect = errors.New("non-retryable disconnect")

	// ErrRetryExhausted is returned once the reconnect policy gives up.
	ErrRetryExhausted = errors.New("reconnect attempts exhausted")

	// ErrNotOnline is returned when a command is sent to a session that is
	// not Online.
	ErrNotOnline = errors.New("session not online")

	// ErrStopped is returned to callers waiting on a session that was stopped.
	ErrStopped = errors.New("session stopped")
)
