package chat

import "errors"

var (
	// ErrNotFound covers both a missing session and a session owned by
	// someone else, so callers cannot probe for other users' sessions.
	ErrNotFound = errors.New("chat: session not found")

	ErrInvalidPersona = errors.New("chat: unknown persona")

	ErrNoCredits = errors.New("chat: no credits remaining")

	ErrEmptyMessage = errors.New("chat: message is empty")
)
