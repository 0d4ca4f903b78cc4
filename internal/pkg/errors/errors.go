package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrContextUnresolvable means a requested unit/module cannot be mapped
	// to stored content. Callers show a "not available yet" message.
	ErrContextUnresolvable = errors.New("context unresolvable")
	// ErrTemplateUnavailable means no dialogue template exists and synthesis
	// did not produce one. Recoverable later, blocks start for that unit.
	ErrTemplateUnavailable = errors.New("template unavailable")
	// ErrInvalidSessionState covers responding to a completed session or a
	// session owned by a different user.
	ErrInvalidSessionState = errors.New("invalid session state")
)
