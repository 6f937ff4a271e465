package services

import "errors"

// Error taxonomy. Auth and validation errors go back to the originating
// session as named events; relation errors are silent no-ops toward the
// caller; persistence errors are logged and surfaced as retryable.
var (
	ErrDuplicatePseudo = errors.New("pseudo already taken")
	ErrBadCredentials  = errors.New("incorrect pseudo or password")
	ErrBanned          = errors.New("account is banned")

	ErrUnknownUser   = errors.New("unknown user")
	ErrUnknownTarget = errors.New("unknown target")
	ErrBlocked       = errors.New("target has blocked the sender")

	ErrNotAdmin = errors.New("caller is not the administrator")

	// ErrNoChange is returned by update closures to signal a valid no-op:
	// nothing is persisted, nothing is committed, no error reaches the caller.
	ErrNoChange = errors.New("no change")
)
