package service

import "errors"

// Sentinel errors returned by Service operations.
var (
	// ErrPhaseDisabled is returned for votes while no phase is running.
	ErrPhaseDisabled = errors.New("phase disabled")
	// ErrSessionComplete is returned for votes after the session finished the phase.
	ErrSessionComplete = errors.New("session complete")
	// ErrStaleToken is returned when the token does not name the pending pair.
	ErrStaleToken = errors.New("stale continuation token")
	// ErrUnknownOption is returned when the chosen id is not part of the pending pair.
	ErrUnknownOption = errors.New("option is not part of the pending pair")
	// ErrNeitherNotAllowed is returned for "neither" outside the generation phase.
	ErrNeitherNotAllowed = errors.New("neither is only available during generation")
	// ErrSubmitNotAllowed is returned for submissions outside the generation phase.
	ErrSubmitNotAllowed = errors.New("submissions are only accepted during generation")
	// ErrPhaseReadOnly is returned when the phase provider cannot be updated.
	ErrPhaseReadOnly = errors.New("phase configuration is read-only")
)
