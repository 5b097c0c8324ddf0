package tournament

import "errors"

// Sentinel errors for the tournament engine.
var (
	// ErrNoEligibleCandidates is terminal: nothing was selected during generation.
	ErrNoEligibleCandidates = errors.New("no eligible candidates")
	ErrFinished             = errors.New("tournament already finished")
	ErrNotInComparison      = errors.New("winner is not part of the current comparison")
)
