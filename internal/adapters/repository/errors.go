package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound       = errors.New("candidate not found")
	ErrInvalidOrigin  = errors.New("invalid candidate origin")
	ErrInvalidVote    = errors.New("invalid vote")
	ErrInvalidSession = errors.New("invalid session")
	ErrSnapshot       = errors.New("snapshot failed")
	ErrClosed         = errors.New("store closed")
)
