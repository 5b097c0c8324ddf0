package progress

import "errors"

// ErrInvalidRoundState marks an advance with an inconsistent round index.
// It is a no-op for the caller.
var ErrInvalidRoundState = errors.New("invalid round state")
