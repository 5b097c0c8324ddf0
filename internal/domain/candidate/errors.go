package candidate

import "errors"

// Sentinel errors for candidate text validation.
var (
	ErrEmptyText   = errors.New("candidate text is empty")
	ErrTextTooLong = errors.New("candidate text is too long")
)
