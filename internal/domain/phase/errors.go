package phase

import "errors"

// ErrInvalidConfig is returned when a phase configuration fails validation.
var ErrInvalidConfig = errors.New("invalid phase config")
