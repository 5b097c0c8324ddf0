package selection

import "errors"

// ErrGenerationUnavailable is returned when neither the pool nor the
// generator can supply a pair. Callers should ask the user to try again.
var ErrGenerationUnavailable = errors.New("generation unavailable")
