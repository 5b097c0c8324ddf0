package generator

import (
	"errors"
	"fmt"
)

// Kind classifies an AdapterError.
type Kind string

// Failure kinds.
const (
	KindUnavailable Kind = "unavailable"
	KindProvider    Kind = "provider"
	KindMalformed   Kind = "malformed"
)

// ErrNoClient is returned when the generator has no LLM client.
var ErrNoClient = errors.New("no llm client configured")

// AdapterError is any failure producing a pair of options. The selector
// recovers from it by falling back to exploitation.
type AdapterError struct {
	Kind     Kind
	Provider string
	// Raw is the provider response for malformed output.
	Raw string
	Err error
}

func (e *AdapterError) Error() string {
	msg := fmt.Sprintf("generator %s", e.Kind)
	if e.Provider != "" {
		msg += " (" + e.Provider + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Reason labels the failure for fallback metrics. Provider failures report
// the provider's own classification when it has one.
func (e *AdapterError) Reason() string {
	if e.Kind == KindProvider {
		var r interface{ Reason() string }
		if errors.As(e.Err, &r) {
			return r.Reason()
		}
	}
	return string(e.Kind)
}
