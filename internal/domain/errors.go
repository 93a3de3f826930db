package domain

import (
	"errors"
	"fmt"
)

// ErrNoCountries is returned when a simulation is constructed with an
// empty country list. This is the one fatal configuration error: nothing
// can be stepped without participants.
var ErrNoCountries = errors.New("simulation requires at least one country")

// ValidationError marks a rejected action or trade flow. Validation
// failures are non-fatal: the offending item is logged and skipped and the
// step continues for the remaining countries.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AgentFailure wraps a decision-provider error. It is recovered locally by
// substituting the fallback action and is surfaced only as a warning entry
// in the action history, never propagated to the caller of Step.
type AgentFailure struct {
	Country string
	Err     error
}

func (e *AgentFailure) Error() string {
	return fmt.Sprintf("agent for %s failed: %v", e.Country, e.Err)
}

func (e *AgentFailure) Unwrap() error {
	return e.Err
}
