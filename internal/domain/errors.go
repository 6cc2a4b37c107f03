package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrSequenceGap        = errors.New("sequence gap")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrSettingsValidation = errors.New("invalid setting")
	ErrPartialExecution   = errors.New("partial execution")
	ErrPositionSize       = errors.New("execution size exceeds position limit")
	ErrBelowOneContract   = errors.New("execution size below one contract")
	ErrUnknownPair        = errors.New("unknown market pair")
	ErrLockHeld           = errors.New("lock already held")
)

// SequenceGapError reports a delta whose sequence does not directly follow
// the last applied one. The book is left untouched.
type SequenceGapError struct {
	MarketKey string
	Expected  int64
	Got       int64
}

func (e *SequenceGapError) Error() string {
	return fmt.Sprintf("sequence gap on %s: expected %d, got %d", e.MarketKey, e.Expected, e.Got)
}

func (e *SequenceGapError) Unwrap() error { return ErrSequenceGap }

// MalformedMessageError reports a venue message that could not be decoded
// or is missing required fields.
type MalformedMessageError struct {
	Venue  Venue
	Reason string
	Err    error
}

func (e *MalformedMessageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s message: %s: %v", e.Venue, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s message: %s", e.Venue, e.Reason)
}

func (e *MalformedMessageError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedMessage, e.Err}
	}
	return []error{ErrMalformedMessage}
}

// SettingsValidationError names the runtime setting that was rejected.
type SettingsValidationError struct {
	Field string
	Value any
	Rule  string
}

func (e *SettingsValidationError) Error() string {
	return fmt.Sprintf("invalid setting %s=%v: %s", e.Field, e.Value, e.Rule)
}

func (e *SettingsValidationError) Unwrap() error { return ErrSettingsValidation }
