package risk

import "errors"

var (
	// ErrInvalidInput is returned when a request cannot be simulated at all:
	// no positions, a non-positive total value, or non-finite inputs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable is returned when exclusive access to the engine state could
	// not be obtained before the caller's context was done. Callers may retry.
	ErrUnavailable = errors.New("risk engine unavailable")

	// ErrInsufficientData signals that fewer than two aligned observations exist
	// for the requested assets. The engine absorbs it as the static fallback mode.
	ErrInsufficientData = errors.New("insufficient data")
)
