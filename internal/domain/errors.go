package domain

import "errors"

// Sentinel errors shared across the scheduler core. Collaborator clients wrap
// these with %w so errors.Is classification works through any chain.
var (
	// ErrRateLimited marks the external API's explicit rate-limit signal.
	// It is the only error class that advances the cooldown state machine.
	ErrRateLimited = errors.New("rate limited by execution api")

	// ErrNoRoute marks a quote the API refused to route, typically because
	// the amount is dust. Treated as a benign skip, never a failure.
	ErrNoRoute = errors.New("no viable execution route")

	// ErrHalted is returned once the cooldown coordinator has issued a
	// fatal stop. It is the only error that crosses the core's boundary.
	ErrHalted = errors.New("trading halted after repeated cooldowns")

	// ErrStopped is delivered to work items still queued when the
	// execution queue shuts down.
	ErrStopped = errors.New("execution queue stopped")
)

// IsRateLimit reports whether err carries the external rate-limit signal.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsDust reports whether err marks an unroutable dust amount.
func IsDust(err error) bool {
	return errors.Is(err, ErrNoRoute)
}

// IsHalted reports whether err originates from a fatal stop.
func IsHalted(err error) bool {
	return errors.Is(err, ErrHalted)
}

// ClassifyError maps an error to the kind code recorded on trades.
// Returns "" for nil. Anything not otherwise recognized is transient:
// timeouts, malformed payloads and transport failures are retried a bounded
// number of times at the call site and only feed the advisory rate signal.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case IsRateLimit(err):
		return ErrorKindRateLimit
	case IsDust(err):
		return ErrorKindDust
	default:
		return ErrorKindTransient
	}
}
