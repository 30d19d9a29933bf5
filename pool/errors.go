package pool

import "errors"

// Errors are sentinels so callers can test with errors.Is; every error
// returned by this package wraps exactly one of them.
var (
	// ErrUnknownStrategy is returned when a pool is constructed with a
	// strategy outside the closed set.
	ErrUnknownStrategy = errors.New("unknown pooling strategy")

	// ErrInvalidPolicy is returned when exhaustion is requested without
	// active-only filtering. Exhaustion only makes sense when liveness is
	// being checked.
	ErrInvalidPolicy = errors.New("pool can be exhausted only when checking for active endpoints")

	// ErrInvalidEndpoint is returned when an element passed to Add is not
	// an endpoint and cannot be built from its address form.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrNotFound is returned by Remove when no equal endpoint is present.
	ErrNotFound = errors.New("endpoint not in pool")

	// ErrEmptyPool is returned when the pool (or a cursor's snapshot of it)
	// has no endpoints at all.
	ErrEmptyPool = errors.New("no endpoints in pool")

	// ErrUnregisteredConnection is returned when selection is requested for
	// a connection that was never initialized.
	ErrUnregisteredConnection = errors.New("connection not registered with pool")

	// ErrExhausted is returned when an active scan probed every endpoint,
	// found none live, and the pool is configured to exhaust.
	ErrExhausted = errors.New("no active endpoint in pool")
)
