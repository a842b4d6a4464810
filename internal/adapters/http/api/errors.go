package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrMissingActor = errors.New("missing X-Staff-ID header")
	ErrInFlight     = errors.New("a request with this idempotency key is still in progress")
)
