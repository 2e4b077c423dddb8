package rate

import "errors"

var (
	// ErrRateLimited is returned when a key has spent its budget for the window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter-store failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
