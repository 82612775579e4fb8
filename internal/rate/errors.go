package rate

import "errors"

var (
	// ErrRateLimited is returned once a username has no failures left in
	// the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis command failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
