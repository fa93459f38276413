package rate

import "errors"

var (
	// ErrRedisUnavailable wraps backend failures from the Redis limiter.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidPolicy is returned for a policy with non-positive limits.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
)
