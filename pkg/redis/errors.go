package redis

import "errors"

var (
	ErrMissingConnectionURL = errors.New("redis: connection URL is empty")
	ErrInvalidConnectionURL = errors.New("redis: invalid connection URL")
	ErrNotReady             = errors.New("redis: server not ready before timeout")
	ErrHealthcheckFailed    = errors.New("redis: healthcheck failed")

	// ErrLockNotAcquired is returned when the lease could not be taken before
	// the context ended or the SET call failed.
	ErrLockNotAcquired = errors.New("redis: lock not acquired")
)
