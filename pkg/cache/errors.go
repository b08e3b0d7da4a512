package cache

import "errors"

// Sentinel errors for cache operations. The read-through driver records and logs
// them; none of them ever reaches a query caller.
var (
	ErrCacheDisabled        = errors.New("redis cache is disabled")
	ErrClientNotInitialized = errors.New("redis client not initialized")

	// ErrKeyNotFound is a miss, not a failure
	ErrKeyNotFound = errors.New("cache key not found")

	ErrConnectionFailed    = errors.New("redis connection failed")
	ErrSerializationFailed = errors.New("cache serialization failed")
)

// IsCacheDisabled checks if an error is ErrCacheDisabled
func IsCacheDisabled(err error) bool {
	return errors.Is(err, ErrCacheDisabled)
}

// IsKeyNotFound checks if an error is ErrKeyNotFound
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsConnectionFailed checks if an error is ErrConnectionFailed
func IsConnectionFailed(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// IsSerializationFailed checks if an error is ErrSerializationFailed
func IsSerializationFailed(err error) bool {
	return errors.Is(err, ErrSerializationFailed)
}
