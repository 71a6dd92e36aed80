package cache

import "time"

// BytesCache stores marshaled API responses with TTL. Implementations must be
// safe for concurrent use by request handlers.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
