// Package provider defines the byte store behind syncache's durable mirror.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// The mirror is best-effort. A provider may drop, evict or lose entries at any
// time; syncache treats the in-memory tier as the source of truth and only
// trusts a mirror record after promoting it into memory.
//
// Important: the keyspace "swr:<ns>:" is owned by syncache. External code MUST
// NOT write values under it; records that fail to decode are deleted.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. May ignore cost if unsupported.
	// ttl <= 0 means no expiry. Returns ok=false when the store rejected the
	// write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort). Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Scanner is implemented by providers that can enumerate their keys.
// syncache uses it to invalidate and sweep records written by an earlier
// process; without it only records seen by this process are reachable.
type Scanner interface {
	// Scan calls fn for every stored key starting with prefix until fn
	// returns false. Keys added or removed concurrently may or may not be seen.
	Scan(ctx context.Context, prefix string, fn func(key string) bool) error
}
