package syncache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/syncache/codec"
	pr "github.com/unkn0wn-root/syncache/provider"
)

// Producer fetches the authoritative value for a key. It receives a context
// detached from the caller's cancellation, since its result may be shared by
// several callers or cached after the triggering caller has gone away.
type Producer[V any] func(ctx context.Context) (V, error)

// SetCostFunc weighs a durable record for cost-aware providers (Ristretto).
type SetCostFunc func(storageKey string, raw []byte) int64

// Entry is one cached value. Entries are immutable; a refresh replaces the
// entry wholesale.
type Entry[V any] struct {
	Value      V
	InsertedAt time.Time
	Validator  string
}

// Stats is a point-in-time view of the cache tiers.
// Durable figures cover the records this process has written, read or
// visited during a sweep.
type Stats struct {
	MemoryEntries     int
	PendingProducers  int
	DurableEntries    int
	TotalDurableBytes int64
}

// Cache is a read-through cache with stale-while-revalidate semantics,
// per-key producer deduplication and an optional durable mirror.
type Cache[V any] interface {
	// Fetch returns the value for key, invoking producer only when no fresh
	// or stale entry can be served.
	Fetch(ctx context.Context, key string, producer Producer[V], policy Policy) (V, error)
	// Prefetch warms key unless the memory tier already holds an entry for it.
	Prefetch(ctx context.Context, key string, producer Producer[V], policy Policy) error
	// Invalidate removes keys matching any pattern from both tiers;
	// no patterns clears everything. In-flight producers are not cancelled.
	Invalidate(ctx context.Context, patterns ...Pattern) error
	// Peek reads the memory tier without fetching.
	Peek(key string) (Entry[V], bool)
	Stats() Stats
	// Close stops the sweep, drops the memory tier and closes the provider.
	Close(ctx context.Context) error
}

// Options configure a Cache. Everything is optional; a cache without a
// Provider is memory-only and ignores Policy.Persist.
type Options[V any] struct {
	// Durable mirror. Namespace and Codec are required when Provider is set.
	Namespace string // e.g. "salon:appointments"
	Provider  pr.Provider
	Codec     c.Codec[V]

	Logger         Logger           // nil => NopLogger
	Hooks          Hooks            // nil => NopHooks
	Validator      func(V) string   // validator token for fresh values; nil => none
	ComputeSetCost SetCostFunc      // nil => len(raw)
	Now            func() time.Time // nil => time.Now

	SweepInterval time.Duration // 0 => DefaultSweepInterval
	MaxAge        time.Duration // 0 => DefaultMaxAge
	DedupWait     time.Duration // 0 => DefaultDedupWait
	DisableSweep  bool          // default false (periodic sweep runs)
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newManager[V](opts)
}
