package syncache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A background refresh of a stale entry failed. The caller that
	// triggered it already received the stale value.
	RevalidateFailed(key string, err error)

	// A durable mirror operation failed.
	// op ∈ {"get", "set", "del", "scan"}
	MirrorError(op, storageKey string, err error)

	// A durable record was loaded into the memory tier.
	MirrorPromoted(key string)

	// A durable record was deleted on read.
	// reason ∈ {"corrupt", "value_decode"}
	MirrorSelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// A caller gave up waiting on another caller's producer.
	DedupTimeout(key string, waited time.Duration)

	// A sweep removed entries older than the maximum age.
	Swept(memory, durable int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) RevalidateFailed(string, error)     {}
func (NopHooks) MirrorError(string, string, error)  {}
func (NopHooks) MirrorPromoted(string)              {}
func (NopHooks) MirrorSelfHeal(string, string)      {}
func (NopHooks) ProviderSetRejected(string)         {}
func (NopHooks) DedupTimeout(string, time.Duration) {}
func (NopHooks) Swept(int, int)                     {}
