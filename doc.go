// Package syncache is the client-side data synchronization core: a read-through
// cache with stale-while-revalidate semantics, plus (in subpackages) an
// optimistic mutation engine and a batch orchestrator.
//
// Components:
//   - Entry store: in-memory table of immutable entries (value, insertedAt, validator).
//   - Durable mirror: optional best-effort copy of entries in a Provider
//     (Redis, BigCache, Ristretto), encoded with a Codec[V]. Memory is always
//     the source of truth; a durable hit is promoted into memory before use.
//   - Cache manager: Fetch/Prefetch/Invalidate/Stats with per-key producer dedup
//     and a periodic age-based sweep of both tiers.
//   - optimistic: speculative list state with exact rollback on failed confirmation.
//   - batch: chunked, sequential confirmation with progress, cancel and retry.
//
// Freshness, for an entry of age a under Policy{TTL, StaleWindow}:
//
//	a < TTL                   - served, producer not called
//	a < TTL + StaleWindow     - served stale, one background refresh started
//	otherwise / no entry      - caller waits on the (shared) producer
//
// Keys:
//
//	swr:<ns>:<key>  - durable records (Policy.Key overrides <key>)
package syncache
