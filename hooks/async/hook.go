// Package asynchook decouples syncache.Hooks from the cache's hot paths.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := syncache.New[Appointment](syncache.Options[Appointment]{
//	    Namespace: "salon:appointments",
//	    Provider:  provider,
//	    Codec:     codec.JSON[Appointment]{},
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/syncache"
)

type Hooks struct {
	inner   syncache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ syncache.Hooks = (*Hooks)(nil)

func New(inner syncache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events raised after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports events discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// send on a queue closed between the check and the send
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) RevalidateFailed(k string, err error) { h.try(func() { h.inner.RevalidateFailed(k, err) }) }
func (h *Hooks) MirrorPromoted(k string)              { h.try(func() { h.inner.MirrorPromoted(k) }) }
func (h *Hooks) MirrorSelfHeal(k, r string)           { h.try(func() { h.inner.MirrorSelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string)         { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) Swept(m, d int)                       { h.try(func() { h.inner.Swept(m, d) }) }
func (h *Hooks) MirrorError(op, k string, err error) {
	h.try(func() { h.inner.MirrorError(op, k, err) })
}
func (h *Hooks) DedupTimeout(k string, waited time.Duration) {
	h.try(func() { h.inner.DedupTimeout(k, waited) })
}
