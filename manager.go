package syncache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

type manager[V any] struct {
	store  *entryStore[V]
	mirror *mirror[V] // nil => memory-only
	log    Logger
	hooks  Hooks
	now    func() time.Time

	validator     func(V) string
	sweepInterval time.Duration
	maxAge        time.Duration
	dedupWait     time.Duration

	// producers in flight, one per key (singleflight enforces the limit;
	// pending mirrors it so callers can tell originators from joiners)
	sf      singleflight.Group
	pmu     sync.Mutex
	pending map[string]struct{}

	closed atomic.Bool

	// background cleanup
	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

func newManager[V any](opts Options[V]) (*manager[V], error) {
	if opts.Provider != nil {
		if opts.Namespace == "" {
			return nil, fmt.Errorf("syncache: namespace is required with a provider")
		}
		if opts.Codec == nil {
			return nil, fmt.Errorf("syncache: codec is required with a provider")
		}
	}

	m := &manager[V]{
		store:     newEntryStore[V](),
		validator: opts.Validator,
		pending:   make(map[string]struct{}),
	}

	m.log = LoggerOr(opts.Logger)
	m.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	m.sweepInterval = coalesce[time.Duration](opts.SweepInterval, DefaultSweepInterval)
	m.maxAge = coalesce[time.Duration](opts.MaxAge, DefaultMaxAge)
	m.dedupWait = coalesce[time.Duration](opts.DedupWait, DefaultDedupWait)

	m.now = opts.Now
	if m.now == nil {
		m.now = time.Now
	}

	if opts.Provider != nil {
		cost := opts.ComputeSetCost
		if cost == nil {
			cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
		}
		m.mirror = newMirror[V](opts.Namespace, opts.Provider, opts.Codec, m.log, m.hooks, cost, m.maxAge)
	}

	if !opts.DisableSweep {
		m.ticker = time.NewTicker(m.sweepInterval)
		m.stopCh = make(chan struct{})
		m.closeWg.Add(1)
		go m.sweepLoop()
	}
	return m, nil
}

func (m *manager[V]) Fetch(ctx context.Context, key string, producer Producer[V], policy Policy) (V, error) {
	var zero V
	if m.closed.Load() {
		return zero, ErrClosed
	}
	if producer == nil {
		return zero, ErrNoProducer
	}
	p := policy.withDefaults()
	now := m.now()

	e, ok := m.store.get(key)
	if !ok && p.Persist && m.mirror != nil {
		e, ok = m.promote(ctx, key, p, now)
	}
	if ok {
		age := now.Sub(e.InsertedAt)
		if age < p.TTL {
			return e.Value, nil
		}
		if age < p.TTL+p.StaleWindow {
			m.revalidate(ctx, key, producer, p)
			return e.Value, nil
		}
	}
	return m.load(ctx, key, producer, p)
}

func (m *manager[V]) Prefetch(ctx context.Context, key string, producer Producer[V], policy Policy) error {
	if _, ok := m.store.get(key); ok {
		return nil
	}
	_, err := m.Fetch(ctx, key, producer, policy)
	return err
}

func (m *manager[V]) Invalidate(ctx context.Context, patterns ...Pattern) error {
	removed := m.store.removeMatching(patterns)
	if m.mirror == nil {
		m.log.Debug("invalidated", Fields{"pattern": describe(patterns), "memory": removed})
		return nil
	}
	durable, err := m.mirror.remove(ctx, patterns)
	m.log.Debug("invalidated", Fields{"pattern": describe(patterns), "memory": removed, "durable": durable})
	if err != nil {
		return &InvalidateError{Pattern: describe(patterns), MemoryRemoved: removed, DurableErr: err}
	}
	return nil
}

func (m *manager[V]) Peek(key string) (Entry[V], bool) {
	return m.store.get(key)
}

func (m *manager[V]) Stats() Stats {
	s := Stats{MemoryEntries: m.store.len()}
	m.pmu.Lock()
	s.PendingProducers = len(m.pending)
	m.pmu.Unlock()
	if m.mirror != nil {
		s.DurableEntries, s.TotalDurableBytes = m.mirror.stats()
	}
	return s
}

func (m *manager[V]) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		if m.stopCh != nil {
			close(m.stopCh)
			m.closeWg.Wait()
			if m.ticker != nil {
				m.ticker.Stop()
			}
		}
		m.store.removeMatching(nil)
		if m.mirror != nil {
			err = m.mirror.close(ctx)
		}
	})
	return err
}

// promote loads a durable record into the memory tier. Records older than
// TTL+StaleWindow are not servable and are left for the producer to replace.
func (m *manager[V]) promote(ctx context.Context, key string, p Policy, now time.Time) (Entry[V], bool) {
	e, ok := m.mirror.load(ctx, key, p.durableName(key))
	if !ok {
		return e, false
	}
	if now.Sub(e.InsertedAt) >= p.TTL+p.StaleWindow {
		return e, false
	}
	cur, stored := m.store.setIfAbsent(key, e)
	if stored {
		m.hooks.MirrorPromoted(key)
		m.log.Debug("promoted durable record", Fields{"key": key})
	}
	return cur, true
}

// revalidate starts one background refresh unless a producer for key is
// already running. The caller is never told about its outcome.
func (m *manager[V]) revalidate(ctx context.Context, key string, producer Producer[V], p Policy) {
	if m.isPending(key) {
		return
	}
	ch := m.sf.DoChan(key, m.produce(context.WithoutCancel(ctx), key, producer, p))
	go func() {
		r := <-ch
		if r.Err != nil {
			m.log.Warn("background revalidation failed", Fields{"key": key, "err": r.Err})
			m.hooks.RevalidateFailed(key, r.Err)
		}
	}()
}

// load runs (or joins) the producer for key and waits for it. Joiners give
// up after dedupWait; the originator waits as long as its context allows.
func (m *manager[V]) load(ctx context.Context, key string, producer Producer[V], p Policy) (V, error) {
	var zero V
	joined := m.isPending(key)
	ch := m.sf.DoChan(key, m.produce(context.WithoutCancel(ctx), key, producer, p))

	var timeout <-chan time.Time
	if joined {
		t := time.NewTimer(m.dedupWait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(Entry[V]).Value, nil
	case <-timeout:
		m.log.Warn("gave up waiting for in-flight producer", Fields{"key": key, "waited": m.dedupWait})
		m.hooks.DedupTimeout(key, m.dedupWait)
		return zero, &DedupTimeoutError{Key: key, Waited: m.dedupWait}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (m *manager[V]) produce(ctx context.Context, key string, producer Producer[V], p Policy) func() (any, error) {
	return func() (any, error) {
		m.markPending(key)
		v, err := producer(ctx)
		if err != nil {
			m.clearPending(key)
			return nil, &ProducerError{Key: key, Err: err}
		}
		e := Entry[V]{Value: v, InsertedAt: m.now()}
		if m.validator != nil {
			e.Validator = m.validator(v)
		}
		// the entry must be visible before the key stops counting as pending
		m.store.set(key, e)
		m.clearPending(key)

		if p.Persist && m.mirror != nil {
			m.mirror.store(ctx, key, p.durableName(key), e)
		}
		return e, nil
	}
}

func (m *manager[V]) isPending(key string) bool {
	m.pmu.Lock()
	_, ok := m.pending[key]
	m.pmu.Unlock()
	return ok
}

func (m *manager[V]) markPending(key string) {
	m.pmu.Lock()
	m.pending[key] = struct{}{}
	m.pmu.Unlock()
}

func (m *manager[V]) clearPending(key string) {
	m.pmu.Lock()
	delete(m.pending, key)
	m.pmu.Unlock()
}

func (m *manager[V]) sweepLoop() {
	defer m.closeWg.Done()
	for {
		select {
		case <-m.ticker.C:
			m.sweep(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// sweep drops entries older than maxAge from both tiers, regardless of the
// policy they were fetched with.
func (m *manager[V]) sweep(ctx context.Context) {
	cutoff := m.now().Add(-m.maxAge)
	memory := m.store.removeOlderThan(cutoff)
	durable := 0
	if m.mirror != nil {
		var err error
		durable, err = m.mirror.sweep(ctx, cutoff)
		if err != nil {
			m.log.Warn("durable sweep incomplete", Fields{"err": err})
		}
	}
	if memory > 0 || durable > 0 {
		m.log.Debug("sweep removed aged entries", Fields{"memory": memory, "durable": durable})
		m.hooks.Swept(memory, durable)
	}
}
