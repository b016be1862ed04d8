package syncache

import (
	"context"
	"errors"
	"sync"
	"time"

	c "github.com/unkn0wn-root/syncache/codec"
	"github.com/unkn0wn-root/syncache/internal/util"
	"github.com/unkn0wn-root/syncache/internal/wire"
	pr "github.com/unkn0wn-root/syncache/provider"
)

const storagePrefix = "swr"

type indexEntry struct {
	key  string // cache key; empty when only known from a scan
	size int
}

// mirror is the durable tier. Every operation is best-effort: failures are
// logged and reported through Hooks, and reads degrade to a miss.
type mirror[V any] struct {
	ns       string
	provider pr.Provider
	scanner  pr.Scanner // nil when the provider cannot enumerate
	codec    c.Codec[V]
	log      Logger
	hooks    Hooks
	cost     SetCostFunc
	ttl      time.Duration

	mu    sync.Mutex
	index map[string]indexEntry // storage key -> what this process knows of it
}

func newMirror[V any](ns string, p pr.Provider, codec c.Codec[V], log Logger, hooks Hooks, cost SetCostFunc, ttl time.Duration) *mirror[V] {
	m := &mirror[V]{
		ns:       ns,
		provider: p,
		codec:    codec,
		log:      log,
		hooks:    hooks,
		cost:     cost,
		ttl:      ttl,
		index:    make(map[string]indexEntry),
	}
	if s, ok := p.(pr.Scanner); ok {
		m.scanner = s
	}
	return m
}

func (m *mirror[V]) storageKey(name string) string {
	return util.StorageKey(storagePrefix, m.ns, name)
}

func (m *mirror[V]) load(ctx context.Context, key, name string) (Entry[V], bool) {
	var zero Entry[V]
	sk := m.storageKey(name)
	raw, ok, err := m.provider.Get(ctx, sk)
	if err != nil {
		m.fail("get", sk, err)
		return zero, false
	}
	if !ok {
		m.forget(sk)
		return zero, false
	}
	rec, err := wire.DecodeRecord(raw)
	if err != nil {
		m.selfHeal(ctx, sk, "corrupt")
		return zero, false
	}
	v, err := m.codec.Decode(rec.Payload)
	if err != nil {
		m.selfHeal(ctx, sk, "value_decode")
		return zero, false
	}
	m.remember(sk, key, len(raw))
	return Entry[V]{Value: v, InsertedAt: rec.InsertedAt, Validator: rec.Validator}, true
}

func (m *mirror[V]) store(ctx context.Context, key, name string, e Entry[V]) {
	sk := m.storageKey(name)
	payload, err := m.codec.Encode(e.Value)
	if err != nil {
		m.fail("set", sk, err)
		return
	}
	raw, err := wire.EncodeRecord(wire.Record{InsertedAt: e.InsertedAt, Validator: e.Validator, Payload: payload})
	if err != nil {
		m.fail("set", sk, err)
		return
	}
	ok, err := m.provider.Set(ctx, sk, raw, m.cost(sk, raw), m.ttl)
	if err != nil {
		m.fail("set", sk, err)
		return
	}
	if !ok {
		m.log.Debug("durable set rejected by provider (pressure)", Fields{"key": key})
		m.hooks.ProviderSetRejected(sk)
		m.forget(sk)
		return
	}
	m.remember(sk, key, len(raw))
}

// remove deletes durable records whose cache key or durable name matches any
// pattern; no patterns removes every record in the namespace.
func (m *mirror[V]) remove(ctx context.Context, patterns []Pattern) (int, error) {
	keys, scanErr := m.keys(ctx)

	var errs []error
	if scanErr != nil {
		errs = append(errs, scanErr)
	}
	removed := 0
	for sk, ie := range keys {
		if len(patterns) > 0 && !m.matches(patterns, sk, ie) {
			continue
		}
		if err := m.provider.Del(ctx, sk); err != nil {
			m.fail("del", sk, err)
			errs = append(errs, err)
			continue
		}
		m.forget(sk)
		removed++
	}
	return removed, errors.Join(errs...)
}

// sweep deletes records inserted before cutoff, plus undecodable ones, and
// refreshes the index with every record it visits.
func (m *mirror[V]) sweep(ctx context.Context, cutoff time.Time) (int, error) {
	keys, scanErr := m.keys(ctx)

	var errs []error
	if scanErr != nil {
		errs = append(errs, scanErr)
	}
	removed := 0
	for sk, ie := range keys {
		raw, ok, err := m.provider.Get(ctx, sk)
		if err != nil {
			m.fail("get", sk, err)
			errs = append(errs, err)
			continue
		}
		if !ok {
			m.forget(sk)
			continue
		}
		at, err := wire.InsertedAt(raw)
		if err == nil && !at.Before(cutoff) {
			m.remember(sk, ie.key, len(raw))
			continue
		}
		if err := m.provider.Del(ctx, sk); err != nil {
			m.fail("del", sk, err)
			errs = append(errs, err)
			continue
		}
		m.forget(sk)
		removed++
	}
	return removed, errors.Join(errs...)
}

// keys returns the union of indexed records and, when supported, every
// record the provider holds under the namespace.
func (m *mirror[V]) keys(ctx context.Context) (map[string]indexEntry, error) {
	m.mu.Lock()
	out := make(map[string]indexEntry, len(m.index))
	for sk, ie := range m.index {
		out[sk] = ie
	}
	m.mu.Unlock()

	if m.scanner == nil {
		return out, nil
	}
	err := m.scanner.Scan(ctx, util.StoragePrefix(storagePrefix, m.ns), func(sk string) bool {
		if _, ok := out[sk]; !ok {
			out[sk] = indexEntry{}
		}
		return true
	})
	if err != nil {
		m.fail("scan", util.StoragePrefix(storagePrefix, m.ns), err)
	}
	return out, err
}

func (m *mirror[V]) matches(patterns []Pattern, sk string, ie indexEntry) bool {
	if ie.key != "" && matchAny(patterns, ie.key) {
		return true
	}
	name, ok := util.LogicalKey(storagePrefix, m.ns, sk)
	return ok && matchAny(patterns, name)
}

func (m *mirror[V]) stats() (int, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, ie := range m.index {
		total += int64(ie.size)
	}
	return len(m.index), total
}

func (m *mirror[V]) remember(sk, key string, size int) {
	m.mu.Lock()
	if key == "" {
		key = m.index[sk].key
	}
	m.index[sk] = indexEntry{key: key, size: size}
	m.mu.Unlock()
}

func (m *mirror[V]) forget(sk string) {
	m.mu.Lock()
	delete(m.index, sk)
	m.mu.Unlock()
}

func (m *mirror[V]) selfHeal(ctx context.Context, sk, reason string) {
	m.log.Debug("dropping undecodable durable record", Fields{"storageKey": sk, "reason": reason})
	m.hooks.MirrorSelfHeal(sk, reason)
	if err := m.provider.Del(ctx, sk); err != nil {
		m.fail("del", sk, err)
	}
	m.forget(sk)
}

func (m *mirror[V]) fail(op, sk string, err error) {
	m.log.Warn("durable mirror error", Fields{"op": op, "storageKey": sk, "err": err})
	m.hooks.MirrorError(op, sk, err)
}

func (m *mirror[V]) close(ctx context.Context) error {
	m.mu.Lock()
	m.index = make(map[string]indexEntry)
	m.mu.Unlock()
	return m.provider.Close(ctx)
}
