package syncache

import (
	"sync"
	"time"
)

// entryStore is the memory tier: a key-indexed table of immutable entries.
type entryStore[V any] struct {
	mu sync.RWMutex
	m  map[string]Entry[V]
}

func newEntryStore[V any]() *entryStore[V] {
	return &entryStore[V]{m: make(map[string]Entry[V])}
}

func (s *entryStore[V]) get(key string) (Entry[V], bool) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	return e, ok
}

func (s *entryStore[V]) set(key string, e Entry[V]) {
	s.mu.Lock()
	s.m[key] = e
	s.mu.Unlock()
}

// setIfAbsent is used when promoting durable records so a concurrent fresh
// write is never overwritten by an older mirror copy.
func (s *entryStore[V]) setIfAbsent(key string, e Entry[V]) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[key]; ok {
		return cur, false
	}
	s.m[key] = e
	return e, true
}

func (s *entryStore[V]) removeMatching(patterns []Pattern) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(patterns) == 0 {
		n := len(s.m)
		s.m = make(map[string]Entry[V])
		return n
	}
	n := 0
	for k := range s.m {
		if matchAny(patterns, k) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

func (s *entryStore[V]) removeOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.m {
		if e.InsertedAt.Before(cutoff) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

func (s *entryStore[V]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
