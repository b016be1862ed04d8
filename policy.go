package syncache

import (
	"regexp"
	"strings"
	"time"
)

// Policy controls freshness and persistence for one Fetch or Prefetch call.
// The zero value is the default policy.
type Policy struct {
	// TTL is how long an entry is served without revalidation. 0 => DefaultTTL.
	TTL time.Duration
	// StaleWindow is the grace period after TTL during which the stale value
	// is served while one background refresh runs. 0 => DefaultStaleWindow,
	// negative disables stale serving.
	StaleWindow time.Duration
	// Persist mirrors the entry into the durable provider and consults it on
	// a memory miss. Ignored when the cache has no Provider.
	Persist bool
	// Key overrides the durable record name. Empty => the cache key.
	Key string
}

func (p Policy) withDefaults() Policy {
	p.TTL = coalesce(p.TTL, DefaultTTL)
	switch {
	case p.StaleWindow == 0:
		p.StaleWindow = DefaultStaleWindow
	case p.StaleWindow < 0:
		p.StaleWindow = 0
	}
	return p
}

func (p Policy) durableName(key string) string {
	return coalesce(p.Key, key)
}

// Pattern selects cache keys for Invalidate.
type Pattern interface {
	Match(key string) bool
	String() string
}

type patternFunc struct {
	desc string
	fn   func(string) bool
}

func (p patternFunc) Match(key string) bool { return p.fn(key) }
func (p patternFunc) String() string        { return p.desc }

// Exact matches a single key.
func Exact(key string) Pattern {
	return patternFunc{desc: "exact(" + key + ")", fn: func(k string) bool { return k == key }}
}

// Prefix matches keys starting with prefix.
func Prefix(prefix string) Pattern {
	return patternFunc{desc: "prefix(" + prefix + ")", fn: func(k string) bool { return strings.HasPrefix(k, prefix) }}
}

// Contains matches keys containing sub anywhere.
func Contains(sub string) Pattern {
	return patternFunc{desc: "contains(" + sub + ")", fn: func(k string) bool { return strings.Contains(k, sub) }}
}

// Regexp matches keys accepted by re.
func Regexp(re *regexp.Regexp) Pattern {
	return patternFunc{desc: "regexp(" + re.String() + ")", fn: re.MatchString}
}

func matchAny(patterns []Pattern, key string) bool {
	for _, p := range patterns {
		if p.Match(key) {
			return true
		}
	}
	return false
}

func describe(patterns []Pattern) string {
	if len(patterns) == 0 {
		return "all"
	}
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}
