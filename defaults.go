package syncache

import "time"

// Defaults applied when the corresponding Policy or Options field is zero.
const (
	DefaultTTL           = 5 * time.Minute
	DefaultStaleWindow   = time.Minute
	DefaultSweepInterval = 5 * time.Minute
	DefaultMaxAge        = 24 * time.Hour
	DefaultDedupWait     = 10 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
