package syncache

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDedupTimeout is matched by every *DedupTimeoutError.
	ErrDedupTimeout = errors.New("syncache: timed out waiting for in-flight producer")
	ErrClosed       = errors.New("syncache: cache closed")
	ErrNoProducer   = errors.New("syncache: nil producer")
)

// ProducerError is returned when a producer failed and no cached value could
// be served instead. Every caller sharing the failed call receives the same
// *ProducerError.
type ProducerError struct {
	Key string
	Err error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("syncache: producer for %q failed: %v", e.Key, e.Err)
}

func (e *ProducerError) Unwrap() error { return e.Err }

// DedupTimeoutError is returned to a caller that joined another caller's
// producer and gave up after Options.DedupWait. The producer keeps running.
type DedupTimeoutError struct {
	Key    string
	Waited time.Duration
}

func (e *DedupTimeoutError) Error() string {
	return fmt.Sprintf("syncache: waited %s for in-flight producer of %q", e.Waited, e.Key)
}

func (e *DedupTimeoutError) Is(target error) bool { return target == ErrDedupTimeout }

// InvalidateError reports a durable mirror failure during Invalidate.
// The memory tier is always cleared; MemoryRemoved entries were dropped.
type InvalidateError struct {
	Pattern       string
	MemoryRemoved int
	DurableErr    error
}

func (e *InvalidateError) Error() string {
	return fmt.Sprintf("syncache: invalidate %s: removed %d memory entries; durable mirror failed: %v",
		e.Pattern, e.MemoryRemoved, e.DurableErr)
}

func (e *InvalidateError) Unwrap() error { return e.DurableErr }
