// Package batch confirms large sets of operations in fixed-size chunks,
// strictly one chunk after another, with per-item status, aggregate progress,
// cooperative cancellation and retry of the failed subset.
package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/syncache"
)

const (
	DefaultBatchSize = 10
	DefaultDelay     = 100 * time.Millisecond
)

type Kind string

const (
	KindAdd    Kind = "add"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Status of one operation: pending -> processing -> completed | failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// State of a run: running -> completed | cancelled | aborted.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateAborted   State = "aborted"
)

type Operation[P any] struct {
	ID      string
	Kind    Kind
	Payload P
	Status  Status
	Err     error // *ItemError once failed
}

// Progress is derived from the operations on every call.
type Progress struct {
	Total      int
	Completed  int
	Failed     int
	Percentage float64 // (Completed+Failed)/Total*100; 0 for an empty run
}

// Confirm is the confirming action. It receives a whole chunk at once and
// returns one result per payload, in order.
type Confirm[P, R any] func(ctx context.Context, chunk []P) ([]R, error)

type Options[P, R any] struct {
	BatchSize   int           // 0 => DefaultBatchSize
	Delay       time.Duration // pause between chunks; 0 => DefaultDelay, negative => none
	StopOnError bool          // abort on the first failed chunk; default continues

	OnProgress     func(Progress)                  // after every chunk settles
	OnItemComplete func(op Operation[P], result R) // result is zero when confirm returned fewer results
	OnItemError    func(op Operation[P], err error)
	OnComplete     func(results []R, p Progress) // run finished without cancel or abort
	OnError        func(err error)               // run aborted

	Logger syncache.Logger // nil => NopLogger
	NewID  func() string   // operation ids; nil => uuid
}

// Orchestrator drives one run at a time. Operations of the last run stay
// available until Clear or the next run.
type Orchestrator[P, R any] struct {
	opts Options[P, R]

	cancelled atomic.Bool
	wake      chan struct{} // interrupts the inter-chunk pause on Cancel

	mu    sync.Mutex
	ops   []Operation[P]
	state State
}

func New[P, R any](opts Options[P, R]) *Orchestrator[P, R] {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Delay == 0 {
		opts.Delay = DefaultDelay
	}
	opts.Logger = syncache.LoggerOr(opts.Logger)
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Orchestrator[P, R]{opts: opts, state: StateIdle, wake: make(chan struct{}, 1)}
}

// Process confirms items chunk by chunk and returns the results of every
// successful chunk. Failed chunks are recorded on their operations; with
// StopOnError the first one ends the run with an *AbortedError. A cancelled
// run returns the results so far with ErrCancelled (or the context's error).
func (o *Orchestrator[P, R]) Process(ctx context.Context, items []P, kind Kind, confirm Confirm[P, R]) ([]R, error) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.ops = make([]Operation[P], len(items))
	for i, it := range items {
		o.ops[i] = Operation[P]{ID: o.opts.NewID(), Kind: kind, Payload: it, Status: StatusPending}
	}
	o.state = StateRunning
	o.cancelled.Store(false)
	select {
	case <-o.wake:
	default:
	}
	o.mu.Unlock()

	return o.run(ctx, len(items), confirm)
}

// Cancel stops the current run before its next chunk. A chunk already being
// confirmed runs to completion.
func (o *Orchestrator[P, R]) Cancel() {
	o.cancelled.Store(true)
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Retry runs the operations that failed in the last run as a new batch.
func (o *Orchestrator[P, R]) Retry(ctx context.Context, confirm Confirm[P, R]) ([]R, error) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	var (
		payloads []P
		kind     Kind
	)
	for _, op := range o.ops {
		if op.Status == StatusFailed {
			payloads = append(payloads, op.Payload)
			kind = op.Kind
		}
	}
	o.mu.Unlock()

	if len(payloads) == 0 {
		return nil, ErrNothingToRetry
	}
	return o.Process(ctx, payloads, kind, confirm)
}

// Clear discards the operations of the last run.
func (o *Orchestrator[P, R]) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		return ErrRunInProgress
	}
	o.ops = nil
	o.state = StateIdle
	return nil
}

// Operations returns a copy of the current run's operations.
func (o *Orchestrator[P, R]) Operations() []Operation[P] {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Operation[P], len(o.ops))
	copy(out, o.ops)
	return out
}

func (o *Orchestrator[P, R]) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return progressOf(o.ops)
}

func (o *Orchestrator[P, R]) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator[P, R]) run(ctx context.Context, n int, confirm Confirm[P, R]) ([]R, error) {
	var results []R
	size := o.opts.BatchSize
	for chunk, start := 0, 0; start < n; chunk, start = chunk+1, start+size {
		if err := o.boundary(ctx, start > 0); err != nil {
			o.opts.Logger.Info("batch cancelled", syncache.Fields{"chunk": chunk, "remaining": n - start, "reason": err.Error()})
			return results, o.finish(StateCancelled, results, err)
		}

		end := min(start+size, n)
		out, err := confirm(ctx, o.begin(start, end))
		if err != nil {
			o.opts.Logger.Warn("batch chunk failed", syncache.Fields{"chunk": chunk, "size": end - start, "err": err})
			o.fail(chunk, start, end, err)
			o.progressed()
			if o.opts.StopOnError {
				return results, o.finish(StateAborted, results, &AbortedError{Chunk: chunk, Err: err})
			}
			continue
		}
		results = append(results, out...)
		o.complete(start, end, out)
		o.progressed()
	}
	return results, o.finish(StateCompleted, results, nil)
}

// boundary is crossed before every chunk. After the first it waits out the
// configured delay unless the run is cancelled meanwhile.
func (o *Orchestrator[P, R]) boundary(ctx context.Context, pause bool) error {
	if pause && o.opts.Delay > 0 && !o.cancelled.Load() {
		t := time.NewTimer(o.opts.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-o.wake:
		case <-ctx.Done():
		}
	}
	if o.cancelled.Load() {
		return ErrCancelled
	}
	return ctx.Err()
}

func (o *Orchestrator[P, R]) begin(start, end int) []P {
	o.mu.Lock()
	defer o.mu.Unlock()
	payloads := make([]P, 0, end-start)
	for i := start; i < end; i++ {
		o.ops[i].Status = StatusProcessing
		payloads = append(payloads, o.ops[i].Payload)
	}
	return payloads
}

func (o *Orchestrator[P, R]) complete(start, end int, out []R) {
	o.mu.Lock()
	done := make([]Operation[P], 0, end-start)
	for i := start; i < end; i++ {
		o.ops[i].Status = StatusCompleted
		done = append(done, o.ops[i])
	}
	o.mu.Unlock()

	if o.opts.OnItemComplete == nil {
		return
	}
	for i, op := range done {
		var r R
		if i < len(out) {
			r = out[i]
		}
		o.opts.OnItemComplete(op, r)
	}
}

func (o *Orchestrator[P, R]) fail(chunk, start, end int, err error) {
	o.mu.Lock()
	failed := make([]Operation[P], 0, end-start)
	for i := start; i < end; i++ {
		o.ops[i].Status = StatusFailed
		o.ops[i].Err = &ItemError{OpID: o.ops[i].ID, Chunk: chunk, Err: err}
		failed = append(failed, o.ops[i])
	}
	o.mu.Unlock()

	if o.opts.OnItemError == nil {
		return
	}
	for _, op := range failed {
		o.opts.OnItemError(op, op.Err)
	}
}

func (o *Orchestrator[P, R]) progressed() {
	if o.opts.OnProgress != nil {
		o.opts.OnProgress(o.Progress())
	}
}

func (o *Orchestrator[P, R]) finish(state State, results []R, err error) error {
	o.mu.Lock()
	o.state = state
	p := progressOf(o.ops)
	o.mu.Unlock()

	switch state {
	case StateCompleted:
		if o.opts.OnComplete != nil {
			o.opts.OnComplete(results, p)
		}
	case StateAborted:
		if o.opts.OnError != nil {
			o.opts.OnError(err)
		}
	}
	return err
}

func progressOf[P any](ops []Operation[P]) Progress {
	p := Progress{Total: len(ops)}
	for _, op := range ops {
		switch op.Status {
		case StatusCompleted:
			p.Completed++
		case StatusFailed:
			p.Failed++
		}
	}
	if p.Total > 0 {
		p.Percentage = float64(p.Completed+p.Failed) / float64(p.Total) * 100
	}
	return p
}
