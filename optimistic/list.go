package optimistic

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/syncache"
)

// Options configure a List.
type Options[T any] struct {
	Identity[T]

	NewTempID func() string          // nil => "temp-" + uuid
	OnError   func(op Op, err error) // called after every rollback; nil => none
	Logger    syncache.Logger        // nil => NopLogger
}

// List holds a speculative view of a collection. Every mutation applies its
// action at once, then holds the list's mutation slot until the confirming
// action settles; a failed confirmation restores the snapshot taken before
// the action was applied.
//
// T should be a value type: snapshots are shallow copies, and Identity
// functions must return modified copies rather than mutate their argument.
type List[T any] struct {
	id        Identity[T]
	newTempID func() string
	onError   func(Op, error)
	log       syncache.Logger

	mu    sync.RWMutex
	items []T

	slot    chan struct{} // one in-flight mutation per list
	pending atomic.Int32
}

func New[T any](initial []T, opts Options[T]) (*List[T], error) {
	if opts.ID == nil {
		return nil, fmt.Errorf("optimistic: Identity.ID is required")
	}
	l := &List[T]{
		id:        opts.Identity,
		newTempID: opts.NewTempID,
		onError:   opts.OnError,
		items:     clone(initial),
		slot:      make(chan struct{}, 1),
	}
	if l.newTempID == nil {
		l.newTempID = func() string { return "temp-" + uuid.NewString() }
	}
	l.log = syncache.LoggerOr(opts.Logger)
	return l, nil
}

// Items returns a copy of the current speculative view.
func (l *List[T]) Items() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return clone(l.items)
}

func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// IDOf returns item's identity as the list sees it.
func (l *List[T]) IDOf(item T) string { return l.id.ID(item) }

// Pending reports mutations queued or awaiting confirmation.
func (l *List[T]) Pending() int { return int(l.pending.Load()) }

// Replace installs authoritative state, e.g. after a fresh fetch. It waits
// for the in-flight mutation, if any, so a later rollback cannot undo it.
func (l *List[T]) Replace(ctx context.Context, items []T) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	l.mu.Lock()
	l.items = clone(items)
	l.mu.Unlock()
	return nil
}

// Add appends item under a temporary id, confirms it, and swaps the
// placeholder for the authoritative item confirm returns.
func (l *List[T]) Add(ctx context.Context, item T, confirm func(context.Context, T) (T, error)) (T, error) {
	if l.id.WithID == nil {
		var zero T
		return zero, fmt.Errorf("optimistic: Identity.WithID is required for %s", OpAdd)
	}
	tempID := l.newTempID()
	temp := l.id.WithID(item, tempID)

	var out T
	err := l.mutate(ctx, OpAdd,
		func([]T) (Action[T], error) { return Add[T]{Item: temp}, nil },
		func(ctx context.Context) (Action[T], error) {
			v, err := confirm(ctx, temp)
			if err != nil {
				return nil, err
			}
			out = v
			return Update[T]{ID: tempID, Item: v}, nil
		})
	return out, err
}

// Update replaces the item with item's id, then reconciles with the
// authoritative copy confirm returns.
func (l *List[T]) Update(ctx context.Context, item T, confirm func(context.Context, T) (T, error)) (T, error) {
	key := l.id.ID(item)
	var out T
	err := l.mutate(ctx, OpUpdate,
		func(items []T) (Action[T], error) {
			if l.indexOf(items, key) < 0 {
				return nil, fmt.Errorf("%w: %q", ErrUnknownID, key)
			}
			return Update[T]{ID: key, Item: item}, nil
		},
		func(ctx context.Context) (Action[T], error) {
			v, err := confirm(ctx, item)
			if err != nil {
				return nil, err
			}
			out = v
			return Update[T]{ID: key, Item: v}, nil
		})
	return out, err
}

func (l *List[T]) Remove(ctx context.Context, id string, confirm func(context.Context, string) error) error {
	return l.mutate(ctx, OpRemove,
		func(items []T) (Action[T], error) {
			if l.indexOf(items, id) < 0 {
				return nil, fmt.Errorf("%w: %q", ErrUnknownID, id)
			}
			return Remove[T]{ID: id}, nil
		},
		func(ctx context.Context) (Action[T], error) {
			return nil, confirm(ctx, id)
		})
}

// Reorder moves the item at from to to. confirm receives the new order.
func (l *List[T]) Reorder(ctx context.Context, from, to int, confirm func(context.Context, []T) error) error {
	var ordered []T
	return l.mutate(ctx, OpReorder,
		func(items []T) (Action[T], error) {
			if !inRange(from, len(items)) || !inRange(to, len(items)) {
				return nil, fmt.Errorf("%w: move %d -> %d in list of %d", ErrIndexOutOfRange, from, to, len(items))
			}
			a := Reorder[T]{From: from, To: to}
			ordered = Reduce(items, Action[T](a), l.id)
			return a, nil
		},
		func(ctx context.Context) (Action[T], error) {
			return nil, confirm(ctx, ordered)
		})
}

// BatchAdd appends items under temporary ids in one transition. confirm
// returns the authoritative items in the same order; placeholders without a
// counterpart are dropped.
func (l *List[T]) BatchAdd(ctx context.Context, items []T, confirm func(context.Context, []T) ([]T, error)) ([]T, error) {
	if l.id.WithID == nil {
		return nil, fmt.Errorf("optimistic: Identity.WithID is required for %s", OpBatchAdd)
	}
	temps := make([]T, len(items))
	tempIDs := make([]string, len(items))
	for i, it := range items {
		tempIDs[i] = l.newTempID()
		temps[i] = l.id.WithID(it, tempIDs[i])
	}

	var out []T
	err := l.mutate(ctx, OpBatchAdd,
		func([]T) (Action[T], error) { return BatchAdd[T]{Items: temps}, nil },
		func(ctx context.Context) (Action[T], error) {
			vs, err := confirm(ctx, clone(temps))
			if err != nil {
				return nil, err
			}
			out = vs
			return reconcileByIndex(tempIDs, vs), nil
		})
	return out, err
}

func (l *List[T]) BatchRemove(ctx context.Context, ids []string, confirm func(context.Context, []string) error) error {
	ids = append([]string(nil), ids...)
	return l.mutate(ctx, OpBatchRemove,
		func([]T) (Action[T], error) { return BatchRemove[T]{IDs: ids}, nil },
		func(ctx context.Context) (Action[T], error) {
			return nil, confirm(ctx, ids)
		})
}

// BatchUpdate replaces every item sharing an id with one of items, then
// reconciles with the authoritative items confirm returns, matched by index.
func (l *List[T]) BatchUpdate(ctx context.Context, items []T, confirm func(context.Context, []T) ([]T, error)) ([]T, error) {
	items = clone(items)
	keys := make([]string, len(items))
	patch := make(map[string]T, len(items))
	for i, it := range items {
		keys[i] = l.id.ID(it)
		patch[keys[i]] = it
	}

	var out []T
	err := l.mutate(ctx, OpBatchUpdate,
		func([]T) (Action[T], error) { return BatchUpdate[T]{Items: patch}, nil },
		func(ctx context.Context) (Action[T], error) {
			vs, err := confirm(ctx, items)
			if err != nil {
				return nil, err
			}
			out = vs
			n := min(len(keys), len(vs))
			repl := make(map[string]T, n)
			for i := 0; i < n; i++ {
				repl[keys[i]] = vs[i]
			}
			return BatchUpdate[T]{Items: repl}, nil
		})
	return out, err
}

// mutate runs the confirmation lifecycle. prepare validates against the
// current state and returns the speculative action; confirm returns the
// reconciling action, or nil when there is nothing to reconcile.
func (l *List[T]) mutate(
	ctx context.Context,
	op Op,
	prepare func(items []T) (Action[T], error),
	confirm func(ctx context.Context) (Action[T], error),
) error {
	l.pending.Add(1)
	defer l.pending.Add(-1)

	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()

	l.mu.Lock()
	action, err := prepare(l.items)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	baseline := l.items
	l.items = Reduce(baseline, action, l.id)
	l.mu.Unlock()

	settle, err := confirm(ctx)

	l.mu.Lock()
	if err != nil {
		l.items = baseline
		l.mu.Unlock()
		cerr := &ConfirmationError{Op: op, Err: err}
		l.log.Warn("rolled back speculative mutation", syncache.Fields{"op": string(op), "err": err})
		if l.onError != nil {
			l.onError(op, cerr)
		}
		return cerr
	}
	if settle != nil {
		l.items = Reduce(l.items, settle, l.id)
	}
	l.mu.Unlock()
	return nil
}

func (l *List[T]) acquire(ctx context.Context) error {
	select {
	case l.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *List[T]) release() { <-l.slot }

func (l *List[T]) indexOf(items []T, id string) int {
	for i, it := range items {
		if l.id.ID(it) == id {
			return i
		}
	}
	return -1
}

// reconcileByIndex pairs placeholders with authoritative items by position.
func reconcileByIndex[T any](tempIDs []string, vs []T) Action[T] {
	repl := make(map[string]T, len(vs))
	var orphans []string
	for i, tid := range tempIDs {
		if i < len(vs) {
			repl[tid] = vs[i]
		} else {
			orphans = append(orphans, tid)
		}
	}
	return reconcile[T]{update: BatchUpdate[T]{Items: repl}, drop: BatchRemove[T]{IDs: orphans}}
}

// reconcile applies an update and a removal as one transition.
type reconcile[T any] struct {
	update BatchUpdate[T]
	drop   BatchRemove[T]
}

func (a reconcile[T]) apply(items []T, id Identity[T]) []T {
	out := a.update.apply(items, id)
	if len(a.drop.IDs) == 0 {
		return out
	}
	return a.drop.apply(out, id)
}
