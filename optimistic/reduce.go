// Package optimistic applies list mutations speculatively, before the
// confirming action settles, and restores the exact pre-mutation state when
// confirmation fails.
//
// Reduce is the pure state transition. List wraps it with the confirmation
// lifecycle: snapshot, apply, confirm, then reconcile or roll back. Mutations
// on one List run one at a time.
package optimistic

// Identity tells the reducer how to read and rewrite an item's identity and
// explicit order field.
type Identity[T any] struct {
	// ID returns the item's stable identity. Required.
	ID func(T) string
	// WithID returns a copy of the item carrying id. Required by Add and BatchAdd.
	WithID func(T, string) T
	// WithOrder returns a copy of the item with its order field set.
	// nil => Reorder only moves items.
	WithOrder func(T, int) T
}

// Action is one state transition. The set of actions is closed.
type Action[T any] interface {
	apply(items []T, id Identity[T]) []T
}

type (
	// Add appends Item.
	Add[T any] struct{ Item T }
	// Update replaces the item identified by ID with Item. Item may carry a
	// different identity (temporary id superseded by the server's).
	Update[T any] struct {
		ID   string
		Item T
	}
	// Remove drops the item identified by ID.
	Remove[T any] struct{ ID string }
	// Reorder moves the item at From to To and re-stamps every order field.
	// Out of range indices leave the state unchanged.
	Reorder[T any] struct{ From, To int }
	// BatchAdd appends Items in one transition.
	BatchAdd[T any] struct{ Items []T }
	// BatchRemove drops every item whose id is in IDs.
	BatchRemove[T any] struct{ IDs []string }
	// BatchUpdate replaces each item whose current id is a key of Items.
	BatchUpdate[T any] struct{ Items map[string]T }
)

// Reduce returns the state after applying a to items. It never modifies
// items and never fails; the same inputs always yield the same output.
func Reduce[T any](items []T, a Action[T], id Identity[T]) []T {
	if a == nil {
		return clone(items)
	}
	return a.apply(items, id)
}

func (a Add[T]) apply(items []T, _ Identity[T]) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, items...)
	return append(out, a.Item)
}

func (a Update[T]) apply(items []T, id Identity[T]) []T {
	out := clone(items)
	for i, it := range out {
		if id.ID(it) == a.ID {
			out[i] = a.Item
		}
	}
	return out
}

func (a Remove[T]) apply(items []T, id Identity[T]) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if id.ID(it) != a.ID {
			out = append(out, it)
		}
	}
	return out
}

func (a Reorder[T]) apply(items []T, id Identity[T]) []T {
	out := clone(items)
	if !inRange(a.From, len(out)) || !inRange(a.To, len(out)) {
		return out
	}
	moved := out[a.From]
	out = append(out[:a.From], out[a.From+1:]...)
	out = append(out[:a.To], append([]T{moved}, out[a.To:]...)...)
	if id.WithOrder != nil {
		for i := range out {
			out[i] = id.WithOrder(out[i], i)
		}
	}
	return out
}

func (a BatchAdd[T]) apply(items []T, _ Identity[T]) []T {
	out := make([]T, 0, len(items)+len(a.Items))
	out = append(out, items...)
	return append(out, a.Items...)
}

func (a BatchRemove[T]) apply(items []T, id Identity[T]) []T {
	drop := make(map[string]struct{}, len(a.IDs))
	for _, k := range a.IDs {
		drop[k] = struct{}{}
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if _, ok := drop[id.ID(it)]; !ok {
			out = append(out, it)
		}
	}
	return out
}

func (a BatchUpdate[T]) apply(items []T, id Identity[T]) []T {
	out := clone(items)
	for i, it := range out {
		if repl, ok := a.Items[id.ID(it)]; ok {
			out[i] = repl
		}
	}
	return out
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}

func inRange(i, n int) bool { return i >= 0 && i < n }
