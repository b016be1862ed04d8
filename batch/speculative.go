package batch

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/syncache/optimistic"
)

// Speculative wraps confirm so every chunk is first applied to list as one
// optimistic batch action and rolled back if confirm fails. The returned
// results are the authoritative items; for KindDelete they echo the chunk.
func Speculative[T any](list *optimistic.List[T], kind Kind, confirm Confirm[T, T]) Confirm[T, T] {
	switch kind {
	case KindAdd:
		return func(ctx context.Context, chunk []T) ([]T, error) {
			return list.BatchAdd(ctx, chunk, confirm)
		}
	case KindUpdate:
		return func(ctx context.Context, chunk []T) ([]T, error) {
			return list.BatchUpdate(ctx, chunk, confirm)
		}
	case KindDelete:
		return func(ctx context.Context, chunk []T) ([]T, error) {
			ids := make([]string, len(chunk))
			for i, it := range chunk {
				ids[i] = list.IDOf(it)
			}
			err := list.BatchRemove(ctx, ids, func(ctx context.Context, _ []string) error {
				_, err := confirm(ctx, chunk)
				return err
			})
			if err != nil {
				return nil, err
			}
			return chunk, nil
		}
	default:
		return func(context.Context, []T) ([]T, error) {
			return nil, fmt.Errorf("batch: unsupported kind %q", kind)
		}
	}
}
