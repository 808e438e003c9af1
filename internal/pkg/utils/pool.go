package utils

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEachLimited runs fn for every item with at most limit calls in flight.
// fn must not return an error for per-item failures it wants tolerated: the first
// non-nil error cancels the context handed to the remaining calls and is returned.
func ForEachLimited[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T) error) error {
	if len(items) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, it := range items {
		it := it
		g.Go(func() error {
			return fn(gctx, it)
		})
	}
	return g.Wait()
}
