package kernels

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// parallelFor calls fn for every i in [0, n). With more than one thread the
// calls fan out over at most threads goroutines; fn must only write state
// owned by index i.
func parallelFor(ctx context.Context, threads, n int, fn func(i int) error) error {
	if threads < 2 || n < 2 {
		for i := range n {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}

	return g.Wait()
}
