package asyncrt

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunWorkers drives the executor from n goroutines until Close is called
// or ctx ends. It returns nil after Close and ctx.Err() on cancellation.
func (e *Executor) RunWorkers(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("asyncrt: invalid worker count %d", n)
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := e.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
