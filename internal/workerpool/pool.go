// Package workerpool runs argument bundles across a bounded set of goroutines.
//
// Bundles share no mutable state; the caller observes a barrier when Run
// returns. The first failing bundle cancels the remaining ones.
package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"blockflow/internal/services"
)

// Run executes op once per bundle with at most workers bundles in flight and
// waits for all of them. The first error (including a recovered panic)
// cancels the context handed to the other bundles and is returned tagged as
// stage-fatal.
func Run[T any](ctx context.Context, workers int, bundles []T, op func(context.Context, T) error) error {
	if workers < 1 {
		return services.Wrap(services.ErrConfiguration, "", "worker pool",
			fmt.Sprintf("Worker count must be at least 1, got %d", workers), nil)
	}
	if len(bundles) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, bundle := range bundles {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = services.Wrap(services.ErrStageFatal, "", "worker pool",
						fmt.Sprintf("Worker for bundle %d panicked: %v", i, r),
						fmt.Errorf("%s", debug.Stack()))
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := op(gctx, bundle); err != nil {
				return services.Wrap(services.ErrStageFatal, "", "worker pool",
					fmt.Sprintf("Bundle %d failed", i), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
