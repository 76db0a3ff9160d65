// Package pool fans per-member work out over a bounded set of workers and
// collects the results in member order regardless of completion order.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/enspipe/enspipe/internal/ctxlog"
)

// Result carries one member's outcome. Exactly one of Value and Err is
// meaningful.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Run executes task(ctx, i) for i in [0, n) on at most workers goroutines
// and returns the results ordered by index.
//
// In strict mode the first failure cancels the group context: tasks already
// running finish, tasks not yet started are recorded with the context's
// cancellation error. Otherwise every task runs and every failure is
// captured in its member's Result.
func Run[T any](ctx context.Context, workers, n int, strict bool, task func(ctx context.Context, i int) (T, error)) []Result[T] {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result[T], n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		results[i].Index = i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			v, err := task(gctx, i)
			results[i].Value, results[i].Err = v, err
			if err != nil {
				ctxlog.FromContext(gctx).Warn("member task failed", "member", i, "error", err)
				if strict {
					return err
				}
			}
			return nil
		})
	}
	// The error is already recorded per member.
	_ = g.Wait()
	return results
}

// Failed returns the indices of failed members in ascending order.
func Failed[T any](results []Result[T]) []int {
	var out []int
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r.Index)
		}
	}
	sort.Ints(out)
	return out
}

// Summarize returns nil when every member succeeded, otherwise an error
// naming the failed member indices and wrapping the root failure. Strict
// cancellations recorded for skipped members are only reported as the cause
// when no real failure exists.
func Summarize[T any](results []Result[T]) error {
	failed := Failed(results)
	if len(failed) == 0 {
		return nil
	}
	cause := results[failed[0]].Err
	for _, i := range failed {
		if !errors.Is(results[i].Err, context.Canceled) {
			cause = results[i].Err
			break
		}
	}
	return fmt.Errorf("%d of %d members failed (indices %v): %w",
		len(failed), len(results), failed, cause)
}
