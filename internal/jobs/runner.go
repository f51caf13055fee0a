package jobs

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Runner supervises background dispatch goroutines: it bounds how many run
// at once and guarantees a panicking dispatch is contained and reported
// instead of crashing the process.
type Runner struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewRunner creates a Runner allowing up to maxConcurrent simultaneous
// tasks.
func NewRunner(maxConcurrent int) *Runner {
	return &Runner{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Go runs fn in a supervised goroutine. It blocks only while the
// concurrency limit is saturated; ctx cancels the wait for a slot, not fn
// itself.
func (r *Runner) Go(ctx context.Context, name string, fn func()) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("background task panicked",
					"task", name,
					"panic", rec,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()

	return nil
}

// Wait blocks until every running task finishes. Used on shutdown so
// in-flight dispatches can reach a terminal state.
func (r *Runner) Wait() {
	r.wg.Wait()
}
