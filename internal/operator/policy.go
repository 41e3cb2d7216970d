package operator

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"k8s.io/apimachinery/pkg/util/wait"
)

// ResubscribePolicy spaces failing Watch calls during resubscription.
//
// Attempts are unlimited; Backoff.Steps only bounds how often the duration
// grows before it stays at Backoff.Cap.
type ResubscribePolicy struct {
	Backoff wait.Backoff
}

// DefaultResubscribePolicy starts at one second and doubles up to thirty seconds.
func DefaultResubscribePolicy() ResubscribePolicy {
	return ResubscribePolicy{
		Backoff: wait.Backoff{
			Duration: time.Second,
			Factor:   2.0,
			Jitter:   0.1,
			Steps:    6,
			Cap:      30 * time.Second,
		},
	}
}

// newBackoff returns a fresh copy of the backoff. Once its steps are used up
// wait.Backoff keeps returning the last duration, so attempts never run out.
func (p ResubscribePolicy) newBackoff() *wait.Backoff {
	b := p.Backoff
	if b.Duration <= 0 {
		b.Duration = time.Second
	}
	return &b
}

// Executor runs watcher work off the caller's goroutine.
type Executor interface {
	// Go schedules task. It returns an error when the task could not be scheduled.
	Go(ctx context.Context, task func()) error
}

type goroutineExecutor struct{}

// Go implements Executor.
func (goroutineExecutor) Go(_ context.Context, task func()) error {
	go task()
	return nil
}

// DefaultExecutor starts every task in its own goroutine.
func DefaultExecutor() Executor {
	return goroutineExecutor{}
}

// BoundedExecutor limits the number of concurrently running tasks.
type BoundedExecutor struct {
	sem *semaphore.Weighted
}

// NewBoundedExecutor returns an executor running at most n tasks at once.
func NewBoundedExecutor(n int64) *BoundedExecutor {
	if n <= 0 {
		n = 1
	}
	return &BoundedExecutor{sem: semaphore.NewWeighted(n)}
}

// Go implements Executor. It blocks until a slot is free or ctx is done.
func (e *BoundedExecutor) Go(ctx context.Context, task func()) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer e.sem.Release(1)
		task()
	}()
	return nil
}
