/*
Package goroutines provides the interface that goroutine pools must implement
to be used as an executor for worker.Spawn(). Implementations are in
sub-directories and can be used directly without using this package.

By default every worker gets its own goroutine. When you want to cap how many
workers run at once or reuse goroutines, hand a Pool to worker.Spawn() with
worker.WithPool():

	ctx := context.Background()
	p, err := limited.New("myPool", runtime.NumCPU())
	if err != nil {
		panic(err)
	}
	defer p.Close()

	handles := make([]*worker.Handle[int], 0, 100)
	for i := 0; i < 100; i++ {
		handles = append(
			handles,
			worker.Spawn(
				ctx,
				func(ctx context.Context) int {
					return i * i
				},
				worker.WithPool(p),
			),
		)
	}

	squares, err := worker.JoinAll(ctx, handles...)
	if err != nil {
		// A worker panicked.
	}

A Pool can also be used directly with Submit() and Wait(). A Job that panics
while running directly on a Pool takes the program down, just like a naked
goroutine. Workers recover their own panics before the Pool sees them.
*/
package goroutines

import (
	"context"

	"github.com/gostdlib/threadkit/goroutines/internal/pool"
)

// Job is a job for a Pool.
type Job func(ctx context.Context)

// SubmitOption is an option for Pool.Submit().
type SubmitOption func(opt *pool.SubmitOptions) error

// Pool is the minimum interface that any goroutine pool must implement.
// Only the pools in this module can implement it.
type Pool interface {
	// Submit submits a Job to be run.
	Submit(ctx context.Context, runner Job, options ...SubmitOption) error
	// Close closes the goroutine pool. This will call Wait() before it closes.
	Close()
	// Wait will wait for all goroutines to finish. This should only be called if
	// you have stopped calling Submit().
	Wait()
	// Len indicates how big the pool is.
	Len() int
	// Running returns how many goroutines are currently in flight.
	Running() int
	// GetName returns the name the pool was registered under.
	GetName() string

	pool.Preventer
}
