/*
Package worker runs a unit of work on its own goroutine and hands back a Handle
that can be joined to get the work's result.

A panic inside the work does not take down the program. It is recovered and
Join returns an *AbortError that matches ErrAborted:

	h := worker.Spawn(
		ctx,
		func(ctx context.Context) int {
			return compute()
		},
	)

	v, err := h.Join(ctx)
	if err != nil {
		if worker.IsErrAborted(err) {
			// The work panicked.
		}
	}

The work closure should own everything it touches. Anything shared with the
spawner after Spawn must go through a synchronization primitive such as a
channel.Sender or a shared.Ref.

A Handle that is never joined is detached: the work still runs to completion and
its result is thrown away.

By default each worker gets a new goroutine. Use WithPool() to run workers on a
goroutines.Pool instead.

Spawn submits to the Pool from the calling goroutine, so with a Pool at capacity
Spawn blocks until the Pool has room. A worker that waits on something only a
later Spawn provides, such as a consumer waiting on a producer spawned after it,
deadlocks on a Pool too small to run both. Size the Pool for that or pass the
Pool's NonBlocking() option with WithPool(), which makes Spawn return at once:

	h := worker.Spawn(ctx, work, worker.WithPool(p, limited.NonBlocking()))

The Context passed to Spawn is handed to the work and is used for OTEL tracing.
There is no cancellation of workers, a worker always runs to completion.
*/
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/gostdlib/internals/otel/span"
	"github.com/johnsiilver/calloptions"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrAborted matches any *AbortError with errors.Is().
	ErrAborted = errors.New("worker aborted")
	// ErrJoined is returned by Join when the Handle was already joined or detached.
	ErrJoined = errors.New("worker handle already joined or detached")
)

// AbortError is returned by Join when the work did not return normally.
type AbortError struct {
	// ID is the ID of the worker.
	ID uuid.UUID
	// Name is the name given with WithName(), if any.
	Name string
	// Value is the value passed to panic(). If the work called runtime.Goexit(),
	// this is the string "runtime.Goexit".
	Value any
	// Stack is the goroutine stack at the point the panic was recovered. If
	// Value has a PanicStack() method, such as *shared.PanicError, it is the
	// stack that method returns.
	Stack string
}

// Error implements error.
func (e *AbortError) Error() string {
	return fmt.Sprintf("worker(%s) aborted: %v", e.label(), e.Value)
}

// Is makes errors.Is(err, ErrAborted) true.
func (e *AbortError) Is(target error) bool {
	return target == ErrAborted
}

// Unwrap returns the panic value if it was an error.
func (e *AbortError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func (e *AbortError) label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID.String()
}

// IsErrAborted returns true if the error is or wraps an *AbortError.
func IsErrAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

// Work is the unit of work a worker runs.
type Work[T any] func(ctx context.Context) T

// Handle represents a spawned worker.
type Handle[T any] struct {
	id    uuid.UUID
	name  string
	start time.Time

	// done is closed after value or err has been set.
	done  chan struct{}
	value T
	err   error

	// joined is set once the Handle has been joined or detached.
	joined atomic.Bool
}

// Spawn starts work on a new goroutine, or on the goroutines.Pool given with
// WithPool(), and returns a Handle to it. With a Pool that is at capacity,
// Spawn blocks until the Pool accepts the work.
// Spawn panics if work is nil or if an option is invalid, this includes
// goroutines.SubmitOption(s) that the Pool rejects.
func Spawn[T any](ctx context.Context, work Work[T], options ...Option) *Handle[T] {
	if work == nil {
		panic("worker: Spawn() called with nil Work")
	}

	opts := spawnOptions{}
	if err := calloptions.ApplyOptions(&opts, options); err != nil {
		panic(fmt.Sprintf("worker: bad option to Spawn(): %s", err))
	}

	h := &Handle[T]{
		id:    uuid.New(),
		name:  opts.name,
		start: time.Now(),
		done:  make(chan struct{}),
	}
	h.spawnEvent(span.Get(ctx), opts.pool != nil)

	if opts.pool == nil {
		go h.run(ctx, work)
		return h
	}

	err := opts.pool.Submit(
		ctx,
		func(ctx context.Context) {
			h.run(ctx, work)
		},
		opts.poolOptions...,
	)
	if err != nil {
		panic(fmt.Sprintf("worker: Pool(%s) rejected the worker: %s", opts.pool.GetName(), err))
	}
	return h
}

// Go is Spawn for work that has no result.
func Go(ctx context.Context, f func(ctx context.Context), options ...Option) *Handle[struct{}] {
	if f == nil {
		panic("worker: Go() called with nil func")
	}
	return Spawn(
		ctx,
		func(ctx context.Context) struct{} {
			f(ctx)
			return struct{}{}
		},
		options...,
	)
}

func (h *Handle[T]) run(ctx context.Context, work Work[T]) {
	ctx, spanner := span.New(ctx, fmt.Sprintf("worker(%s)", h.label()))
	defer spanner.End()
	defer close(h.done)

	completed := false
	defer func() {
		if completed {
			return
		}
		// runtime.Goexit() leaves recover() with nil.
		var v any = "runtime.Goexit"
		if r := recover(); r != nil {
			v = r
		}
		stk := stack()
		// Values re-panicked by shared.Guard carry the stack of the original panic.
		if ps, ok := v.(interface{ PanicStack() string }); ok {
			stk = ps.PanicStack()
		}
		h.err = &AbortError{ID: h.id, Name: h.name, Value: v, Stack: stk}
		spanner.Error(h.err)
	}()

	h.value = work(ctx)
	completed = true
}

// Join blocks until the worker finishes. It returns the work's result, or an
// *AbortError if the work panicked. A Handle can only be joined once, later
// calls return ErrJoined. ctx is only used for tracing, cancelling it does not
// stop the wait.
func (h *Handle[T]) Join(ctx context.Context) (T, error) {
	var zero T

	if !h.joined.CompareAndSwap(false, true) {
		return zero, ErrJoined
	}

	spanner := span.Get(ctx)
	now := time.Now()

	<-h.done

	if h.err != nil {
		spanner.Error(h.err)
		spanner.Status(codes.Error, h.err.Error())
		return zero, h.err
	}
	h.joinEvent(spanner, now)
	return h.value, nil
}

// Detach gives up the right to Join. The worker keeps running and its result
// is discarded. Dropping a Handle without calling Detach has the same effect,
// Detach only makes a later Join return ErrJoined.
func (h *Handle[T]) Detach() {
	h.joined.Store(true)
}

// Finished reports if the worker has finished, without blocking.
func (h *Handle[T]) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ID returns the unique ID of the worker.
func (h *Handle[T]) ID() uuid.UUID {
	return h.id
}

// Name returns the name given with WithName(), or the empty string.
func (h *Handle[T]) Name() string {
	return h.name
}

func (h *Handle[T]) label() string {
	if h.name != "" {
		return h.name
	}
	return h.id.String()
}

func (h *Handle[T]) spawnEvent(spanner span.Span, usingPool bool) {
	if !spanner.Span.IsRecording() {
		return
	}
	spanner.Event(
		"worker.Spawn() called",
		"id", h.id.String(),
		"name", h.name,
		"using pool", usingPool,
	)
}

func (h *Handle[T]) joinEvent(spanner span.Span, t time.Time) {
	if !spanner.Span.IsRecording() {
		return
	}

	j, err := json.Marshal(h.value)
	if err != nil {
		j = []byte(fmt.Sprintf("Error marshaling result: %s", err.Error()))
	}
	spanner.Event(
		"worker.Join() done",
		"id", h.id.String(),
		"name", h.name,
		"result", string(j),
		"join_wait_ns", time.Since(t),
		"elapsed_ns", time.Since(h.start),
	)
}

// JoinAll joins every handle in order and returns their results in the same
// order. Every handle is joined even if some abort. The results of aborted
// workers are zero values and their errors are combined with errors.Join().
func JoinAll[T any](ctx context.Context, handles ...*Handle[T]) ([]T, error) {
	values := make([]T, len(handles))

	var errs []error
	for i, h := range handles {
		v, err := h.Join(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values[i] = v
	}
	return values, errors.Join(errs...)
}

func stack() string {
	// 8 KiB holds most stacks. runtime.Stack truncates if it doesn't.
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
