/*
Package shared provides a reference counted value protected by a mutex.

A Ref is one handle on the shared value. Hand a Clone() of the Ref to every
goroutine that needs the value and have each goroutine Release() its own Ref
when it is done. The value is destroyed when the last Ref is released. If the
value implements io.Closer, it is closed at that point.

The value can only be reached through a Guard returned by Lock():

	counter := shared.New(0)
	defer counter.Release()

	for i := 0; i < 10; i++ {
		c := counter.Clone()
		go func() {
			defer c.Release()

			g, err := c.Lock()
			if err != nil {
				panic(err)
			}
			defer g.Unlock()
			*g.Value()++
		}()
	}

If a goroutine panics while holding a Guard and Unlock was deferred directly,
the mutex becomes poisoned and the panic continues as a *PanicError. Do() also
poisons the mutex when its function calls runtime.Goexit(). Every later Lock
still returns a usable Guard, but together with ErrPoisoned so the caller can
decide if the value can be trusted.

The mutex is not reentrant. Locking a Ref while already holding a Guard for the
same value deadlocks.
*/
package shared

import (
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

var (
	// ErrPoisoned is returned by Lock when a previous holder panicked while
	// holding the lock. The Guard returned with it is still usable.
	ErrPoisoned = errors.New("shared: mutex poisoned by a panicking holder")
	// ErrReleased is returned when a Ref is used after Release.
	ErrReleased = errors.New("shared: use of released Ref")
)

// PanicError is the value a panic continues with after it poisoned the mutex.
// Stack is the stack of the panicking holder, captured before the lock was
// released.
type PanicError struct {
	// Value is the value originally passed to panic().
	Value any
	// Stack is the holder's stack at the time of the panic.
	Stack string
}

// Error implements error.
func (p *PanicError) Error() string {
	return fmt.Sprintf("shared: holder panicked: %v", p.Value)
}

// Unwrap returns Value if it is an error.
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// PanicStack returns Stack.
func (p *PanicError) PanicStack() string {
	return p.Stack
}

// cell is the single allocation all Ref(s) of a value point to.
type cell[T any] struct {
	mu    sync.Mutex
	value T

	poisoned atomic.Bool
	refs     atomic.Int64
}

// destroy is called when the last Ref is released.
func (c *cell[T]) destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if cl, ok := any(c.value).(io.Closer); ok {
		err = cl.Close()
	}
	var zero T
	c.value = zero
	return err
}

// Ref is a shared reference to a mutex protected value. A single Ref must not
// be used concurrently with its own Release.
type Ref[T any] struct {
	c        *cell[T]
	released atomic.Bool
}

// New wraps value and returns the first Ref to it.
func New[T any](value T) *Ref[T] {
	c := &cell[T]{value: value}
	c.refs.Store(1)
	return &Ref[T]{c: c}
}

// Clone returns a new Ref to the same value. This does not take the lock.
// Cloning a released Ref panics.
func (r *Ref[T]) Clone() *Ref[T] {
	if r.released.Load() {
		panic("shared: Clone() called on a released Ref")
	}
	r.c.refs.Add(1)
	return &Ref[T]{c: r.c}
}

// Lock blocks until the lock is available and returns a Guard to the value.
// If the mutex is poisoned, the Guard is returned along with ErrPoisoned and
// the caller must still Unlock it. If the Ref has been released, this returns
// a nil Guard and ErrReleased.
func (r *Ref[T]) Lock() (*Guard[T], error) {
	if r.released.Load() {
		return nil, ErrReleased
	}

	r.c.mu.Lock()
	g := &Guard[T]{c: r.c}
	if r.c.poisoned.Load() {
		return g, ErrPoisoned
	}
	return g, nil
}

// Do locks the value, calls f with a pointer to it and unlocks. If f panics or
// calls runtime.Goexit(), the mutex is poisoned and the goroutine keeps
// unwinding. If the mutex is already poisoned, f is not called and ErrPoisoned
// is returned.
func (r *Ref[T]) Do(f func(v *T)) error {
	g, err := r.Lock()
	if g == nil {
		return err
	}
	defer g.Unlock()

	if err != nil {
		return err
	}

	c := g.c
	completed := false
	defer func() {
		// recover() can't see runtime.Goexit(), so poison on any exit f did not finish.
		if !completed {
			c.poisoned.Store(true)
		}
	}()

	f(g.Value())
	completed = true
	return nil
}

// Release drops this Ref. When the last Ref to a value is released, the value
// is destroyed and, if it is an io.Closer, the error from Close() is returned.
// Calling Release more than once on the same Ref is a no-op.
func (r *Ref[T]) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return nil
	}
	if r.c.refs.Add(-1) == 0 {
		return r.c.destroy()
	}
	return nil
}

// Refs returns the number of Ref(s) that have not been released.
func (r *Ref[T]) Refs() int {
	return int(r.c.refs.Load())
}

// Poisoned reports if a holder of the lock panicked while holding it.
func (r *Ref[T]) Poisoned() bool {
	return r.c.poisoned.Load()
}

// Guard grants access to the value for as long as the lock is held. A Guard
// belongs to the goroutine that called Lock.
type Guard[T any] struct {
	c *cell[T]
}

// Get returns a copy of the value.
func (g *Guard[T]) Get() T {
	return g.cell().value
}

// Set replaces the value.
func (g *Guard[T]) Set(v T) {
	g.cell().value = v
}

// Value returns a pointer to the value. The pointer must not be used after
// Unlock.
func (g *Guard[T]) Value() *T {
	return &g.cell().value
}

// Unlock releases the lock. It should be deferred directly after a successful
// Lock ("defer g.Unlock()"). Deferred that way, a panic in the holder marks the
// mutex poisoned and the panic continues as a *PanicError that carries the
// holder's stack. Calling Unlock more than once is a no-op.
//
// Unlock cannot tell a holder that called runtime.Goexit() from one that
// returned, so such a holder unlocks without poisoning. Use Do() when the
// holder may call runtime.Goexit().
func (g *Guard[T]) Unlock() {
	if r := recover(); r != nil {
		if g.c != nil {
			g.c.poisoned.Store(true)
			g.unlock()
		}
		if _, ok := r.(*PanicError); ok {
			panic(r)
		}
		panic(&PanicError{Value: r, Stack: string(debug.Stack())})
	}
	g.unlock()
}

func (g *Guard[T]) unlock() {
	if g.c == nil {
		return
	}
	c := g.c
	g.c = nil
	c.mu.Unlock()
}

func (g *Guard[T]) cell() *cell[T] {
	if g.c == nil {
		panic("shared: Guard used after Unlock")
	}
	return g.c
}
