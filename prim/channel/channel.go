/*
Package channel provides an unbounded multi-producer, single-consumer channel.

Unlike a native Go channel, closure is not something a producer does to every
other producer. Each Sender is an independent handle on the channel input. A
Sender can be cloned to hand to another goroutine and each handle is closed by
whoever owns it. When the last Sender is closed, the Receiver sees every message
that was already queued and after that receives ErrDisconnected.

Here is a basic example:

	tx, rx := channel.New[string]()

	tx2 := tx.Clone()
	go func() {
		defer tx.Close()
		tx.Send("hello from A")
	}()
	go func() {
		defer tx2.Close()
		tx2.Send("hello from B")
	}()

	for msg := range rx.Drain() {
		fmt.Println(msg)
	}

Send never blocks. If the Receiver has been closed, Send returns ErrDisconnected
so a producer knows nobody is listening anymore.
*/
package channel

import (
	"errors"
	"iter"
	"sync"

	"github.com/gostdlib/threadkit/prim/internal/queue"
)

var (
	// ErrDisconnected is returned by Sender.Send when the Receiver has been closed
	// and by Receiver.Recv when every Sender has been closed and the queue is empty.
	ErrDisconnected = errors.New("channel: disconnected")
	// ErrSenderClosed is returned by Sender.Send when that Sender was already closed.
	ErrSenderClosed = errors.New("channel: send on closed Sender")
)

// State is the lifecycle state of a channel.
type State uint8

const (
	// Open indicates at least one Sender is alive.
	Open State = 0
	// ClosedDraining indicates all Senders are closed but messages are still queued.
	ClosedDraining State = 1
	// Terminal indicates all Senders are closed and the queue is empty. Every
	// Recv in this state returns ErrDisconnected.
	Terminal State = 2
)

func (s State) String() string {
	switch s {
	case Open:
		return "Open"
	case ClosedDraining:
		return "ClosedDraining"
	case Terminal:
		return "Terminal"
	}
	return "Unknown"
}

// state is shared by all endpoints of a single channel.
type state[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue queue.Queue[T]
	// senders is the number of Sender(s) that have not been closed.
	senders int
	// recvClosed is set once the Receiver has been closed.
	recvClosed bool
}

// New creates a new channel and returns its single Sender and Receiver.
func New[T any]() (*Sender[T], *Receiver[T]) {
	st := &state[T]{senders: 1}
	st.cond = sync.NewCond(&st.mu)

	return &Sender[T]{state: st}, &Receiver[T]{state: st}
}

// Sender is the input side of a channel. A Sender must be closed by its owner
// when it is no longer needed, otherwise the Receiver will never see the
// channel close.
type Sender[T any] struct {
	state *state[T]
	// closed is protected by state.mu.
	closed bool
}

// Send enqueues msg at the tail of the channel. It never blocks.
func (s *Sender[T]) Send(msg T) error {
	st := s.state

	st.mu.Lock()
	defer st.mu.Unlock()

	if s.closed {
		return ErrSenderClosed
	}
	if st.recvClosed {
		return ErrDisconnected
	}

	st.queue.Push(msg)
	st.cond.Signal()
	return nil
}

// Clone returns a new Sender for the same channel. The new Sender must be
// closed independently of s. Cloning a closed Sender panics.
func (s *Sender[T]) Clone() *Sender[T] {
	st := s.state

	st.mu.Lock()
	defer st.mu.Unlock()

	if s.closed {
		panic("channel: Clone() called on a closed Sender")
	}
	st.senders++
	return &Sender[T]{state: st}
}

// Close releases this Sender. Once every Sender of a channel has been closed,
// the Receiver gets the remaining queued messages and then ErrDisconnected.
// Calling Close more than once is a no-op.
func (s *Sender[T]) Close() {
	st := s.state

	st.mu.Lock()
	defer st.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	st.senders--
	if st.senders == 0 {
		st.cond.Broadcast()
	}
}

// Senders returns the number of Senders on the channel that have not been closed.
func (s *Sender[T]) Senders() int {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	return s.state.senders
}

// Receiver is the output side of a channel. There is exactly one Receiver per
// channel and it is not safe to call Recv from multiple goroutines at once.
type Receiver[T any] struct {
	state *state[T]
}

// Recv blocks until a message is available and returns it. If every Sender has
// been closed and no messages are queued, it returns ErrDisconnected.
func (r *Receiver[T]) Recv() (T, error) {
	st := r.state

	st.mu.Lock()
	defer st.mu.Unlock()

	for {
		if st.recvClosed {
			var zero T
			return zero, ErrDisconnected
		}
		if v, ok := st.queue.Pop(); ok {
			return v, nil
		}
		if st.senders == 0 {
			var zero T
			return zero, ErrDisconnected
		}
		st.cond.Wait()
	}
}

// Drain returns an iterator over received messages. Iteration blocks like Recv
// and stops cleanly when the channel reaches the Terminal state. Breaking out of
// a range loop leaves the remaining messages in the channel, and ranging over
// Drain again continues where the last one stopped.
func (r *Receiver[T]) Drain() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := r.Recv()
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Close releases the Receiver. Queued messages are discarded and every later
// Send returns ErrDisconnected. Calling Close more than once is a no-op.
func (r *Receiver[T]) Close() {
	st := r.state

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.recvClosed {
		return
	}
	st.recvClosed = true
	st.queue.Reset()
	st.cond.Broadcast()
}

// Len returns the number of messages waiting to be received.
func (r *Receiver[T]) Len() int {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	return r.state.queue.Len()
}

// State returns the current lifecycle State of the channel.
func (r *Receiver[T]) State() State {
	st := r.state

	st.mu.Lock()
	defer st.mu.Unlock()

	switch {
	case st.senders > 0:
		return Open
	case st.queue.Len() > 0:
		return ClosedDraining
	}
	return Terminal
}
