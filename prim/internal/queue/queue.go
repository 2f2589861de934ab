// Package queue provides an unbounded FIFO used as the backing store for
// channel.Sender/channel.Receiver pairs. It is not safe for concurrent use, the
// owner is expected to hold its own lock around every call.
package queue

// Queue is a simple generic FIFO queue built from linked nodes. The zero value
// is an empty Queue ready to use.
type Queue[A any] struct {
	head *node[A]
	tail *node[A]
	size int
}

// Push adds an entry to the tail of the queue.
func (q *Queue[A]) Push(a A) {
	n := &node[A]{val: a}
	if q.tail == nil {
		q.head = n
		q.tail = n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.size++
}

// Pop removes the entry at the head of the queue. If ok is false, the queue
// was empty and val is the zero value.
func (q *Queue[A]) Pop() (val A, ok bool) {
	if q.head == nil {
		return val, false
	}
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--

	val = n.val
	// Let the GC have the value even if someone is still holding the node.
	var zero A
	n.val = zero
	n.next = nil
	return val, true
}

// Len returns the number of entries in the queue.
func (q *Queue[A]) Len() int {
	return q.size
}

// Reset drops every entry in the queue.
func (q *Queue[A]) Reset() {
	for q.head != nil {
		n := q.head
		q.head = n.next
		var zero A
		n.val = zero
		n.next = nil
	}
	q.tail = nil
	q.size = 0
}

type node[A any] struct {
	val  A
	next *node[A]
}
