// Package prim is the home of the threadkit primitives. It has no code of its own.
//
// The primitives are:
//
//   - worker: spawn a function on its own goroutine (or a goroutines.Pool) and
//     join it later for its result. A worker that panics is reported as an
//     abort on Join() instead of crashing the program.
//   - channel: an unbounded FIFO channel with many cloneable senders and a
//     single receiver. The receiver sees ErrDisconnected once every sender is
//     closed and the queue is drained.
//   - shared: a reference counted value behind a mutex. A holder that panics
//     while holding the lock poisons the mutex for everyone else.
//
// A typical use spawns workers that each own a clone of a Sender or a shared
// Ref, then joins them:
//
//	tx, rx := channel.New[string]()
//	for i := 0; i < 2; i++ {
//		stx := tx.Clone()
//		worker.Go(ctx, func(ctx context.Context) {
//			defer stx.Close()
//			stx.Send("hi")
//		}).Detach()
//	}
//	tx.Close()
//
//	for msg := range rx.Drain() {
//		fmt.Println(msg)
//	}
package prim
