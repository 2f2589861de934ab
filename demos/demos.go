// Package demos holds the four demo programs built on the worker, channel and
// shared packages. Each demo writes its output to an io.Writer so it can be run
// from a main package or a test.
package demos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gostdlib/threadkit/prim/channel"
	"github.com/gostdlib/threadkit/prim/shared"
	"github.com/gostdlib/threadkit/prim/worker"
)

// Settings are the knobs a demo can be run with.
type Settings struct {
	// Workers is the number of workers the counter demo spawns. Other demos ignore it.
	Workers int
	// Options are passed to every worker.Spawn() call, after the demo's own options.
	Options []worker.Option
}

// Demo is a runnable demo.
type Demo struct {
	// Name is the name used to select the demo.
	Name string
	// Description is a one line description of the demo.
	Description string
	// Run runs the demo and writes its output to w.
	Run func(ctx context.Context, w io.Writer, s Settings) error
}

var registry = map[string]Demo{
	"spawnjoin": {
		Name:        "spawnjoin",
		Description: "move a vector into a worker, print it there and join",
		Run: func(ctx context.Context, w io.Writer, s Settings) error {
			return SpawnJoin(ctx, w, s.Options...)
		},
	},
	"spsc": {
		Name:        "spsc",
		Description: "a single worker sends one message to the spawner",
		Run: func(ctx context.Context, w io.Writer, s Settings) error {
			return SingleProducer(ctx, w, s.Options...)
		},
	},
	"mpsc": {
		Name:        "mpsc",
		Description: "two workers send on cloned senders, the spawner drains the channel",
		Run: func(ctx context.Context, w io.Writer, s Settings) error {
			return MultiProducer(ctx, w, s.Options...)
		},
	},
	"counter": {
		Name:        "counter",
		Description: "workers increment a shared counter behind a mutex",
		Run: func(ctx context.Context, w io.Writer, s Settings) error {
			return Counter(ctx, w, s.Workers, s.Options...)
		},
	},
}

// Get returns the Demo called name.
func Get(name string) (Demo, bool) {
	d, ok := registry[name]
	return d, ok
}

// All returns every Demo sorted by name.
func All() []Demo {
	out := make([]Demo, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SpawnJoin moves []int{1, 2, 3} into a worker that prints it, then joins the worker.
func SpawnJoin(ctx context.Context, w io.Writer, options ...worker.Option) error {
	vector := []int{1, 2, 3}

	h := worker.Go(
		ctx,
		func(ctx context.Context) {
			fmt.Fprintf(w, "the vector is - %s\n", listString(vector))
		},
		withName("printer", options)...,
	)

	if _, err := h.Join(ctx); err != nil {
		return fmt.Errorf("joining the worker: %w", err)
	}
	return nil
}

// SingleProducer spawns a worker that sends "hi" on a channel. The spawner
// receives the message, prints it and joins the worker.
func SingleProducer(ctx context.Context, w io.Writer, options ...worker.Option) error {
	tx, rx := channel.New[string]()
	defer rx.Close()

	h := worker.Spawn(
		ctx,
		func(ctx context.Context) error {
			defer tx.Close()
			return tx.Send("hi")
		},
		withName("producer", options)...,
	)

	msg, err := rx.Recv()
	if err != nil {
		// The worker must still be joined to learn why nothing came.
		if jerr := joinProducer(ctx, h); jerr != nil {
			return jerr
		}
		return fmt.Errorf("receiving from the worker: %w", err)
	}
	fmt.Fprintf(w, "message recived from the worker thread - %s\n", msg)

	return joinProducer(ctx, h)
}

// MultiProducer clones the channel Sender so that two workers each send one
// message. The spawner prints every message until the channel closes, then joins
// both workers. The order of the two lines is not fixed.
func MultiProducer(ctx context.Context, w io.Writer, options ...worker.Option) error {
	tx, rx := channel.New[string]()
	defer rx.Close()

	producers := []struct {
		name string
		tx   *channel.Sender[string]
	}{
		{name: "A", tx: tx.Clone()},
		{name: "B", tx: tx},
	}

	handles := make([]*worker.Handle[error], 0, len(producers))
	for _, p := range producers {
		handles = append(
			handles,
			worker.Spawn(
				ctx,
				func(ctx context.Context) error {
					defer p.tx.Close()
					return p.tx.Send("hi from worker-thread " + p.name)
				},
				withName("producer"+p.name, options)...,
			),
		)
	}

	for msg := range rx.Drain() {
		fmt.Fprintf(w, "message received from the channel - %s\n", msg)
	}

	sendErrs, err := worker.JoinAll(ctx, handles...)
	if err != nil {
		return fmt.Errorf("joining the producers: %w", err)
	}
	if err := errors.Join(sendErrs...); err != nil {
		return fmt.Errorf("a producer could not send: %w", err)
	}
	return nil
}

// Counter spawns n workers that each add 1 to a counter shared behind a
// shared.Ref, joins them all and prints the final value.
func Counter(ctx context.Context, w io.Writer, n int, options ...worker.Option) error {
	if n < 0 {
		return fmt.Errorf("cannot run the counter with %d workers", n)
	}

	counter := shared.New(0)
	defer counter.Release()

	handles := make([]*worker.Handle[error], 0, n)
	for i := 0; i < n; i++ {
		c := counter.Clone()
		handles = append(
			handles,
			worker.Spawn(
				ctx,
				func(ctx context.Context) error {
					defer c.Release()
					return c.Do(func(v *int) { *v++ })
				},
				withName("incrementer", options)...,
			),
		)
	}

	lockErrs, err := worker.JoinAll(ctx, handles...)
	if err != nil {
		return fmt.Errorf("joining the incrementers: %w", err)
	}
	if err := errors.Join(lockErrs...); err != nil {
		return fmt.Errorf("an incrementer could not lock the counter: %w", err)
	}

	g, err := counter.Lock()
	if err != nil {
		if g != nil {
			g.Unlock()
		}
		return fmt.Errorf("reading the counter: %w", err)
	}
	final := g.Get()
	g.Unlock()

	fmt.Fprintf(w, "final value of the counter - %d\n", final)
	return nil
}

func joinProducer(ctx context.Context, h *worker.Handle[error]) error {
	sendErr, err := h.Join(ctx)
	if err != nil {
		return fmt.Errorf("joining the worker: %w", err)
	}
	if sendErr != nil {
		return fmt.Errorf("the worker could not send: %w", sendErr)
	}
	return nil
}

// withName puts a WithName() option in front of options, so a caller supplied
// name wins.
func withName(name string, options []worker.Option) []worker.Option {
	out := make([]worker.Option, 0, len(options)+1)
	out = append(out, worker.WithName(name))
	return append(out, options...)
}

// listString renders s as "[1, 2, 3]".
func listString(s []int) string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Diagnose renders err for a fatal log line. If a worker aborted, the stack of
// the worker is included.
func Diagnose(err error) string {
	var ae *worker.AbortError
	if errors.As(err, &ae) {
		return fmt.Sprintf("%s\n\nworker stack:\n%s", err, ae.Stack)
	}
	return err.Error()
}
