package worker

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gostdlib/threadkit/goroutines"
	"github.com/gostdlib/threadkit/goroutines/limited"
	"github.com/gostdlib/threadkit/goroutines/pooled"
	"github.com/gostdlib/threadkit/prim/shared"
	"github.com/kylelemons/godebug/pretty"
)

func TestSpawnJoin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	v := []int{1, 2, 3}

	h := Spawn(
		ctx,
		func(ctx context.Context) []int {
			out := make([]int, len(v))
			for i, n := range v {
				out[i] = n * 10
			}
			return out
		},
	)

	got, err := h.Join(ctx)
	if err != nil {
		t.Fatalf("TestSpawnJoin: got err == %s", err)
	}
	if diff := pretty.Compare([]int{10, 20, 30}, got); diff != "" {
		t.Errorf("TestSpawnJoin: -want/+got:\n%s", diff)
	}
	if !h.Finished() {
		t.Errorf("TestSpawnJoin: Finished() == false after Join()")
	}
}

func TestAbort(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tests := []struct {
		desc       string
		work       Work[int]
		wantValue  any
		wantUnwrap error
	}{
		{
			desc:      "panic with string",
			work:      func(ctx context.Context) int { panic("boom") },
			wantValue: "boom",
		},
		{
			desc:       "panic with error",
			work:       func(ctx context.Context) int { panic(io.EOF) },
			wantValue:  io.EOF,
			wantUnwrap: io.EOF,
		},
		{
			desc: "runtime.Goexit",
			work: func(ctx context.Context) int {
				runtime.Goexit()
				return 1
			},
			wantValue: "runtime.Goexit",
		},
	}

	for _, test := range tests {
		h := Spawn(ctx, test.work, WithName("aborter"))

		_, err := h.Join(ctx)
		if !IsErrAborted(err) {
			t.Errorf("TestAbort(%s): got err == %v, want ErrAborted", test.desc, err)
			continue
		}

		var ae *AbortError
		if !errors.As(err, &ae) {
			t.Errorf("TestAbort(%s): error was not an *AbortError", test.desc)
			continue
		}
		if ae.Value != test.wantValue {
			t.Errorf("TestAbort(%s): got Value == %v, want %v", test.desc, ae.Value, test.wantValue)
		}
		if ae.Name != "aborter" || ae.ID != h.ID() {
			t.Errorf("TestAbort(%s): AbortError did not identify the worker: %+v", test.desc, ae)
		}
		if ae.Stack == "" {
			t.Errorf("TestAbort(%s): AbortError.Stack is empty", test.desc)
		}
		if test.wantUnwrap != nil && !errors.Is(err, test.wantUnwrap) {
			t.Errorf("TestAbort(%s): errors.Is(err, %v) == false", test.desc, test.wantUnwrap)
		}
		if !strings.Contains(err.Error(), "worker(aborter) aborted") {
			t.Errorf("TestAbort(%s): got Error() == %q", test.desc, err.Error())
		}
	}
}

func TestJoinOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := Spawn(ctx, func(ctx context.Context) string { return "hi" })

	if v, err := h.Join(ctx); err != nil || v != "hi" {
		t.Fatalf("TestJoinOnce: got (%q, %v), want (\"hi\", nil)", v, err)
	}
	if _, err := h.Join(ctx); !errors.Is(err, ErrJoined) {
		t.Fatalf("TestJoinOnce: second Join() got err == %v, want ErrJoined", err)
	}
}

func TestDetach(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ran := make(chan struct{})
	h := Go(ctx, func(ctx context.Context) { close(ran) })
	h.Detach()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatalf("TestDetach: detached worker never ran")
	}
	if _, err := h.Join(ctx); !errors.Is(err, ErrJoined) {
		t.Fatalf("TestDetach: Join() after Detach() got err == %v, want ErrJoined", err)
	}
}

func TestJoinBlocks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	release := make(chan struct{})
	var wrote atomic.Bool
	h := Go(
		ctx,
		func(ctx context.Context) {
			<-release
			wrote.Store(true)
		},
	)

	if h.Finished() {
		t.Fatalf("TestJoinBlocks: Finished() == true before the work could finish")
	}
	close(release)
	if _, err := h.Join(ctx); err != nil {
		t.Fatalf("TestJoinBlocks: got err == %s", err)
	}
	if !wrote.Load() {
		t.Fatalf("TestJoinBlocks: Join() returned before the work finished")
	}
}

func TestWithPool(t *testing.T) {
	t.Parallel()

	limit, err := limited.New("", 2)
	if err != nil {
		t.Fatalf("TestWithPool: %s", err)
	}
	defer limit.Close()
	pooler, err := pooled.New("", 2)
	if err != nil {
		t.Fatalf("TestWithPool: %s", err)
	}
	defer pooler.Close()

	tests := []struct {
		desc string
		pool goroutines.Pool
	}{
		{desc: "No pool", pool: nil},
		{desc: "With limited pool", pool: limit},
		{desc: "With pooled pool", pool: pooler},
	}

	ctx := context.Background()
	for _, test := range tests {
		handles := make([]*Handle[int], 0, 20)
		for i := 0; i < 20; i++ {
			handles = append(
				handles,
				Spawn(
					ctx,
					func(ctx context.Context) int {
						if i == 7 {
							panic("seven")
						}
						return i * i
					},
					WithPool(test.pool),
				),
			)
		}

		got, err := JoinAll(ctx, handles...)
		if !IsErrAborted(err) {
			t.Errorf("TestWithPool(%s): got err == %v, want ErrAborted", test.desc, err)
		}
		for i, v := range got {
			want := i * i
			if i == 7 {
				want = 0
			}
			if v != want {
				t.Errorf("TestWithPool(%s): handle(%d) got %d, want %d", test.desc, i, v, want)
			}
		}
	}
}

func TestGoexitOnPool(t *testing.T) {
	t.Parallel()

	limit, err := limited.New("", 1)
	if err != nil {
		t.Fatalf("TestGoexitOnPool: %s", err)
	}
	defer limit.Close()
	pooler, err := pooled.New("", 1)
	if err != nil {
		t.Fatalf("TestGoexitOnPool: %s", err)
	}
	defer pooler.Close()

	tests := []struct {
		desc string
		pool goroutines.Pool
	}{
		{desc: "limited pool", pool: limit},
		{desc: "pooled pool", pool: pooler},
	}

	ctx := context.Background()
	for _, test := range tests {
		h := Go(ctx, func(ctx context.Context) { runtime.Goexit() }, WithPool(test.pool))
		if _, err := h.Join(ctx); !IsErrAborted(err) {
			t.Errorf("TestGoexitOnPool(%s): got err == %v, want ErrAborted", test.desc, err)
			continue
		}

		done := make(chan []int, 1)
		go func() {
			handles := make([]*Handle[int], 3)
			for i := range handles {
				handles[i] = Spawn(ctx, func(ctx context.Context) int { return i }, WithPool(test.pool))
			}
			got, _ := JoinAll(ctx, handles...)
			done <- got
		}()

		select {
		case got := <-done:
			if diff := pretty.Compare([]int{0, 1, 2}, got); diff != "" {
				t.Errorf("TestGoexitOnPool(%s): -want/+got:\n%s", test.desc, diff)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("TestGoexitOnPool(%s): workers spawned after a runtime.Goexit() never finished", test.desc)
		}
	}
}

func TestAbortWhileHoldingShared(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := shared.New(0)
	defer r.Release()

	c := r.Clone()
	h := Go(
		ctx,
		func(ctx context.Context) {
			defer c.Release()
			c.Do(func(v *int) { panic("held") })
		},
	)

	_, err := h.Join(ctx)
	var ae *AbortError
	if !errors.As(err, &ae) {
		t.Fatalf("TestAbortWhileHoldingShared: got err == %v, want *AbortError", err)
	}
	var pe *shared.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("TestAbortWhileHoldingShared: got Value %T, want *shared.PanicError", ae.Value)
	}
	if pe.Value != "held" {
		t.Errorf("TestAbortWhileHoldingShared: got panic value %v, want \"held\"", pe.Value)
	}
	if ae.Stack != pe.Stack {
		t.Errorf("TestAbortWhileHoldingShared: AbortError.Stack is not the stack of the holder's panic")
	}
	if !r.Poisoned() {
		t.Errorf("TestAbortWhileHoldingShared: got Poisoned() == false, want true")
	}
}

func TestSaturatedPoolNonBlocking(t *testing.T) {
	t.Parallel()

	limit, err := limited.New("", 1)
	if err != nil {
		t.Fatalf("TestSaturatedPoolNonBlocking: %s", err)
	}
	defer limit.Close()
	pooler, err := pooled.New("", 1)
	if err != nil {
		t.Fatalf("TestSaturatedPoolNonBlocking: %s", err)
	}
	defer pooler.Close()

	tests := []struct {
		desc        string
		pool        goroutines.Pool
		nonBlocking goroutines.SubmitOption
		// fill is how many workers it takes to make the next Spawn block.
		fill int
	}{
		{desc: "limited pool", pool: limit, nonBlocking: limited.NonBlocking(), fill: 1},
		// One worker runs, one sits in the queue.
		{desc: "pooled pool", pool: pooler, nonBlocking: pooled.NonBlocking(), fill: 2},
	}

	ctx := context.Background()
	for _, test := range tests {
		// The first workers wait for a message that only the last worker sends.
		release := make(chan struct{})
		var waiting []*Handle[struct{}]
		for i := 0; i < test.fill; i++ {
			waiting = append(waiting, Go(ctx, func(ctx context.Context) { <-release }, WithPool(test.pool)))
		}

		spawned := make(chan *Handle[struct{}], 1)
		go func() {
			spawned <- Go(ctx, func(ctx context.Context) { close(release) }, WithPool(test.pool, test.nonBlocking))
		}()

		select {
		case h := <-spawned:
			if _, err := h.Join(ctx); err != nil {
				t.Errorf("TestSaturatedPoolNonBlocking(%s): got err == %s", test.desc, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("TestSaturatedPoolNonBlocking(%s): Spawn() with NonBlocking() blocked on a full pool", test.desc)
		}
		if _, err := JoinAll(ctx, waiting...); err != nil {
			t.Errorf("TestSaturatedPoolNonBlocking(%s): got err == %s", test.desc, err)
		}
	}
}

func TestJoinAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	got, err := JoinAll[int](ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("TestJoinAll(no handles): got (%v, %v)", got, err)
	}

	hs := []*Handle[string]{
		Spawn(ctx, func(ctx context.Context) string { return "a" }),
		Spawn(ctx, func(ctx context.Context) string { panic("b") }),
		Spawn(ctx, func(ctx context.Context) string { panic("c") }),
	}
	got2, err := JoinAll(ctx, hs...)
	if err == nil {
		t.Fatalf("TestJoinAll: want err != nil, got nil")
	}
	if !strings.Contains(err.Error(), "aborted: b") || !strings.Contains(err.Error(), "aborted: c") {
		t.Errorf("TestJoinAll: error does not carry both aborts: %s", err)
	}
	if diff := pretty.Compare([]string{"a", "", ""}, got2); diff != "" {
		t.Errorf("TestJoinAll: -want/+got:\n%s", diff)
	}
}

func TestBadPoolOptionPanics(t *testing.T) {
	t.Parallel()

	limit, err := limited.New("", 1)
	if err != nil {
		t.Fatalf("TestBadPoolOptionPanics: %s", err)
	}
	defer limit.Close()

	defer func() {
		if recover() == nil {
			t.Errorf("TestBadPoolOptionPanics: Spawn() with a pooled option on a limited.Pool did not panic")
		}
	}()
	Go(context.Background(), func(ctx context.Context) {}, WithPool(limit, pooled.NonBlocking()))
}

func TestNilWorkPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Errorf("TestNilWorkPanics: Spawn(nil) did not panic")
		}
	}()
	Spawn[int](context.Background(), nil)
}

func TestHandleIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := Go(ctx, func(ctx context.Context) {}, WithName("a"))
	b := Go(ctx, func(ctx context.Context) {})
	defer a.Join(ctx)
	defer b.Join(ctx)

	if a.ID() == b.ID() {
		t.Errorf("TestHandleIdentity: two workers share ID %s", a.ID())
	}
	if a.Name() != "a" || b.Name() != "" {
		t.Errorf("TestHandleIdentity: got names (%q, %q), want (\"a\", \"\")", a.Name(), b.Name())
	}
}
