/*
Package limited provides a goroutine execution Pool that spins a goroutine per Submit()
but is hard limited to the number of goroutines that can run at any time.

This is the pool to hand to worker.WithPool() when you want a cap on how many
workers run at once but still want a fresh goroutine for each worker. It starts
fast and tears down fast, which suits short lived pools.

See the package "goroutines" for an overview of using pools.
*/
package limited

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gostdlib/internals/otel/span"
	"github.com/gostdlib/threadkit/goroutines"
	"github.com/gostdlib/threadkit/goroutines/internal/pool"
	"github.com/gostdlib/threadkit/goroutines/internal/register"
)

var _ goroutines.Pool = &Pool{}

// Pool is a pool of goroutines.
type Pool struct {
	wg        sync.WaitGroup
	running   atomic.Int64
	pool.Pool // Implements the pool.Preventer interface
	slots     chan struct{}
	name      string
}

// New creates a new Pool. "name" is used to label OTEL events and must be unique
// in the program. If it is not, a unique name is derived from it. If name is the
// empty string, the pool is not registered. Names cannot contain spaces, hyphens,
// or numbers. "size" is the number of goroutines that can execute concurrently.
func New(name string, size int) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("cannot have a Pool with size < 1")
	}
	if err := register.ValidateBaseName(name); err != nil {
		return nil, err
	}

	p := &Pool{name: name, slots: make(chan struct{}, size)}

	for {
		if err := register.Register(p); err != nil {
			p.name = register.NewName(p.name)
			continue
		}
		break
	}
	return p, nil
}

// Close waits for all submitted jobs to stop and removes the pool from the registry.
func (p *Pool) Close() {
	p.wg.Wait()
	register.Unregister(p)
}

// Wait will wait for all goroutines in the pool to finish. If you need to only
// wait on a subset of jobs, use worker handles instead.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Len returns the maximum number of jobs that run at once.
func (p *Pool) Len() int {
	return cap(p.slots)
}

// Running returns the number of running jobs in the pool.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// GetName gets the name of the goroutines pool.
func (p *Pool) GetName() string {
	return p.name
}

// NonBlocking indicates that if we are at our limit, we still run the goroutine
// and it is not counted against the total. This is useful when you want to track
// the job but need it to run now and don't want to do it naked.
func NonBlocking() goroutines.SubmitOption {
	return func(opt *pool.SubmitOptions) error {
		if opt.Type != pool.PTLimited {
			return fmt.Errorf("cannot use limited.NonBlocking() with a non limited.Pool")
		}
		opt.NonBlocking = true
		return nil
	}
}

// Caller sets the name of the calling function so that traces can differentiate
// who is using the goroutines in the pool. If this is not set, we use runtime.FuncForPC(),
// which cannot name generic functions reliably.
func Caller(name string) goroutines.SubmitOption {
	return func(opt *pool.SubmitOptions) error {
		if opt.Type != pool.PTLimited {
			return fmt.Errorf("cannot use limited.Caller() with a non limited.Pool")
		}
		opt.Caller = name
		return nil
	}
}

// Submit submits the runner to be executed. This blocks while the pool is at its
// limit, unless NonBlocking() is passed.
func (p *Pool) Submit(ctx context.Context, runner goroutines.Job, options ...goroutines.SubmitOption) error {
	spanner := span.Get(ctx)
	if runner == nil {
		err := fmt.Errorf("cannot submit a runner that is nil")
		spanner.Error(err)
		return err
	}

	opts := pool.SubmitOptions{Type: pool.PTLimited}
	for _, o := range options {
		if err := o(&opts); err != nil {
			spanner.Error(err)
			return err
		}
	}

	now := time.Now()
	fcn := p.callerName(opts)

	limited := !opts.NonBlocking
	if limited {
		select {
		case p.slots <- struct{}{}:
		default:
			p.blockEvent(spanner, fcn, now)
			p.slots <- struct{}{}
		}
	}
	p.submitEvent(spanner, fcn, opts.NonBlocking, now)

	p.wg.Add(1)
	p.running.Add(1)

	go func() {
		defer p.wg.Done()
		defer p.running.Add(-1)
		if limited {
			defer func() { <-p.slots }()
		}
		runner(ctx)
	}()

	return nil
}

func (p *Pool) submitEvent(spanner span.Span, fcn string, nonBlock bool, t time.Time) {
	spanner.Event(
		"Pool.Submit() called",
		"pkg", "github.com/gostdlib/threadkit/goroutines/limited",
		"caller", fcn,
		"name", p.name,
		"non_blocking", nonBlock,
		"submit_latency_ns", time.Since(t),
	)
}

func (p *Pool) blockEvent(spanner span.Span, fcn string, t time.Time) {
	spanner.Event(
		"Pool.Submit() blocking....",
		"pkg", "github.com/gostdlib/threadkit/goroutines/limited",
		"caller", fcn,
		"name", p.name,
		"event", "blocking",
		"submit_latency_ns", time.Since(t),
	)
}

func (p *Pool) callerName(opts pool.SubmitOptions) string {
	if opts.Caller != "" {
		return opts.Caller
	}

	pc, _, _, ok := runtime.Caller(2)
	details := runtime.FuncForPC(pc)
	if ok && details != nil {
		return details.Name()
	}
	return ""
}
