/*
Package pooled provides a Pool of goroutines where you can submit Jobs
to be run by an existing goroutine instead of spinning off a new goroutine.

Handing a pooled.Pool to worker.WithPool() makes workers share a fixed set of
goroutines. A worker that is spawned while every goroutine is busy waits in
Spawn() until one frees up.

See the package "goroutines" for an overview of using pools.
*/
package pooled

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
	queue     chan submit
	size      int
	name      string
	closeOnce sync.Once
}

// New creates a new Pool. "name" is used to label OTEL events and must be unique
// in the program. If it is not, a unique name is derived from it. If name is the
// empty string, the pool is not registered. Names cannot contain spaces, hyphens,
// or numbers. "size" is the number of goroutines in the pool.
func New(name string, size int) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("cannot have a Pool with size < 1")
	}
	if err := register.ValidateBaseName(name); err != nil {
		return nil, err
	}

	p := &Pool{name: name, size: size, queue: make(chan submit, 1)}
	for i := 0; i < size; i++ {
		go p.runner()
	}

	for {
		if err := register.Register(p); err != nil {
			p.name = register.NewName(p.name)
			continue
		}
		break
	}
	return p, nil
}

// Close waits for all submitted jobs to stop, then stops all goroutines.
// No Submit() calls may be made after Close().
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.wg.Wait()
		close(p.queue)
		register.Unregister(p)
	})
}

// Wait will wait for all goroutines in the pool to finish. If you need to only
// wait on a subset of jobs, use worker handles instead.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Len returns the number of goroutines in the pool.
func (p *Pool) Len() int {
	return p.size
}

// Running returns the number of running jobs in the pool.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// GetName gets the name of the goroutines pool.
func (p *Pool) GetName() string {
	return p.name
}

type submit struct {
	ctx context.Context
	job goroutines.Job
}

// NonBlocking indicates that if a pooled goroutine is not available, spin off
// a goroutine and do not block.
func NonBlocking() goroutines.SubmitOption {
	return func(opt *pool.SubmitOptions) error {
		if opt.Type != pool.PTPooled {
			return fmt.Errorf("cannot use pooled.NonBlocking() with a non pooled.Pool")
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
		if opt.Type != pool.PTPooled {
			return fmt.Errorf("cannot use pooled.Caller() with a non pooled.Pool")
		}
		opt.Caller = name
		return nil
	}
}

// Submit submits the runner to be executed.
func (p *Pool) Submit(ctx context.Context, runner goroutines.Job, options ...goroutines.SubmitOption) error {
	spanner := span.Get(ctx)

	if runner == nil {
		err := fmt.Errorf("cannot submit a runner that is nil")
		spanner.Error(err)
		return err
	}

	opts := pool.SubmitOptions{Type: pool.PTPooled}
	for _, o := range options {
		if err := o(&opts); err != nil {
			spanner.Error(err)
			return err
		}
	}

	now := time.Now()
	s := submit{ctx: ctx, job: runner}
	fcn := p.callerName(opts)

	p.wg.Add(1)
	p.running.Add(1)
	if opts.NonBlocking {
		select {
		case p.queue <- s:
		default:
			go func() {
				defer p.wg.Done()
				defer p.running.Add(-1)
				s.job(ctx)
			}()
		}
		p.submitEvent(spanner, fcn, opts.NonBlocking, now)
		return nil
	}

	select {
	case p.queue <- s:
	default:
		p.blockEvent(spanner, fcn, now)
		p.queue <- s
	}
	p.submitEvent(spanner, fcn, opts.NonBlocking, now)
	return nil
}

func (p *Pool) submitEvent(spanner span.Span, fcn string, nonBlock bool, t time.Time) {
	spanner.Event(
		"Pool.Submit() called",
		"pkg", "github.com/gostdlib/threadkit/goroutines/pooled",
		"caller", fcn,
		"name", p.name,
		"non_blocking", nonBlock,
		"submit_latency_ns", time.Since(t),
	)
}

func (p *Pool) blockEvent(spanner span.Span, fcn string, t time.Time) {
	spanner.Event(
		"Pool.Submit() blocking....",
		"pkg", "github.com/gostdlib/threadkit/goroutines/pooled",
		"caller", fcn,
		"name", p.name,
		"event", "blocking",
		"submit_latency_ns", time.Since(t),
	)
}

// runner is used to run any function that comes in on the queue.
func (p *Pool) runner() {
	for s := range p.queue {
		p.run(s)
	}
}

// run runs a single job. A job that exits its goroutine with runtime.Goexit()
// takes the runner with it, so a replacement runner is started.
func (p *Pool) run(s submit) {
	completed := false
	defer func() {
		if !completed {
			go p.runner()
		}
	}()
	defer p.wg.Done()
	defer p.running.Add(-1)

	s.job(s.ctx)
	completed = true
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
