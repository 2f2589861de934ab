package worker

import (
	"fmt"

	"github.com/gostdlib/threadkit/goroutines"
	"github.com/johnsiilver/calloptions"
)

type spawnOptions struct {
	name        string
	pool        goroutines.Pool
	poolOptions []goroutines.SubmitOption
}

// Option is an option for Spawn() and Go().
type Option interface {
	spawn()
}

// WithName names the worker. The name shows up in AbortError(s) and OTEL traces.
func WithName(name string) interface {
	Option
	calloptions.CallOption
} {
	return struct {
		Option
		calloptions.CallOption
	}{
		CallOption: calloptions.New(
			func(a any) error {
				switch t := a.(type) {
				case *spawnOptions:
					t.name = name
					return nil
				}
				return fmt.Errorf("WithName can only be used with Option")
			},
		),
	}
}

// WithPool runs the worker on pool, submitted with the pool specific options.
// A nil pool means a new goroutine per worker.
func WithPool(pool goroutines.Pool, options ...goroutines.SubmitOption) interface {
	Option
	calloptions.CallOption
} {
	return struct {
		Option
		calloptions.CallOption
	}{
		CallOption: calloptions.New(
			func(a any) error {
				switch t := a.(type) {
				case *spawnOptions:
					t.pool = pool
					t.poolOptions = options
					return nil
				}
				return fmt.Errorf("WithPool can only be used with Option")
			},
		),
	}
}
