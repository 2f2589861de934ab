/*
Copyright © 2023 John Doak <doak@askdoak.com>
*/
package cmd

import (
	"fmt"
	"runtime"

	"github.com/gostdlib/threadkit/goroutines"
	"github.com/gostdlib/threadkit/goroutines/limited"
	"github.com/gostdlib/threadkit/goroutines/pooled"
	"github.com/gostdlib/threadkit/prim/worker"

	"github.com/spf13/viper"
)

// Executor names.
const (
	execGoroutine = "goroutine"
	execLimited   = "limited"
	execPooled    = "pooled"
)

// poolName is the registered name of the executor pool.
const poolName = "threadkit"

// config is the settings the demos are run with.
type config struct {
	Executor string `mapstructure:"executor"`
	PoolSize int    `mapstructure:"pool-size"`
	Workers  int    `mapstructure:"workers"`
}

// loadConfig decodes the settings viper has merged from flags, the config file
// and the environment.
func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("could not decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	switch c.Executor {
	case execGoroutine, execLimited, execPooled:
	default:
		return fmt.Errorf("executor %q is not one of %s, %s or %s", c.Executor, execGoroutine, execLimited, execPooled)
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("pool-size(%d) cannot be negative", c.PoolSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers(%d) cannot be negative", c.Workers)
	}
	return nil
}

// executor returns the worker options that route workers onto the configured
// executor. The returned pool is nil for the goroutine executor, otherwise the
// caller must Close() it.
func (c config) executor() (goroutines.Pool, []worker.Option, error) {
	size := c.PoolSize
	if size == 0 {
		size = runtime.NumCPU()
	}

	var (
		p   goroutines.Pool
		err error
	)
	switch c.Executor {
	case execGoroutine:
		return nil, nil, nil
	case execLimited:
		p, err = limited.New(poolName, size)
	case execPooled:
		p, err = pooled.New(poolName, size)
	default:
		return nil, nil, fmt.Errorf("unknown executor %q", c.Executor)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not create %s executor: %w", c.Executor, err)
	}
	return p, []worker.Option{worker.WithPool(p)}, nil
}
