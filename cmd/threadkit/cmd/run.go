/*
Copyright © 2023 John Doak <doak@askdoak.com>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gostdlib/threadkit/demos"
	"github.com/gostdlib/threadkit/prim/worker"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:       "run <demo>",
	Short:     "Runs a demo",
	Long:      `Runs a demo on the configured executor. Use "threadkit list" to see the demos.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: demoNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		err = runDemo(cmd.Context(), cmd.OutOrStdout(), args[0], cfg)
		if worker.IsErrAborted(err) {
			cmd.PrintErrln(demos.Diagnose(err))
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runDemo runs the demo called name with cfg, writing the demo output to w.
func runDemo(ctx context.Context, w io.Writer, name string, cfg config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	d, ok := demos.Get(name)
	if !ok {
		return fmt.Errorf("no demo named %q, must be one of: %s", name, strings.Join(demoNames(), ", "))
	}

	p, options, err := cfg.executor()
	if err != nil {
		return err
	}
	if p != nil {
		defer p.Close()
	}

	if err := d.Run(ctx, w, demos.Settings{Workers: cfg.Workers, Options: options}); err != nil {
		return fmt.Errorf("demo %s failed: %w", name, err)
	}
	return nil
}

func demoNames() []string {
	var names []string
	for _, d := range demos.All() {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}
