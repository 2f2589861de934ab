/*
Copyright © 2023 John Doak <doak@askdoak.com>
*/

// Package cmd holds the cobra commands for the threadkit binary.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "threadkit",
	Short: "Runs demos of workers, channels and shared mutexes",
	Long: `threadkit runs small programs that spawn workers, pass messages over
multi-producer channels and share state behind a poisoning mutex.

Workers can be run on naked goroutines or on a limited or pooled executor:

	threadkit run counter --executor=pooled --pool-size=4 --workers=100

Settings can come from flags, a config file or THREADKIT_ environment variables.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.threadkit.yaml)")
	flags.String("executor", "goroutine", "where workers run: goroutine, limited or pooled")
	flags.Int("pool-size", 0, "size of the limited or pooled executor, 0 means runtime.NumCPU()")
	flags.Int("workers", 10, "number of workers the counter demo spawns")

	for _, name := range []string{"executor", "pool-size", "workers"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".threadkit")
	}

	viper.SetEnvPrefix("threadkit")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
