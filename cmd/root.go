package cmd

import (
	"fmt"
	"os"

	"github.com/flagforge/storecheck/cmd/backends"
	"github.com/flagforge/storecheck/cmd/bench"
	"github.com/flagforge/storecheck/cmd/probe"
	"github.com/flagforge/storecheck/cmd/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "1.2.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "storecheck",
		Short: "conformance checker for feature flag storage backends",
		Long: fmt.Sprintf(`storecheck (v%s)

A conformance verification tool for pluggable persistent storage
backends. It runs a scenario suite covering the versioned upsert
protocol, namespace isolation and atomic initialization against a live
backend, and benchmarks the contract operations.`, Version),
		PersistentPreRunE: setupLogging,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of storecheck",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("storecheck v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(probe.ProbeCmd)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(backends.BackendsCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("Log level of the client libraries (debug, info, warn, error)"))
}

// setupLogging binds the persistent flags and configures logrus before any
// subcommand touches a backend.
func setupLogging(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", viper.GetString("log-level"), err)
	}
	logrus.SetLevel(level)
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
