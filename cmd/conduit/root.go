package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/conduit/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "conduit",
	Short: "Conduit - resilient multi-provider data gateway",
	Long: `Conduit serves financial, economic and demographic data from a set of
public providers behind one query interface.

Every query is answered from the response cache when possible, otherwise by
trying the providers configured for the capability in order. Each provider
has its own rate limit bucket and circuit breaker; when all of them fail the
last cached answer is returned and marked stale.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a code derived from the
// error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "conduit.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
