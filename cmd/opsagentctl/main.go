package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command when opsagentctl is called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "opsagentctl",
	Short: "Run and operate the opsagent service",
	Long: `opsagentctl runs the opsagent HTTP service and provides the tooling
around it: database migrations, configuration inspection, token minting and
a command line client for the /agent endpoint.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
