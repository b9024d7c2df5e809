package cli

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var verbosity int

var rootCmd = &cobra.Command{
	Use:           "flowctl",
	Short:         "Run a flowrun example scenario and watch its events",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	log.SetReportTimestamp(true)
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity")
	cobra.OnInitialize(initVerbosity)
	rootCmd.AddCommand(runCmd)
}

func initVerbosity() {
	if verbosity >= 1 {
		log.SetLevel(log.DebugLevel)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
