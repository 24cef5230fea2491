package cmd

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "meridian-bench",
	Short: "Drive a scripted workload against a Meridian cluster",
	Long: `meridian-bench connects to a cluster using the same Connect/Options
surface an application would, then runs a scripted mix of upserts and
gets (optionally query-service requests) against it, reporting latency
and error counts.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML/JSON config file (see pkg/agentconfig.Config)")
	rootCmd.AddCommand(runCmd)
}
