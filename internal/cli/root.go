// Package cli implements the patchgate command tree: a serve daemon plus
// operator commands that talk to it over HTTP.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "patchgate",
	Short: "Capability gate for autonomous agent side effects",
	Long: "patchgate mediates agent side effects through a capability policy:\n" +
		"allowed effects apply immediately, reviewable ones queue for a human\n" +
		"decision, forbidden ones are refused outright.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to the patchgate yaml config")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8091",
		"base URL of a running patchgate daemon")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
