package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "parafetch",
	Short:   "A parallel segmented download manager written in Go",
	Long: `Parafetch downloads a file over HTTP(S) or FTP by splitting it into
byte-range segments fetched concurrently. Interrupted downloads keep
their per-segment scratch state and can be resumed at any time.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("insecure", false, "skip TLS certificate verification")
}
