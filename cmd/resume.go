package cmd

import (
	"github.com/spf13/cobra"

	"github.com/parafetch/parafetch/internal/engine"
	"github.com/parafetch/parafetch/internal/engine/types"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a paused or interrupted download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limitStr, _ := cmd.Flags().GetString("limit")
		insecure, _ := cmd.Flags().GetBool("insecure")

		limit, err := parseRate(limitStr)
		if err != nil {
			return err
		}

		cfg := &types.Config{SpeedCap: limit, Insecure: insecure}
		e := engine.New(cfg)

		id := args[0]
		return runAttached(e, func() (string, error) {
			return id, e.Resume(id)
		})
	},
}

func init() {
	resumeCmd.Flags().String("limit", "", "download speed cap, e.g. 500k, 2m (bytes/sec)")
	rootCmd.AddCommand(resumeCmd)
}
