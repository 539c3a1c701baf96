package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parafetch/parafetch/internal/engine/state"
)

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a download's scratch state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		meta, err := state.Load(id)
		if err != nil {
			return fmt.Errorf("no state for %s", id)
		}
		state.Cleanup(id, meta.Segments)
		fmt.Printf("Removed %s (%s)\n", id, meta.Filename)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
