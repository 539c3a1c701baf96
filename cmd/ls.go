package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/parafetch/parafetch/internal/engine/state"
	"github.com/parafetch/parafetch/internal/utils"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List resumable downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		downloads, err := state.List()
		if err != nil {
			return err
		}
		if len(downloads) == 0 {
			fmt.Println("No resumable downloads.")
			return nil
		}

		ids := make([]string, 0, len(downloads))
		for id := range downloads {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILE\tPROGRESS\tURL")
		for _, id := range ids {
			meta := downloads[id]
			downloaded := state.Downloaded(id, meta.Segments)
			fmt.Fprintf(w, "%s\t%s\t%s / %s\t%s\n",
				id,
				meta.Filename,
				utils.ConvertBytesToHumanReadable(downloaded),
				utils.ConvertBytesToHumanReadable(meta.TotalSize),
				meta.URL,
			)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
