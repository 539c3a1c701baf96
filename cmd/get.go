package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parafetch/parafetch/internal/engine"
	"github.com/parafetch/parafetch/internal/engine/types"
)

var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Download a file",
	Long: `Download a file with segmented parallel connections.

Ctrl+C pauses the download and prints the id to resume it later with
'parafetch resume <id>'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputDir, _ := cmd.Flags().GetString("output")
		limitStr, _ := cmd.Flags().GetString("limit")
		insecure, _ := cmd.Flags().GetBool("insecure")

		limit, err := parseRate(limitStr)
		if err != nil {
			return fmt.Errorf("invalid --limit: %w", err)
		}

		if outputDir == "" {
			outputDir, err = os.Getwd()
			if err != nil {
				return err
			}
		}

		cfg := &types.Config{SpeedCap: limit, Insecure: insecure}
		e := engine.New(cfg)

		return runAttached(e, func() (string, error) {
			return e.Start(args[0], outputDir)
		})
	},
}

func init() {
	getCmd.Flags().StringP("output", "o", "", "output directory (default: current directory)")
	getCmd.Flags().String("limit", "", "download speed cap, e.g. 500k, 2m (bytes/sec)")
	rootCmd.AddCommand(getCmd)
}

// runAttached wires an engine to the terminal: progress bar, SIGINT as
// pause, and exit status from the terminal event.
func runAttached(e *engine.Engine, launch func() (string, error)) error {
	render := newRenderer()
	e.Attach(render)

	id, err := launch()
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	pausing := false
	for {
		select {
		case <-sigCh:
			if pausing {
				// Second interrupt cancels outright.
				e.Cancel()
				continue
			}
			pausing = true
			fmt.Fprintln(os.Stderr, "\nPausing...")
			e.Pause()
		case result := <-render.done:
			switch {
			case result.paused:
				fmt.Fprintf(os.Stderr, "Paused. Resume with: parafetch resume %s\n", id)
				return nil
			case result.success:
				return nil
			default:
				return fmt.Errorf("%s", result.message)
			}
		}
	}
}
