package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spaghettifunk/prism/engine/renderer/vulkan/recording"
	"github.com/spf13/cobra"
)

const pollInterval = 100 * time.Millisecond

func init() {
	watchCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use an in-memory device instead of the GPU")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [document.gltf]",
	Short: "Upload a document and reload it whenever its files change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, done, err := startEngine(args[0])
		if err != nil {
			return err
		}
		defer done()

		out := cmd.OutOrStdout()
		rec := &recording.Recorder{}
		stats, err := e.Frame(rec)
		if err != nil {
			return err
		}
		printStats(out, e, stats)

		if err := e.Watch(ctx); err != nil {
			return err
		}
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return e.Shutdown()
			case <-ticker.C:
				reloaded, err := e.PollReload()
				if err != nil {
					fmt.Fprintf(out, "reload failed, keeping the previous scene: %s\n", err)
					continue
				}
				if !reloaded {
					continue
				}
				rec.Reset()
				if stats, err = e.Frame(rec); err != nil {
					return err
				}
				printStats(out, e, stats)
			}
		}
	},
}
