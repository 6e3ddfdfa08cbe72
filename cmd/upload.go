package cmd

import (
	"fmt"
	"io"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan/recording"
	"github.com/spf13/cobra"
)

var dryRun bool

func init() {
	uploadCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use an in-memory device instead of the GPU")
	rootCmd.AddCommand(uploadCmd)
}

var uploadCmd = &cobra.Command{
	Use:   "upload [document.gltf]",
	Short: "Upload a document to the GPU, record one frame and release it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, done, err := startEngine(args[0])
		if err != nil {
			return err
		}
		defer done()

		stats, err := e.Frame(&recording.Recorder{})
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), e, stats)
		return e.Shutdown()
	},
}

// startEngine creates an engine on the configured device and loads the
// document at path. done releases the device.
func startEngine(path string) (*engine.Engine, func(), error) {
	fs, name, err := openDir(path)
	if err != nil {
		return nil, nil, err
	}

	var (
		dev     vulkan.Device
		layouts vulkan.SceneLayouts
		release = func() {}
	)
	if dryRun {
		rd := recording.NewDevice()
		dev, layouts = rd, rd.SceneLayouts()
	} else {
		vb, err := vulkan.NewVulkanBackend(cfg.Vulkan)
		if err != nil {
			return nil, nil, err
		}
		if layouts, err = vb.CreateSceneLayouts(); err != nil {
			vb.Destroy()
			return nil, nil, err
		}
		dev, release = vb, vb.Destroy
	}

	e, err := engine.New(cfg, fs, dev, layouts)
	if err != nil {
		release()
		return nil, nil, err
	}
	done := func() {
		_ = e.Shutdown()
		release()
	}
	if err := e.LoadScene(name); err != nil {
		done()
		return nil, nil, err
	}
	return e, done, nil
}

func printStats(w io.Writer, e *engine.Engine, stats renderer.FrameStats) {
	s := e.Scene()
	fmt.Fprintf(w, "scene %q (%s): %d nodes, %d matrices, %d texture binds, %d draws in %s\n",
		s.Name(), s.ID.Short(), stats.Nodes, stats.Matrices, stats.Materials, stats.Draws, stats.Elapsed)
}
