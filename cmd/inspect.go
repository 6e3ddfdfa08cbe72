package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/spaghettifunk/prism/engine/assets/gltf"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/scene"
	"github.com/spf13/cobra"
)

var inspectScene int

func init() {
	inspectCmd.Flags().IntVarP(&inspectScene, "scene", "s", -1, "Scene index, -1 for the document default")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [document.gltf]",
	Short: "Build the scene graph of a document and print it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, name, err := openDir(args[0])
		if err != nil {
			return err
		}
		index := cfg.Scene.Index
		if cmd.Flags().Changed("scene") {
			index = inspectScene
		}
		g, err := buildGraph(fs, name, cfg, index)
		if err != nil {
			return err
		}
		printGraph(cmd.OutOrStdout(), g)
		return nil
	},
}

// buildGraph runs the CPU side of loading only: nothing touches a device.
func buildGraph(fs billy.Filesystem, path string, cfg *config.Config, index int) (*scene.Graph, error) {
	doc, err := gltf.Open(fs, path)
	if err != nil {
		return nil, err
	}
	t, err := math.TransformFromSlices(cfg.Scene.Translation, cfg.Scene.Rotation, cfg.Scene.Scale)
	if err != nil {
		return nil, err
	}
	return scene.NewBuilder(doc, gltf.NewAccessorReader(fs, doc), scene.WithSceneTransform(t.Matrix())).Build(index)
}

func depth(g *scene.Graph, h scene.NodeHandle) int {
	d := 0
	for p := g.Node(h).Parent; p != scene.NoParent; p = g.Node(p).Parent {
		d++
	}
	return d
}

func printGraph(w io.Writer, g *scene.Graph) {
	fmt.Fprintf(w, "scene %q (%s)\n", g.Name, g.ID.Short())
	g.Walk(func(h scene.NodeHandle, n *scene.Node) bool {
		indent := strings.Repeat("  ", depth(g, h))
		name := n.Name
		if name == "" {
			name = fmt.Sprintf("node %d", h)
		}
		pos := n.Global.Col(3)
		fmt.Fprintf(w, "%s- %s at (%.2f, %.2f, %.2f)\n", indent, name, pos.X(), pos.Y(), pos.Z())
		for i, geo := range n.Geometries {
			fmt.Fprintf(w, "%s    geometry %d: vertices [%d, %d) indices [%d, %d) material %d\n",
				indent, i, geo.Vertices.Offset, geo.Vertices.End(), geo.Indices.Offset, geo.Indices.End(), geo.Material)
		}
		return true
	})
	fmt.Fprintf(w, "%d nodes, %d drawable, %d geometries, %d vertices, %d indices, %d materials\n",
		g.Len(), g.DrawableCount(), g.GeometryCount(), len(g.Vertices()), len(g.Indices()), len(g.Materials()))
}
