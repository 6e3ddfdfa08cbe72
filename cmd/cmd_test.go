package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spaghettifunk/prism/engine/assets/gltf"
	"github.com/spaghettifunk/prism/engine/assets/gltf/gltftest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(i int) *int { return &i }

// writeDemo stores a document with a root node and one child, both
// drawing a triangle, and returns its path.
func writeDemo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	b := gltftest.New("demo.bin")
	child := b.AddNode(gltftest.Translated(gltf.Node{Name: "child", Mesh: ptr(b.AddMesh(b.Triangle(nil)))}, 0, 2, 0))
	root := b.AddNode(gltftest.Translated(gltf.Node{Name: "root", Mesh: ptr(b.AddMesh(b.Triangle(nil))), Children: []int{child}}, 1, 0, 0))
	b.AddScene("demo", root)
	_, err := b.Write(osfs.New(dir), "demo.gltf")
	require.NoError(t, err)
	return filepath.Join(dir, "demo.gltf")
}

// run executes the root command with a config file that does not exist
// unless the caller passes its own --config.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	base := []string{"--config", filepath.Join(t.TempDir(), "prism.toml"), "--log-level", "error"}
	rootCmd.SetArgs(append(base, args...))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInspectPrintsTree(t *testing.T) {
	out, err := run(t, "inspect", writeDemo(t))
	require.NoError(t, err)

	assert.Contains(t, out, `scene "demo"`)
	assert.Contains(t, out, "- root at (1.00, 0.00, 0.00)\n")
	assert.Contains(t, out, "  - child at (1.00, 2.00, 0.00)\n")
	assert.Contains(t, out, "geometry 0: vertices [3, 6) indices [3, 6) material -1")
	assert.Contains(t, out, "2 nodes, 2 drawable, 2 geometries, 6 vertices, 6 indices, 0 materials")
}

func TestInspectAppliesConfig(t *testing.T) {
	doc := writeDemo(t)
	cfgPath := filepath.Join(t.TempDir(), "prism.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[scene]\ntranslation = [0.0, 0.0, 3.0]\n"), 0o644))

	out, err := run(t, "inspect", "--config", cfgPath, "--scene", "0", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "- root at (1.00, 0.00, 3.00)\n")
}

func TestInspectMissingDocument(t *testing.T) {
	_, err := run(t, "inspect", filepath.Join(t.TempDir(), "nope.gltf"))
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "inspect", "--log-level", "loud", writeDemo(t))
	assert.Error(t, err)
}

func TestUploadDryRun(t *testing.T) {
	out, err := run(t, "upload", "--dry-run", writeDemo(t))
	require.NoError(t, err)
	assert.Contains(t, out, `scene "demo"`)
	assert.Contains(t, out, "2 nodes, 2 matrices, 0 texture binds, 2 draws")
}

func TestUploadDryRunBrokenDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.gltf")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := run(t, "upload", "--dry-run", path)
	assert.Error(t, err)
}
