package gltf

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/spaghettifunk/prism/engine/core"
)

// Open reads and decodes the document at path.
func Open(fs billy.Filesystem, path string) (*Document, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, ioFailure("open document", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, ioFailure("read document", path, err)
	}
	return Parse(data, path)
}

// Parse decodes an in-memory document. path is only used to resolve the
// URIs of buffers and images.
func Parse(data []byte, path string) (*Document, error) {
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, malformed("decode document", path, err)
	}
	doc.Path = path
	return doc, nil
}

// DefaultScene is the scene declared by the document, or the first one.
func (d *Document) DefaultScene() int {
	if d.Scene != nil {
		return *d.Scene
	}
	return 0
}

// ResolveURI maps a URI relative to the document onto its filesystem.
func (d *Document) ResolveURI(uri string) string {
	if filepath.IsAbs(uri) {
		return uri
	}
	return filepath.Join(filepath.Dir(d.Path), filepath.FromSlash(uri))
}

func (d *Document) SceneAt(i int) (*Scene, error) {
	return at(d, d.Scenes, i, "scene")
}

func (d *Document) NodeAt(i int) (*Node, error) {
	return at(d, d.Nodes, i, "node")
}

func (d *Document) MeshAt(i int) (*Mesh, error) {
	return at(d, d.Meshes, i, "mesh")
}

func (d *Document) AccessorAt(i int) (*Accessor, error) {
	return at(d, d.Accessors, i, "accessor")
}

func (d *Document) BufferViewAt(i int) (*BufferView, error) {
	return at(d, d.BufferViews, i, "bufferView")
}

func (d *Document) BufferAt(i int) (*Buffer, error) {
	return at(d, d.Buffers, i, "buffer")
}

func (d *Document) MaterialAt(i int) (*Material, error) {
	return at(d, d.Materials, i, "material")
}

func (d *Document) TextureAt(i int) (*Texture, error) {
	return at(d, d.Textures, i, "texture")
}

func (d *Document) ImageAt(i int) (*Image, error) {
	return at(d, d.Images, i, "image")
}

func (d *Document) SamplerAt(i int) (*Sampler, error) {
	return at(d, d.Samplers, i, "sampler")
}

func at[T any](d *Document, items []T, i int, what string) (*T, error) {
	if i < 0 || i >= len(items) {
		return nil, malformed("lookup "+what, d.Path,
			fmt.Errorf("%s %d of %d: %w", what, i, len(items), core.ErrIndexOutOfRange))
	}
	return &items[i], nil
}

func malformed(op, path string, err error) error {
	e := core.NewMalformedError(op, path, err)
	core.LogError("%s", e)
	return e
}

func ioFailure(op, path string, err error) error {
	e := core.NewIOError(op, path, err)
	core.LogError("%s", e)
	return e
}
