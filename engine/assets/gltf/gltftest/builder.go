// Package gltftest builds small documents and their binary payload in
// memory, for tests that need real files behind the accessor reader.
package gltftest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/spaghettifunk/prism/engine/assets/gltf"
)

type Builder struct {
	doc    gltf.Document
	bin    bytes.Buffer
	binURI string
}

// New starts a document whose single buffer is stored in binURI.
func New(binURI string) *Builder {
	b := &Builder{binURI: binURI}
	b.doc.Asset = gltf.Asset{Version: "2.0", Generator: "gltftest"}
	b.doc.Buffers = []gltf.Buffer{{URI: binURI}}
	return b
}

// AddView appends data to the buffer, 4-byte aligned, and returns the index
// of a bufferView covering it.
func (b *Builder) AddView(data []byte, stride int) int {
	for b.bin.Len()%4 != 0 {
		b.bin.WriteByte(0)
	}
	offset := b.bin.Len()
	b.bin.Write(data)
	b.doc.BufferViews = append(b.doc.BufferViews, gltf.BufferView{
		Buffer:     0,
		ByteOffset: offset,
		ByteLength: len(data),
		ByteStride: stride,
	})
	return len(b.doc.BufferViews) - 1
}

func (b *Builder) AddAccessor(a gltf.Accessor) int {
	b.doc.Accessors = append(b.doc.Accessors, a)
	return len(b.doc.Accessors) - 1
}

// AddFloats stores values in their own view and returns the accessor index.
func (b *Builder) AddFloats(t gltf.AccessorType, values ...float32) int {
	view := b.AddView(encode(values), 0)
	return b.AddAccessor(gltf.Accessor{
		BufferView:    &view,
		ComponentType: gltf.ComponentFloat,
		Count:         len(values) / gltf.ComponentsPerType(t),
		Type:          t,
	})
}

func (b *Builder) AddIndices8(values ...uint8) int {
	return b.addIndices(gltf.ComponentUnsignedByte, encode(values), len(values))
}

func (b *Builder) AddIndices16(values ...uint16) int {
	return b.addIndices(gltf.ComponentUnsignedShort, encode(values), len(values))
}

func (b *Builder) AddIndices32(values ...uint32) int {
	return b.addIndices(gltf.ComponentUnsignedInt, encode(values), len(values))
}

func (b *Builder) addIndices(ct gltf.ComponentType, data []byte, count int) int {
	view := b.AddView(data, 0)
	return b.AddAccessor(gltf.Accessor{
		BufferView:    &view,
		ComponentType: ct,
		Count:         count,
		Type:          gltf.AccessorScalar,
	})
}

// Triangle adds a unit triangle and returns a primitive drawing it.
func (b *Builder) Triangle(material *int) gltf.Primitive {
	position := b.AddFloats(gltf.AccessorVec3,
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
	)
	indices := b.AddIndices16(0, 1, 2)
	return gltf.Primitive{
		Attributes: map[string]int{gltf.AttributePosition: position},
		Indices:    &indices,
		Material:   material,
	}
}

func (b *Builder) AddMesh(primitives ...gltf.Primitive) int {
	b.doc.Meshes = append(b.doc.Meshes, gltf.Mesh{Primitives: primitives})
	return len(b.doc.Meshes) - 1
}

func (b *Builder) AddNode(n gltf.Node) int {
	b.doc.Nodes = append(b.doc.Nodes, n)
	return len(b.doc.Nodes) - 1
}

// Translated gives n a full translation, rotation and scale, placing it at
// (x, y, z) with no rotation and unit scale.
func Translated(n gltf.Node, x, y, z float32) gltf.Node {
	n.Translation = []float32{x, y, z}
	n.Rotation = []float32{0, 0, 0, 1}
	n.Scale = []float32{1, 1, 1}
	return n
}

func (b *Builder) AddScene(name string, roots ...int) int {
	b.doc.Scenes = append(b.doc.Scenes, gltf.Scene{Name: name, Nodes: roots})
	return len(b.doc.Scenes) - 1
}

func (b *Builder) AddMaterial(m gltf.Material) int {
	b.doc.Materials = append(b.doc.Materials, m)
	return len(b.doc.Materials) - 1
}

// AddTexture registers an image file and a texture sampling it.
func (b *Builder) AddTexture(uri string, sampler gltf.Sampler) int {
	b.doc.Images = append(b.doc.Images, gltf.Image{URI: uri})
	b.doc.Samplers = append(b.doc.Samplers, sampler)
	source := len(b.doc.Images) - 1
	s := len(b.doc.Samplers) - 1
	b.doc.Textures = append(b.doc.Textures, gltf.Texture{Source: &source, Sampler: &s})
	return len(b.doc.Textures) - 1
}

// Document returns a copy of the document built so far.
func (b *Builder) Document(path string) *gltf.Document {
	doc := b.doc
	doc.Buffers = append([]gltf.Buffer(nil), b.doc.Buffers...)
	doc.Buffers[0].ByteLength = b.bin.Len()
	doc.Path = path
	return &doc
}

func (b *Builder) Binary() []byte {
	return b.bin.Bytes()
}

// Write stores the document at path and its buffer next to it.
func (b *Builder) Write(fs billy.Filesystem, path string) (*gltf.Document, error) {
	doc := b.Document(path)
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if err := util.WriteFile(fs, path, data, 0o644); err != nil {
		return nil, err
	}
	if err := util.WriteFile(fs, filepath.Join(filepath.Dir(path), b.binURI), b.Binary(), 0o644); err != nil {
		return nil, err
	}
	return doc, nil
}

func encode(values any) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, values)
	return buf.Bytes()
}
