package scene

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/assets/gltf"
	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// Scene is a Graph whose data lives on the GPU: one vertex buffer and one
// index buffer shared by every geometry, a uniform buffer with the global
// transform of every drawable node and a descriptor set per material.
type Scene struct {
	ID    core.Identifier
	Graph *Graph

	rm      *vulkan.ResourceManager
	layouts vulkan.SceneLayouts

	vertices *vulkan.Buffer[Vertex]
	indices  *vulkan.Buffer[uint32]
	matrices *vulkan.Buffer[byte]

	matrixSet    vulkan.DescriptorSetHandle
	matrixStride uint64

	materials map[int]*Material
	images    map[int]*vulkan.Image

	destroyed bool
}

type UploadOption func(*upload)

// WithAnisotropy requests anisotropic filtering on every texture sampler.
// The device clamps it to what it supports.
func WithAnisotropy(level float32) UploadOption {
	return func(u *upload) {
		u.anisotropy = level
	}
}

// WithDecodeWorkers sets how many images are decoded at the same time.
func WithDecodeWorkers(n int) UploadOption {
	return func(u *upload) {
		u.workers = max(n, 1)
	}
}

type upload struct {
	doc        *gltf.Document
	rm         *vulkan.ResourceManager
	alloc      *vulkan.DescriptorAllocator
	layouts    vulkan.SceneLayouts
	anisotropy float32
	workers    int
	scene      *Scene

	decoded    map[int]*image.RGBA
	decodeErrs map[int]error
}

// Upload creates the GPU resources of g. Images are read through the
// filesystem of rm, relative to the document. On failure everything
// created so far is released.
func Upload(g *Graph, doc *gltf.Document, rm *vulkan.ResourceManager, alloc *vulkan.DescriptorAllocator, layouts vulkan.SceneLayouts, opts ...UploadOption) (*Scene, error) {
	u := &upload{
		doc:     doc,
		rm:      rm,
		alloc:   alloc,
		layouts: layouts,
		workers: runtime.NumCPU(),
		scene: &Scene{
			ID:        g.ID,
			Graph:     g,
			rm:        rm,
			layouts:   layouts,
			materials: make(map[int]*Material),
			images:    make(map[int]*vulkan.Image),
		},
		decoded:    make(map[int]*image.RGBA),
		decodeErrs: make(map[int]error),
	}
	for _, o := range opts {
		o(u)
	}

	if err := u.run(); err != nil {
		if barrier, werr := rm.WaitIdle(); werr == nil {
			_ = u.scene.Destroy(barrier)
		}
		return nil, err
	}
	s := u.scene
	core.LogInfo("uploaded scene %q (%s): %d vertices, %d indices, %d matrices, %d materials",
		g.Name, g.ID.Short(), len(g.vertices), len(g.indices), g.DrawableCount(), len(s.materials))
	return s, nil
}

func (u *upload) run() error {
	g := u.scene.Graph
	if len(g.vertices) == 0 {
		return nil
	}

	var err error
	if u.scene.vertices, err = vulkan.CreateBuffer(u.rm, g.vertices, vk.BufferUsageVertexBufferBit); err != nil {
		return err
	}
	if u.scene.indices, err = vulkan.CreateBuffer(u.rm, g.indices, vk.BufferUsageIndexBufferBit); err != nil {
		return err
	}
	if err := u.validateRanges(); err != nil {
		return err
	}
	if err := u.uploadMatrices(); err != nil {
		return err
	}
	materials := g.Materials()
	if err := u.decodeImages(u.textureSources(materials)); err != nil {
		return err
	}
	for _, index := range materials {
		m, err := u.material(index)
		if err != nil {
			return err
		}
		u.scene.materials[index] = m
	}
	return nil
}

// validateRanges checks every geometry against the buffers it points into
// and reports the first one that does not fit.
func (u *upload) validateRanges() error {
	return u.scene.Graph.WalkErr(func(h NodeHandle, n *Node) error {
		for _, geo := range n.Geometries {
			if _, err := u.scene.vertices.GetRef(geo.Vertices.Offset, geo.Vertices.Count); err != nil {
				return fmt.Errorf("node %d vertices: %w", h, err)
			}
			if _, err := u.scene.indices.GetRef(geo.Indices.Offset, geo.Indices.Count); err != nil {
				return fmt.Errorf("node %d indices: %w", h, err)
			}
		}
		return nil
	})
}

// MatrixStride is the distance between two transforms in the matrix buffer.
func MatrixStride(limits vulkan.DeviceLimits) uint64 {
	return pmath.Pad(uint64(vulkan.MatrixSize), limits.MinUniformBufferOffsetAlignment)
}

// uploadMatrices writes the global transform of every drawable node, in
// pre-order, one per stride, and points the matrix set at the first one.
func (u *upload) uploadMatrices() error {
	g := u.scene.Graph
	drawables := g.DrawableCount()
	if drawables == 0 {
		return nil
	}
	stride := MatrixStride(u.rm.Device().Limits())
	data := make([]byte, uint64(drawables)*stride)
	slot := uint64(0)
	g.Walk(func(_ NodeHandle, n *Node) bool {
		if n.Drawable() {
			putMatrix(data[slot*stride:], n)
			slot++
		}
		return true
	})

	var err error
	if u.scene.matrices, err = vulkan.CreateBuffer(u.rm, data, vk.BufferUsageUniformBufferBit); err != nil {
		return err
	}
	u.scene.matrixStride = stride
	u.scene.matrixSet, err = vulkan.NewDescriptorBuilder(u.alloc).
		BindBuffer(0, vk.DescriptorTypeUniformBufferDynamic, u.scene.matrices.Handle(), 0, vulkan.MatrixSize).
		Build(u.layouts.Matrix)
	return err
}

// putMatrix stores the column-major global transform of n.
func putMatrix(dst []byte, n *Node) {
	for i, f := range n.Global {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}

func (u *upload) malformed(op string, err error) error {
	e := core.NewMalformedError(op, u.doc.Path, err)
	core.LogError("%s", e)
	return e
}

func (s *Scene) Name() string { return s.Graph.Name }

// VertexBuffer and IndexBuffer are zero for a scene without geometry.
func (s *Scene) VertexBuffer() vulkan.BufferHandle {
	if s.vertices == nil {
		return 0
	}
	return s.vertices.Handle()
}

func (s *Scene) IndexBuffer() vulkan.BufferHandle {
	if s.indices == nil {
		return 0
	}
	return s.indices.Handle()
}

func (s *Scene) MatrixSet() vulkan.DescriptorSetHandle { return s.matrixSet }
func (s *Scene) MatrixStride() uint64                  { return s.matrixStride }
func (s *Scene) Layouts() vulkan.SceneLayouts          { return s.layouts }
func (s *Scene) Destroyed() bool                       { return s.destroyed }

// Material returns the uploaded material index, nil when the document
// material was never drawn.
func (s *Scene) Material(index int) *Material {
	return s.materials[index]
}

// Destroy releases the buffers and textures of the scene. Its descriptor
// sets go back to their pools on the allocator's next reset.
func (s *Scene) Destroy(barrier vulkan.IdleBarrier) error {
	if s.destroyed {
		return nil
	}
	var errs []error
	if s.vertices != nil {
		errs = append(errs, s.vertices.Destroy(barrier))
	}
	if s.indices != nil {
		errs = append(errs, s.indices.Destroy(barrier))
	}
	if s.matrices != nil {
		errs = append(errs, s.matrices.Destroy(barrier))
	}
	for _, img := range s.images {
		errs = append(errs, img.Destroy(barrier))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.destroyed = true
	core.LogDebug("destroyed scene %q (%s)", s.Graph.Name, s.ID.Short())
	return nil
}
