package scene_test

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/go-git/go-billy/v5/util"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/assets/gltf"
	"github.com/spaghettifunk/prism/engine/assets/gltf/gltftest"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan/recording"
	"github.com/spaghettifunk/prism/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gpu struct {
	dev     *recording.Device
	rm      *vulkan.ResourceManager
	alloc   *vulkan.DescriptorAllocator
	layouts vulkan.SceneLayouts
}

func newGPU(f fixture) gpu {
	dev := recording.NewDevice()
	return gpu{
		dev:     dev,
		rm:      vulkan.NewResourceManager(dev, f.fs),
		alloc:   vulkan.NewDescriptorAllocator(dev, vulkan.DefaultPoolSizes()),
		layouts: dev.SceneLayouts(),
	}
}

func (g gpu) upload(t *testing.T, f fixture, graph *scene.Graph, opts ...scene.UploadOption) (*scene.Scene, error) {
	t.Helper()
	return scene.Upload(graph, f.doc, g.rm, g.alloc, g.layouts, opts...)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{G: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func floatAt(data []byte, offset uint64) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
}

// twoNodes builds a root and a child, both drawing a triangle, the child
// with a textured material.
func twoNodes(t *testing.T) (fixture, *scene.Graph) {
	t.Helper()
	b := gltftest.New("scene.bin")
	tex := b.AddTexture("checker.png", gltf.Sampler{MagFilter: gltf.FilterNearest, WrapS: gltf.WrapClampToEdge})
	mat := b.AddMaterial(gltf.Material{Name: "checker", PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
		BaseColorTexture: &gltf.TextureRef{Index: tex},
	}})
	child := b.AddNode(gltftest.Translated(gltf.Node{Mesh: ptr(b.AddMesh(b.Triangle(ptr(mat))))}, 0, 2, 0))
	root := b.AddNode(gltftest.Translated(gltf.Node{Mesh: ptr(b.AddMesh(b.Triangle(nil))), Children: []int{child}}, 1, 0, 0))
	b.AddScene("two", root)

	f := write(t, b)
	require.NoError(t, util.WriteFile(f.fs, "assets/checker.png", pngBytes(t, 4, 4), 0o644))
	g, err := f.build(t, 0)
	require.NoError(t, err)
	return f, g
}

func TestUploadSharedBuffers(t *testing.T) {
	f, g := twoNodes(t)
	gp := newGPU(f)

	s, err := gp.upload(t, f, g)
	require.NoError(t, err)
	assert.Equal(t, g.ID, s.ID)
	assert.Equal(t, "two", s.Name())

	vertices := gp.dev.Buffers[s.VertexBuffer()]
	assert.Len(t, vertices, 6*44)
	indices := gp.dev.Buffers[s.IndexBuffer()]
	assert.Len(t, indices, 6*4)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(indices[20:]))
}

func TestUploadMatrixSlots(t *testing.T) {
	f, g := twoNodes(t)
	gp := newGPU(f)

	s, err := gp.upload(t, f, g)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), s.MatrixStride())

	// The matrix set is the first write; its buffer holds one slot per drawable node.
	require.NotEmpty(t, gp.dev.Writes)
	w := gp.dev.Writes[0]
	assert.Equal(t, s.MatrixSet(), w.Set)
	assert.Equal(t, vk.DescriptorTypeUniformBufferDynamic, w.Type)
	assert.Equal(t, uint64(vulkan.MatrixSize), w.Range)
	assert.Equal(t, gp.layouts.Matrix, gp.dev.Sets[s.MatrixSet()])

	data := gp.dev.Buffers[w.Buffer]
	require.Len(t, data, 512)
	// Translation lives in elements 12..14 of a column-major matrix.
	assert.Equal(t, float32(1), floatAt(data, 12*4))
	assert.Equal(t, float32(0), floatAt(data, 13*4))
	assert.Equal(t, float32(1), floatAt(data, 256+12*4))
	assert.Equal(t, float32(2), floatAt(data, 256+13*4))
}

func TestMatrixStrideFollowsAlignment(t *testing.T) {
	assert.Equal(t, uint64(256), scene.MatrixStride(vulkan.DeviceLimits{MinUniformBufferOffsetAlignment: 256}))
	assert.Equal(t, uint64(64), scene.MatrixStride(vulkan.DeviceLimits{MinUniformBufferOffsetAlignment: 64}))
	assert.Equal(t, uint64(64), scene.MatrixStride(vulkan.DeviceLimits{MinUniformBufferOffsetAlignment: 16}))
	assert.Equal(t, uint64(64), scene.MatrixStride(vulkan.DeviceLimits{}))
}

func TestUploadMaterialTexture(t *testing.T) {
	f, g := twoNodes(t)
	gp := newGPU(f)

	s, err := gp.upload(t, f, g, scene.WithAnisotropy(64))
	require.NoError(t, err)
	assert.Nil(t, s.Material(5))

	m := s.Material(0)
	require.NotNil(t, m)
	assert.Equal(t, "checker", m.Name)
	require.NotNil(t, m.Texture)
	assert.Equal(t, vulkan.LayoutShaderReadOnly, m.Texture.Layout())
	assert.Equal(t, uint32(3), m.Texture.MipLevels())
	assert.Equal(t, gp.layouts.Texture, gp.dev.Sets[m.Set])

	params := gp.dev.Samplers[m.Sampler]
	assert.Equal(t, vk.FilterNearest, params.MagFilter)
	assert.Equal(t, vk.FilterLinear, params.MinFilter)
	assert.Equal(t, vk.SamplerAddressModeClampToEdge, params.AddressModeU)
	assert.Equal(t, vk.SamplerAddressModeRepeat, params.AddressModeV)
	assert.Equal(t, float32(16), params.MaxAnisotropy)

	require.Len(t, gp.dev.Writes, 2)
	w := gp.dev.Writes[1]
	assert.Equal(t, vk.DescriptorTypeCombinedImageSampler, w.Type)
	assert.Equal(t, m.Sampler, w.Sampler)
	assert.Equal(t, m.Texture.Handle(), gp.dev.Views[w.View])
}

func TestTexturesSharingAnImage(t *testing.T) {
	b := gltftest.New("scene.bin")
	linear := b.AddTexture("checker.png", gltf.Sampler{})
	nearest := b.AddTexture("checker.png", gltf.Sampler{MagFilter: gltf.FilterNearest, MinFilter: gltf.FilterNearestMipmapNearest})
	m1 := b.AddMaterial(gltf.Material{PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorTexture: &gltf.TextureRef{Index: linear}}})
	m2 := b.AddMaterial(gltf.Material{PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorTexture: &gltf.TextureRef{Index: nearest}}})
	mesh := b.AddMesh(b.Triangle(ptr(m1)), b.Triangle(ptr(m2)))
	b.AddScene("", b.AddNode(gltf.Node{Mesh: ptr(mesh)}))

	f := write(t, b)
	f.doc.Textures[nearest].Source = f.doc.Textures[linear].Source
	require.NoError(t, util.WriteFile(f.fs, "assets/checker.png", pngBytes(t, 2, 2), 0o644))
	g, err := f.build(t, 0)
	require.NoError(t, err)

	gp := newGPU(f)
	s, err := gp.upload(t, f, g)
	require.NoError(t, err)

	a, c := s.Material(m1), s.Material(m2)
	assert.Same(t, a.Texture, c.Texture)
	assert.NotEqual(t, a.Sampler, c.Sampler)
	assert.Equal(t, 2, a.Texture.Samplers())
	assert.Equal(t, 1, gp.dev.Count("CreateImage"))
	assert.Equal(t, vk.SamplerMipmapModeNearest, gp.dev.Samplers[c.Sampler].MipmapMode)
}

func TestUploadEmbeddedImage(t *testing.T) {
	b := gltftest.New("scene.bin")
	tex := b.AddTexture("placeholder", gltf.Sampler{})
	mat := b.AddMaterial(gltf.Material{PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorTexture: &gltf.TextureRef{Index: tex}}})
	b.AddScene("", b.AddNode(gltf.Node{Mesh: ptr(b.AddMesh(b.Triangle(ptr(mat))))}))

	f := write(t, b)
	f.doc.Images[0].URI = "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 2, 1))
	g, err := f.build(t, 0)
	require.NoError(t, err)

	gp := newGPU(f)
	s, err := gp.upload(t, f, g)
	require.NoError(t, err)
	w, h := s.Material(mat).Texture.Extent()
	assert.Equal(t, uint32(2), w)
	assert.Equal(t, uint32(1), h)
}

func TestUploadMissingTextureReleasesEverything(t *testing.T) {
	b := gltftest.New("scene.bin")
	tex := b.AddTexture("missing.png", gltf.Sampler{})
	mat := b.AddMaterial(gltf.Material{PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorTexture: &gltf.TextureRef{Index: tex}}})
	b.AddScene("", b.AddNode(gltf.Node{Mesh: ptr(b.AddMesh(b.Triangle(ptr(mat))))}))
	f := write(t, b)
	g, err := f.build(t, 0)
	require.NoError(t, err)

	gp := newGPU(f)
	s, err := gp.upload(t, f, g)
	assert.Nil(t, s)
	var le *core.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, core.IOFailure, le.Kind)
	assert.Equal(t, "assets/missing.png", le.Path)
	assert.Zero(t, gp.rm.Live())
	assert.Zero(t, gp.dev.Live() - len(gp.dev.Pools))
}

func TestUploadRejectsGeometryOutsideBuffers(t *testing.T) {
	cases := map[string]func(*scene.Geometry){
		"vertices": func(geo *scene.Geometry) { geo.Vertices = scene.Range{Offset: 0, Count: 99} },
		"indices":  func(geo *scene.Geometry) { geo.Indices = scene.Range{Offset: 4, Count: 3} },
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			// The broken geometry sits under the first root; the second root is valid.
			b := gltftest.New("scene.bin")
			first := b.AddNode(gltf.Node{Mesh: ptr(b.AddMesh(b.Triangle(nil)))})
			second := b.AddNode(gltf.Node{Mesh: ptr(b.AddMesh(b.Triangle(nil)))})
			b.AddScene("", first, second)
			f := write(t, b)
			g, err := f.build(t, 0)
			require.NoError(t, err)
			corrupt(&g.Node(g.Roots()[0]).Geometries[0])

			gp := newGPU(f)
			s, err := gp.upload(t, f, g)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, core.ErrRangeOutOfBounds)
			assert.Zero(t, gp.rm.Live())
		})
	}
}

// fourTextures draws one triangle per material, each sampling its own image.
func fourTextures(t *testing.T) (fixture, *scene.Graph, []int) {
	t.Helper()
	b := gltftest.New("scene.bin")
	var mats []int
	var prims []gltf.Primitive
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		tex := b.AddTexture(name, gltf.Sampler{})
		m := b.AddMaterial(gltf.Material{Name: name, PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorTexture: &gltf.TextureRef{Index: tex}}})
		mats = append(mats, m)
		prims = append(prims, b.Triangle(ptr(m)))
	}
	b.AddScene("", b.AddNode(gltf.Node{Mesh: ptr(b.AddMesh(prims...))}))
	f := write(t, b)
	g, err := f.build(t, 0)
	require.NoError(t, err)
	return f, g, mats
}

func TestUploadDecodesImagesConcurrently(t *testing.T) {
	f, g, mats := fourTextures(t)
	for i, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		require.NoError(t, util.WriteFile(f.fs, "assets/"+name, pngBytes(t, i+1, 1), 0o644))
	}

	gp := newGPU(f)
	s, err := gp.upload(t, f, g, scene.WithDecodeWorkers(2))
	require.NoError(t, err)
	assert.Equal(t, 4, gp.dev.Count("CreateImage"))
	for i, m := range mats {
		w, _ := s.Material(m).Texture.Extent()
		assert.Equal(t, uint32(i+1), w)
	}
}

func TestUploadReportsFirstUndecodableImage(t *testing.T) {
	f, g, _ := fourTextures(t)
	require.NoError(t, util.WriteFile(f.fs, "assets/a.png", pngBytes(t, 1, 1), 0o644))
	require.NoError(t, util.WriteFile(f.fs, "assets/c.png", []byte("not an image"), 0o644))

	gp := newGPU(f)
	_, err := gp.upload(t, f, g, scene.WithDecodeWorkers(4))
	var le *core.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, core.IOFailure, le.Kind)
	assert.Equal(t, "assets/b.png", le.Path)
	assert.Zero(t, gp.rm.Live())
}

func TestUploadTextureWithoutSource(t *testing.T) {
	b := gltftest.New("scene.bin")
	tex := b.AddTexture("checker.png", gltf.Sampler{})
	mat := b.AddMaterial(gltf.Material{PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorTexture: &gltf.TextureRef{Index: tex}}})
	b.AddScene("", b.AddNode(gltf.Node{Mesh: ptr(b.AddMesh(b.Triangle(ptr(mat))))}))
	f := write(t, b)
	f.doc.Textures[tex].Source = nil
	g, err := f.build(t, 0)
	require.NoError(t, err)

	_, err = newGPU(f).upload(t, f, g)
	assert.ErrorIs(t, err, core.ErrMissingField)
}

func TestUploadSceneWithoutGeometry(t *testing.T) {
	b := gltftest.New("scene.bin")
	b.AddScene("", b.AddNode(gltf.Node{}))
	f := write(t, b)
	g, err := f.build(t, 0)
	require.NoError(t, err)

	gp := newGPU(f)
	s, err := gp.upload(t, f, g)
	require.NoError(t, err)
	assert.Zero(t, s.VertexBuffer())
	assert.Zero(t, s.IndexBuffer())
	assert.Zero(t, s.MatrixSet())
	assert.Zero(t, gp.dev.Live())
}

func TestSceneDestroy(t *testing.T) {
	f, g := twoNodes(t)
	gp := newGPU(f)
	s, err := gp.upload(t, f, g)
	require.NoError(t, err)
	assert.Equal(t, 4, gp.rm.Live())

	assert.ErrorIs(t, s.Destroy(vulkan.IdleBarrier{}), core.ErrDeviceNotIdle)
	assert.False(t, s.Destroyed())

	barrier, err := gp.rm.WaitIdle()
	require.NoError(t, err)
	require.NoError(t, s.Destroy(barrier))
	require.NoError(t, s.Destroy(barrier))
	assert.True(t, s.Destroyed())
	assert.Zero(t, gp.rm.Live())
	assert.Empty(t, gp.dev.Buffers)
	assert.Empty(t, gp.dev.Images)
	assert.Empty(t, gp.dev.Samplers)
	assert.Empty(t, gp.dev.Views)
}

func TestSamplerParamsDefaults(t *testing.T) {
	p := scene.SamplerParams(nil, 0)
	assert.Equal(t, vulkan.DefaultSamplerParams(), p)

	p = scene.SamplerParams(&gltf.Sampler{WrapT: gltf.WrapMirroredRepeat, MinFilter: gltf.FilterLinearMipmapNearest}, 4)
	assert.Equal(t, vk.SamplerAddressModeMirroredRepeat, p.AddressModeV)
	assert.Equal(t, vk.FilterLinear, p.MinFilter)
	assert.Equal(t, vk.SamplerMipmapModeNearest, p.MipmapMode)
	assert.Equal(t, float32(4), p.MaxAnisotropy)
}
