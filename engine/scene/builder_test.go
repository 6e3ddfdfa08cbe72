package scene_test

import (
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/assets/gltf"
	"github.com/spaghettifunk/prism/engine/assets/gltf/gltftest"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docPath = "assets/scene.gltf"

func ptr(i int) *int { return &i }

type fixture struct {
	fs     billy.Filesystem
	doc    *gltf.Document
	reader *gltf.AccessorReader
}

func write(t *testing.T, b *gltftest.Builder) fixture {
	t.Helper()
	fs := memfs.New()
	doc, err := b.Write(fs, docPath)
	require.NoError(t, err)
	return fixture{fs: fs, doc: doc, reader: gltf.NewAccessorReader(fs, doc)}
}

func (f fixture) build(t *testing.T, sceneIndex int, opts ...scene.BuilderOption) (*scene.Graph, error) {
	t.Helper()
	return scene.NewBuilder(f.doc, f.reader, opts...).Build(sceneIndex)
}

func TestGlobalTransformComposesParent(t *testing.T) {
	b := gltftest.New("scene.bin")
	child := b.AddNode(gltftest.Translated(gltf.Node{Name: "child"}, 0, 2, 0))
	root := b.AddNode(gltftest.Translated(gltf.Node{Name: "root", Children: []int{child}}, 1, 0, 0))
	b.AddScene("main", root)

	g, err := write(t, b).build(t, 0)
	require.NoError(t, err)
	require.Len(t, g.Roots(), 1)

	r := g.Node(g.Roots()[0])
	assert.Equal(t, "root", r.Name)
	assert.Equal(t, scene.NoParent, r.Parent)
	require.Len(t, r.Children, 1)

	c := g.Node(r.Children[0])
	assert.Equal(t, "child", c.Name)
	assert.Equal(t, g.Roots()[0], c.Parent)
	assert.True(t, mgl32.Translate3D(1, 2, 0).ApproxEqual(c.Global))
	assert.True(t, mgl32.Translate3D(0, 2, 0).ApproxEqual(c.Local))
}

func TestGlobalTransformChain(t *testing.T) {
	b := gltftest.New("scene.bin")
	leaf := b.AddNode(gltf.Node{Translation: []float32{0, 0, 0}, Rotation: []float32{0, 0, 0, 1}, Scale: []float32{2, 2, 2}})
	mid := b.AddNode(gltf.Node{Translation: []float32{0, 0, 0}, Rotation: []float32{0, 0, 0.7071068, 0.7071068}, Scale: []float32{1, 1, 1}, Children: []int{leaf}})
	root := b.AddNode(gltftest.Translated(gltf.Node{Children: []int{mid}}, 0, 0, 5))
	b.AddScene("", root)

	g, err := write(t, b).build(t, 0)
	require.NoError(t, err)

	var chain []*scene.Node
	g.Walk(func(_ scene.NodeHandle, n *scene.Node) bool {
		chain = append(chain, n)
		return true
	})
	require.Len(t, chain, 3)
	want := chain[0].Local.Mul4(chain[1].Local).Mul4(chain[2].Local)
	assert.True(t, want.ApproxEqualThreshold(chain[2].Global, 1e-5))

	// A point on +x is scaled, rotated onto +y and pushed along z.
	p := chain[2].Global.Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 0, p.X(), 1e-5)
	assert.InDelta(t, 2, p.Y(), 1e-5)
	assert.InDelta(t, 5, p.Z(), 1e-5)
}

func TestSceneTransformAppliesToRoots(t *testing.T) {
	b := gltftest.New("scene.bin")
	root := b.AddNode(gltftest.Translated(gltf.Node{}, 1, 0, 0))
	b.AddScene("", root)

	g, err := write(t, b).build(t, 0, scene.WithSceneTransform(mgl32.Translate3D(0, 0, -3)))
	require.NoError(t, err)
	assert.True(t, mgl32.Translate3D(1, 0, -3).ApproxEqual(g.Node(g.Roots()[0]).Global))
}

func TestExplicitMatrixIsUsedVerbatim(t *testing.T) {
	m := mgl32.Translate3D(3, 4, 5).Mul4(mgl32.Scale3D(2, 2, 2))
	b := gltftest.New("scene.bin")
	root := b.AddNode(gltf.Node{Matrix: m[:], Translation: []float32{100, 0, 0}})
	b.AddScene("", root)

	g, err := write(t, b).build(t, 0)
	require.NoError(t, err)
	assert.Equal(t, m, g.Node(0).Local)
}

func TestTransformArity(t *testing.T) {
	cases := map[string]gltf.Node{
		"matrix":      {Matrix: make([]float32, 15)},
		"translation": {Translation: []float32{1, 2}, Rotation: []float32{0, 0, 0, 1}, Scale: []float32{1, 1, 1}},
		"rotation":    {Translation: []float32{1, 2, 3}, Rotation: []float32{0, 0, 1}, Scale: []float32{1, 1, 1}},
		"scale":       {Translation: []float32{1, 2, 3}, Rotation: []float32{0, 0, 0, 1}, Scale: []float32{1, 1, 1, 1}},
	}
	for name, node := range cases {
		t.Run(name, func(t *testing.T) {
			b := gltftest.New("scene.bin")
			b.AddScene("", b.AddNode(node))

			g, err := write(t, b).build(t, 0)
			assert.Nil(t, g)
			assert.ErrorIs(t, err, core.ErrBadArity)
			var le *core.LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, core.MalformedAsset, le.Kind)
		})
	}
}

func TestPartialTRSIsIdentity(t *testing.T) {
	cases := map[string]gltf.Node{
		"translation only":   {Translation: []float32{1, 2, 3}},
		"rotation and scale": {Rotation: []float32{0, 0, 0.7071068, 0.7071068}, Scale: []float32{2, 2, 2}},
		"short translation":  {Translation: []float32{1, 2}, Scale: []float32{2, 2, 2}},
	}
	for name, node := range cases {
		t.Run(name, func(t *testing.T) {
			b := gltftest.New("scene.bin")
			b.AddScene("", b.AddNode(node))

			g, err := write(t, b).build(t, 0)
			require.NoError(t, err)
			assert.Equal(t, mgl32.Ident4(), g.Node(0).Local)
			assert.Equal(t, mgl32.Ident4(), g.Node(0).Global)
		})
	}
}

func TestEmptyNodeIsLegal(t *testing.T) {
	b := gltftest.New("scene.bin")
	b.AddScene("", b.AddNode(gltf.Node{}))

	g, err := write(t, b).build(t, 0)
	require.NoError(t, err)
	n := g.Node(0)
	assert.Empty(t, n.Name)
	assert.Equal(t, mgl32.Ident4(), n.Global)
	assert.False(t, n.Drawable())
	assert.Equal(t, -1, n.Mesh)
	assert.Zero(t, g.DrawableCount())
}

func TestGeometriesShareBuffers(t *testing.T) {
	b := gltftest.New("scene.bin")
	red := b.AddMaterial(gltf.Material{PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorFactor: []float32{1, 0, 0, 1}}})
	first := b.AddMesh(b.Triangle(ptr(red)))
	second := b.AddMesh(b.Triangle(nil), b.Triangle(nil))
	child := b.AddNode(gltf.Node{Mesh: ptr(second)})
	root := b.AddNode(gltf.Node{Mesh: ptr(first), Children: []int{child}})
	b.AddScene("", root)

	g, err := write(t, b).build(t, 0)
	require.NoError(t, err)
	assert.Len(t, g.Vertices(), 9)
	assert.Len(t, g.Indices(), 9)
	assert.Equal(t, 2, g.DrawableCount())
	assert.Equal(t, 3, g.GeometryCount())

	r := g.Node(g.Roots()[0])
	require.Len(t, r.Geometries, 1)
	assert.Equal(t, scene.Range{Offset: 0, Count: 3}, r.Geometries[0].Vertices)
	assert.Equal(t, red, r.Geometries[0].Material)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, g.Vertices()[0].Color)

	c := g.Node(r.Children[0])
	require.Len(t, c.Geometries, 2)
	assert.Equal(t, scene.Range{Offset: 3, Count: 3}, c.Geometries[0].Vertices)
	assert.Equal(t, scene.Range{Offset: 6, Count: 3}, c.Geometries[1].Vertices)
	assert.Equal(t, scene.Range{Offset: 6, Count: 3}, c.Geometries[1].Indices)
	assert.Equal(t, -1, c.Geometries[0].Material)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, g.Vertices()[3].Color)

	// Indices stay relative to the first vertex of their geometry.
	assert.Equal(t, []uint32{0, 1, 2}, g.Indices()[6:9])
	assert.Equal(t, []int{red}, g.Materials())
}

func TestGeometryAttributes(t *testing.T) {
	b := gltftest.New("scene.bin")
	position := b.AddFloats(gltf.AccessorVec3, 0, 0, 0, 2, 0, 0, 0, 4, 0)
	normal := b.AddFloats(gltf.AccessorVec3, 0, 0, 1, 0, 0, 1, 0, 0, 1)
	uv := b.AddFloats(gltf.AccessorVec2, 0, 0, 1, 0, 0, 1)
	mesh := b.AddMesh(gltf.Primitive{Attributes: map[string]int{
		gltf.AttributePosition: position,
		gltf.AttributeNormal:   normal,
		gltf.AttributeTexcoord: uv,
	}})
	b.AddScene("", b.AddNode(gltf.Node{Mesh: ptr(mesh)}))

	g, err := write(t, b).build(t, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, g.Indices(), "missing indices draw every vertex in order")

	v := g.Vertices()[1]
	assert.Equal(t, mgl32.Vec3{2, 0, 0}, v.Position)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, v.Normal)
	assert.Equal(t, mgl32.Vec2{1, 0}, v.UV)

	geo := g.Node(0).Geometries[0]
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, geo.Extents.Min)
	assert.Equal(t, mgl32.Vec3{2, 4, 0}, geo.Extents.Max)
	assert.Equal(t, mgl32.Vec3{1, 2, 0}, geo.Center)
}

func TestMissingBufferViewCommitsNothing(t *testing.T) {
	b := gltftest.New("scene.bin")
	good := b.AddMesh(b.Triangle(nil))
	broken := b.AddAccessor(gltf.Accessor{ComponentType: gltf.ComponentFloat, Count: 3, Type: gltf.AccessorVec3})
	bad := b.AddMesh(gltf.Primitive{Attributes: map[string]int{gltf.AttributePosition: broken}})
	b.AddScene("", b.AddNode(gltf.Node{Mesh: ptr(good)}), b.AddNode(gltf.Node{Mesh: ptr(bad)}))

	g, err := write(t, b).build(t, 0)
	assert.Nil(t, g)
	assert.ErrorIs(t, err, core.ErrMissingBufferView)
	assert.Contains(t, err.Error(), "accessor missing buffer view")
}

func TestMissingPosition(t *testing.T) {
	b := gltftest.New("scene.bin")
	mesh := b.AddMesh(gltf.Primitive{Attributes: map[string]int{}})
	b.AddScene("", b.AddNode(gltf.Node{Mesh: ptr(mesh)}))

	_, err := write(t, b).build(t, 0)
	assert.ErrorIs(t, err, core.ErrMissingField)
}

func TestIndexBeyondVertices(t *testing.T) {
	b := gltftest.New("scene.bin")
	position := b.AddFloats(gltf.AccessorVec3, 0, 0, 0, 1, 0, 0, 0, 1, 0)
	indices := b.AddIndices8(0, 1, 3)
	mesh := b.AddMesh(gltf.Primitive{Attributes: map[string]int{gltf.AttributePosition: position}, Indices: &indices})
	b.AddScene("", b.AddNode(gltf.Node{Mesh: ptr(mesh)}))

	_, err := write(t, b).build(t, 0)
	assert.ErrorIs(t, err, core.ErrIndexOutOfRange)
}

func TestAttributeCountMismatch(t *testing.T) {
	b := gltftest.New("scene.bin")
	position := b.AddFloats(gltf.AccessorVec3, 0, 0, 0, 1, 0, 0, 0, 1, 0)
	normal := b.AddFloats(gltf.AccessorVec3, 0, 0, 1)
	mesh := b.AddMesh(gltf.Primitive{Attributes: map[string]int{gltf.AttributePosition: position, gltf.AttributeNormal: normal}})
	b.AddScene("", b.AddNode(gltf.Node{Mesh: ptr(mesh)}))

	_, err := write(t, b).build(t, 0)
	assert.ErrorIs(t, err, core.ErrBadArity)
}

func TestOutOfRangeReferences(t *testing.T) {
	t.Run("mesh", func(t *testing.T) {
		b := gltftest.New("scene.bin")
		b.AddScene("", b.AddNode(gltf.Node{Mesh: ptr(4)}))
		_, err := write(t, b).build(t, 0)
		assert.ErrorIs(t, err, core.ErrIndexOutOfRange)
	})
	t.Run("child", func(t *testing.T) {
		b := gltftest.New("scene.bin")
		b.AddScene("", b.AddNode(gltf.Node{Children: []int{7}}))
		_, err := write(t, b).build(t, 0)
		assert.ErrorIs(t, err, core.ErrIndexOutOfRange)
	})
	t.Run("material", func(t *testing.T) {
		b := gltftest.New("scene.bin")
		mesh := b.AddMesh(b.Triangle(ptr(2)))
		b.AddScene("", b.AddNode(gltf.Node{Mesh: ptr(mesh)}))
		_, err := write(t, b).build(t, 0)
		assert.ErrorIs(t, err, core.ErrIndexOutOfRange)
	})
	t.Run("scene", func(t *testing.T) {
		b := gltftest.New("scene.bin")
		b.AddScene("", b.AddNode(gltf.Node{}))
		_, err := write(t, b).build(t, 3)
		assert.ErrorIs(t, err, core.ErrIndexOutOfRange)
	})
}

func TestRepeatedNodeIsRejected(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		b := gltftest.New("scene.bin")
		b.AddNode(gltf.Node{Children: []int{1}})
		b.AddNode(gltf.Node{Children: []int{0}})
		b.AddScene("", 0)
		_, err := write(t, b).build(t, 0)
		assert.ErrorIs(t, err, core.ErrNodeCycle)
	})
	t.Run("shared child", func(t *testing.T) {
		b := gltftest.New("scene.bin")
		shared := b.AddNode(gltf.Node{})
		b.AddScene("", b.AddNode(gltf.Node{Children: []int{shared}}), b.AddNode(gltf.Node{Children: []int{shared}}))
		_, err := write(t, b).build(t, 0)
		assert.ErrorIs(t, err, core.ErrNodeCycle)
	})
}

func TestDefaultScene(t *testing.T) {
	b := gltftest.New("scene.bin")
	first := b.AddNode(gltf.Node{Name: "first"})
	second := b.AddNode(gltf.Node{Name: "second"})
	b.AddScene("a", first)
	b.AddScene("b", second)

	f := write(t, b)
	g, err := f.build(t, -1)
	require.NoError(t, err)
	assert.Equal(t, "a", g.Name)

	f.doc.Scene = ptr(1)
	g, err = f.build(t, -1)
	require.NoError(t, err)
	assert.Equal(t, "b", g.Name)
	assert.Equal(t, "second", g.Node(0).Name)
	assert.NotEmpty(t, g.ID)
}

func TestWalkIsPreOrder(t *testing.T) {
	b := gltftest.New("scene.bin")
	c1 := b.AddNode(gltf.Node{Name: "c1"})
	c2 := b.AddNode(gltf.Node{Name: "c2"})
	gc := b.AddNode(gltf.Node{Name: "gc"})
	b.AddNode(gltf.Node{})
	r1 := b.AddNode(gltf.Node{Name: "r1", Children: []int{c1, c2}})
	r2 := b.AddNode(gltf.Node{Name: "r2", Children: []int{gc}})
	b.AddScene("", r1, r2)

	g, err := write(t, b).build(t, 0)
	require.NoError(t, err)

	var names []string
	g.Walk(func(_ scene.NodeHandle, n *scene.Node) bool {
		names = append(names, n.Name)
		return true
	})
	assert.Equal(t, []string{"r1", "c1", "c2", "r2", "gc"}, names)

	names = nil
	g.Walk(func(_ scene.NodeHandle, n *scene.Node) bool {
		names = append(names, n.Name)
		return n.Name != "r1"
	})
	assert.Equal(t, []string{"r1", "r2", "gc"}, names)
	assert.Nil(t, g.Node(42))
}

func TestWalkErrStopsAtFirstError(t *testing.T) {
	b := gltftest.New("scene.bin")
	c1 := b.AddNode(gltf.Node{Name: "c1"})
	c2 := b.AddNode(gltf.Node{Name: "c2"})
	gc := b.AddNode(gltf.Node{Name: "gc"})
	r1 := b.AddNode(gltf.Node{Name: "r1", Children: []int{c1, c2}})
	r2 := b.AddNode(gltf.Node{Name: "r2", Children: []int{gc}})
	b.AddScene("", r1, r2)

	g, err := write(t, b).build(t, 0)
	require.NoError(t, err)

	stop := errors.New("stop")
	var names []string
	err = g.WalkErr(func(_ scene.NodeHandle, n *scene.Node) error {
		names = append(names, n.Name)
		if n.Name == "c1" {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"r1", "c1"}, names)

	names = nil
	err = g.WalkErr(func(_ scene.NodeHandle, n *scene.Node) error {
		names = append(names, n.Name)
		if n.Name == "r1" {
			return scene.SkipChildren
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "gc"}, names)
}
