package scene

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/assets/gltf"
	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
)

// ModeTriangles is the only primitive topology drawn by the renderer.
const ModeTriangles = 4

var white = mgl32.Vec3{1, 1, 1}

// Builder turns the node hierarchy of one document scene into a Graph.
type Builder struct {
	doc            *gltf.Document
	reader         *gltf.AccessorReader
	sceneTransform mgl32.Mat4
}

type BuilderOption func(*Builder)

// WithSceneTransform sets the transform every root node is composed with.
func WithSceneTransform(m mgl32.Mat4) BuilderOption {
	return func(b *Builder) {
		b.sceneTransform = m
	}
}

func NewBuilder(doc *gltf.Document, reader *gltf.AccessorReader, opts ...BuilderOption) *Builder {
	b := &Builder{
		doc:            doc,
		reader:         reader,
		sceneTransform: mgl32.Ident4(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// build holds the state of one Build call. Nothing of it escapes unless the
// whole scene was read successfully.
type build struct {
	*Builder
	graph   *Graph
	visited map[int]bool
	colors  map[int]mgl32.Vec3
}

// Build reads scene sceneIndex, or the document's default scene when the
// index is negative.
func (b *Builder) Build(sceneIndex int) (*Graph, error) {
	if sceneIndex < 0 {
		sceneIndex = b.doc.DefaultScene()
	}
	s, err := b.doc.SceneAt(sceneIndex)
	if err != nil {
		return nil, err
	}

	st := &build{
		Builder: b,
		graph:   &Graph{ID: core.NewIdentifier(), Name: s.Name},
		visited: make(map[int]bool),
		colors:  make(map[int]mgl32.Vec3),
	}
	for _, root := range s.Nodes {
		if err := st.node(root, NoParent, b.sceneTransform); err != nil {
			return nil, err
		}
	}

	g := st.graph
	core.LogInfo("built scene %q (%s): %d nodes, %d geometries, %d vertices, %d indices",
		g.Name, g.ID.Short(), g.Len(), g.GeometryCount(), len(g.vertices), len(g.indices))
	return g, nil
}

func (st *build) node(index int, parent NodeHandle, parentGlobal mgl32.Mat4) error {
	if st.visited[index] {
		return st.malformed("read node", fmt.Errorf("node %d: %w", index, core.ErrNodeCycle))
	}
	st.visited[index] = true

	src, err := st.doc.NodeAt(index)
	if err != nil {
		return err
	}
	local, err := localMatrix(src)
	if err != nil {
		return st.malformed("read node transform", fmt.Errorf("node %d: %w", index, err))
	}

	handle := NodeHandle(len(st.graph.nodes))
	st.graph.nodes = append(st.graph.nodes, Node{
		Name:   src.Name,
		Local:  local,
		Global: parentGlobal.Mul4(local),
		Parent: parent,
		Mesh:   -1,
	})
	if parent == NoParent {
		st.graph.roots = append(st.graph.roots, handle)
	} else {
		st.graph.nodes[parent].Children = append(st.graph.nodes[parent].Children, handle)
	}

	if src.Mesh != nil {
		mesh, err := st.doc.MeshAt(*src.Mesh)
		if err != nil {
			return err
		}
		geometries := make([]Geometry, 0, len(mesh.Primitives))
		for i := range mesh.Primitives {
			geo, err := st.geometry(*src.Mesh, i, &mesh.Primitives[i])
			if err != nil {
				return err
			}
			geometries = append(geometries, geo)
		}
		st.graph.nodes[handle].Mesh = *src.Mesh
		st.graph.nodes[handle].Geometries = geometries
	}

	global := st.graph.nodes[handle].Global
	for _, child := range src.Children {
		if err := st.node(child, handle, global); err != nil {
			return err
		}
	}
	return nil
}

// localMatrix prefers an explicit matrix. Translation, rotation and scale
// are only composed when all three are present; any other node is identity.
func localMatrix(n *gltf.Node) (mgl32.Mat4, error) {
	if len(n.Matrix) > 0 {
		return pmath.MatrixFromSlice(n.Matrix)
	}
	if len(n.Translation) == 0 || len(n.Rotation) == 0 || len(n.Scale) == 0 {
		return mgl32.Ident4(), nil
	}
	t, err := pmath.TransformFromSlices(n.Translation, n.Rotation, n.Scale)
	if err != nil {
		return mgl32.Ident4(), err
	}
	return t.Matrix(), nil
}

func (st *build) geometry(mesh, primitive int, p *gltf.Primitive) (Geometry, error) {
	where := fmt.Sprintf("mesh %d primitive %d", mesh, primitive)
	if p.Mode != nil && *p.Mode != ModeTriangles {
		core.LogWarn("%s uses mode %d, it will be drawn as triangles", where, *p.Mode)
	}

	position, ok := p.Attributes[gltf.AttributePosition]
	if !ok {
		return Geometry{}, st.malformed("read primitive", fmt.Errorf("%s: %s: %w", where, gltf.AttributePosition, core.ErrMissingField))
	}
	positions, err := st.reader.Vec3(position)
	if err != nil {
		return Geometry{}, err
	}

	var normals []mgl32.Vec3
	if index, ok := p.Attributes[gltf.AttributeNormal]; ok {
		if normals, err = st.reader.Vec3(index); err != nil {
			return Geometry{}, err
		}
		if len(normals) != len(positions) {
			return Geometry{}, st.malformed("read primitive", fmt.Errorf("%s: %d normals for %d positions: %w", where, len(normals), len(positions), core.ErrBadArity))
		}
	}
	var uvs []mgl32.Vec2
	if index, ok := p.Attributes[gltf.AttributeTexcoord]; ok {
		if uvs, err = st.reader.Vec2(index); err != nil {
			return Geometry{}, err
		}
		if len(uvs) != len(positions) {
			return Geometry{}, st.malformed("read primitive", fmt.Errorf("%s: %d texture coordinates for %d positions: %w", where, len(uvs), len(positions), core.ErrBadArity))
		}
	}

	var indices []uint32
	if p.Indices != nil {
		if indices, err = st.reader.Indices(*p.Indices); err != nil {
			return Geometry{}, err
		}
		for i, idx := range indices {
			if int(idx) >= len(positions) {
				return Geometry{}, st.malformed("read primitive", fmt.Errorf("%s: index %d refers to vertex %d of %d: %w", where, i, idx, len(positions), core.ErrIndexOutOfRange))
			}
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	material := -1
	if p.Material != nil {
		material = *p.Material
	}
	color, err := st.baseColor(material)
	if err != nil {
		return Geometry{}, err
	}

	geo := Geometry{
		Vertices: Range{Offset: uint32(len(st.graph.vertices)), Count: uint32(len(positions))},
		Indices:  Range{Offset: uint32(len(st.graph.indices)), Count: uint32(len(indices))},
		Material: material,
	}
	for i, pos := range positions {
		v := Vertex{Position: pos, Color: color}
		if normals != nil {
			v.Normal = normals[i]
		}
		if uvs != nil {
			v.UV = uvs[i]
		}
		st.graph.vertices = append(st.graph.vertices, v)
	}
	st.graph.indices = append(st.graph.indices, indices...)
	geo.Extents, geo.Center = bounds(positions)
	return geo, nil
}

// baseColor is the rgb part of the material's base colour factor.
func (st *build) baseColor(material int) (mgl32.Vec3, error) {
	if material < 0 {
		return white, nil
	}
	if c, ok := st.colors[material]; ok {
		return c, nil
	}
	m, err := st.doc.MaterialAt(material)
	if err != nil {
		return white, err
	}
	c := white
	if pbr := m.PBRMetallicRoughness; pbr != nil && len(pbr.BaseColorFactor) > 0 {
		if len(pbr.BaseColorFactor) != 4 {
			return white, st.malformed("read material", fmt.Errorf("material %d baseColorFactor: %w: want 4, got %d", material, core.ErrBadArity, len(pbr.BaseColorFactor)))
		}
		c = mgl32.Vec3{pbr.BaseColorFactor[0], pbr.BaseColorFactor[1], pbr.BaseColorFactor[2]}
	}
	st.colors[material] = c
	return c, nil
}

func bounds(positions []mgl32.Vec3) (Extents, mgl32.Vec3) {
	if len(positions) == 0 {
		return Extents{}, mgl32.Vec3{}
	}
	e := Extents{Min: positions[0], Max: positions[0]}
	for _, p := range positions[1:] {
		for i := 0; i < 3; i++ {
			e.Min[i] = math32.Min(e.Min[i], p[i])
			e.Max[i] = math32.Max(e.Max[i], p[i])
		}
	}
	return e, e.Min.Add(e.Max).Mul(0.5)
}

func (st *build) malformed(op string, err error) error {
	e := core.NewMalformedError(op, st.doc.Path, err)
	core.LogError("%s", e)
	return e
}
