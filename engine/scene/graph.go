package scene

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/core"
)

// NodeHandle indexes a node inside its Graph.
type NodeHandle int

// NoParent is the parent of every root node.
const NoParent NodeHandle = -1

/**
 * @brief A vertex as laid out in the shared vertex buffer.
 */
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	/** @brief Base colour factor of the primitive's material, white without one. */
	Color mgl32.Vec3
	UV    mgl32.Vec2
}

// Range is a run of Count elements starting at Offset.
type Range struct {
	Offset uint32
	Count  uint32
}

func (r Range) End() uint64 {
	return uint64(r.Offset) + uint64(r.Count)
}

type Extents struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

/**
 * @brief One drawable primitive. Both ranges point into the buffers shared
 * by the whole graph; indices are relative to Vertices.Offset.
 */
type Geometry struct {
	Vertices Range
	Indices  Range
	/** @brief Index of the material in the document, -1 when the primitive has none. */
	Material int
	/** @brief The center of the geometry in local coordinates. */
	Center mgl32.Vec3
	/** @brief The extents of the geometry in local coordinates. */
	Extents Extents
}

/**
 * @brief One entry of the transform hierarchy.
 */
type Node struct {
	Name string
	/** @brief Transform relative to the parent. */
	Local mgl32.Mat4
	/** @brief parent.Global x Local, or sceneTransform x Local for roots. Fixed once built. */
	Global     mgl32.Mat4
	Parent     NodeHandle
	Children   []NodeHandle
	Geometries []Geometry
	/** @brief Index of the mesh in the document, -1 when the node has none. */
	Mesh int
}

func (n *Node) Drawable() bool {
	return len(n.Geometries) > 0
}

// Graph is an arena of nodes together with the vertex and index data of
// every geometry they own.
type Graph struct {
	ID   core.Identifier
	Name string

	nodes    []Node
	roots    []NodeHandle
	vertices []Vertex
	indices  []uint32
}

func (g *Graph) Roots() []NodeHandle {
	return g.roots
}

// Node returns the node behind h, or nil if h is not part of the graph.
func (g *Graph) Node(h NodeHandle) *Node {
	if h < 0 || int(h) >= len(g.nodes) {
		return nil
	}
	return &g.nodes[h]
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Vertices() []Vertex {
	return g.vertices
}

func (g *Graph) Indices() []uint32 {
	return g.indices
}

// Walk visits the graph depth first, every node before its children and
// roots in scene order. Returning false from fn skips the children of that
// node.
func (g *Graph) Walk(fn func(NodeHandle, *Node) bool) {
	for _, root := range g.roots {
		g.walk(root, fn)
	}
}

func (g *Graph) walk(h NodeHandle, fn func(NodeHandle, *Node) bool) {
	n := &g.nodes[h]
	if !fn(h, n) {
		return
	}
	for _, child := range n.Children {
		g.walk(child, fn)
	}
}

// SkipChildren can be returned by a WalkErr callback to skip the children
// of the current node. It is not returned by WalkErr.
var SkipChildren = errors.New("skip children")

// WalkErr visits the graph in the same order as Walk and stops at the first
// error returned by fn, which it returns.
func (g *Graph) WalkErr(fn func(NodeHandle, *Node) error) error {
	for _, root := range g.roots {
		if err := g.walkErr(root, fn); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) walkErr(h NodeHandle, fn func(NodeHandle, *Node) error) error {
	if err := fn(h, &g.nodes[h]); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	for _, child := range g.nodes[h].Children {
		if err := g.walkErr(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// DrawableCount is the number of nodes owning at least one geometry. Each
// of them gets one slot in the matrix buffer.
func (g *Graph) DrawableCount() int {
	count := 0
	for i := range g.nodes {
		if g.nodes[i].Drawable() {
			count++
		}
	}
	return count
}

func (g *Graph) GeometryCount() int {
	count := 0
	for i := range g.nodes {
		count += len(g.nodes[i].Geometries)
	}
	return count
}

// Materials returns the distinct material indices referenced by geometries,
// in the order they are first drawn.
func (g *Graph) Materials() []int {
	seen := make(map[int]bool)
	var out []int
	g.Walk(func(_ NodeHandle, n *Node) bool {
		for _, geo := range n.Geometries {
			if geo.Material >= 0 && !seen[geo.Material] {
				seen[geo.Material] = true
				out = append(out, geo.Material)
			}
		}
		return true
	})
	return out
}
