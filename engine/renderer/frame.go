package renderer

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/scene"
)

/**
 * @brief What one call to Render recorded.
 */
type FrameStats struct {
	/** @brief Frame number, starting at 1. */
	Frame uint64
	/** @brief Nodes visited. */
	Nodes int
	/** @brief Indexed draws issued. */
	Draws int
	/** @brief Matrix slots bound, one per drawable node. */
	Matrices int
	/** @brief Texture sets bound. */
	Materials int
	Elapsed   time.Duration
}

// FrameRenderer records the draws of a scene into a command buffer owned
// by the host, which has already begun the render pass and bound a pipeline
// compatible with the scene layouts.
type FrameRenderer struct {
	stride uint64
	frame  uint64
	clock  *core.Clock
}

func NewFrameRenderer(limits vulkan.DeviceLimits) *FrameRenderer {
	return &FrameRenderer{
		stride: scene.MatrixStride(limits),
		clock:  core.NewClock(),
	}
}

// Frames is the number of frames rendered so far.
func (r *FrameRenderer) Frames() uint64 {
	return r.frame
}

// Render binds the shared buffers once, then walks the graph in pre-order.
// Every drawable node binds its slot of the matrix buffer before the draws
// of its geometries.
func (r *FrameRenderer) Render(rec vulkan.CommandRecorder, s *scene.Scene) (FrameStats, error) {
	if s == nil || s.Destroyed() {
		err := fmt.Errorf("render: %w", core.ErrDestroyed)
		core.LogError("%s", err)
		return FrameStats{}, err
	}
	if s.MatrixStride() != 0 && s.MatrixStride() != r.stride {
		err := fmt.Errorf("render: scene matrix stride %d, device wants %d: %w", s.MatrixStride(), r.stride, core.ErrRangeOutOfBounds)
		core.LogError("%s", err)
		return FrameStats{}, err
	}

	r.clock.Start()
	r.frame++
	stats := FrameStats{Frame: r.frame}
	g := s.Graph
	layout := s.Layouts().Pipeline

	if g.DrawableCount() > 0 {
		rec.BindVertexBuffer(s.VertexBuffer(), 0)
		rec.BindIndexBuffer(s.IndexBuffer(), 0, vk.IndexTypeUint32)
	}

	matrixIndex := uint64(0)
	err := g.WalkErr(func(h scene.NodeHandle, n *scene.Node) error {
		stats.Nodes++
		if !n.Drawable() {
			return nil
		}
		offset := matrixIndex * r.stride
		if offset > math.MaxUint32 {
			return fmt.Errorf("render node %d: matrix offset %d: %w", h, offset, core.ErrRangeOutOfBounds)
		}
		rec.BindDescriptorSet(layout, vulkan.MatrixSet, s.MatrixSet(), uint32(offset))
		matrixIndex++
		stats.Matrices++

		for _, geo := range n.Geometries {
			if m := s.Material(geo.Material); m != nil && m.Set != 0 {
				rec.BindDescriptorSet(layout, vulkan.TextureSet, m.Set)
				stats.Materials++
			}
			rec.DrawIndexed(geo.Indices.Count, geo.Indices.Offset, int32(geo.Vertices.Offset))
			stats.Draws++
		}
		return nil
	})
	if err != nil {
		core.LogError("%s", err)
		return stats, err
	}

	r.clock.Stop()
	stats.Elapsed = r.clock.Elapsed()
	return stats, nil
}
