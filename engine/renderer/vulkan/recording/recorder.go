package recording

import (
	"slices"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

type CommandKind int

const (
	BindVertexBuffer CommandKind = iota
	BindIndexBuffer
	BindDescriptorSet
	DrawIndexed
)

func (k CommandKind) String() string {
	return [...]string{"bind-vertex-buffer", "bind-index-buffer", "bind-descriptor-set", "draw-indexed"}[k]
}

// Command is one recorded call. Only the fields of its kind are set.
type Command struct {
	Kind CommandKind

	Buffer    vulkan.BufferHandle
	Offset    uint64
	IndexType vk.IndexType

	Layout         vulkan.PipelineLayoutHandle
	FirstSet       uint32
	Set            vulkan.DescriptorSetHandle
	DynamicOffsets []uint32

	IndexCount   uint32
	FirstIndex   uint32
	VertexOffset int32
}

// Recorder implements vulkan.CommandRecorder.
type Recorder struct {
	Commands []Command
}

func (r *Recorder) BindVertexBuffer(buffer vulkan.BufferHandle, offset uint64) {
	r.Commands = append(r.Commands, Command{Kind: BindVertexBuffer, Buffer: buffer, Offset: offset})
}

func (r *Recorder) BindIndexBuffer(buffer vulkan.BufferHandle, offset uint64, indexType vk.IndexType) {
	r.Commands = append(r.Commands, Command{Kind: BindIndexBuffer, Buffer: buffer, Offset: offset, IndexType: indexType})
}

func (r *Recorder) BindDescriptorSet(layout vulkan.PipelineLayoutHandle, firstSet uint32, set vulkan.DescriptorSetHandle, dynamicOffsets ...uint32) {
	r.Commands = append(r.Commands, Command{
		Kind:           BindDescriptorSet,
		Layout:         layout,
		FirstSet:       firstSet,
		Set:            set,
		DynamicOffsets: slices.Clone(dynamicOffsets),
	})
}

func (r *Recorder) DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32) {
	r.Commands = append(r.Commands, Command{
		Kind:         DrawIndexed,
		IndexCount:   indexCount,
		FirstIndex:   firstIndex,
		VertexOffset: vertexOffset,
	})
}

// Filter returns the recorded commands of kind k in order.
func (r *Recorder) Filter(k CommandKind) []Command {
	var out []Command
	for _, c := range r.Commands {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.Commands = r.Commands[:0]
}

var _ vulkan.CommandRecorder = (*Recorder)(nil)
