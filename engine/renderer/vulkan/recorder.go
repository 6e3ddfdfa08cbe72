package vulkan

import (
	vk "github.com/goki/vulkan"
)

type vulkanRecorder struct {
	backend *VulkanBackend
	cmd     vk.CommandBuffer
}

// Recorder records scene draws into cmd. The command buffer belongs to the
// host: it must be recording inside a render pass with a pipeline bound.
func (vb *VulkanBackend) Recorder(cmd vk.CommandBuffer) CommandRecorder {
	return &vulkanRecorder{backend: vb, cmd: cmd}
}

func (r *vulkanRecorder) BindVertexBuffer(buffer BufferHandle, offset uint64) {
	vk.CmdBindVertexBuffers(r.cmd, 0, 1, []vk.Buffer{r.backend.buffers[buffer].buffer}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (r *vulkanRecorder) BindIndexBuffer(buffer BufferHandle, offset uint64, indexType vk.IndexType) {
	vk.CmdBindIndexBuffer(r.cmd, r.backend.buffers[buffer].buffer, vk.DeviceSize(offset), indexType)
}

func (r *vulkanRecorder) BindDescriptorSet(layout PipelineLayoutHandle, firstSet uint32, set DescriptorSetHandle, dynamicOffsets ...uint32) {
	sets := []vk.DescriptorSet{r.backend.sets[set].set}
	vk.CmdBindDescriptorSets(r.cmd, vk.PipelineBindPointGraphics, r.backend.pipelineLayouts[layout],
		firstSet, uint32(len(sets)), sets, uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (r *vulkanRecorder) DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32) {
	vk.CmdDrawIndexed(r.cmd, indexCount, 1, firstIndex, vertexOffset, 0)
}
