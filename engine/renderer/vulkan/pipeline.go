package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// Descriptor set indices used by scene pipelines.
const (
	MatrixSet  uint32 = 0
	TextureSet uint32 = 1
)

// MatrixSize is the size of one per-node transform in the matrix buffer.
const MatrixSize = 64

/**
 * @brief The descriptor set layouts every scene draw is recorded against,
 * and the pipeline layout combining them. Pipelines built by the host must
 * be compatible with Pipeline.
 */
type SceneLayouts struct {
	/** @brief Set 0: binding 0 is a dynamic uniform buffer holding one matrix per node. */
	Matrix DescriptorSetLayoutHandle
	/** @brief Set 1: binding 0 is the base colour texture of the material. */
	Texture DescriptorSetLayoutHandle
	/** @brief Layout of [Matrix, Texture]. */
	Pipeline PipelineLayoutHandle
}

// CreateSceneLayouts creates the set layouts and the pipeline layout.
func (vb *VulkanBackend) CreateSceneLayouts() (SceneLayouts, error) {
	var layouts SceneLayouts
	err := vb.locks.SafeCall(PipelineManagement, func() error {
		matrix, err := vb.createSetLayout(vk.DescriptorSetLayoutBinding{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		})
		if err != nil {
			return err
		}
		texture, err := vb.createSetLayout(vk.DescriptorSetLayoutBinding{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		})
		if err != nil {
			return err
		}

		setLayouts := []vk.DescriptorSetLayout{vb.setLayouts[matrix], vb.setLayouts[texture]}
		pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
			SType:          vk.StructureTypePipelineLayoutCreateInfo,
			SetLayoutCount: uint32(len(setLayouts)),
			PSetLayouts:    setLayouts,
		}
		var pipelineLayout vk.PipelineLayout
		if res := vk.CreatePipelineLayout(vb.device(), &pipelineLayoutCreateInfo, vb.context.Allocator, &pipelineLayout); !VulkanResultIsSuccess(res) {
			return newDeviceError("create pipeline layout", res)
		}
		handle := PipelineLayoutHandle(vb.handle())
		vb.pipelineLayouts[handle] = pipelineLayout

		layouts = SceneLayouts{Matrix: matrix, Texture: texture, Pipeline: handle}
		return nil
	})
	if err != nil {
		return SceneLayouts{}, err
	}
	core.LogDebug("scene layouts created")
	return layouts, nil
}

func (vb *VulkanBackend) createSetLayout(bindings ...vk.DescriptorSetLayoutBinding) (DescriptorSetLayoutHandle, error) {
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(vb.device(), &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, vb.context.Allocator, &layout); !VulkanResultIsSuccess(res) {
		return 0, newDeviceError("create descriptor set layout", res)
	}
	handle := DescriptorSetLayoutHandle(vb.handle())
	vb.setLayouts[handle] = layout
	return handle, nil
}

// PipelineLayout returns the driver object behind h, for building pipelines
// compatible with the scene layouts.
func (vb *VulkanBackend) PipelineLayout(h PipelineLayoutHandle) vk.PipelineLayout {
	return vb.pipelineLayouts[h]
}

func (vb *VulkanBackend) destroyLayouts() {
	_ = vb.locks.SafeCall(PipelineManagement, func() error {
		for h, l := range vb.pipelineLayouts {
			vk.DestroyPipelineLayout(vb.device(), l, vb.context.Allocator)
			delete(vb.pipelineLayouts, h)
		}
		for h, l := range vb.setLayouts {
			vk.DestroyDescriptorSetLayout(vb.device(), l, vb.context.Allocator)
			delete(vb.setLayouts, h)
		}
		return nil
	})
}
