package vulkan

import (
	"errors"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
)

type vulkanBuffer struct {
	buffer vk.Buffer
	memory vk.DeviceMemory
	size   uint64
}

type vulkanImage struct {
	image  vk.Image
	memory vk.DeviceMemory
}

type vulkanDescriptorSet struct {
	set  vk.DescriptorSet
	pool DescriptorPoolHandle
}

// VulkanBackend implements Device on top of a headless VulkanContext. Driver
// objects are kept in per-type tables and handed out as opaque handles.
type VulkanBackend struct {
	context *VulkanContext
	locks   *VulkanLockPool
	limits  DeviceLimits

	next            uint64
	buffers         map[BufferHandle]vulkanBuffer
	images          map[ImageHandle]vulkanImage
	views           map[ImageViewHandle]vk.ImageView
	samplers        map[SamplerHandle]vk.Sampler
	pools           map[DescriptorPoolHandle]vk.DescriptorPool
	sets            map[DescriptorSetHandle]vulkanDescriptorSet
	setLayouts      map[DescriptorSetLayoutHandle]vk.DescriptorSetLayout
	pipelineLayouts map[PipelineLayoutHandle]vk.PipelineLayout
	commands        map[CommandBufferHandle]*VulkanCommandBuffer
}

// NewVulkanBackend creates the Vulkan context and wraps it.
func NewVulkanBackend(cfg config.VulkanConfig) (*VulkanBackend, error) {
	context, err := NewVulkanContext(cfg)
	if err != nil {
		return nil, err
	}
	props := context.Device.Properties
	vb := &VulkanBackend{
		context: context,
		locks:   NewVulkanLockPool(),
		limits: DeviceLimits{
			MinUniformBufferOffsetAlignment: uint64(props.Limits.MinUniformBufferOffsetAlignment),
			MaxSamplerAnisotropy:            props.Limits.MaxSamplerAnisotropy,
			SamplerAnisotropy:               context.Device.Features.SamplerAnisotropy == vk.True,
		},
		buffers:         make(map[BufferHandle]vulkanBuffer),
		images:          make(map[ImageHandle]vulkanImage),
		views:           make(map[ImageViewHandle]vk.ImageView),
		samplers:        make(map[SamplerHandle]vk.Sampler),
		pools:           make(map[DescriptorPoolHandle]vk.DescriptorPool),
		sets:            make(map[DescriptorSetHandle]vulkanDescriptorSet),
		setLayouts:      make(map[DescriptorSetLayoutHandle]vk.DescriptorSetLayout),
		pipelineLayouts: make(map[PipelineLayoutHandle]vk.PipelineLayout),
		commands:        make(map[CommandBufferHandle]*VulkanCommandBuffer),
	}
	vb.locks.SetQueueFamily(context.Device.GraphicsQueueIndex)
	core.LogDebug("device limits: min ubo alignment %d, max anisotropy %.1f", vb.limits.MinUniformBufferOffsetAlignment, vb.limits.MaxSamplerAnisotropy)
	return vb, nil
}

func (vb *VulkanBackend) handle() uint64 {
	vb.next++
	return vb.next
}

func (vb *VulkanBackend) device() vk.Device {
	return vb.context.Device.LogicalDevice
}

func (vb *VulkanBackend) Limits() DeviceLimits {
	return vb.limits
}

func (vb *VulkanBackend) SupportsLinearBlit(format vk.Format) bool {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(vb.context.Device.PhysicalDevice, format, &props)
	props.Deref()
	required := vk.FormatFeatureSampledImageFilterLinearBit | vk.FormatFeatureBlitSrcBit | vk.FormatFeatureBlitDstBit
	return vk.FormatFeatureFlagBits(props.OptimalTilingFeatures)&required == required
}

func (vb *VulkanBackend) allocate(reqs vk.MemoryRequirements, flags vk.MemoryPropertyFlagBits) (vk.DeviceMemory, vk.Result) {
	reqs.Deref()
	index := vb.context.FindMemoryIndex(reqs.MemoryTypeBits, vk.MemoryPropertyFlags(flags))
	if index < 0 {
		return vk.NullDeviceMemory, vk.ErrorOutOfDeviceMemory
	}
	var memory vk.DeviceMemory
	res := vk.AllocateMemory(vb.device(), &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}, vb.context.Allocator, &memory)
	return memory, res
}

func (vb *VulkanBackend) CreateBuffer(size uint64, usage vk.BufferUsageFlagBits) (BufferHandle, vk.Result) {
	var handle BufferHandle
	res := vk.Success
	_ = vb.locks.SafeCall(BufferManagement, func() error {
		var buffer vk.Buffer
		if res = vk.CreateBuffer(vb.device(), &vk.BufferCreateInfo{
			SType:       vk.StructureTypeBufferCreateInfo,
			Size:        vk.DeviceSize(size),
			Usage:       vk.BufferUsageFlags(usage),
			SharingMode: vk.SharingModeExclusive,
		}, vb.context.Allocator, &buffer); res != vk.Success {
			return nil
		}

		var reqs vk.MemoryRequirements
		vk.GetBufferMemoryRequirements(vb.device(), buffer, &reqs)
		var memory vk.DeviceMemory
		if memory, res = vb.allocate(reqs, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit); res != vk.Success {
			vk.DestroyBuffer(vb.device(), buffer, vb.context.Allocator)
			return nil
		}
		vk.BindBufferMemory(vb.device(), buffer, memory, 0)

		handle = BufferHandle(vb.handle())
		vb.buffers[handle] = vulkanBuffer{buffer: buffer, memory: memory, size: size}
		return nil
	})
	return handle, res
}

func (vb *VulkanBackend) WriteBuffer(buffer BufferHandle, offset uint64, data []byte) vk.Result {
	b, ok := vb.buffers[buffer]
	if !ok || offset+uint64(len(data)) > b.size {
		return vk.ErrorMemoryMapFailed
	}
	if len(data) == 0 {
		return vk.Success
	}
	var mapped unsafe.Pointer
	if res := vk.MapMemory(vb.device(), b.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &mapped); res != vk.Success {
		return res
	}
	n := vk.Memcopy(mapped, data)
	vk.UnmapMemory(vb.device(), b.memory)
	if n != len(data) {
		return vk.ErrorMemoryMapFailed
	}
	return vk.Success
}

func (vb *VulkanBackend) DestroyBuffer(buffer BufferHandle) {
	_ = vb.locks.SafeCall(BufferManagement, func() error {
		if b, ok := vb.buffers[buffer]; ok {
			vk.DestroyBuffer(vb.device(), b.buffer, vb.context.Allocator)
			vk.FreeMemory(vb.device(), b.memory, vb.context.Allocator)
			delete(vb.buffers, buffer)
		}
		return nil
	})
}

func (vb *VulkanBackend) CreateImage(info ImageInfo) (ImageHandle, vk.Result) {
	var handle ImageHandle
	res := vk.Success
	_ = vb.locks.SafeCall(ImageManagement, func() error {
		var image vk.Image
		if res = vk.CreateImage(vb.device(), &vk.ImageCreateInfo{
			SType:         vk.StructureTypeImageCreateInfo,
			ImageType:     vk.ImageType2d,
			Format:        info.Format,
			Extent:        vk.Extent3D{Width: info.Width, Height: info.Height, Depth: 1},
			MipLevels:     info.MipLevels,
			ArrayLayers:   1,
			Samples:       vk.SampleCount1Bit,
			Tiling:        vk.ImageTilingOptimal,
			Usage:         vk.ImageUsageFlags(info.Usage),
			SharingMode:   vk.SharingModeExclusive,
			InitialLayout: vk.ImageLayoutUndefined,
		}, vb.context.Allocator, &image); res != vk.Success {
			return nil
		}

		var reqs vk.MemoryRequirements
		vk.GetImageMemoryRequirements(vb.device(), image, &reqs)
		var memory vk.DeviceMemory
		if memory, res = vb.allocate(reqs, vk.MemoryPropertyDeviceLocalBit); res != vk.Success {
			vk.DestroyImage(vb.device(), image, vb.context.Allocator)
			return nil
		}
		vk.BindImageMemory(vb.device(), image, memory, 0)

		handle = ImageHandle(vb.handle())
		vb.images[handle] = vulkanImage{image: image, memory: memory}
		return nil
	})
	return handle, res
}

func (vb *VulkanBackend) DestroyImage(image ImageHandle) {
	_ = vb.locks.SafeCall(ImageManagement, func() error {
		if img, ok := vb.images[image]; ok {
			vk.DestroyImage(vb.device(), img.image, vb.context.Allocator)
			vk.FreeMemory(vb.device(), img.memory, vb.context.Allocator)
			delete(vb.images, image)
		}
		return nil
	})
}

func (vb *VulkanBackend) CreateImageView(image ImageHandle, info ImageViewInfo) (ImageViewHandle, vk.Result) {
	img, ok := vb.images[image]
	if !ok {
		return 0, vk.ErrorUnknown
	}
	var view vk.ImageView
	if res := vk.CreateImageView(vb.device(), &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.image,
		ViewType: vk.ImageViewType2d,
		Format:   info.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: info.MipLevels,
			LayerCount: 1,
		},
	}, vb.context.Allocator, &view); res != vk.Success {
		return 0, res
	}
	handle := ImageViewHandle(vb.handle())
	vb.views[handle] = view
	return handle, vk.Success
}

func (vb *VulkanBackend) DestroyImageView(view ImageViewHandle) {
	if v, ok := vb.views[view]; ok {
		vk.DestroyImageView(vb.device(), v, vb.context.Allocator)
		delete(vb.views, view)
	}
}

func (vb *VulkanBackend) CreateSampler(params SamplerParams) (SamplerHandle, vk.Result) {
	var handle SamplerHandle
	res := vk.Success
	_ = vb.locks.SafeCall(SamplerManagement, func() error {
		anisotropy := vk.Bool32(vk.False)
		if params.MaxAnisotropy > 0 {
			anisotropy = vk.True
		}
		var sampler vk.Sampler
		if res = vk.CreateSampler(vb.device(), &vk.SamplerCreateInfo{
			SType:                   vk.StructureTypeSamplerCreateInfo,
			MagFilter:               params.MagFilter,
			MinFilter:               params.MinFilter,
			MipmapMode:              params.MipmapMode,
			AddressModeU:            params.AddressModeU,
			AddressModeV:            params.AddressModeV,
			AddressModeW:            vk.SamplerAddressModeRepeat,
			AnisotropyEnable:        anisotropy,
			MaxAnisotropy:           params.MaxAnisotropy,
			CompareEnable:           vk.False,
			CompareOp:               vk.CompareOpAlways,
			MinLod:                  0,
			MaxLod:                  params.MaxLod,
			BorderColor:             vk.BorderColorIntOpaqueBlack,
			UnnormalizedCoordinates: vk.False,
		}, vb.context.Allocator, &sampler); res != vk.Success {
			return nil
		}
		handle = SamplerHandle(vb.handle())
		vb.samplers[handle] = sampler
		return nil
	})
	return handle, res
}

func (vb *VulkanBackend) DestroySampler(sampler SamplerHandle) {
	_ = vb.locks.SafeCall(SamplerManagement, func() error {
		if s, ok := vb.samplers[sampler]; ok {
			vk.DestroySampler(vb.device(), s, vb.context.Allocator)
			delete(vb.samplers, sampler)
		}
		return nil
	})
}

// Descriptor calls are serialised with each other through the lock pool.

func (vb *VulkanBackend) CreateDescriptorPool(maxSets uint32, sizes []vk.DescriptorPoolSize) (handle DescriptorPoolHandle, res vk.Result) {
	_ = vb.locks.SafeCall(DescriptorManagement, func() error {
		handle, res = vb.createDescriptorPool(maxSets, sizes)
		return nil
	})
	return handle, res
}

func (vb *VulkanBackend) ResetDescriptorPool(pool DescriptorPoolHandle) (res vk.Result) {
	_ = vb.locks.SafeCall(DescriptorManagement, func() error {
		res = vb.resetDescriptorPool(pool)
		return nil
	})
	return res
}

func (vb *VulkanBackend) DestroyDescriptorPool(pool DescriptorPoolHandle) {
	_ = vb.locks.SafeCall(DescriptorManagement, func() error {
		vb.destroyDescriptorPool(pool)
		return nil
	})
}

func (vb *VulkanBackend) AllocateDescriptorSets(pool DescriptorPoolHandle, layout DescriptorSetLayoutHandle, count uint32) (sets []DescriptorSetHandle, res vk.Result) {
	_ = vb.locks.SafeCall(DescriptorManagement, func() error {
		sets, res = vb.allocateDescriptorSets(pool, layout, count)
		return nil
	})
	return sets, res
}

func (vb *VulkanBackend) UpdateDescriptorSets(writes []DescriptorWrite) {
	_ = vb.locks.SafeCall(DescriptorManagement, func() error {
		vb.updateDescriptorSets(writes)
		return nil
	})
}

func (vb *VulkanBackend) createDescriptorPool(maxSets uint32, sizes []vk.DescriptorPoolSize) (DescriptorPoolHandle, vk.Result) {
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(vb.device(), &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, vb.context.Allocator, &pool); res != vk.Success {
		return 0, res
	}
	handle := DescriptorPoolHandle(vb.handle())
	vb.pools[handle] = pool
	return handle, vk.Success
}

func (vb *VulkanBackend) forgetSets(pool DescriptorPoolHandle) {
	for h, s := range vb.sets {
		if s.pool == pool {
			delete(vb.sets, h)
		}
	}
}

func (vb *VulkanBackend) resetDescriptorPool(pool DescriptorPoolHandle) vk.Result {
	p, ok := vb.pools[pool]
	if !ok {
		return vk.ErrorUnknown
	}
	vb.forgetSets(pool)
	return vk.ResetDescriptorPool(vb.device(), p, 0)
}

func (vb *VulkanBackend) destroyDescriptorPool(pool DescriptorPoolHandle) {
	if p, ok := vb.pools[pool]; ok {
		vb.forgetSets(pool)
		vk.DestroyDescriptorPool(vb.device(), p, vb.context.Allocator)
		delete(vb.pools, pool)
	}
}

func (vb *VulkanBackend) allocateDescriptorSets(pool DescriptorPoolHandle, layout DescriptorSetLayoutHandle, count uint32) ([]DescriptorSetHandle, vk.Result) {
	p, ok := vb.pools[pool]
	if !ok {
		return nil, vk.ErrorUnknown
	}
	l, ok := vb.setLayouts[layout]
	if !ok || count == 0 {
		return nil, vk.ErrorUnknown
	}
	layouts := make([]vk.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = l
	}
	sets := make([]vk.DescriptorSet, count)
	if res := vk.AllocateDescriptorSets(vb.device(), &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p,
		DescriptorSetCount: count,
		PSetLayouts:        layouts,
	}, &sets[0]); res != vk.Success {
		return nil, res
	}
	handles := make([]DescriptorSetHandle, count)
	for i, s := range sets {
		handles[i] = DescriptorSetHandle(vb.handle())
		vb.sets[handles[i]] = vulkanDescriptorSet{set: s, pool: pool}
	}
	return handles, vk.Success
}

func (vb *VulkanBackend) updateDescriptorSets(writes []DescriptorWrite) {
	out := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := vb.sets[w.Set]
		if !ok {
			core.LogWarn("descriptor write to unknown set %d skipped", w.Set)
			continue
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.set,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  w.Type,
		}
		if w.Buffer != 0 {
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: vb.buffers[w.Buffer].buffer,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}}
		} else {
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     vb.samplers[w.Sampler],
				ImageView:   vb.views[w.View],
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}
		}
		out = append(out, write)
	}
	if len(out) > 0 {
		vk.UpdateDescriptorSets(vb.device(), uint32(len(out)), out, 0, nil)
	}
}

func (vb *VulkanBackend) BeginSingleUse() (CommandBufferHandle, vk.Result) {
	var handle CommandBufferHandle
	err := vb.locks.SafeCall(CommandBufferManagement, func() error {
		cb, err := AllocateAndBeginSingleUse(vb.context, vb.context.Device.GraphicsCommandPool)
		if err != nil {
			return err
		}
		handle = CommandBufferHandle(vb.handle())
		vb.commands[handle] = cb
		return nil
	})
	if err != nil {
		return 0, resultOf(err)
	}
	return handle, vk.Success
}

func (vb *VulkanBackend) EndSingleUse(cmd CommandBufferHandle) vk.Result {
	cb, ok := vb.commands[cmd]
	if !ok {
		return vk.ErrorUnknown
	}
	delete(vb.commands, cmd)
	d := vb.context.Device
	err := vb.locks.SafeQueueCall(d.GraphicsQueueIndex, func() error {
		return cb.EndSingleUse(vb.context, d.GraphicsCommandPool, d.GraphicsQueue)
	})
	return resultOf(err)
}

func (vb *VulkanBackend) AbortSingleUse(cmd CommandBufferHandle) {
	if cb, ok := vb.commands[cmd]; ok {
		_ = cb.End()
		cb.Free(vb.context, vb.context.Device.GraphicsCommandPool)
		delete(vb.commands, cmd)
	}
}

func (vb *VulkanBackend) commandBuffer(cmd CommandBufferHandle) vk.CommandBuffer {
	if cb, ok := vb.commands[cmd]; ok {
		return cb.Handle
	}
	return nil
}

type barrierMasks struct {
	srcAccess vk.AccessFlagBits
	dstAccess vk.AccessFlagBits
	srcStage  vk.PipelineStageFlagBits
	dstStage  vk.PipelineStageFlagBits
}

func masksFor(oldLayout, newLayout vk.ImageLayout) barrierMasks {
	switch {
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		return barrierMasks{0, vk.AccessTransferWriteBit, vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit}
	case oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutTransferSrcOptimal:
		return barrierMasks{vk.AccessTransferWriteBit, vk.AccessTransferReadBit, vk.PipelineStageTransferBit, vk.PipelineStageTransferBit}
	case oldLayout == vk.ImageLayoutTransferSrcOptimal:
		return barrierMasks{vk.AccessTransferReadBit, vk.AccessShaderReadBit, vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit}
	default:
		return barrierMasks{vk.AccessTransferWriteBit, vk.AccessShaderReadBit, vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit}
	}
}

func (vb *VulkanBackend) CmdImageBarrier(cmd CommandBufferHandle, barrier ImageBarrier) {
	m := masksFor(barrier.OldLayout, barrier.NewLayout)
	vk.CmdPipelineBarrier(vb.commandBuffer(cmd),
		vk.PipelineStageFlags(m.srcStage), vk.PipelineStageFlags(m.dstStage),
		vk.DependencyFlags(0), 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(m.srcAccess),
			DstAccessMask:       vk.AccessFlags(m.dstAccess),
			OldLayout:           barrier.OldLayout,
			NewLayout:           barrier.NewLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               vb.images[barrier.Image].image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:   vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel: barrier.BaseMipLevel,
				LevelCount:   barrier.LevelCount,
				LayerCount:   1,
			},
		}})
}

func (vb *VulkanBackend) CmdCopyBufferToImage(cmd CommandBufferHandle, region BufferImageCopy) {
	vk.CmdCopyBufferToImage(vb.commandBuffer(cmd), vb.buffers[region.Buffer].buffer, vb.images[region.Image].image,
		vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			BufferOffset: vk.DeviceSize(region.BufferOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:   region.MipLevel,
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: region.Width, Height: region.Height, Depth: 1},
		}})
}

func (vb *VulkanBackend) CmdBlitImage(cmd CommandBufferHandle, blit ImageBlit) {
	image := vb.images[blit.Image].image
	vk.CmdBlitImage(vb.commandBuffer(cmd),
		image, vk.ImageLayoutTransferSrcOptimal,
		image, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:   blit.SrcLevel,
				LayerCount: 1,
			},
			SrcOffsets: [2]vk.Offset3D{{}, {X: int32(blit.SrcWidth), Y: int32(blit.SrcHeight), Z: 1}},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:   blit.DstLevel,
				LayerCount: 1,
			},
			DstOffsets: [2]vk.Offset3D{{}, {X: int32(blit.DstWidth), Y: int32(blit.DstHeight), Z: 1}},
		}},
		vk.FilterLinear)
}

func (vb *VulkanBackend) WaitIdle() (res vk.Result) {
	_ = vb.locks.SafeCall(DeviceManagement, func() error {
		res = vk.DeviceWaitIdle(vb.device())
		return nil
	})
	return res
}

// Destroy releases every object still owned by the backend and the context.
func (vb *VulkanBackend) Destroy() {
	if vb.context == nil {
		return
	}
	if res := vb.WaitIdle(); res != vk.Success {
		core.LogWarn("device did not go idle before shutdown: %s", VulkanResultString(res, false))
	}
	for h := range vb.commands {
		vb.AbortSingleUse(h)
	}
	for h := range vb.pools {
		vb.DestroyDescriptorPool(h)
	}
	for h := range vb.samplers {
		vb.DestroySampler(h)
	}
	for h := range vb.views {
		vb.DestroyImageView(h)
	}
	for h := range vb.images {
		vb.DestroyImage(h)
	}
	for h := range vb.buffers {
		vb.DestroyBuffer(h)
	}
	vb.destroyLayouts()
	vb.context.Destroy()
	vb.context = nil
}

// resultOf recovers the result code carried by a DeviceError.
func resultOf(err error) vk.Result {
	if err == nil {
		return vk.Success
	}
	var de *core.DeviceError
	if errors.As(err, &de) {
		return vk.Result(de.Code)
	}
	return vk.ErrorUnknown
}

var _ Device = (*VulkanBackend)(nil)
