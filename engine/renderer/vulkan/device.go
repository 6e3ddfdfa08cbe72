package vulkan

import (
	vk "github.com/goki/vulkan"
)

// Handles name device objects without exposing the driver's pointers. Zero
// is never a valid handle.
type (
	BufferHandle              uint64
	ImageHandle               uint64
	ImageViewHandle           uint64
	SamplerHandle             uint64
	DescriptorPoolHandle      uint64
	DescriptorSetHandle       uint64
	DescriptorSetLayoutHandle uint64
	PipelineLayoutHandle      uint64
	CommandBufferHandle       uint64
)

// DeviceLimits are the physical device properties the core depends on.
type DeviceLimits struct {
	MinUniformBufferOffsetAlignment uint64
	MaxSamplerAnisotropy            float32
	SamplerAnisotropy               bool
}

type ImageInfo struct {
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    vk.Format
	Usage     vk.ImageUsageFlagBits
}

type ImageViewInfo struct {
	Format    vk.Format
	MipLevels uint32
}

// ImageBarrier transitions LevelCount mip levels starting at BaseMipLevel.
type ImageBarrier struct {
	Image        ImageHandle
	BaseMipLevel uint32
	LevelCount   uint32
	OldLayout    vk.ImageLayout
	NewLayout    vk.ImageLayout
}

// ImageBlit copies SrcLevel into DstLevel of the same image with linear
// filtering. The source level must be TransferSrc and the destination
// TransferDst.
type ImageBlit struct {
	Image     ImageHandle
	SrcLevel  uint32
	SrcWidth  uint32
	SrcHeight uint32
	DstLevel  uint32
	DstWidth  uint32
	DstHeight uint32
}

// BufferImageCopy copies tightly packed pixels from a buffer into one mip
// level of an image in TransferDst layout.
type BufferImageCopy struct {
	Buffer       BufferHandle
	BufferOffset uint64
	Image        ImageHandle
	MipLevel     uint32
	Width        uint32
	Height       uint32
}

// SamplerParams is the full sampler configuration. It is comparable and
// used as the key of an image's sampler cache.
type SamplerParams struct {
	MagFilter     vk.Filter
	MinFilter     vk.Filter
	MipmapMode    vk.SamplerMipmapMode
	AddressModeU  vk.SamplerAddressMode
	AddressModeV  vk.SamplerAddressMode
	MaxAnisotropy float32
	MaxLod        float32
}

func DefaultSamplerParams() SamplerParams {
	return SamplerParams{
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: vk.SamplerAddressModeRepeat,
		AddressModeV: vk.SamplerAddressModeRepeat,
	}
}

// DescriptorWrite points one binding of a set at a buffer range or at an
// image view and sampler pair.
type DescriptorWrite struct {
	Set     DescriptorSetHandle
	Binding uint32
	Type    vk.DescriptorType
	Buffer  BufferHandle
	Offset  uint64
	Range   uint64
	View    ImageViewHandle
	Sampler SamplerHandle
}

// Device is the GPU capability the core is built on. Every call that can
// fail reports the raw vk.Result; turning it into an error is the caller's
// job. Implementations are not safe for concurrent use.
type Device interface {
	Limits() DeviceLimits
	SupportsLinearBlit(format vk.Format) bool

	CreateBuffer(size uint64, usage vk.BufferUsageFlagBits) (BufferHandle, vk.Result)
	WriteBuffer(buffer BufferHandle, offset uint64, data []byte) vk.Result
	DestroyBuffer(buffer BufferHandle)

	CreateImage(info ImageInfo) (ImageHandle, vk.Result)
	DestroyImage(image ImageHandle)
	CreateImageView(image ImageHandle, info ImageViewInfo) (ImageViewHandle, vk.Result)
	DestroyImageView(view ImageViewHandle)
	CreateSampler(params SamplerParams) (SamplerHandle, vk.Result)
	DestroySampler(sampler SamplerHandle)

	CreateDescriptorPool(maxSets uint32, sizes []vk.DescriptorPoolSize) (DescriptorPoolHandle, vk.Result)
	ResetDescriptorPool(pool DescriptorPoolHandle) vk.Result
	DestroyDescriptorPool(pool DescriptorPoolHandle)
	AllocateDescriptorSets(pool DescriptorPoolHandle, layout DescriptorSetLayoutHandle, count uint32) ([]DescriptorSetHandle, vk.Result)
	UpdateDescriptorSets(writes []DescriptorWrite)

	// BeginSingleUse allocates a primary command buffer and starts recording.
	BeginSingleUse() (CommandBufferHandle, vk.Result)
	// EndSingleUse ends recording, submits, blocks until the queue is idle
	// and frees the command buffer.
	EndSingleUse(cmd CommandBufferHandle) vk.Result
	// AbortSingleUse frees a command buffer without submitting it.
	AbortSingleUse(cmd CommandBufferHandle)
	CmdImageBarrier(cmd CommandBufferHandle, barrier ImageBarrier)
	CmdCopyBufferToImage(cmd CommandBufferHandle, region BufferImageCopy)
	CmdBlitImage(cmd CommandBufferHandle, blit ImageBlit)

	WaitIdle() vk.Result
}

// CommandRecorder records draw state into a command buffer owned by the
// host for the current frame.
type CommandRecorder interface {
	BindVertexBuffer(buffer BufferHandle, offset uint64)
	BindIndexBuffer(buffer BufferHandle, offset uint64, indexType vk.IndexType)
	BindDescriptorSet(layout PipelineLayoutHandle, firstSet uint32, set DescriptorSetHandle, dynamicOffsets ...uint32)
	DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32)
}
