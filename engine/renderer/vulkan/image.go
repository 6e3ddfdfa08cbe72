package vulkan

import (
	"fmt"
	"image"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
)

// TextureFormat is the format every texture is uploaded in.
const TextureFormat = vk.FormatR8g8b8a8Unorm

type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutTransferDst
	LayoutShaderReadOnly
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutTransferDst:
		return "transfer-dst"
	case LayoutShaderReadOnly:
		return "shader-read-only"
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

func (l ImageLayout) vulkan() vk.ImageLayout {
	switch l {
	case LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	}
	return vk.ImageLayoutUndefined
}

func legalTransition(from, to ImageLayout) bool {
	return (from == LayoutUndefined && to == LayoutTransferDst) ||
		(from == LayoutTransferDst && to == LayoutShaderReadOnly)
}

// Image is a sampled 2D texture with its full mip chain.
type Image struct {
	rm *ResourceManager
	id uint64

	handle    ImageHandle
	width     uint32
	height    uint32
	mipLevels uint32
	format    vk.Format
	layout    ImageLayout

	view     ImageViewHandle
	samplers map[SamplerParams]SamplerHandle

	destroyed bool
}

// CreateImage allocates an image in the undefined layout.
func (rm *ResourceManager) CreateImage(width, height, mipLevels uint32) (*Image, error) {
	handle, res := rm.device.CreateImage(ImageInfo{
		Width:     width,
		Height:    height,
		MipLevels: mipLevels,
		Format:    TextureFormat,
		Usage:     vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit,
	})
	if !VulkanResultIsSuccess(res) {
		return nil, newDeviceError("create image", res)
	}
	img := &Image{
		rm:        rm,
		handle:    handle,
		width:     width,
		height:    height,
		mipLevels: mipLevels,
		format:    TextureFormat,
		layout:    LayoutUndefined,
		samplers:  make(map[SamplerParams]SamplerHandle),
	}
	img.id = rm.track(img)
	return img, nil
}

// TransitionLayout records a barrier moving every mip level to next.
func (img *Image) TransitionLayout(cmd CommandBufferHandle, next ImageLayout) error {
	return img.transition(cmd, next, 0, img.mipLevels)
}

func (img *Image) transition(cmd CommandBufferHandle, next ImageLayout, baseLevel, levelCount uint32) error {
	if img.destroyed {
		return fmt.Errorf("transition image: %w", core.ErrDestroyed)
	}
	if !legalTransition(img.layout, next) {
		err := fmt.Errorf("%s -> %s: %w", img.layout, next, core.ErrUnsupportedLayoutTransition)
		core.LogError("%s", err)
		return err
	}
	img.rm.device.CmdImageBarrier(cmd, ImageBarrier{
		Image:        img.handle,
		BaseMipLevel: baseLevel,
		LevelCount:   levelCount,
		OldLayout:    img.layout.vulkan(),
		NewLayout:    next.vulkan(),
	})
	img.layout = next
	return nil
}

// GetView returns the image view, creating it on first use.
func (img *Image) GetView() (ImageViewHandle, error) {
	if img.destroyed {
		return 0, fmt.Errorf("image view: %w", core.ErrDestroyed)
	}
	if img.view != 0 {
		return img.view, nil
	}
	view, res := img.rm.device.CreateImageView(img.handle, ImageViewInfo{Format: img.format, MipLevels: img.mipLevels})
	if !VulkanResultIsSuccess(res) {
		return 0, newDeviceError("create image view", res)
	}
	img.view = view
	return view, nil
}

// GetSampler returns a sampler for params. Samplers are cached per distinct
// parameter set for the lifetime of the image.
func (img *Image) GetSampler(params SamplerParams) (SamplerHandle, error) {
	if img.destroyed {
		return 0, fmt.Errorf("image sampler: %w", core.ErrDestroyed)
	}
	params = img.normalize(params)
	if s, ok := img.samplers[params]; ok {
		return s, nil
	}
	s, res := img.rm.device.CreateSampler(params)
	if !VulkanResultIsSuccess(res) {
		return 0, newDeviceError("create sampler", res)
	}
	img.samplers[params] = s
	return s, nil
}

func (img *Image) normalize(p SamplerParams) SamplerParams {
	limits := img.rm.device.Limits()
	if limits.SamplerAnisotropy {
		p.MaxAnisotropy = pmath.Clamp(p.MaxAnisotropy, 0, limits.MaxSamplerAnisotropy)
	} else {
		p.MaxAnisotropy = 0
	}
	if p.MaxLod <= 0 {
		p.MaxLod = float32(img.mipLevels)
	}
	return p
}

// Destroy releases samplers, the view and the image. Calling it again is a
// no-op.
func (img *Image) Destroy(barrier IdleBarrier) error {
	if img.destroyed {
		return nil
	}
	if err := img.rm.checkIdle(barrier, "destroy image"); err != nil {
		return err
	}
	img.release()
	img.rm.untrack(img.id)
	return nil
}

func (img *Image) release() {
	if img.destroyed {
		return
	}
	for params, s := range img.samplers {
		img.rm.device.DestroySampler(s)
		delete(img.samplers, params)
	}
	if img.view != 0 {
		img.rm.device.DestroyImageView(img.view)
		img.view = 0
	}
	img.rm.device.DestroyImage(img.handle)
	img.destroyed = true
}

func (img *Image) Handle() ImageHandle   { return img.handle }
func (img *Image) Layout() ImageLayout   { return img.layout }
func (img *Image) MipLevels() uint32     { return img.mipLevels }
func (img *Image) Extent() (w, h uint32) { return img.width, img.height }
func (img *Image) Samplers() int         { return len(img.samplers) }
func (img *Image) Destroyed() bool       { return img.destroyed }

// LoadImage decodes the file at path and uploads it with a full mip chain.
func (rm *ResourceManager) LoadImage(path string) (*Image, error) {
	src, err := loaders.LoadImage(rm.fs, path)
	if err != nil {
		return nil, err
	}
	img, err := rm.UploadImage(src)
	if err != nil {
		return nil, err
	}
	core.LogDebug("loaded image %s (%dx%d, %d levels)", path, img.width, img.height, img.mipLevels)
	return img, nil
}

// UploadImage copies src into a new image through a staging buffer and
// leaves every level in the shader read-only layout. When the device can
// not blit the texture format with linear filtering, the chain is built on
// the CPU and every level copied from the staging buffer.
func (rm *ResourceManager) UploadImage(src *image.RGBA) (*Image, error) {
	b := src.Bounds()
	width, height := uint32(b.Dx()), uint32(b.Dy())
	if width == 0 || height == 0 {
		err := core.NewMalformedError("upload image", "", fmt.Errorf("empty image: %w", core.ErrRangeOutOfBounds))
		core.LogError("%s", err)
		return nil, err
	}
	levels := pmath.MipLevels(width, height)
	blit := levels == 1 || rm.device.SupportsLinearBlit(TextureFormat)

	var pixels []byte
	var regions []BufferImageCopy
	if blit {
		pixels = loaders.Pixels(src)
		regions = append(regions, BufferImageCopy{Width: width, Height: height})
	} else {
		core.LogDebug("linear blit unsupported, building %d mip levels on the CPU", levels)
		for level, mip := range loaders.MipChain(src, levels, rm.mipFilter) {
			mb := mip.Bounds()
			regions = append(regions, BufferImageCopy{
				BufferOffset: uint64(len(pixels)),
				MipLevel:     uint32(level),
				Width:        uint32(mb.Dx()),
				Height:       uint32(mb.Dy()),
			})
			pixels = append(pixels, loaders.Pixels(mip)...)
		}
	}

	staging, err := CreateBuffer(rm, pixels, vk.BufferUsageTransferSrcBit)
	if err != nil {
		return nil, err
	}
	img, err := rm.CreateImage(width, height, levels)
	if err != nil {
		rm.discard(staging)
		return nil, err
	}

	err = SubmitSingleUse(rm.device, func(cmd CommandBufferHandle) error {
		if err := img.TransitionLayout(cmd, LayoutTransferDst); err != nil {
			return err
		}
		for _, region := range regions {
			region.Buffer = staging.Handle()
			region.Image = img.handle
			rm.device.CmdCopyBufferToImage(cmd, region)
		}
		if blit {
			return img.generateMipmaps(cmd)
		}
		return img.TransitionLayout(cmd, LayoutShaderReadOnly)
	})
	if err != nil {
		rm.discard(staging, img)
		return nil, err
	}
	rm.discard(staging)
	return img, nil
}

// generateMipmaps fills levels 1..n-1 by blitting each level from the one
// above it. Level 0 must hold the pixels and every level must be in the
// transfer-dst layout.
func (img *Image) generateMipmaps(cmd CommandBufferHandle) error {
	dev := img.rm.device
	mipWidth, mipHeight := img.width, img.height
	for i := uint32(1); i < img.mipLevels; i++ {
		dev.CmdImageBarrier(cmd, ImageBarrier{
			Image:        img.handle,
			BaseMipLevel: i - 1,
			LevelCount:   1,
			OldLayout:    vk.ImageLayoutTransferDstOptimal,
			NewLayout:    vk.ImageLayoutTransferSrcOptimal,
		})

		nextWidth, nextHeight := pmath.HalveExtent(mipWidth), pmath.HalveExtent(mipHeight)
		dev.CmdBlitImage(cmd, ImageBlit{
			Image:     img.handle,
			SrcLevel:  i - 1,
			SrcWidth:  mipWidth,
			SrcHeight: mipHeight,
			DstLevel:  i,
			DstWidth:  nextWidth,
			DstHeight: nextHeight,
		})

		dev.CmdImageBarrier(cmd, ImageBarrier{
			Image:        img.handle,
			BaseMipLevel: i - 1,
			LevelCount:   1,
			OldLayout:    vk.ImageLayoutTransferSrcOptimal,
			NewLayout:    vk.ImageLayoutShaderReadOnlyOptimal,
		})
		mipWidth, mipHeight = nextWidth, nextHeight
	}
	// The last level was only ever written to.
	return img.transition(cmd, LayoutShaderReadOnly, img.mipLevels-1, 1)
}

// discard waits for the device and releases resources created during a
// failed or finished upload.
func (rm *ResourceManager) discard(resources ...resource) {
	barrier, err := rm.WaitIdle()
	if err != nil {
		return
	}
	for _, r := range resources {
		switch r := r.(type) {
		case *Buffer[byte]:
			_ = r.Destroy(barrier)
		case *Image:
			_ = r.Destroy(barrier)
		}
	}
}
