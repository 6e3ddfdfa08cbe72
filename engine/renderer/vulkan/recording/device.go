// Package recording provides a Device that keeps everything in memory and
// records what it is asked to do. It backs dry runs and tests.
package recording

import (
	"slices"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// Pool is the state of a recorded descriptor pool.
type Pool struct {
	MaxSets   uint32
	Sizes     []vk.DescriptorPoolSize
	Allocated uint32
	Resets    int
}

// Device implements vulkan.Device. Handles are handed out sequentially
// starting at 1 and are never reused.
type Device struct {
	DeviceLimits vulkan.DeviceLimits
	LinearBlit   bool

	Calls []string

	Buffers  map[vulkan.BufferHandle][]byte
	Images   map[vulkan.ImageHandle]vulkan.ImageInfo
	Views    map[vulkan.ImageViewHandle]vulkan.ImageHandle
	Samplers map[vulkan.SamplerHandle]vulkan.SamplerParams
	Pools    map[vulkan.DescriptorPoolHandle]*Pool
	Sets     map[vulkan.DescriptorSetHandle]vulkan.DescriptorSetLayoutHandle

	Barriers []vulkan.ImageBarrier
	Copies   []vulkan.BufferImageCopy
	Blits    []vulkan.ImageBlit
	Writes   []vulkan.DescriptorWrite

	Submitted int
	Aborted   int

	results map[string]vk.Result
	open    map[vulkan.CommandBufferHandle]bool
	next    uint64
}

func NewDevice() *Device {
	return &Device{
		DeviceLimits: vulkan.DeviceLimits{
			MinUniformBufferOffsetAlignment: 256,
			MaxSamplerAnisotropy:            16,
			SamplerAnisotropy:               true,
		},
		LinearBlit: true,
		Buffers:    make(map[vulkan.BufferHandle][]byte),
		Images:     make(map[vulkan.ImageHandle]vulkan.ImageInfo),
		Views:      make(map[vulkan.ImageViewHandle]vulkan.ImageHandle),
		Samplers:   make(map[vulkan.SamplerHandle]vulkan.SamplerParams),
		Pools:      make(map[vulkan.DescriptorPoolHandle]*Pool),
		Sets:       make(map[vulkan.DescriptorSetHandle]vulkan.DescriptorSetLayoutHandle),
		results:    make(map[string]vk.Result),
		open:       make(map[vulkan.CommandBufferHandle]bool),
	}
}

// Fail makes every later call of op return res. Passing vk.Success clears
// the override.
func (d *Device) Fail(op string, res vk.Result) {
	if res == vk.Success {
		delete(d.results, op)
		return
	}
	d.results[op] = res
}

// Count returns how many times op was called.
func (d *Device) Count(op string) int {
	n := 0
	for _, c := range d.Calls {
		if c == op {
			n++
		}
	}
	return n
}

// Live is the number of objects created and not destroyed yet.
func (d *Device) Live() int {
	return len(d.Buffers) + len(d.Images) + len(d.Views) + len(d.Samplers) + len(d.Pools)
}

func (d *Device) call(op string) vk.Result {
	d.Calls = append(d.Calls, op)
	if res, ok := d.results[op]; ok {
		return res
	}
	return vk.Success
}

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

func (d *Device) Limits() vulkan.DeviceLimits {
	return d.DeviceLimits
}

func (d *Device) SupportsLinearBlit(format vk.Format) bool {
	return d.LinearBlit
}

func (d *Device) CreateBuffer(size uint64, usage vk.BufferUsageFlagBits) (vulkan.BufferHandle, vk.Result) {
	if res := d.call("CreateBuffer"); res != vk.Success {
		return 0, res
	}
	h := vulkan.BufferHandle(d.handle())
	d.Buffers[h] = make([]byte, size)
	return h, vk.Success
}

func (d *Device) WriteBuffer(buffer vulkan.BufferHandle, offset uint64, data []byte) vk.Result {
	if res := d.call("WriteBuffer"); res != vk.Success {
		return res
	}
	mem, ok := d.Buffers[buffer]
	if !ok || offset+uint64(len(data)) > uint64(len(mem)) {
		return vk.ErrorMemoryMapFailed
	}
	copy(mem[offset:], data)
	return vk.Success
}

func (d *Device) DestroyBuffer(buffer vulkan.BufferHandle) {
	d.call("DestroyBuffer")
	delete(d.Buffers, buffer)
}

func (d *Device) CreateImage(info vulkan.ImageInfo) (vulkan.ImageHandle, vk.Result) {
	if res := d.call("CreateImage"); res != vk.Success {
		return 0, res
	}
	h := vulkan.ImageHandle(d.handle())
	d.Images[h] = info
	return h, vk.Success
}

func (d *Device) DestroyImage(image vulkan.ImageHandle) {
	d.call("DestroyImage")
	delete(d.Images, image)
}

func (d *Device) CreateImageView(image vulkan.ImageHandle, info vulkan.ImageViewInfo) (vulkan.ImageViewHandle, vk.Result) {
	if res := d.call("CreateImageView"); res != vk.Success {
		return 0, res
	}
	h := vulkan.ImageViewHandle(d.handle())
	d.Views[h] = image
	return h, vk.Success
}

func (d *Device) DestroyImageView(view vulkan.ImageViewHandle) {
	d.call("DestroyImageView")
	delete(d.Views, view)
}

func (d *Device) CreateSampler(params vulkan.SamplerParams) (vulkan.SamplerHandle, vk.Result) {
	if res := d.call("CreateSampler"); res != vk.Success {
		return 0, res
	}
	h := vulkan.SamplerHandle(d.handle())
	d.Samplers[h] = params
	return h, vk.Success
}

func (d *Device) DestroySampler(sampler vulkan.SamplerHandle) {
	d.call("DestroySampler")
	delete(d.Samplers, sampler)
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []vk.DescriptorPoolSize) (vulkan.DescriptorPoolHandle, vk.Result) {
	if res := d.call("CreateDescriptorPool"); res != vk.Success {
		return 0, res
	}
	h := vulkan.DescriptorPoolHandle(d.handle())
	d.Pools[h] = &Pool{MaxSets: maxSets, Sizes: slices.Clone(sizes)}
	return h, vk.Success
}

func (d *Device) ResetDescriptorPool(pool vulkan.DescriptorPoolHandle) vk.Result {
	if res := d.call("ResetDescriptorPool"); res != vk.Success {
		return res
	}
	p, ok := d.Pools[pool]
	if !ok {
		return vk.ErrorUnknown
	}
	p.Allocated = 0
	p.Resets++
	return vk.Success
}

func (d *Device) DestroyDescriptorPool(pool vulkan.DescriptorPoolHandle) {
	d.call("DestroyDescriptorPool")
	delete(d.Pools, pool)
}

// AllocateDescriptorSets fails with ErrorOutOfPoolMemory once a pool has
// handed out MaxSets sets.
func (d *Device) AllocateDescriptorSets(pool vulkan.DescriptorPoolHandle, layout vulkan.DescriptorSetLayoutHandle, count uint32) ([]vulkan.DescriptorSetHandle, vk.Result) {
	if res := d.call("AllocateDescriptorSets"); res != vk.Success {
		return nil, res
	}
	p, ok := d.Pools[pool]
	if !ok {
		return nil, vk.ErrorUnknown
	}
	if p.Allocated+count > p.MaxSets {
		return nil, vk.ErrorOutOfPoolMemory
	}
	p.Allocated += count
	sets := make([]vulkan.DescriptorSetHandle, count)
	for i := range sets {
		sets[i] = vulkan.DescriptorSetHandle(d.handle())
		d.Sets[sets[i]] = layout
	}
	return sets, vk.Success
}

func (d *Device) UpdateDescriptorSets(writes []vulkan.DescriptorWrite) {
	d.call("UpdateDescriptorSets")
	d.Writes = append(d.Writes, writes...)
}

func (d *Device) BeginSingleUse() (vulkan.CommandBufferHandle, vk.Result) {
	if res := d.call("BeginSingleUse"); res != vk.Success {
		return 0, res
	}
	h := vulkan.CommandBufferHandle(d.handle())
	d.open[h] = true
	return h, vk.Success
}

func (d *Device) EndSingleUse(cmd vulkan.CommandBufferHandle) vk.Result {
	delete(d.open, cmd)
	if res := d.call("EndSingleUse"); res != vk.Success {
		return res
	}
	d.Submitted++
	return vk.Success
}

func (d *Device) AbortSingleUse(cmd vulkan.CommandBufferHandle) {
	d.call("AbortSingleUse")
	delete(d.open, cmd)
	d.Aborted++
}

func (d *Device) CmdImageBarrier(cmd vulkan.CommandBufferHandle, barrier vulkan.ImageBarrier) {
	d.call("CmdImageBarrier")
	d.Barriers = append(d.Barriers, barrier)
}

func (d *Device) CmdCopyBufferToImage(cmd vulkan.CommandBufferHandle, region vulkan.BufferImageCopy) {
	d.call("CmdCopyBufferToImage")
	d.Copies = append(d.Copies, region)
}

func (d *Device) CmdBlitImage(cmd vulkan.CommandBufferHandle, blit vulkan.ImageBlit) {
	d.call("CmdBlitImage")
	d.Blits = append(d.Blits, blit)
}

func (d *Device) WaitIdle() vk.Result {
	return d.call("WaitIdle")
}

// OpenCommandBuffers is the number of single-use command buffers begun and
// neither submitted nor aborted.
func (d *Device) OpenCommandBuffers() int {
	return len(d.open)
}

// SceneLayouts hands out handles standing in for the layouts a real
// backend creates with CreateSceneLayouts.
func (d *Device) SceneLayouts() vulkan.SceneLayouts {
	return vulkan.SceneLayouts{
		Matrix:   vulkan.DescriptorSetLayoutHandle(d.handle()),
		Texture:  vulkan.DescriptorSetLayoutHandle(d.handle()),
		Pipeline: vulkan.PipelineLayoutHandle(d.handle()),
	}
}

var _ vulkan.Device = (*Device)(nil)
