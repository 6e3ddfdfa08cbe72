package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
)

/**
 * @brief Weight of one descriptor type in a pool. A pool created for a base
 * capacity holds Ratio x base descriptors of Type.
 */
type PoolRatio struct {
	Type  vk.DescriptorType
	Ratio float32
}

/**
 * @brief The shape of every pool created by a DescriptorAllocator.
 */
type PoolSizes struct {
	BaseCapacity uint32
	Ratios       []PoolRatio
}

var descriptorTypes = map[string]vk.DescriptorType{
	"sampler":                vk.DescriptorTypeSampler,
	"combined_image_sampler": vk.DescriptorTypeCombinedImageSampler,
	"sampled_image":          vk.DescriptorTypeSampledImage,
	"storage_image":          vk.DescriptorTypeStorageImage,
	"uniform_texel_buffer":   vk.DescriptorTypeUniformTexelBuffer,
	"storage_texel_buffer":   vk.DescriptorTypeStorageTexelBuffer,
	"uniform_buffer":         vk.DescriptorTypeUniformBuffer,
	"storage_buffer":         vk.DescriptorTypeStorageBuffer,
	"uniform_buffer_dynamic": vk.DescriptorTypeUniformBufferDynamic,
	"storage_buffer_dynamic": vk.DescriptorTypeStorageBufferDynamic,
	"input_attachment":       vk.DescriptorTypeInputAttachment,
}

// DefaultPoolSizes is the ratio table used when no configuration is given.
func DefaultPoolSizes() PoolSizes {
	sizes, _ := PoolSizesFromConfig(config.Default().Descriptors)
	return sizes
}

// PoolSizesFromConfig converts the [descriptors] section. Types are ordered
// by name so every pool is created identically.
func PoolSizesFromConfig(cfg config.DescriptorConfig) (PoolSizes, error) {
	sizes := PoolSizes{BaseCapacity: cfg.BaseCapacity}
	for _, name := range cfg.RatioNames() {
		t, ok := descriptorTypes[name]
		if !ok {
			return PoolSizes{}, fmt.Errorf("descriptor ratio %q: unknown descriptor type", name)
		}
		sizes.Ratios = append(sizes.Ratios, PoolRatio{Type: t, Ratio: cfg.Ratios[name]})
	}
	return sizes, nil
}

func (p PoolSizes) vulkan() []vk.DescriptorPoolSize {
	out := make([]vk.DescriptorPoolSize, 0, len(p.Ratios))
	for _, r := range p.Ratios {
		count := uint32(r.Ratio * float32(p.BaseCapacity))
		if count == 0 {
			continue
		}
		out = append(out, vk.DescriptorPoolSize{Type: r.Type, DescriptorCount: count})
	}
	return out
}

type DescriptorStats struct {
	Free int
	Used int
}

// DescriptorAllocator hands out descriptor sets from a rotating set of
// pools. A pool that runs out is retired to the used list until ResetFrame.
type DescriptorAllocator struct {
	device  Device
	sizes   PoolSizes
	current DescriptorPoolHandle
	free    []DescriptorPoolHandle
	used    []DescriptorPoolHandle
}

func NewDescriptorAllocator(device Device, sizes PoolSizes) *DescriptorAllocator {
	return &DescriptorAllocator{
		device: device,
		sizes:  sizes,
	}
}

func (a *DescriptorAllocator) grabPool() (DescriptorPoolHandle, error) {
	if n := len(a.free); n > 0 {
		pool := a.free[n-1]
		a.free = a.free[:n-1]
		a.used = append(a.used, pool)
		return pool, nil
	}
	pool, res := a.device.CreateDescriptorPool(a.sizes.BaseCapacity, a.sizes.vulkan())
	if !VulkanResultIsSuccess(res) {
		return 0, newDeviceError("create descriptor pool", res)
	}
	a.used = append(a.used, pool)
	core.LogDebug("created descriptor pool %d (%d in use)", pool, len(a.used))
	return pool, nil
}

func poolExhausted(res vk.Result) bool {
	return res == vk.ErrorOutOfPoolMemory || res == vk.ErrorFragmentedPool
}

// Allocate returns count sets of layout. When the current pool is full a
// fresh pool is grabbed and the allocation retried once.
func (a *DescriptorAllocator) Allocate(layout DescriptorSetLayoutHandle, count uint32) ([]DescriptorSetHandle, error) {
	if a.current == 0 {
		pool, err := a.grabPool()
		if err != nil {
			return nil, err
		}
		a.current = pool
	}

	sets, res := a.device.AllocateDescriptorSets(a.current, layout, count)
	if VulkanResultIsSuccess(res) {
		return sets, nil
	}
	if !poolExhausted(res) {
		return nil, newDeviceError("allocate descriptor sets", res)
	}

	pool, err := a.grabPool()
	if err != nil {
		return nil, err
	}
	a.current = pool

	sets, res = a.device.AllocateDescriptorSets(a.current, layout, count)
	if VulkanResultIsSuccess(res) {
		return sets, nil
	}
	err = &core.AllocationError{
		Op:  "allocate descriptor sets",
		Err: newDeviceError("allocate descriptor sets after pool rotation", res),
	}
	core.LogError("%s", err)
	return nil, err
}

// ResetFrame resets every used pool and makes it available again. Sets
// allocated before the reset become invalid.
func (a *DescriptorAllocator) ResetFrame() error {
	var errs []error
	for _, pool := range a.used {
		if res := a.device.ResetDescriptorPool(pool); !VulkanResultIsSuccess(res) {
			errs = append(errs, newDeviceError("reset descriptor pool", res))
		}
		a.free = append(a.free, pool)
	}
	a.used = a.used[:0]
	a.current = 0
	return errors.Join(errs...)
}

// Cleanup destroys every pool.
func (a *DescriptorAllocator) Cleanup(barrier IdleBarrier) error {
	if !barrier.confirms(a.device) {
		err := fmt.Errorf("descriptor allocator cleanup: %w", core.ErrDeviceNotIdle)
		core.LogError("%s", err)
		return err
	}
	for _, pool := range a.free {
		a.device.DestroyDescriptorPool(pool)
	}
	for _, pool := range a.used {
		a.device.DestroyDescriptorPool(pool)
	}
	a.free = nil
	a.used = nil
	a.current = 0
	return nil
}

func (a *DescriptorAllocator) Stats() DescriptorStats {
	return DescriptorStats{Free: len(a.free), Used: len(a.used)}
}

// DescriptorBuilder collects the writes of one descriptor set and
// allocates it through a DescriptorAllocator.
type DescriptorBuilder struct {
	alloc  *DescriptorAllocator
	writes []DescriptorWrite
}

func NewDescriptorBuilder(alloc *DescriptorAllocator) *DescriptorBuilder {
	return &DescriptorBuilder{alloc: alloc}
}

func (b *DescriptorBuilder) BindBuffer(binding uint32, t vk.DescriptorType, buffer BufferHandle, offset, size uint64) *DescriptorBuilder {
	b.writes = append(b.writes, DescriptorWrite{
		Binding: binding,
		Type:    t,
		Buffer:  buffer,
		Offset:  offset,
		Range:   size,
	})
	return b
}

func (b *DescriptorBuilder) BindImage(binding uint32, t vk.DescriptorType, view ImageViewHandle, sampler SamplerHandle) *DescriptorBuilder {
	b.writes = append(b.writes, DescriptorWrite{
		Binding: binding,
		Type:    t,
		View:    view,
		Sampler: sampler,
	})
	return b
}

// Build allocates a set of layout and points it at the bound resources.
func (b *DescriptorBuilder) Build(layout DescriptorSetLayoutHandle) (DescriptorSetHandle, error) {
	sets, err := b.alloc.Allocate(layout, 1)
	if err != nil {
		return 0, err
	}
	set := sets[0]
	writes := make([]DescriptorWrite, len(b.writes))
	for i, w := range b.writes {
		w.Set = set
		writes[i] = w
	}
	if len(writes) > 0 {
		b.alloc.device.UpdateDescriptorSets(writes)
	}
	return set, nil
}
