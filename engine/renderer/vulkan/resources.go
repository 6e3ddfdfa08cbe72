package vulkan

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
)

// IdleBarrier proves the device was idle when it was issued. Destroying GPU
// resources requires one.
type IdleBarrier struct {
	device Device
}

func (b IdleBarrier) confirms(device Device) bool {
	return b.device != nil && b.device == device
}

type resource interface {
	release()
}

// ResourceManager owns every buffer and image created through it. Resources
// can be destroyed one by one or all at once with ReleaseAll; either way
// only after WaitIdle.
type ResourceManager struct {
	ID core.Identifier

	device    Device
	fs        billy.Filesystem
	mipFilter loaders.Filter

	nextID    uint64
	resources map[uint64]resource
}

type ResourceManagerOption func(*ResourceManager)

// WithMipFilter selects the filter used when the mip chain is built on the CPU.
func WithMipFilter(f loaders.Filter) ResourceManagerOption {
	return func(rm *ResourceManager) {
		rm.mipFilter = f
	}
}

// NewResourceManager creates an arena on device. fs is where LoadImage
// reads from.
func NewResourceManager(device Device, fs billy.Filesystem, opts ...ResourceManagerOption) *ResourceManager {
	rm := &ResourceManager{
		ID:        core.NewIdentifier(),
		device:    device,
		fs:        fs,
		mipFilter: loaders.FilterLinear,
		resources: make(map[uint64]resource),
	}
	for _, o := range opts {
		o(rm)
	}
	return rm
}

func (rm *ResourceManager) Device() Device {
	return rm.device
}

// Filesystem is where LoadImage reads from.
func (rm *ResourceManager) Filesystem() billy.Filesystem {
	return rm.fs
}

// WaitIdle blocks until the device has finished all submitted work.
func (rm *ResourceManager) WaitIdle() (IdleBarrier, error) {
	if res := rm.device.WaitIdle(); !VulkanResultIsSuccess(res) {
		return IdleBarrier{}, newDeviceError("wait idle", res)
	}
	return IdleBarrier{device: rm.device}, nil
}

// Live is the number of resources not destroyed yet.
func (rm *ResourceManager) Live() int {
	return len(rm.resources)
}

// ReleaseAll destroys every live resource.
func (rm *ResourceManager) ReleaseAll(barrier IdleBarrier) error {
	if err := rm.checkIdle(barrier, "release all"); err != nil {
		return err
	}
	count := len(rm.resources)
	for id, r := range rm.resources {
		r.release()
		delete(rm.resources, id)
	}
	if count > 0 {
		core.LogDebug("resource manager %s released %d resources", rm.ID.Short(), count)
	}
	return nil
}

func (rm *ResourceManager) checkIdle(barrier IdleBarrier, op string) error {
	if !barrier.confirms(rm.device) {
		err := fmt.Errorf("%s: %w", op, core.ErrDeviceNotIdle)
		core.LogError("%s", err)
		return err
	}
	return nil
}

func (rm *ResourceManager) track(r resource) uint64 {
	rm.nextID++
	rm.resources[rm.nextID] = r
	return rm.nextID
}

func (rm *ResourceManager) untrack(id uint64) {
	delete(rm.resources, id)
}
