package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// Buffer holds a contiguous array of T in host-visible device memory.
type Buffer[T any] struct {
	rm        *ResourceManager
	id        uint64
	handle    BufferHandle
	count     int
	usage     vk.BufferUsageFlagBits
	destroyed bool
}

// Ref is a view of Count elements starting at element Offset of a buffer.
// It does not own anything.
type Ref[T any] struct {
	Buffer BufferHandle
	Offset uint32
	Count  uint32
}

func (r Ref[T]) ByteOffset() uint64 {
	return uint64(r.Offset) * elementSize[T]()
}

func (r Ref[T]) ByteSize() uint64 {
	return uint64(r.Count) * elementSize[T]()
}

func elementSize[T any]() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

func asBytes[T any](elements []T) []byte {
	if len(elements) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(elements))), len(elements)*int(elementSize[T]()))
}

// CreateBuffer allocates room for elements and copies them in.
func CreateBuffer[T any](rm *ResourceManager, elements []T, usage vk.BufferUsageFlagBits) (*Buffer[T], error) {
	size := uint64(len(elements)) * elementSize[T]()
	if size == 0 {
		err := fmt.Errorf("create buffer: %w", core.ErrRangeOutOfBounds)
		core.LogError("%s", err)
		return nil, err
	}
	handle, res := rm.device.CreateBuffer(size, usage)
	if !VulkanResultIsSuccess(res) {
		return nil, newDeviceError("create buffer", res)
	}
	if res := rm.device.WriteBuffer(handle, 0, asBytes(elements)); !VulkanResultIsSuccess(res) {
		rm.device.DestroyBuffer(handle)
		return nil, newDeviceError("write buffer", res)
	}
	b := &Buffer[T]{
		rm:     rm,
		handle: handle,
		count:  len(elements),
		usage:  usage,
	}
	b.id = rm.track(b)
	return b, nil
}

// Update overwrites the buffer from its start. The caller guarantees the GPU
// is not reading the old contents.
func (b *Buffer[T]) Update(elements []T) error {
	if b.destroyed {
		return fmt.Errorf("update buffer: %w", core.ErrDestroyed)
	}
	if len(elements) > b.count {
		err := fmt.Errorf("update buffer with %d elements, capacity %d: %w", len(elements), b.count, core.ErrRangeOutOfBounds)
		core.LogError("%s", err)
		return err
	}
	if res := b.rm.device.WriteBuffer(b.handle, 0, asBytes(elements)); !VulkanResultIsSuccess(res) {
		return newDeviceError("write buffer", res)
	}
	return nil
}

// GetRef returns the sub-range [offset, offset+count).
func (b *Buffer[T]) GetRef(offset, count uint32) (Ref[T], error) {
	if uint64(offset)+uint64(count) > uint64(b.count) {
		err := fmt.Errorf("ref [%d, %d) of buffer with %d elements: %w", offset, uint64(offset)+uint64(count), b.count, core.ErrRangeOutOfBounds)
		core.LogError("%s", err)
		return Ref[T]{}, err
	}
	return Ref[T]{Buffer: b.handle, Offset: offset, Count: count}, nil
}

// Destroy releases the buffer. Calling it again is a no-op.
func (b *Buffer[T]) Destroy(barrier IdleBarrier) error {
	if b.destroyed {
		return nil
	}
	if err := b.rm.checkIdle(barrier, "destroy buffer"); err != nil {
		return err
	}
	b.release()
	b.rm.untrack(b.id)
	return nil
}

func (b *Buffer[T]) release() {
	if b.destroyed {
		return
	}
	b.rm.device.DestroyBuffer(b.handle)
	b.destroyed = true
}

func (b *Buffer[T]) Handle() BufferHandle { return b.handle }
func (b *Buffer[T]) Count() int           { return b.count }
func (b *Buffer[T]) Size() uint64         { return uint64(b.count) * elementSize[T]() }
func (b *Buffer[T]) Destroyed() bool      { return b.destroyed }
