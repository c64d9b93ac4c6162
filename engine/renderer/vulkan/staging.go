package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/staging"
)

// StagingMemory is a host visible, host coherent transfer source buffer.
type StagingMemory struct {
	Buffer vk.Buffer
	Memory vk.DeviceMemory
	size   uint64
	mapped bool

	ctx *Context
}

// AllocateStaging implements staging.Allocator.
func (ctx *Context) AllocateStaging(size uint64) (staging.Memory, error) {
	buffer, memory, err := ctx.createBuffer(size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return &StagingMemory{Buffer: buffer, Memory: memory, size: size, ctx: ctx}, nil
}

func (m *StagingMemory) Map() ([]byte, error) {
	if m.mapped {
		return nil, fmt.Errorf("%w: staging memory is already mapped", core.ErrInvalidOperation)
	}
	var data unsafe.Pointer
	if res := vk.MapMemory(m.ctx.Device.LogicalDevice, m.Memory, 0, vk.DeviceSize(m.size), 0, &data); res != vk.Success {
		return nil, fmt.Errorf("vkMapMemory: %s", VulkanResultString(res, false))
	}
	m.mapped = true
	return unsafe.Slice((*byte)(data), m.size), nil
}

func (m *StagingMemory) Unmap() {
	if m.mapped {
		vk.UnmapMemory(m.ctx.Device.LogicalDevice, m.Memory)
		m.mapped = false
	}
}

func (m *StagingMemory) Destroy() {
	m.Unmap()
	if m.Buffer != nil {
		vk.DestroyBuffer(m.ctx.Device.LogicalDevice, m.Buffer, m.ctx.Allocator)
		m.Buffer = nil
	}
	if m.Memory != nil {
		m.ctx.free(m.Memory)
		m.Memory = nil
	}
}

func (m *StagingMemory) Handle() any { return m }

func stagingHandle(b *staging.Buffer) vk.Buffer {
	return b.Memory().Handle().(*StagingMemory).Buffer
}
