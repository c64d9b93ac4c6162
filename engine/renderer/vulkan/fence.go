package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
)

// Fence implements gpu.Fence.
type Fence struct {
	Handle     vk.Fence
	IsSignaled bool

	ctx *Context
}

var _ gpu.Fence = (*Fence)(nil)

func NewFence(ctx *Context, createSignaled bool) (*Fence, error) {
	fence := &Fence{IsSignaled: createSignaled, ctx: ctx}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	if err := ctx.locks.SafeCall(SynchronizationManagement, func() error {
		if res := vk.CreateFence(ctx.Device.LogicalDevice, &fenceCreateInfo, ctx.Allocator, &fence.Handle); res != vk.Success {
			return fmt.Errorf("%w: vkCreateFence: %s", core.ErrResourceAllocation, VulkanResultString(res, false))
		}
		return nil
	}); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return fence, nil
}

func (f *Fence) Destroy() {
	if f.Handle != nil {
		f.ctx.locks.SafeCall(SynchronizationManagement, func() error {
			vk.DestroyFence(f.ctx.Device.LogicalDevice, f.Handle, f.ctx.Allocator)
			return nil
		})
		f.Handle = nil
	}
	f.IsSignaled = false
}

// Wait returns false with a nil error on timeout. Device loss and memory
// exhaustion are returned as errors.
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	if f.IsSignaled {
		return true, nil
	}
	result := vk.WaitForFences(f.ctx.Device.LogicalDevice, 1, []vk.Fence{f.Handle}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		f.IsSignaled = true
		return true, nil
	case vk.Timeout:
		core.LogDebug("vk_fence_wait - Timed out")
		return false, nil
	}
	err := fmt.Errorf("vkWaitForFences: %s", VulkanResultString(result, true))
	core.LogError("%s", err)
	return false, err
}

func (f *Fence) Reset() error {
	if f.IsSignaled {
		if res := vk.ResetFences(f.ctx.Device.LogicalDevice, 1, []vk.Fence{f.Handle}); res != vk.Success {
			err := fmt.Errorf("vkResetFences: %s", VulkanResultString(res, false))
			core.LogError("%s", err)
			return err
		}
		f.IsSignaled = false
	}
	return nil
}
