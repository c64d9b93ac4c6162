package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
)

type CommandBufferState int

const (
	CommandBufferStateReady CommandBufferState = iota
	CommandBufferStateRecording
	CommandBufferStateInRenderPass
	CommandBufferStateRecordingEnded
	CommandBufferStateSubmitted
	CommandBufferStateNotAllocated
)

func (s CommandBufferState) String() string {
	switch s {
	case CommandBufferStateReady:
		return "Ready"
	case CommandBufferStateRecording:
		return "Recording"
	case CommandBufferStateInRenderPass:
		return "InRenderPass"
	case CommandBufferStateRecordingEnded:
		return "RecordingEnded"
	case CommandBufferStateSubmitted:
		return "Submitted"
	}
	return "NotAllocated"
}

type CommandBuffer struct {
	Handle vk.CommandBuffer
	State  CommandBufferState
}

func NewCommandBuffer(ctx *Context, pool vk.CommandPool, primary bool) (*CommandBuffer, error) {
	cb := &CommandBuffer{State: CommandBufferStateNotAllocated}

	level := vk.CommandBufferLevelPrimary
	if !primary {
		level = vk.CommandBufferLevelSecondary
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := ctx.locks.SafeCall(CommandBufferManagement, func() error {
		if res := vk.AllocateCommandBuffers(ctx.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
			return fmt.Errorf("%w: vkAllocateCommandBuffers: %s", core.ErrResourceAllocation, VulkanResultString(res, false))
		}
		return nil
	}); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	cb.Handle = handles[0]
	cb.State = CommandBufferStateReady
	return cb, nil
}

func (cb *CommandBuffer) Free(ctx *Context, pool vk.CommandPool) {
	ctx.locks.SafeCall(CommandBufferManagement, func() error {
		vk.FreeCommandBuffers(ctx.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{cb.Handle})
		return nil
	})
	cb.Handle = nil
	cb.State = CommandBufferStateNotAllocated
}

func (cb *CommandBuffer) Begin(singleUse, renderpassContinue, simultaneousUse bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if singleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if renderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if simultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := vk.BeginCommandBuffer(cb.Handle, &beginInfo); res != vk.Success {
		err := fmt.Errorf("vkBeginCommandBuffer: %s", VulkanResultString(res, false))
		core.LogError("%s", err)
		return err
	}
	cb.State = CommandBufferStateRecording
	return nil
}

func (cb *CommandBuffer) End() error {
	if res := vk.EndCommandBuffer(cb.Handle); res != vk.Success {
		err := fmt.Errorf("vkEndCommandBuffer: %s", VulkanResultString(res, false))
		core.LogError("%s", err)
		return err
	}
	cb.State = CommandBufferStateRecordingEnded
	return nil
}

func (cb *CommandBuffer) UpdateSubmitted() {
	cb.State = CommandBufferStateSubmitted
}

// Reset returns a retired command buffer to Ready so it can be recorded
// again.
func (cb *CommandBuffer) Reset() error {
	if res := vk.ResetCommandBuffer(cb.Handle, 0); res != vk.Success {
		return fmt.Errorf("vkResetCommandBuffer: %s", VulkanResultString(res, false))
	}
	cb.State = CommandBufferStateReady
	return nil
}
