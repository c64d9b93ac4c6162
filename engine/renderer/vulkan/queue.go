package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
)

type Queue struct {
	Handle vk.Queue
	Family uint32

	ctx *Context
}

func (ctx *Context) GraphicsQueue() *Queue {
	return &Queue{Handle: ctx.Device.GraphicsQueue, Family: ctx.Device.GraphicsQueueIndex, ctx: ctx}
}

// Submit hands an ended encoder to the queue. The returned fence signals
// once the command buffer retired; the caller destroys it.
func (q *Queue) Submit(enc *Encoder) (*Fence, error) {
	if enc == nil || enc.cb.State != CommandBufferStateRecordingEnded {
		return nil, fmt.Errorf("%w: submit of an encoder that has not ended", core.ErrInvalidOperation)
	}
	fence, err := NewFence(q.ctx, false)
	if err != nil {
		return nil, err
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{enc.cb.Handle},
	}
	if err := q.ctx.locks.SafeQueueCall(q.Family, func() error {
		if res := vk.QueueSubmit(q.Handle, 1, []vk.SubmitInfo{submitInfo}, fence.Handle); res != vk.Success {
			return fmt.Errorf("vkQueueSubmit: %s", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError("%s", err)
		fence.Destroy()
		return nil, err
	}
	enc.cb.UpdateSubmitted()
	return fence, nil
}

func (q *Queue) WaitIdle() error {
	return q.ctx.locks.SafeQueueCall(q.Family, func() error {
		if res := vk.QueueWaitIdle(q.Handle); res != vk.Success {
			return fmt.Errorf("vkQueueWaitIdle: %s", VulkanResultString(res, true))
		}
		return nil
	})
}
