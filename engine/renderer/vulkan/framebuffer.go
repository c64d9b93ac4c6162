package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/barrier"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
)

// Framebuffer backs a gpu.Framebuffer. It owns one view per attachment and
// the render pass it is compatible with.
type Framebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *RenderPass

	ctx *Context
}

func (ctx *Context) CreateFramebuffer(colors []gpu.Attachment, depth *gpu.Attachment) (*gpu.Framebuffer, error) {
	h := &Framebuffer{ctx: ctx}
	fb, err := gpu.NewFramebuffer(colors, depth, h)
	if err != nil {
		core.LogError("vulkan: create framebuffer: %s", err.Error())
		return nil, err
	}

	targets := append([]gpu.Attachment(nil), fb.ColorTargets...)
	if fb.DepthTarget != nil {
		targets = append(targets, *fb.DepthTarget)
	}
	for _, a := range targets {
		view, err := ctx.createView(a.Image, a.Mip, 1, a.Layer, 1, barrier.FullAspect(a.Image.Format))
		if err != nil {
			core.LogError("%s", err)
			h.Destroy()
			return nil, err
		}
		h.Attachments = append(h.Attachments, view)
	}

	if h.Renderpass, err = ctx.createRenderPass(fb); err != nil {
		core.LogError("%s", err)
		h.Destroy()
		return nil, err
	}

	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      h.Renderpass.Handle,
		AttachmentCount: uint32(len(h.Attachments)),
		PAttachments:    h.Attachments,
		Width:           fb.Width,
		Height:          fb.Height,
		Layers:          1,
	}
	if res := vk.CreateFramebuffer(ctx.Device.LogicalDevice, &info, ctx.Allocator, &h.Handle); res != vk.Success {
		err := fmt.Errorf("%w: vkCreateFramebuffer: %s", core.ErrResourceAllocation, VulkanResultString(res, false))
		core.LogError("%s", err)
		h.Destroy()
		return nil, err
	}
	return fb, nil
}

// Destroy releases the framebuffer, its views and its render pass. The
// attached images are left alone.
func (h *Framebuffer) Destroy() {
	dev := h.ctx.Device.LogicalDevice
	if h.Handle != nil {
		vk.DestroyFramebuffer(dev, h.Handle, h.ctx.Allocator)
		h.Handle = nil
	}
	for _, view := range h.Attachments {
		vk.DestroyImageView(dev, view, h.ctx.Allocator)
	}
	h.Attachments = nil
	if h.Renderpass != nil {
		h.Renderpass.destroy(h.ctx)
		h.Renderpass = nil
	}
}
