package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
)

// RenderPass is a single subpass pass over the attachments of one
// framebuffer. Attachments are loaded and stored, and stay in their
// attachment layout from start to end: layout changes happen only in
// barriers recorded outside the pass.
type RenderPass struct {
	Handle vk.RenderPass
}

func (ctx *Context) createRenderPass(fb *gpu.Framebuffer) (*RenderPass, error) {
	var descriptions []vk.AttachmentDescription
	var colorRefs []vk.AttachmentReference
	for i, a := range fb.ColorTargets {
		descriptions = append(descriptions, vk.AttachmentDescription{
			Format:         imageHandle(a.Image).Format,
			Samples:        vk.SampleCountFlagBits(a.Image.SampleCount),
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if d := fb.DepthTarget; d != nil {
		stencilOp := vk.AttachmentLoadOpDontCare
		stencilStore := vk.AttachmentStoreOpDontCare
		if d.Image.Format.HasStencil() {
			stencilOp = vk.AttachmentLoadOpLoad
			stencilStore = vk.AttachmentStoreOpStore
		}
		descriptions = append(descriptions, vk.AttachmentDescription{
			Format:         imageHandle(d.Image).Format,
			Samples:        vk.SampleCountFlagBits(d.Image.SampleCount),
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  stencilOp,
			StencilStoreOp: stencilStore,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(descriptions) - 1),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(descriptions)),
		PAttachments:    descriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	rp := &RenderPass{}
	if err := ctx.locks.SafeCall(RenderpassManagement, func() error {
		if res := vk.CreateRenderPass(ctx.Device.LogicalDevice, &info, ctx.Allocator, &rp.Handle); res != vk.Success {
			return fmt.Errorf("%w: vkCreateRenderPass: %s", core.ErrResourceAllocation, VulkanResultString(res, false))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return rp, nil
}

func (rp *RenderPass) destroy(ctx *Context) {
	if rp.Handle != nil {
		ctx.locks.SafeCall(RenderpassManagement, func() error {
			vk.DestroyRenderPass(ctx.Device.LogicalDevice, rp.Handle, ctx.Allocator)
			return nil
		})
		rp.Handle = nil
	}
}

func (rp *RenderPass) begin(cb *CommandBuffer, fb *Framebuffer, width, height uint32) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.Handle,
		Framebuffer: fb.Handle,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: width, Height: height},
		},
	}
	vk.CmdBeginRenderPass(cb.Handle, &beginInfo, vk.SubpassContentsInline)
	cb.State = CommandBufferStateInRenderPass
}

func (rp *RenderPass) end(cb *CommandBuffer) {
	vk.CmdEndRenderPass(cb.Handle)
	cb.State = CommandBufferStateRecording
}
