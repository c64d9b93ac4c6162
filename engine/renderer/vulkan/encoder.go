package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/barrier"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
	"github.com/spaghettifunk/anima/engine/renderer/staging"
)

var ErrEncoderRecording = errors.New("vulkan: encoder is already recording")

// Encoder records session commands into a primary command buffer of the
// graphics queue family.
type Encoder struct {
	ctx    *Context
	cb     *CommandBuffer
	active *RenderPass
}

var _ gpu.CommandEncoder = (*Encoder)(nil)

func (ctx *Context) NewEncoder() (*Encoder, error) {
	cb, err := NewCommandBuffer(ctx, ctx.Device.GraphicsCommandPool, true)
	if err != nil {
		return nil, err
	}
	return &Encoder{ctx: ctx, cb: cb}, nil
}

// Features reports no ray tracing: the bindings do not load
// vkCmdTraceRaysKHR even when the device has the extension.
func (e *Encoder) Features() gpu.Features {
	return gpu.Features{}
}

// Begin starts a one time submit recording. An encoder whose previous
// recording was submitted is reset first; the caller must have waited for
// that submission to retire.
func (e *Encoder) Begin() error {
	switch e.cb.State {
	case CommandBufferStateRecording, CommandBufferStateInRenderPass:
		return ErrEncoderRecording
	case CommandBufferStateRecordingEnded, CommandBufferStateSubmitted:
		if err := e.cb.Reset(); err != nil {
			core.LogError("%s", err)
			return err
		}
	case CommandBufferStateNotAllocated:
		return fmt.Errorf("%w: encoder was destroyed", core.ErrInvalidOperation)
	}
	return e.cb.Begin(true, false, false)
}

func (e *Encoder) End() error {
	if e.cb.State != CommandBufferStateRecording {
		return fmt.Errorf("%w: end of encoder in state %v", core.ErrInvalidOperation, e.cb.State)
	}
	return e.cb.End()
}

func (e *Encoder) Destroy() {
	if e.cb.Handle != nil {
		e.cb.Free(e.ctx, e.ctx.Device.GraphicsCommandPool)
	}
}

func (e *Encoder) PipelineBarrier(b *gpu.PipelineBarrier) {
	memory := make([]vk.MemoryBarrier, len(b.Memory))
	for i, m := range b.Memory {
		memory[i] = vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: AccessFlags(m.SrcAccess),
			DstAccessMask: AccessFlags(m.DstAccess),
		}
	}
	images := make([]vk.ImageMemoryBarrier, len(b.Images))
	for i, ib := range b.Images {
		images[i] = imageBarrier(ib)
	}
	vk.CmdPipelineBarrier(e.cb.Handle,
		PipelineStages(b.SrcStage, true), PipelineStages(b.DstStage, false), 0,
		uint32(len(memory)), memory,
		0, nil,
		uint32(len(images)), images)
}

func (e *Encoder) BeginRenderPass(fb *gpu.Framebuffer) {
	h, ok := fb.Handle().(*Framebuffer)
	if !ok {
		core.LogError("vulkan: framebuffer %p was not created by this backend", fb)
		return
	}
	h.Renderpass.begin(e.cb, h, fb.Width, fb.Height)
	e.active = h.Renderpass
}

func (e *Encoder) EndRenderPass() {
	if e.active == nil {
		core.LogError("vulkan: end of render pass with no pass active")
		return
	}
	e.active.end(e.cb)
	e.active = nil
}

func (e *Encoder) SetViewport(index uint32, vp metadata.Viewport) {
	vk.CmdSetViewport(e.cb.Handle, index, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

func (e *Encoder) SetScissor(index uint32, rect metadata.Rect) {
	vk.CmdSetScissor(e.cb.Handle, index, 1, []vk.Rect2D{Rect(rect)})
}

func (e *Encoder) ClearColorAttachment(index uint32, color metadata.ColorRGBA, area metadata.Rect) {
	attachments := []vk.ClearAttachment{{
		AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
		ColorAttachment: index,
		ClearValue:      vk.NewClearValue([]float32{color.R, color.G, color.B, color.A}),
	}}
	vk.CmdClearAttachments(e.cb.Handle, 1, attachments, 1, []vk.ClearRect{{
		Rect:       Rect(area),
		LayerCount: 1,
	}})
}

func (e *Encoder) ClearDepthStencilAttachment(depth float32, stencil uint8, aspect barrier.Aspect, area metadata.Rect) {
	attachments := []vk.ClearAttachment{{
		AspectMask: ImageAspects(aspect),
		ClearValue: vk.NewClearDepthStencil(depth, uint32(stencil)),
	}}
	vk.CmdClearAttachments(e.cb.Handle, 1, attachments, 1, []vk.ClearRect{{
		Rect:       Rect(area),
		LayerCount: 1,
	}})
}

func (e *Encoder) CopyBuffer(src *staging.Buffer, dst *gpu.Buffer, dstOffset, size uint64) {
	vk.CmdCopyBuffer(e.cb.Handle, stagingHandle(src), bufferHandle(dst).Handle, 1, []vk.BufferCopy{{
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
}

func (e *Encoder) CopyBufferToImage(src *staging.Buffer, dst *gpu.Image, region gpu.BufferImageCopy) {
	vk.CmdCopyBufferToImage(e.cb.Handle, stagingHandle(src), imageHandle(dst).Handle,
		vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			ImageSubresource: subresourceLayers(region.Aspect, region.Mip, region.Layer, 1),
			ImageOffset:      Offset(region.Offset),
			ImageExtent:      Extent(region.Extent),
		}})
}

func (e *Encoder) CopyImage(src, dst *gpu.Image, region gpu.ImageCopy) {
	vk.CmdCopyImage(e.cb.Handle,
		imageHandle(src).Handle, vk.ImageLayoutTransferSrcOptimal,
		imageHandle(dst).Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageCopy{{
			SrcSubresource: subresourceLayers(region.Aspect, region.SrcMip, region.SrcLayer, region.LayerCount),
			SrcOffset:      Offset(region.SrcOffset),
			DstSubresource: subresourceLayers(region.Aspect, region.DstMip, region.DstLayer, region.LayerCount),
			DstOffset:      Offset(region.DstOffset),
			Extent:         Extent(region.Extent),
		}})
}

func (e *Encoder) BlitImage(src, dst *gpu.Image, region gpu.ImageBlit, filter metadata.Filter) {
	extentOffset := func(ext metadata.Extent3D) vk.Offset3D {
		return vk.Offset3D{X: int32(ext.Width), Y: int32(ext.Height), Z: int32(ext.Depth)}
	}
	vk.CmdBlitImage(e.cb.Handle,
		imageHandle(src).Handle, vk.ImageLayoutTransferSrcOptimal,
		imageHandle(dst).Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{{
			SrcSubresource: subresourceLayers(region.Aspect, region.SrcMip, region.BaseLayer, region.LayerCount),
			SrcOffsets:     [2]vk.Offset3D{{}, extentOffset(region.SrcExtent)},
			DstSubresource: subresourceLayers(region.Aspect, region.DstMip, region.BaseLayer, region.LayerCount),
			DstOffsets:     [2]vk.Offset3D{{}, extentOffset(region.DstExtent)},
		}}, Filter(filter))
}

func (e *Encoder) ResolveImage(src, dst *gpu.Image, region gpu.ImageCopy) {
	vk.CmdResolveImage(e.cb.Handle,
		imageHandle(src).Handle, vk.ImageLayoutTransferSrcOptimal,
		imageHandle(dst).Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageResolve{{
			SrcSubresource: subresourceLayers(region.Aspect, region.SrcMip, region.SrcLayer, region.LayerCount),
			SrcOffset:      Offset(region.SrcOffset),
			DstSubresource: subresourceLayers(region.Aspect, region.DstMip, region.DstLayer, region.LayerCount),
			DstOffset:      Offset(region.DstOffset),
			Extent:         Extent(region.Extent),
		}})
}

func pipelineOf(p gpu.Pipeline) (*Pipeline, bool) {
	vp, ok := p.Handle().(*Pipeline)
	if !ok {
		core.LogError("vulkan: pipeline of kind %v was not created by this backend", p.Kind())
	}
	return vp, ok
}

func (e *Encoder) BindPipeline(p gpu.Pipeline) {
	if vp, ok := pipelineOf(p); ok {
		vk.CmdBindPipeline(e.cb.Handle, BindPoint(p.Kind()), vp.Native)
	}
}

func (e *Encoder) BindVertexBuffer(index uint32, b *gpu.Buffer, offset uint64) {
	vk.CmdBindVertexBuffers(e.cb.Handle, index, 1, []vk.Buffer{bufferHandle(b).Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (e *Encoder) BindIndexBuffer(b *gpu.Buffer, format metadata.IndexFormat, offset uint64) {
	vk.CmdBindIndexBuffer(e.cb.Handle, bufferHandle(b).Handle, vk.DeviceSize(offset), IndexType(format))
}

func (e *Encoder) BindResourceSet(p gpu.Pipeline, slot uint32, set gpu.ResourceSet) {
	vp, ok := pipelineOf(p)
	if !ok {
		return
	}
	rs, ok := set.Handle().(*ResourceSet)
	if !ok {
		core.LogError("vulkan: resource set for slot %d was not written by this backend", slot)
		return
	}
	vk.CmdBindDescriptorSets(e.cb.Handle, BindPoint(p.Kind()), vp.PipelineLayout, slot, 1, []vk.DescriptorSet{rs.Set}, 0, nil)
}

func (e *Encoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(e.cb.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (e *Encoder) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(e.cb.Handle, x, y, z)
}

// TraceRays is never reached through a session since Features reports no
// ray tracing.
// TODO: record vkCmdTraceRaysKHR once the bindings load the KHR ray tracing entry points.
func (e *Encoder) TraceRays(width, height, depth uint32) {
	core.LogError("vulkan: trace rays of %dx%dx%d is not supported", width, height, depth)
}
