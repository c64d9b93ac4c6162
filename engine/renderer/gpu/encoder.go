// Package gpu tracks the layout of every image subresource and the state of a
// command recording session, emitting the pipeline barriers an explicit
// graphics API needs between commands.
//
// A Session records into a CommandEncoder. The encoder is the only part that
// talks to a real device; the headless and vulkan packages provide one each.
package gpu

import (
	"time"

	"github.com/spaghettifunk/anima/engine/renderer/barrier"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
	"github.com/spaghettifunk/anima/engine/renderer/staging"
)

// Features lists the optional device capabilities a session may rely on.
type Features struct {
	RayTracing bool
}

// ImageBarrier moves a range of subresources of Image from OldLayout to
// NewLayout.
type ImageBarrier struct {
	Image      *Image
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
	OldLayout  metadata.Layout
	NewLayout  metadata.Layout
	SrcAccess  barrier.Access
	DstAccess  barrier.Access
	Aspect     barrier.Aspect
}

type MemoryBarrier struct {
	SrcAccess barrier.Access
	DstAccess barrier.Access
}

// PipelineBarrier is one barrier command. Its stage masks are the union of
// the stages of every barrier it carries.
type PipelineBarrier struct {
	SrcStage barrier.Stage
	DstStage barrier.Stage
	Memory   []MemoryBarrier
	Images   []ImageBarrier
}

// BufferImageCopy copies tightly packed texels from the start of a staging
// buffer into one subresource.
type BufferImageCopy struct {
	Mip    uint32
	Layer  uint32
	Offset metadata.Offset3D
	Extent metadata.Extent3D
	Aspect barrier.Aspect
}

// ImageCopy copies a box between two subresource ranges. It is also used for
// resolves.
type ImageCopy struct {
	SrcMip     uint32
	SrcLayer   uint32
	SrcOffset  metadata.Offset3D
	DstMip     uint32
	DstLayer   uint32
	DstOffset  metadata.Offset3D
	LayerCount uint32
	Extent     metadata.Extent3D
	Aspect     barrier.Aspect
}

// ImageBlit scales the whole of SrcMip into the whole of DstMip.
type ImageBlit struct {
	SrcMip     uint32
	DstMip     uint32
	BaseLayer  uint32
	LayerCount uint32
	SrcExtent  metadata.Extent3D
	DstExtent  metadata.Extent3D
	Aspect     barrier.Aspect
}

// CommandEncoder records device commands. Images passed to copy, blit and
// resolve commands are in TransferSrc (sources) and TransferDst
// (destinations) when the command is recorded.
type CommandEncoder interface {
	Features() Features

	Begin() error
	End() error

	PipelineBarrier(b *PipelineBarrier)

	BeginRenderPass(fb *Framebuffer)
	EndRenderPass()
	SetViewport(index uint32, vp metadata.Viewport)
	SetScissor(index uint32, rect metadata.Rect)
	ClearColorAttachment(index uint32, color metadata.ColorRGBA, area metadata.Rect)
	ClearDepthStencilAttachment(depth float32, stencil uint8, aspect barrier.Aspect, area metadata.Rect)

	CopyBuffer(src *staging.Buffer, dst *Buffer, dstOffset, size uint64)
	CopyBufferToImage(src *staging.Buffer, dst *Image, region BufferImageCopy)
	CopyImage(src, dst *Image, region ImageCopy)
	BlitImage(src, dst *Image, region ImageBlit, filter metadata.Filter)
	ResolveImage(src, dst *Image, region ImageCopy)

	BindPipeline(p Pipeline)
	BindVertexBuffer(index uint32, b *Buffer, offset uint64)
	BindIndexBuffer(b *Buffer, format metadata.IndexFormat, offset uint64)
	BindResourceSet(p Pipeline, slot uint32, set ResourceSet)

	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)
	TraceRays(width, height, depth uint32)
}

// Fence is signaled by the device once a submitted command buffer retired.
type Fence interface {
	// Wait blocks until the fence is signaled or timeout elapsed. It returns
	// false on timeout.
	Wait(timeout time.Duration) (bool, error)
}

// Disposable is a device resource whose destruction must wait until no
// submitted command buffer references it.
type Disposable interface {
	Destroy()
}
