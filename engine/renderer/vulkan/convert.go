package vulkan

import (
	"math/bits"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/renderer/barrier"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

// Ray tracing and acceleration structure bits from VK_KHR_ray_tracing_pipeline
// and VK_KHR_acceleration_structure. The bindings only carry the 1.0 core
// enums.
const (
	pipelineStageRayTracingShader           vk.PipelineStageFlagBits = 0x00200000
	pipelineStageAccelerationStructureBuild vk.PipelineStageFlagBits = 0x02000000
	accessAccelerationStructureRead         vk.AccessFlagBits        = 0x00200000
	accessAccelerationStructureWrite        vk.AccessFlagBits        = 0x00400000
	pipelineBindPointRayTracing             vk.PipelineBindPoint     = 1000165000
)

var imageLayouts = [metadata.LayoutCount]vk.ImageLayout{
	metadata.LayoutUndefined:              vk.ImageLayoutUndefined,
	metadata.LayoutPreinitialized:         vk.ImageLayoutPreinitialized,
	metadata.LayoutTransferSrc:            vk.ImageLayoutTransferSrcOptimal,
	metadata.LayoutTransferDst:            vk.ImageLayoutTransferDstOptimal,
	metadata.LayoutShaderReadOnly:         vk.ImageLayoutShaderReadOnlyOptimal,
	metadata.LayoutColorAttachment:        vk.ImageLayoutColorAttachmentOptimal,
	metadata.LayoutDepthStencilAttachment: vk.ImageLayoutDepthStencilAttachmentOptimal,
	metadata.LayoutPresentSource:          vk.ImageLayoutPresentSrc,
	metadata.LayoutGeneral:                vk.ImageLayoutGeneral,
}

func ImageLayout(l metadata.Layout) vk.ImageLayout {
	if !l.IsValid() {
		return vk.ImageLayoutUndefined
	}
	return imageLayouts[l]
}

// Indexed by bit position of barrier.Stage.
var stageBits = [...]vk.PipelineStageFlagBits{
	vk.PipelineStageTopOfPipeBit,
	vk.PipelineStageDrawIndirectBit,
	vk.PipelineStageVertexInputBit,
	vk.PipelineStageVertexShaderBit,
	vk.PipelineStageFragmentShaderBit,
	vk.PipelineStageEarlyFragmentTestsBit,
	vk.PipelineStageLateFragmentTestsBit,
	vk.PipelineStageColorAttachmentOutputBit,
	vk.PipelineStageComputeShaderBit,
	vk.PipelineStageTransferBit,
	vk.PipelineStageBottomOfPipeBit,
	vk.PipelineStageHostBit,
	vk.PipelineStageAllGraphicsBit,
	vk.PipelineStageAllCommandsBit,
	pipelineStageRayTracingShader,
	pipelineStageAccelerationStructureBuild,
}

// Indexed by bit position of barrier.Access.
var accessBits = [...]vk.AccessFlagBits{
	vk.AccessIndirectCommandReadBit,
	vk.AccessIndexReadBit,
	vk.AccessVertexAttributeReadBit,
	vk.AccessUniformReadBit,
	vk.AccessShaderReadBit,
	vk.AccessShaderWriteBit,
	vk.AccessColorAttachmentReadBit,
	vk.AccessColorAttachmentWriteBit,
	vk.AccessDepthStencilAttachmentReadBit,
	vk.AccessDepthStencilAttachmentWriteBit,
	vk.AccessTransferReadBit,
	vk.AccessTransferWriteBit,
	vk.AccessHostReadBit,
	vk.AccessHostWriteBit,
	vk.AccessMemoryReadBit,
	vk.AccessMemoryWriteBit,
	accessAccelerationStructureRead,
	accessAccelerationStructureWrite,
}

// PipelineStages converts a stage mask. An empty source mask becomes
// TopOfPipe and an empty destination mask BottomOfPipe, since Vulkan 1.0
// rejects a zero stage mask.
func PipelineStages(s barrier.Stage, src bool) vk.PipelineStageFlags {
	if s == barrier.StageNone {
		if src {
			return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		}
		return vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	var out vk.PipelineStageFlags
	for m := uint32(s); m != 0; m &= m - 1 {
		if i := bits.TrailingZeros32(m); i < len(stageBits) {
			out |= vk.PipelineStageFlags(stageBits[i])
		}
	}
	return out
}

func AccessFlags(a barrier.Access) vk.AccessFlags {
	var out vk.AccessFlags
	for m := uint32(a); m != 0; m &= m - 1 {
		if i := bits.TrailingZeros32(m); i < len(accessBits) {
			out |= vk.AccessFlags(accessBits[i])
		}
	}
	return out
}

func ImageAspects(a barrier.Aspect) vk.ImageAspectFlags {
	var out vk.ImageAspectFlagBits
	if a&barrier.AspectColor != 0 {
		out |= vk.ImageAspectColorBit
	}
	if a&barrier.AspectDepth != 0 {
		out |= vk.ImageAspectDepthBit
	}
	if a&barrier.AspectStencil != 0 {
		out |= vk.ImageAspectStencilBit
	}
	return vk.ImageAspectFlags(out)
}

var formats = [metadata.PixelFormatCount]vk.Format{
	metadata.PixelFormatUndefined:      vk.FormatUndefined,
	metadata.PixelFormatR8Unorm:        vk.FormatR8Unorm,
	metadata.PixelFormatRG8Unorm:       vk.FormatR8g8Unorm,
	metadata.PixelFormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	metadata.PixelFormatRGBA8Srgb:      vk.FormatR8g8b8a8Srgb,
	metadata.PixelFormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	metadata.PixelFormatBGRA8Srgb:      vk.FormatB8g8r8a8Srgb,
	metadata.PixelFormatR16Float:       vk.FormatR16Sfloat,
	metadata.PixelFormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	metadata.PixelFormatR32Float:       vk.FormatR32Sfloat,
	metadata.PixelFormatRGBA32Float:    vk.FormatR32g32b32a32Sfloat,
	metadata.PixelFormatD16Unorm:       vk.FormatD16Unorm,
	metadata.PixelFormatD32Float:       vk.FormatD32Sfloat,
	metadata.PixelFormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
	metadata.PixelFormatD32FloatS8Uint: vk.FormatD32SfloatS8Uint,
}

func Format(f metadata.PixelFormat) vk.Format {
	if !f.IsValid() {
		return vk.FormatUndefined
	}
	return formats[f]
}

func Filter(f metadata.Filter) vk.Filter {
	if f == metadata.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func IndexType(f metadata.IndexFormat) vk.IndexType {
	if f == metadata.IndexFormatUint32 {
		return vk.IndexTypeUint32
	}
	return vk.IndexTypeUint16
}

func BindPoint(k metadata.PipelineKind) vk.PipelineBindPoint {
	switch k {
	case metadata.PipelineKindCompute:
		return vk.PipelineBindPointCompute
	case metadata.PipelineKindRayTracing:
		return pipelineBindPointRayTracing
	}
	return vk.PipelineBindPointGraphics
}

func ImageUsage(u metadata.TextureUsage, f metadata.PixelFormat) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	if u.Has(metadata.TextureUsageSampled) {
		out |= vk.ImageUsageSampledBit
	}
	if u.Has(metadata.TextureUsageStorage) {
		out |= vk.ImageUsageStorageBit
	}
	if u.Has(metadata.TextureUsageRenderTarget) {
		out |= vk.ImageUsageColorAttachmentBit
	}
	if u.Has(metadata.TextureUsageDepthStencil) && f.HasDepth() {
		out |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u.Has(metadata.TextureUsageTransfer) {
		out |= vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(out)
}

func BufferUsage(u metadata.BufferUsage) vk.BufferUsageFlags {
	// Every buffer is a copy destination for Session.UpdateBuffer.
	out := vk.BufferUsageTransferDstBit
	if u.Has(metadata.BufferUsageVertex) {
		out |= vk.BufferUsageVertexBufferBit
	}
	if u.Has(metadata.BufferUsageIndex) {
		out |= vk.BufferUsageIndexBufferBit
	}
	if u.Has(metadata.BufferUsageUniform) {
		out |= vk.BufferUsageUniformBufferBit
	}
	if u.Has(metadata.BufferUsageStorage) {
		out |= vk.BufferUsageStorageBufferBit
	}
	if u.Has(metadata.BufferUsageIndirect) {
		out |= vk.BufferUsageIndirectBufferBit
	}
	if u.Has(metadata.BufferUsageTransfer) {
		out |= vk.BufferUsageTransferSrcBit
	}
	return vk.BufferUsageFlags(out)
}

func Offset(o metadata.Offset3D) vk.Offset3D {
	return vk.Offset3D{X: int32(o.X), Y: int32(o.Y), Z: int32(o.Z)}
}

func Extent(e metadata.Extent3D) vk.Extent3D {
	return vk.Extent3D{Width: e.Width, Height: e.Height, Depth: e.Depth}
}

func Rect(r metadata.Rect) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
	}
}

func subresourceLayers(aspect barrier.Aspect, mip, layer, count uint32) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask:     ImageAspects(aspect),
		MipLevel:       mip,
		BaseArrayLayer: layer,
		LayerCount:     count,
	}
}

// imageBarrier converts one tracked transition.
func imageBarrier(b gpu.ImageBarrier) vk.ImageMemoryBarrier {
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       AccessFlags(b.SrcAccess),
		DstAccessMask:       AccessFlags(b.DstAccess),
		OldLayout:           ImageLayout(b.OldLayout),
		NewLayout:           ImageLayout(b.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               imageHandle(b.Image).Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     ImageAspects(b.Aspect),
			BaseMipLevel:   b.BaseMip,
			LevelCount:     b.MipCount,
			BaseArrayLayer: b.BaseLayer,
			LayerCount:     b.LayerCount,
		},
	}
}
