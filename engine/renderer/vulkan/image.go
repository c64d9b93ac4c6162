package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/barrier"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

// Image backs a gpu.Image.
type Image struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format vk.Format

	ctx *Context
}

func imageHandle(img *gpu.Image) *Image {
	return img.Handle().(*Image)
}

// CreateImage creates a device local optimal tiling image, or a linear host
// visible one when the description asks for preinitialized contents.
func (ctx *Context) CreateImage(desc metadata.TextureDescription) (*gpu.Image, error) {
	h := &Image{ctx: ctx, Format: Format(desc.Format)}
	img, err := gpu.NewImage(desc, h)
	if err != nil {
		core.LogError("vulkan: create image %q: %s", desc.Name, err.Error())
		return nil, err
	}

	imageType := vk.ImageType2d
	if img.Depth > 1 {
		imageType = vk.ImageType3d
	}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imageType,
		Extent: vk.Extent3D{
			Width:  img.Width,
			Height: img.Height,
			Depth:  img.Depth,
		},
		MipLevels:     img.MipLevels,
		ArrayLayers:   img.ArrayLayers,
		Format:        h.Format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         ImageUsage(img.Usage, img.Format),
		Samples:       vk.SampleCountFlagBits(img.SampleCount),
		SharingMode:   vk.SharingModeExclusive,
	}
	properties := vk.MemoryPropertyDeviceLocalBit
	if desc.Preinitialized {
		info.Tiling = vk.ImageTilingLinear
		info.InitialLayout = vk.ImageLayoutPreinitialized
		properties = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}

	if err := ctx.locks.SafeCall(ResourceManagement, func() error {
		if res := vk.CreateImage(ctx.Device.LogicalDevice, &info, ctx.Allocator, &h.Handle); res != vk.Success {
			return fmt.Errorf("%w: vkCreateImage %s: %s", core.ErrResourceAllocation, img, VulkanResultString(res, false))
		}
		return nil
	}); err != nil {
		core.LogError("%s", err)
		img.Destroy()
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(ctx.Device.LogicalDevice, h.Handle, &req)
	if h.Memory, err = ctx.allocate(req, properties); err != nil {
		core.LogError("%s", err)
		img.Destroy()
		return nil, err
	}
	if res := vk.BindImageMemory(ctx.Device.LogicalDevice, h.Handle, h.Memory, 0); res != vk.Success {
		err := fmt.Errorf("%w: vkBindImageMemory %s: %s", core.ErrResourceAllocation, img, VulkanResultString(res, false))
		core.LogError("%s", err)
		img.Destroy()
		return nil, err
	}

	if h.View, err = ctx.createView(img, 0, img.MipLevels, 0, img.ArrayLayers, viewAspect(img.Format)); err != nil {
		core.LogError("%s", err)
		img.Destroy()
		return nil, err
	}
	return img, nil
}

// viewAspect is the aspect a sampled view reads. Shaders sample depth, never
// stencil, through a combined view.
func viewAspect(f metadata.PixelFormat) barrier.Aspect {
	if f.HasDepth() {
		return barrier.AspectDepth
	}
	return barrier.AspectColor
}

func (ctx *Context) createView(img *gpu.Image, baseMip, mipCount, baseLayer, layerCount uint32, aspect barrier.Aspect) (vk.ImageView, error) {
	viewType := vk.ImageViewType2d
	switch {
	case img.Depth > 1:
		viewType = vk.ImageViewType3d
	case layerCount > 1:
		viewType = vk.ImageViewType2dArray
	}
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    imageHandle(img).Handle,
		ViewType: viewType,
		Format:   imageHandle(img).Format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     ImageAspects(aspect),
			BaseMipLevel:   baseMip,
			LevelCount:     mipCount,
			BaseArrayLayer: baseLayer,
			LayerCount:     layerCount,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(ctx.Device.LogicalDevice, &info, ctx.Allocator, &view); res != vk.Success {
		return nil, fmt.Errorf("%w: vkCreateImageView %s: %s", core.ErrResourceAllocation, img, VulkanResultString(res, false))
	}
	return view, nil
}

func (h *Image) Destroy() {
	dev := h.ctx.Device.LogicalDevice
	h.ctx.locks.SafeCall(ResourceManagement, func() error {
		if h.View != nil {
			vk.DestroyImageView(dev, h.View, h.ctx.Allocator)
			h.View = nil
		}
		if h.Handle != nil {
			vk.DestroyImage(dev, h.Handle, h.ctx.Allocator)
			h.Handle = nil
		}
		return nil
	})
	if h.Memory != nil {
		h.ctx.free(h.Memory)
		h.Memory = nil
	}
}

// Buffer backs a gpu.Buffer with device local memory.
type Buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory

	ctx *Context
}

func bufferHandle(b *gpu.Buffer) *Buffer {
	return b.Handle().(*Buffer)
}

func (ctx *Context) CreateBuffer(desc metadata.BufferDescription) (*gpu.Buffer, error) {
	h := &Buffer{ctx: ctx}
	b, err := gpu.NewBuffer(desc, h)
	if err != nil {
		core.LogError("vulkan: create buffer %q: %s", desc.Name, err.Error())
		return nil, err
	}
	h.Handle, h.Memory, err = ctx.createBuffer(b.Size, BufferUsage(b.Usage), vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		core.LogError("%s", err)
		b.Destroy()
		return nil, err
	}
	return b, nil
}

func (ctx *Context) createBuffer(size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlagBits) (vk.Buffer, vk.DeviceMemory, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := ctx.locks.SafeCall(ResourceManagement, func() error {
		if res := vk.CreateBuffer(ctx.Device.LogicalDevice, &info, ctx.Allocator, &buffer); res != vk.Success {
			return fmt.Errorf("%w: vkCreateBuffer of %d bytes: %s", core.ErrResourceAllocation, size, VulkanResultString(res, false))
		}
		return nil
	}); err != nil {
		return nil, nil, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.Device.LogicalDevice, buffer, &req)
	memory, err := ctx.allocate(req, properties)
	if err != nil {
		vk.DestroyBuffer(ctx.Device.LogicalDevice, buffer, ctx.Allocator)
		return nil, nil, err
	}
	if res := vk.BindBufferMemory(ctx.Device.LogicalDevice, buffer, memory, 0); res != vk.Success {
		vk.DestroyBuffer(ctx.Device.LogicalDevice, buffer, ctx.Allocator)
		ctx.free(memory)
		return nil, nil, fmt.Errorf("%w: vkBindBufferMemory: %s", core.ErrResourceAllocation, VulkanResultString(res, false))
	}
	return buffer, memory, nil
}

func (h *Buffer) Destroy() {
	if h.Handle != nil {
		h.ctx.locks.SafeCall(ResourceManagement, func() error {
			vk.DestroyBuffer(h.ctx.Device.LogicalDevice, h.Handle, h.ctx.Allocator)
			return nil
		})
		h.Handle = nil
	}
	if h.Memory != nil {
		h.ctx.free(h.Memory)
		h.Memory = nil
	}
}
