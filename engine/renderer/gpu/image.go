package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	enginemath "github.com/spaghettifunk/anima/engine/math"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

// Image is a texture created by the resource factory, together with the
// tracked layout of each of its subresources.
type Image struct {
	ID          uint32
	Name        string
	Width       uint32
	Height      uint32
	Depth       uint32
	MipLevels   uint32
	ArrayLayers uint32
	SampleCount uint32
	Format      metadata.PixelFormat
	Usage       metadata.TextureUsage

	handle    any
	layouts   layoutTable
	destroyed bool
}

// NewImage wraps a backend image. Every subresource starts in Undefined, or
// in Preinitialized when the description says so.
func NewImage(desc metadata.TextureDescription, handle any) (*Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%w: image of %dx%d", core.ErrInvalidOperation, desc.Width, desc.Height)
	}
	if !desc.Format.IsValid() {
		return nil, fmt.Errorf("%w: image format %v", core.ErrInvalidOperation, desc.Format)
	}
	img := &Image{
		Name:        desc.Name,
		Width:       desc.Width,
		Height:      desc.Height,
		Depth:       max(desc.Depth, 1),
		MipLevels:   max(desc.MipLevels, 1),
		ArrayLayers: max(desc.ArrayLayers, 1),
		SampleCount: max(desc.SampleCount, 1),
		Format:      desc.Format,
		Usage:       desc.Usage,
		handle:      handle,
	}
	if limit := enginemath.MipLevelCount(img.Width, img.Height, img.Depth); img.MipLevels > limit {
		return nil, fmt.Errorf("%w: %d mip levels for %dx%dx%d", core.ErrOutOfRange, img.MipLevels, img.Width, img.Height, img.Depth)
	}
	if img.Name == "" {
		img.Name = core.GenerateName("image")
	}
	initial := metadata.LayoutUndefined
	if desc.Preinitialized {
		initial = metadata.LayoutPreinitialized
	}
	img.layouts = newLayoutTable(img.MipLevels, img.ArrayLayers, initial)
	img.ID = core.IdentifierAcquireNewID(img)
	return img, nil
}

func (img *Image) Handle() any { return img.handle }

// Layout returns the tracked layout of one subresource.
func (img *Image) Layout(mip, layer uint32) (metadata.Layout, error) {
	return img.layouts.get(mip, layer)
}

// UniformLayout reports the layout shared by every subresource, if any.
func (img *Image) UniformLayout() (metadata.Layout, bool) {
	return img.layouts.uniform()
}

// MipExtent returns the size of a mip level.
func (img *Image) MipExtent(mip uint32) metadata.Extent3D {
	return metadata.Extent3D{
		Width:  enginemath.MipDimension(img.Width, mip),
		Height: enginemath.MipDimension(img.Height, mip),
		Depth:  enginemath.MipDimension(img.Depth, mip),
	}
}

// RestingLayout is the layout an image is returned to after an operation
// moved it elsewhere.
func (img *Image) RestingLayout() metadata.Layout {
	switch {
	case img.Usage.Has(metadata.TextureUsageSampled):
		return metadata.LayoutShaderReadOnly
	case img.Usage.Has(metadata.TextureUsageRenderTarget):
		return metadata.LayoutColorAttachment
	case img.Usage.Has(metadata.TextureUsageDepthStencil):
		return metadata.LayoutDepthStencilAttachment
	}
	return metadata.LayoutGeneral
}

// Destroy releases the backend image and the identifier. Images still
// referenced by submitted work go through Session.DisposeSubmitted instead.
func (img *Image) Destroy() {
	if img.destroyed {
		return
	}
	img.destroyed = true
	if d, ok := img.handle.(Disposable); ok {
		d.Destroy()
	}
	if err := core.IdentifierReleaseID(img.ID); err != nil {
		core.LogWarn("%s", err)
	}
}

func (img *Image) Destroyed() bool { return img.destroyed }

func (img *Image) String() string { return img.Name }
