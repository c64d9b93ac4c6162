package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

// Attachment names the subresource of an image a framebuffer renders into.
type Attachment struct {
	Image *Image
	Mip   uint32
	Layer uint32
}

// Framebuffer is an ordered list of color targets plus an optional depth
// target, all of the same size.
type Framebuffer struct {
	ColorTargets []Attachment
	DepthTarget  *Attachment
	Width        uint32
	Height       uint32

	handle any
}

func NewFramebuffer(colors []Attachment, depth *Attachment, handle any) (*Framebuffer, error) {
	if len(colors) == 0 && depth == nil {
		return nil, fmt.Errorf("%w: framebuffer without attachments", core.ErrInvalidOperation)
	}
	fb := &Framebuffer{
		ColorTargets: append([]Attachment(nil), colors...),
		handle:       handle,
	}
	if depth != nil {
		d := *depth
		fb.DepthTarget = &d
	}

	first := true
	check := func(a Attachment, usage metadata.TextureUsage) error {
		if a.Image == nil {
			return fmt.Errorf("%w: nil attachment image", core.ErrInvalidOperation)
		}
		if !a.Image.Usage.Has(usage) {
			return fmt.Errorf("%w: %s lacks %v usage", core.ErrInvalidOperation, a.Image, usage)
		}
		if _, err := a.Image.Layout(a.Mip, a.Layer); err != nil {
			return err
		}
		ext := a.Image.MipExtent(a.Mip)
		if first {
			fb.Width, fb.Height = ext.Width, ext.Height
			first = false
			return nil
		}
		if ext.Width != fb.Width || ext.Height != fb.Height {
			return fmt.Errorf("%w: attachment %s is %dx%d, framebuffer is %dx%d", core.ErrDimensionMismatch,
				a.Image, ext.Width, ext.Height, fb.Width, fb.Height)
		}
		return nil
	}
	for _, c := range fb.ColorTargets {
		if err := check(c, metadata.TextureUsageRenderTarget); err != nil {
			return nil, err
		}
	}
	if d := fb.DepthTarget; d != nil {
		if err := check(*d, metadata.TextureUsageDepthStencil); err != nil {
			return nil, err
		}
		if !d.Image.Format.IsDepthStencil() {
			return nil, fmt.Errorf("%w: depth target %s has color format %v", core.ErrInvalidOperation,
				d.Image, d.Image.Format)
		}
	}
	return fb, nil
}

func (fb *Framebuffer) Handle() any { return fb.handle }

// Area is the full render area of the framebuffer.
func (fb *Framebuffer) Area() metadata.Rect {
	return metadata.Rect{Width: fb.Width, Height: fb.Height}
}

// FullViewport covers the whole framebuffer with a [0, 1] depth range.
func (fb *Framebuffer) FullViewport() metadata.Viewport {
	return metadata.Viewport{Width: float32(fb.Width), Height: float32(fb.Height), MaxDepth: 1}
}
