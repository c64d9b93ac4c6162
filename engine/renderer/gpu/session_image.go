package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/barrier"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

// TransitionRange moves a subresource range of img into newLayout.
// Subresources already in newLayout record nothing.
func (s *Session) TransitionRange(img *Image, baseMip, mipCount, baseLayer, layerCount uint32, newLayout metadata.Layout) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if err := s.transition(img, baseMip, mipCount, baseLayer, layerCount, newLayout); err != nil {
		return err
	}
	if !s.batch.empty() {
		s.ensureInactive()
	}
	return nil
}

// TransitionToResting moves every subresource of img to its resting layout.
func (s *Session) TransitionToResting(img *Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", core.ErrInvalidOperation)
	}
	return s.TransitionRange(img, 0, img.MipLevels, 0, img.ArrayLayers, img.RestingLayout())
}

// GenerateMipmaps fills levels 1..N-1 of tex by successive linear blits from
// the level above, then returns the whole texture to its resting layout.
func (s *Session) GenerateMipmaps(tex *Image) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if tex == nil {
		return fmt.Errorf("%w: nil texture", core.ErrInvalidOperation)
	}
	if tex.Format.IsDepthStencil() {
		return fmt.Errorf("%w: mipmaps of depth format %v", core.ErrInvalidOperation, tex.Format)
	}
	if tex.SampleCount > 1 {
		return fmt.Errorf("%w: mipmaps of multisampled %s", core.ErrInvalidOperation, tex)
	}

	s.ensureInactive()
	for level := uint32(1); level < tex.MipLevels; level++ {
		if err := s.transitionAll(
			rangeTransition{tex, level-1, 1, 0, tex.ArrayLayers, metadata.LayoutTransferSrc},
			rangeTransition{tex, level, 1, 0, tex.ArrayLayers, metadata.LayoutTransferDst},
		); err != nil {
			return err
		}
		s.batch.flush(s.encoder)
		s.encoder.BlitImage(tex, tex, ImageBlit{
			SrcMip:     level - 1,
			DstMip:     level,
			LayerCount: tex.ArrayLayers,
			SrcExtent:  tex.MipExtent(level - 1),
			DstExtent:  tex.MipExtent(level),
			Aspect:     barrier.AspectColor,
		}, metadata.FilterLinear)
	}
	if err := s.transition(tex, 0, tex.MipLevels, 0, tex.ArrayLayers, tex.RestingLayout()); err != nil {
		return err
	}
	s.batch.flush(s.encoder)
	return nil
}

// ResolveTexture resolves mip 0 of the multisampled src into dst, which must
// match it in format and size and have a single sample.
func (s *Session) ResolveTexture(src, dst *Image) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if src == nil || dst == nil {
		return fmt.Errorf("%w: nil texture", core.ErrInvalidOperation)
	}
	if src.SampleCount <= 1 {
		return fmt.Errorf("%w: resolve source %s is not multisampled", core.ErrInvalidOperation, src)
	}
	if dst.SampleCount != 1 {
		return fmt.Errorf("%w: resolve destination %s is multisampled", core.ErrInvalidOperation, dst)
	}
	if src.Format != dst.Format || src.Width != dst.Width || src.Height != dst.Height ||
		src.Depth != dst.Depth || src.ArrayLayers != dst.ArrayLayers {
		return fmt.Errorf("%w: resolve %s (%v %dx%dx%d, %d layers) into %s (%v %dx%dx%d, %d layers)", core.ErrDimensionMismatch,
			src, src.Format, src.Width, src.Height, src.Depth, src.ArrayLayers,
			dst, dst.Format, dst.Width, dst.Height, dst.Depth, dst.ArrayLayers)
	}

	s.ensureInactive()
	if err := s.transitionAll(
		rangeTransition{src, 0, 1, 0, src.ArrayLayers, metadata.LayoutTransferSrc},
		rangeTransition{dst, 0, 1, 0, dst.ArrayLayers, metadata.LayoutTransferDst},
	); err != nil {
		return err
	}
	s.batch.flush(s.encoder)
	s.encoder.ResolveImage(src, dst, ImageCopy{
		LayerCount: src.ArrayLayers,
		Extent:     src.MipExtent(0),
		Aspect:     barrier.AspectColor,
	})
	if err := s.transitionAll(
		rangeTransition{src, 0, 1, 0, src.ArrayLayers, src.RestingLayout()},
		rangeTransition{dst, 0, 1, 0, dst.ArrayLayers, dst.RestingLayout()},
	); err != nil {
		return err
	}
	s.batch.flush(s.encoder)
	return nil
}

// CopyTexture copies every subresource of src into dst. Both must share
// format, sample count, size, mip count and layer count.
func (s *Session) CopyTexture(src, dst *Image) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if src == nil || dst == nil {
		return fmt.Errorf("%w: nil texture", core.ErrInvalidOperation)
	}
	if src == dst {
		return fmt.Errorf("%w: copy of %s onto itself", core.ErrInvalidOperation, src)
	}
	if src.Format != dst.Format || src.SampleCount != dst.SampleCount ||
		src.Width != dst.Width || src.Height != dst.Height || src.Depth != dst.Depth ||
		src.MipLevels != dst.MipLevels || src.ArrayLayers != dst.ArrayLayers {
		return fmt.Errorf("%w: copy %s into %s", core.ErrDimensionMismatch, src, dst)
	}

	s.ensureInactive()
	if err := s.transitionAll(
		rangeTransition{src, 0, src.MipLevels, 0, src.ArrayLayers, metadata.LayoutTransferSrc},
		rangeTransition{dst, 0, dst.MipLevels, 0, dst.ArrayLayers, metadata.LayoutTransferDst},
	); err != nil {
		return err
	}
	s.batch.flush(s.encoder)
	aspect := barrier.FullAspect(src.Format)
	for mip := uint32(0); mip < src.MipLevels; mip++ {
		s.encoder.CopyImage(src, dst, ImageCopy{
			SrcMip:     mip,
			DstMip:     mip,
			LayerCount: src.ArrayLayers,
			Extent:     src.MipExtent(mip),
			Aspect:     aspect,
		})
	}
	if err := s.transitionAll(
		rangeTransition{src, 0, src.MipLevels, 0, src.ArrayLayers, src.RestingLayout()},
		rangeTransition{dst, 0, dst.MipLevels, 0, dst.ArrayLayers, dst.RestingLayout()},
	); err != nil {
		return err
	}
	s.batch.flush(s.encoder)
	return nil
}

// TextureCopy describes a box copied between subresource ranges of two
// textures, or between different mips of one texture.
type TextureCopy struct {
	Src        *Image
	SrcMip     uint32
	SrcLayer   uint32
	SrcOffset  metadata.Offset3D
	Dst        *Image
	DstMip     uint32
	DstLayer   uint32
	DstOffset  metadata.Offset3D
	LayerCount uint32
	Extent     metadata.Extent3D
}

// CopyTextureRegion copies a box between textures of the same format and
// sample count. Only the touched subresources change layout.
func (s *Session) CopyTextureRegion(c TextureCopy) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if c.Src == nil || c.Dst == nil {
		return fmt.Errorf("%w: nil texture", core.ErrInvalidOperation)
	}
	if c.Src.Format != c.Dst.Format || c.Src.SampleCount != c.Dst.SampleCount {
		return fmt.Errorf("%w: copy %s (%v, %d samples) into %s (%v, %d samples)", core.ErrDimensionMismatch,
			c.Src, c.Src.Format, c.Src.SampleCount, c.Dst, c.Dst.Format, c.Dst.SampleCount)
	}
	layers := max(c.LayerCount, 1)
	if err := c.Src.layouts.checkRange(c.SrcMip, 1, c.SrcLayer, layers); err != nil {
		return err
	}
	if err := c.Dst.layouts.checkRange(c.DstMip, 1, c.DstLayer, layers); err != nil {
		return err
	}
	if c.Src == c.Dst && c.SrcMip == c.DstMip &&
		c.SrcLayer < c.DstLayer+layers && c.DstLayer < c.SrcLayer+layers {
		return fmt.Errorf("%w: source and destination subresources of %s overlap", core.ErrInvalidOperation, c.Src)
	}
	se, de := c.Src.MipExtent(c.SrcMip), c.Dst.MipExtent(c.DstMip)
	if !regionFits(c.SrcOffset.X, c.Extent.Width, se.Width) || !regionFits(c.SrcOffset.Y, c.Extent.Height, se.Height) ||
		!regionFits(c.SrcOffset.Z, c.Extent.Depth, se.Depth) ||
		!regionFits(c.DstOffset.X, c.Extent.Width, de.Width) || !regionFits(c.DstOffset.Y, c.Extent.Height, de.Height) ||
		!regionFits(c.DstOffset.Z, c.Extent.Depth, de.Depth) {
		return fmt.Errorf("%w: copy extent %+v", core.ErrOutOfRange, c.Extent)
	}
	if c.Extent.Width == 0 || c.Extent.Height == 0 || c.Extent.Depth == 0 {
		return nil
	}

	s.ensureInactive()
	if err := s.transitionAll(
		rangeTransition{c.Src, c.SrcMip, 1, c.SrcLayer, layers, metadata.LayoutTransferSrc},
		rangeTransition{c.Dst, c.DstMip, 1, c.DstLayer, layers, metadata.LayoutTransferDst},
	); err != nil {
		return err
	}
	s.batch.flush(s.encoder)
	s.encoder.CopyImage(c.Src, c.Dst, ImageCopy{
		SrcMip:     c.SrcMip,
		SrcLayer:   c.SrcLayer,
		SrcOffset:  c.SrcOffset,
		DstMip:     c.DstMip,
		DstLayer:   c.DstLayer,
		DstOffset:  c.DstOffset,
		LayerCount: layers,
		Extent:     c.Extent,
		Aspect:     barrier.FullAspect(c.Src.Format),
	})
	if err := s.transitionAll(
		rangeTransition{c.Src, c.SrcMip, 1, c.SrcLayer, layers, c.Src.RestingLayout()},
		rangeTransition{c.Dst, c.DstMip, 1, c.DstLayer, layers, c.Dst.RestingLayout()},
	); err != nil {
		return err
	}
	s.batch.flush(s.encoder)
	return nil
}
