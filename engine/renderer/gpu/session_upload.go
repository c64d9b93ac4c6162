package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/barrier"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
	"github.com/spaghettifunk/anima/engine/renderer/staging"
)

// TextureRegion is a box inside one subresource of a texture.
type TextureRegion struct {
	X, Y, Z              uint32
	Width, Height, Depth uint32
	Mip                  uint32
	Layer                uint32
}

// stage copies data into a staging buffer taken from the pool. The buffer
// is handed back right away when the write fails.
func (s *Session) stage(data []byte) (*staging.Buffer, error) {
	sb, err := s.pool.Acquire(uint64(len(data)))
	if err != nil {
		return nil, err
	}
	if err := sb.Write(data); err != nil {
		if rerr := s.pool.Release(sb); rerr != nil {
			core.LogWarn("%s", rerr)
		}
		return nil, err
	}
	return sb, nil
}

// UpdateBuffer writes data into b at offset through a staging buffer. The
// copy waits for earlier accesses b's usage allows and its write is made
// visible to the later ones. Nothing is recorded
// when the range is rejected; an empty write is a no-op.
func (s *Session) UpdateBuffer(b *Buffer, offset uint64, data []byte) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: nil buffer", core.ErrInvalidOperation)
	}
	size := uint64(len(data))
	if offset > b.Size || size > b.Size-offset {
		return fmt.Errorf("%w: %d bytes at offset %d into %s of %d bytes", core.ErrOutOfRange, size, offset, b, b.Size)
	}
	if size == 0 {
		return nil
	}

	sb, err := s.stage(data)
	if err != nil {
		return err
	}
	// Earlier reads and writes of b finish before the copy overwrites it.
	access, stage := barrier.BufferReadScope(b.Usage)
	if s.renderPassActive {
		s.endRenderPass()
		s.batch.addExecution(barrier.StageBottomOfPipe, barrier.StageTopOfPipe)
	}
	s.batch.addMemory(access|barrier.AccessTransferWrite, barrier.AccessTransferWrite, stage|barrier.StageTransfer, barrier.StageTransfer)
	s.batch.flush(s.encoder)
	s.encoder.CopyBuffer(sb, b, offset, size)

	s.batch.addMemory(barrier.AccessTransferWrite, access, barrier.StageTransfer, stage)
	s.batch.flush(s.encoder)

	s.usedStaging = append(s.usedStaging, sb)
	core.MetricsRecordUpload(size)
	return nil
}

// UpdateTexture writes tightly packed texels into a region of one
// subresource. The subresource is moved to TransferDst for the copy and
// returned to the texture's resting layout afterwards.
func (s *Session) UpdateTexture(tex *Image, data []byte, region TextureRegion) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if tex == nil {
		return fmt.Errorf("%w: nil texture", core.ErrInvalidOperation)
	}
	if region.Mip >= tex.MipLevels || region.Layer >= tex.ArrayLayers {
		return fmt.Errorf("%w: mip %d layer %d of %s (%d mips, %d layers)", core.ErrOutOfRange,
			region.Mip, region.Layer, tex, tex.MipLevels, tex.ArrayLayers)
	}
	ext := tex.MipExtent(region.Mip)
	if !regionFits(region.X, region.Width, ext.Width) ||
		!regionFits(region.Y, region.Height, ext.Height) ||
		!regionFits(region.Z, region.Depth, ext.Depth) {
		return fmt.Errorf("%w: region %+v outside mip %d of %s (%dx%dx%d)", core.ErrOutOfRange,
			region, region.Mip, tex, ext.Width, ext.Height, ext.Depth)
	}
	if region.Width == 0 || region.Height == 0 || region.Depth == 0 || len(data) == 0 {
		return nil
	}
	if tex.SampleCount > 1 {
		return fmt.Errorf("%w: upload into multisampled %s", core.ErrInvalidOperation, tex)
	}
	required := uint64(region.Width) * uint64(region.Height) * uint64(region.Depth) * uint64(tex.Format.BytesPerPixel())
	if uint64(len(data)) < required {
		return fmt.Errorf("%w: %d bytes for a region needing %d", core.ErrOutOfRange, len(data), required)
	}

	sb, err := s.stage(data[:required])
	if err != nil {
		return err
	}
	s.ensureInactive()
	if err := s.transition(tex, region.Mip, 1, region.Layer, 1, metadata.LayoutTransferDst); err != nil {
		s.usedStaging = append(s.usedStaging, sb)
		return err
	}
	s.batch.flush(s.encoder)

	aspect := barrier.AspectColor
	if tex.Format.HasDepth() {
		aspect = barrier.AspectDepth
	}
	s.encoder.CopyBufferToImage(sb, tex, BufferImageCopy{
		Mip:    region.Mip,
		Layer:  region.Layer,
		Offset: metadata.Offset3D{X: region.X, Y: region.Y, Z: region.Z},
		Extent: metadata.Extent3D{Width: region.Width, Height: region.Height, Depth: region.Depth},
		Aspect: aspect,
	})
	s.usedStaging = append(s.usedStaging, sb)

	if err := s.transition(tex, region.Mip, 1, region.Layer, 1, tex.RestingLayout()); err != nil {
		return err
	}
	s.batch.flush(s.encoder)
	core.MetricsRecordUpload(required)
	return nil
}

func regionFits(offset, size, limit uint32) bool {
	return uint64(offset)+uint64(size) <= uint64(limit)
}
