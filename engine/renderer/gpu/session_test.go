package gpu_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/barrier"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/headless"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

func TestSessionStates(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	s := f.session

	if err := s.End(); !errors.Is(err, core.ErrNotRecording) {
		t.Errorf("End before Begin\nhave %v\nwant ErrNotRecording", err)
	}
	if err := s.DrawIndexed(3, 1, 0, 0, 0); !errors.Is(err, core.ErrNotRecording) {
		t.Errorf("DrawIndexed before Begin\nhave %v\nwant ErrNotRecording", err)
	}
	f.begin(t)
	if err := s.Begin(); !errors.Is(err, core.ErrAlreadyRecording) {
		t.Errorf("second Begin\nhave %v\nwant ErrAlreadyRecording", err)
	}
	if s.State() != gpu.SessionStateRecording {
		t.Errorf("State\nhave %v\nwant %v", s.State(), gpu.SessionStateRecording)
	}
	f.submit(t)
	if s.State() != gpu.SessionStateEnded {
		t.Errorf("State\nhave %v\nwant %v", s.State(), gpu.SessionStateEnded)
	}
	f.begin(t)
}

func TestTransitionIdempotent(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	desc := sampled(8, 8)
	desc.MipLevels, desc.ArrayLayers = 4, 2
	tex := f.texture(t, desc)
	f.begin(t)

	if err := f.session.TransitionRange(tex, 0, 4, 0, 2, metadata.LayoutShaderReadOnly); err != nil {
		t.Fatalf("TransitionRange: %v", err)
	}
	bs := barriers(f.enc, 0)
	if len(f.enc.Commands()) != 1 || len(bs) != 1 {
		t.Fatalf("commands\nhave %v\nwant one PipelineBarrier", f.enc.Kinds())
	}
	// One barrier per mip; both layers share the old layout.
	if len(bs[0].Images) != 4 {
		t.Errorf("image barriers\nhave %d\nwant 4", len(bs[0].Images))
	}

	if err := f.session.TransitionRange(tex, 0, 4, 0, 2, metadata.LayoutShaderReadOnly); err != nil {
		t.Fatalf("second TransitionRange: %v", err)
	}
	if n := len(f.enc.Commands()); n != 1 {
		t.Errorf("commands after repeated transition\nhave %d\nwant 1", n)
	}
	f.submit(t)
}

func TestTransitionCoverage(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	desc := sampled(8, 8)
	desc.MipLevels, desc.ArrayLayers = 4, 3
	tex := f.texture(t, desc)
	f.begin(t)

	if err := f.session.TransitionRange(tex, 1, 2, 1, 1, metadata.LayoutTransferDst); err != nil {
		t.Fatalf("TransitionRange: %v", err)
	}
	for mip := uint32(0); mip < 4; mip++ {
		for layer := uint32(0); layer < 3; layer++ {
			want := metadata.LayoutUndefined
			if mip >= 1 && mip < 3 && layer == 1 {
				want = metadata.LayoutTransferDst
			}
			if have := layout(t, tex, mip, layer); have != want {
				t.Errorf("Layout(%d, %d)\nhave %v\nwant %v", mip, layer, have, want)
			}
		}
	}

	from := len(f.enc.Commands())
	if err := f.session.TransitionRange(tex, 0, 4, 0, 3, metadata.LayoutGeneral); err != nil {
		t.Fatalf("TransitionRange: %v", err)
	}
	bs := barriers(f.enc, from)
	if len(bs) != 1 {
		t.Fatalf("barrier commands\nhave %d\nwant 1", len(bs))
	}
	var olds []metadata.Layout
	for _, ib := range bs[0].Images {
		if ib.BaseMip == 1 {
			olds = append(olds, ib.OldLayout)
		}
	}
	want := []metadata.Layout{metadata.LayoutUndefined, metadata.LayoutTransferDst, metadata.LayoutUndefined}
	if !slices.Equal(olds, want) {
		t.Errorf("old layouts of mip 1\nhave %v\nwant %v", olds, want)
	}
	if len(bs[0].Images) != 8 {
		t.Errorf("image barriers\nhave %d\nwant 8", len(bs[0].Images))
	}
	f.submit(t)
}

func TestTransitionRejected(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	desc := sampled(8, 8)
	desc.MipLevels = 4
	tex := f.texture(t, desc)
	f.begin(t)

	for _, r := range [...][4]uint32{{3, 2, 0, 1}, {0, 0, 0, 1}, {0, 1, 1, 1}, {4, 1, 0, 1}} {
		err := f.session.TransitionRange(tex, r[0], r[1], r[2], r[3], metadata.LayoutGeneral)
		if !errors.Is(err, core.ErrInvalidSubresource) {
			t.Errorf("TransitionRange(%v)\nhave %v\nwant ErrInvalidSubresource", r, err)
		}
	}
	err := f.session.TransitionRange(tex, 0, 1, 0, 1, metadata.LayoutUndefined)
	if !errors.Is(err, core.ErrUnsupportedTransition) {
		t.Errorf("TransitionRange into Undefined\nhave %v\nwant ErrUnsupportedTransition", err)
	}
	if n := len(f.enc.Commands()); n != 0 {
		t.Errorf("commands\nhave %v\nwant none", f.enc.Kinds())
	}
	if _, err := tex.Layout(4, 0); !errors.Is(err, core.ErrInvalidSubresource) {
		t.Errorf("Layout(4, 0)\nhave %v\nwant ErrInvalidSubresource", err)
	}
	if have := layout(t, tex, 0, 0); have != metadata.LayoutUndefined {
		t.Errorf("Layout(0, 0)\nhave %v\nwant Undefined", have)
	}
}

func TestPreinitializedImage(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	desc := sampled(4, 4)
	desc.Preinitialized = true
	tex := f.texture(t, desc)
	if have := layout(t, tex, 0, 0); have != metadata.LayoutPreinitialized {
		t.Fatalf("initial layout\nhave %v\nwant Preinitialized", have)
	}
	f.begin(t)
	if err := f.session.TransitionToResting(tex); err != nil {
		t.Fatalf("TransitionToResting: %v", err)
	}
	ib := barriers(f.enc, 0)[0].Images[0]
	if ib.OldLayout != metadata.LayoutPreinitialized || ib.SrcAccess != barrier.AccessHostWrite {
		t.Errorf("barrier\nhave %v %v\nwant Preinitialized HostWrite", ib.OldLayout, ib.SrcAccess)
	}
	f.submit(t)
}

func TestUpdateBuffer(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	b := f.buffer(t, 16, metadata.BufferUsageVertex)
	s := f.session
	f.begin(t)

	if err := s.UpdateBuffer(b, 10, make([]byte, 8)); !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("UpdateBuffer(10, 8 bytes)\nhave %v\nwant ErrOutOfRange", err)
	}
	if err := s.UpdateBuffer(b, 17, nil); !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("UpdateBuffer(17, 0 bytes)\nhave %v\nwant ErrOutOfRange", err)
	}
	if len(f.enc.Commands()) != 0 || s.PendingStaging() != 0 {
		t.Fatalf("rejected upload recorded %v and kept %d staging buffers", f.enc.Kinds(), s.PendingStaging())
	}

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := s.UpdateBuffer(b, 4, data); err != nil {
		t.Fatalf("UpdateBuffer: %v", err)
	}
	want := []headless.CommandKind{headless.CommandPipelineBarrier, headless.CommandCopyBuffer, headless.CommandPipelineBarrier}
	if have := f.enc.Kinds(); !slices.Equal(have, want) {
		t.Fatalf("commands\nhave %v\nwant %v", have, want)
	}
	before := barriers(f.enc, 0)[0]
	wantBefore := gpu.MemoryBarrier{
		SrcAccess: barrier.AccessVertexAttributeRead | barrier.AccessTransferWrite,
		DstAccess: barrier.AccessTransferWrite,
	}
	if len(before.Memory) != 1 || before.Memory[0] != wantBefore ||
		before.SrcStage != barrier.StageVertexInput|barrier.StageTransfer || before.DstStage != barrier.StageTransfer {
		t.Errorf("barrier before copy\nhave %+v\nwant %+v VertexInput|Transfer->Transfer", before, wantBefore)
	}
	pb := barriers(f.enc, 0)[1]
	wantMem := gpu.MemoryBarrier{SrcAccess: barrier.AccessTransferWrite, DstAccess: barrier.AccessVertexAttributeRead}
	if len(pb.Memory) != 1 || pb.Memory[0] != wantMem || pb.SrcStage != barrier.StageTransfer || pb.DstStage != barrier.StageVertexInput {
		t.Errorf("visibility barrier\nhave %+v\nwant %+v Transfer->VertexInput", pb, wantMem)
	}
	if s.PendingStaging() != 1 {
		t.Errorf("PendingStaging\nhave %d\nwant 1", s.PendingStaging())
	}

	f.submit(t)
	have := headless.ReadBuffer(b)
	if !slices.Equal(have[4:12], data) || !slices.Equal(have[:4], []byte{0, 0, 0, 0}) {
		t.Errorf("buffer contents\nhave %v\nwant %v at offset 4", have, data)
	}
}

func TestUpdateZeroLength(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	b := f.buffer(t, 16, metadata.BufferUsageUniform)
	tex := f.texture(t, sampled(4, 4))
	f.begin(t)

	if err := f.session.UpdateBuffer(b, 16, nil); err != nil {
		t.Errorf("UpdateBuffer(16, 0 bytes): %v", err)
	}
	if err := f.session.UpdateTexture(tex, nil, gpu.TextureRegion{Width: 4, Height: 4, Depth: 1}); err != nil {
		t.Errorf("UpdateTexture(no data): %v", err)
	}
	if err := f.session.UpdateTexture(tex, make([]byte, 64), gpu.TextureRegion{Width: 0, Height: 4, Depth: 1}); err != nil {
		t.Errorf("UpdateTexture(empty region): %v", err)
	}
	if len(f.enc.Commands()) != 0 {
		t.Errorf("commands\nhave %v\nwant none", f.enc.Kinds())
	}
	if n := f.device.StagingAllocations(); n != 0 {
		t.Errorf("staging allocations\nhave %d\nwant 0", n)
	}
	if have := layout(t, tex, 0, 0); have != metadata.LayoutUndefined {
		t.Errorf("layout\nhave %v\nwant Undefined", have)
	}
}

func TestUpdateTexture(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	tex := f.texture(t, sampled(4, 4))
	f.begin(t)

	data := make([]byte, 2*2*4)
	for i := range data {
		data[i] = byte(i + 1)
	}
	if err := f.session.UpdateTexture(tex, data, gpu.TextureRegion{X: 1, Y: 1, Width: 2, Height: 2, Depth: 1}); err != nil {
		t.Fatalf("UpdateTexture: %v", err)
	}
	want := []headless.CommandKind{headless.CommandPipelineBarrier, headless.CommandCopyBufferToImage, headless.CommandPipelineBarrier}
	if have := f.enc.Kinds(); !slices.Equal(have, want) {
		t.Fatalf("commands\nhave %v\nwant %v", have, want)
	}
	bs := barriers(f.enc, 0)
	if ib := bs[0].Images[0]; ib.OldLayout != metadata.LayoutUndefined || ib.NewLayout != metadata.LayoutTransferDst {
		t.Errorf("first barrier\nhave %v -> %v\nwant Undefined -> TransferDst", ib.OldLayout, ib.NewLayout)
	}
	if ib := bs[1].Images[0]; ib.OldLayout != metadata.LayoutTransferDst || ib.NewLayout != metadata.LayoutShaderReadOnly {
		t.Errorf("second barrier\nhave %v -> %v\nwant TransferDst -> ShaderReadOnly", ib.OldLayout, ib.NewLayout)
	}

	f.submit(t)
	have, err := headless.ReadTexture(tex, 0, 0)
	if err != nil {
		t.Fatalf("ReadTexture: %v", err)
	}
	// Rows 1 and 2, texels 1 and 2.
	if !slices.Equal(have[20:28], data[:8]) || !slices.Equal(have[36:44], data[8:]) {
		t.Errorf("texture contents\nhave %v", have)
	}
	if !slices.Equal(have[:4], []byte{0, 0, 0, 0}) {
		t.Errorf("texel (0, 0) was written: %v", have[:4])
	}
}

func TestUpdateTextureRejected(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	tex := f.texture(t, sampled(4, 4))
	f.begin(t)

	full := make([]byte, 4*4*4)
	for i := range full {
		full[i] = 0xff
	}
	cases := [...]struct {
		name   string
		data   []byte
		region gpu.TextureRegion
	}{
		{"past right edge", full, gpu.TextureRegion{X: 3, Width: 2, Height: 1, Depth: 1}},
		{"past bottom edge", full, gpu.TextureRegion{Y: 4, Width: 1, Height: 1, Depth: 1}},
		{"missing mip", full, gpu.TextureRegion{Mip: 1, Width: 1, Height: 1, Depth: 1}},
		{"missing layer", full, gpu.TextureRegion{Layer: 1, Width: 1, Height: 1, Depth: 1}},
		{"short data", full[:63], gpu.TextureRegion{Width: 4, Height: 4, Depth: 1}},
	}
	for _, c := range cases {
		if err := f.session.UpdateTexture(tex, c.data, c.region); !errors.Is(err, core.ErrOutOfRange) {
			t.Errorf("%s\nhave %v\nwant ErrOutOfRange", c.name, err)
		}
	}
	if len(f.enc.Commands()) != 0 {
		t.Errorf("commands\nhave %v\nwant none", f.enc.Kinds())
	}
	if have := layout(t, tex, 0, 0); have != metadata.LayoutUndefined {
		t.Errorf("layout\nhave %v\nwant Undefined", have)
	}
	f.submit(t)
	have, _ := headless.ReadTexture(tex, 0, 0)
	if !slices.Equal(have, make([]byte, 64)) {
		t.Errorf("texture contents changed: %v", have)
	}
}

func TestUpdateStagingFailure(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	b := f.buffer(t, 16, metadata.BufferUsageUniform)
	tex := f.texture(t, sampled(4, 4))
	f.device.FailStagingAllocations(true)
	f.begin(t)

	err := f.session.UpdateBuffer(b, 0, make([]byte, 16))
	if !errors.Is(err, core.ErrResourceAllocation) || !core.IsFatal(err) {
		t.Errorf("UpdateBuffer\nhave %v\nwant fatal ErrResourceAllocation", err)
	}
	err = f.session.UpdateTexture(tex, make([]byte, 64), gpu.TextureRegion{Width: 4, Height: 4, Depth: 1})
	if !errors.Is(err, core.ErrResourceAllocation) {
		t.Errorf("UpdateTexture\nhave %v\nwant ErrResourceAllocation", err)
	}
	if len(f.enc.Commands()) != 0 {
		t.Errorf("commands\nhave %v\nwant none", f.enc.Kinds())
	}
	if have := layout(t, tex, 0, 0); have != metadata.LayoutUndefined {
		t.Errorf("layout\nhave %v\nwant Undefined", have)
	}
}

func TestGenerateMipmaps(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	desc := sampled(16, 8)
	desc.MipLevels, desc.ArrayLayers = 5, 2
	tex := f.texture(t, desc)
	f.begin(t)

	texel := []byte{10, 20, 30, 40}
	level0 := make([]byte, 0, 16*8*4)
	for i := 0; i < 16*8; i++ {
		level0 = append(level0, texel...)
	}
	for layer := uint32(0); layer < 2; layer++ {
		if err := f.session.UpdateTexture(tex, level0, gpu.TextureRegion{Width: 16, Height: 8, Depth: 1, Layer: layer}); err != nil {
			t.Fatalf("UpdateTexture(layer %d): %v", layer, err)
		}
	}

	from := len(f.enc.Commands())
	if err := f.session.GenerateMipmaps(tex); err != nil {
		t.Fatalf("GenerateMipmaps: %v", err)
	}
	var blits []headless.Command
	for _, c := range f.enc.Commands()[from:] {
		if c.Kind == headless.CommandBlitImage {
			blits = append(blits, c)
		}
	}
	if len(blits) != 4 {
		t.Fatalf("blits\nhave %d\nwant 4", len(blits))
	}
	wantDims := []metadata.Extent3D{{Width: 16, Height: 8, Depth: 1}, {Width: 8, Height: 4, Depth: 1}, {Width: 4, Height: 2, Depth: 1}, {Width: 2, Height: 1, Depth: 1}, {Width: 1, Height: 1, Depth: 1}}
	for i, c := range blits {
		b := c.Blit
		if b.SrcMip != uint32(i) || b.DstMip != uint32(i+1) {
			t.Errorf("blit %d mips\nhave %d -> %d\nwant %d -> %d", i, b.SrcMip, b.DstMip, i, i+1)
		}
		if b.SrcExtent != wantDims[i] || b.DstExtent != wantDims[i+1] {
			t.Errorf("blit %d extents\nhave %v -> %v\nwant %v -> %v", i, b.SrcExtent, b.DstExtent, wantDims[i], wantDims[i+1])
		}
		if b.LayerCount != 2 || c.Filter != metadata.FilterLinear {
			t.Errorf("blit %d\nhave layers=%d filter=%v\nwant layers=2 filter=Linear", i, b.LayerCount, c.Filter)
		}
	}
	for mip := uint32(0); mip < 5; mip++ {
		for layer := uint32(0); layer < 2; layer++ {
			if have := layout(t, tex, mip, layer); have != metadata.LayoutShaderReadOnly {
				t.Errorf("Layout(%d, %d)\nhave %v\nwant ShaderReadOnly", mip, layer, have)
			}
		}
	}

	f.submit(t)
	have, _ := headless.ReadTexture(tex, 4, 1)
	if !slices.Equal(have, texel) {
		t.Errorf("last mip\nhave %v\nwant %v", have, texel)
	}
}

func TestGenerateMipmapsRejected(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	depth := f.texture(t, metadata.TextureDescription{
		Width: 8, Height: 8, MipLevels: 2,
		Format: metadata.PixelFormatD32Float,
		Usage:  metadata.TextureUsageDepthStencil,
	})
	ms := f.texture(t, metadata.TextureDescription{
		Width: 8, Height: 8, SampleCount: 4,
		Usage: metadata.TextureUsageRenderTarget,
	})
	f.begin(t)
	for _, img := range []*gpu.Image{depth, ms} {
		if err := f.session.GenerateMipmaps(img); !errors.Is(err, core.ErrInvalidOperation) {
			t.Errorf("GenerateMipmaps(%v)\nhave %v\nwant ErrInvalidOperation", img.Format, err)
		}
	}
	if len(f.enc.Commands()) != 0 {
		t.Errorf("commands\nhave %v\nwant none", f.enc.Kinds())
	}
}

func TestResolveTexture(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	src := f.texture(t, metadata.TextureDescription{
		Width: 8, Height: 8, SampleCount: 4,
		Usage: metadata.TextureUsageRenderTarget,
	})
	small := f.texture(t, sampled(4, 4))
	msDst := f.texture(t, metadata.TextureDescription{
		Width: 8, Height: 8, SampleCount: 4,
		Usage: metadata.TextureUsageRenderTarget,
	})
	dst := f.texture(t, sampled(8, 8))
	f.begin(t)

	if err := f.session.ResolveTexture(src, small); !errors.Is(err, core.ErrDimensionMismatch) {
		t.Errorf("resolve into smaller texture\nhave %v\nwant ErrDimensionMismatch", err)
	}
	if err := f.session.ResolveTexture(dst, small); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("resolve from single-sampled texture\nhave %v\nwant ErrInvalidOperation", err)
	}
	if err := f.session.ResolveTexture(src, msDst); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("resolve into multisampled texture\nhave %v\nwant ErrInvalidOperation", err)
	}
	if len(f.enc.Commands()) != 0 {
		t.Fatalf("commands\nhave %v\nwant none", f.enc.Kinds())
	}

	if err := f.session.ResolveTexture(src, dst); err != nil {
		t.Fatalf("ResolveTexture: %v", err)
	}
	if n := f.enc.Count(headless.CommandResolveImage); n != 1 {
		t.Errorf("resolves\nhave %d\nwant 1", n)
	}
	if have := layout(t, src, 0, 0); have != metadata.LayoutColorAttachment {
		t.Errorf("source layout\nhave %v\nwant ColorAttachment", have)
	}
	if have := layout(t, dst, 0, 0); have != metadata.LayoutShaderReadOnly {
		t.Errorf("destination layout\nhave %v\nwant ShaderReadOnly", have)
	}
	f.submit(t)
}

func TestCopyTexture(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	desc := sampled(4, 4)
	desc.MipLevels = 2
	a, b := f.texture(t, desc), f.texture(t, desc)
	c := f.texture(t, sampled(8, 8))
	f.begin(t)

	if err := f.session.CopyTexture(a, c); !errors.Is(err, core.ErrDimensionMismatch) {
		t.Errorf("CopyTexture(4x4, 8x8)\nhave %v\nwant ErrDimensionMismatch", err)
	}
	if err := f.session.CopyTexture(a, a); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("CopyTexture(a, a)\nhave %v\nwant ErrInvalidOperation", err)
	}

	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	if err := f.session.UpdateTexture(a, data, gpu.TextureRegion{Width: 4, Height: 4, Depth: 1}); err != nil {
		t.Fatalf("UpdateTexture: %v", err)
	}
	from := len(f.enc.Commands())
	if err := f.session.CopyTexture(a, b); err != nil {
		t.Fatalf("CopyTexture: %v", err)
	}
	copies := 0
	for _, cmd := range f.enc.Commands()[from:] {
		if cmd.Kind == headless.CommandCopyImage {
			copies++
		}
	}
	if copies != 2 {
		t.Errorf("image copies\nhave %d\nwant 2", copies)
	}
	for _, img := range []*gpu.Image{a, b} {
		for mip := uint32(0); mip < 2; mip++ {
			if have := layout(t, img, mip, 0); have != metadata.LayoutShaderReadOnly {
				t.Errorf("%s Layout(%d, 0)\nhave %v\nwant ShaderReadOnly", img, mip, have)
			}
		}
	}
	f.submit(t)
	have, _ := headless.ReadTexture(b, 0, 0)
	if !slices.Equal(have, data) {
		t.Errorf("copied contents\nhave %v\nwant %v", have, data)
	}
}

func TestCopyTextureRegion(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	desc := sampled(4, 4)
	desc.ArrayLayers = 2
	tex := f.texture(t, desc)
	f.begin(t)

	overlap := gpu.TextureCopy{Src: tex, Dst: tex, Extent: metadata.Extent3D{Width: 1, Height: 1, Depth: 1}}
	if err := f.session.CopyTextureRegion(overlap); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("overlapping copy\nhave %v\nwant ErrInvalidOperation", err)
	}
	outside := gpu.TextureCopy{
		Src: tex, Dst: tex, DstLayer: 1,
		DstOffset: metadata.Offset3D{X: 3},
		Extent:    metadata.Extent3D{Width: 2, Height: 1, Depth: 1},
	}
	if err := f.session.CopyTextureRegion(outside); !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("copy past the edge\nhave %v\nwant ErrOutOfRange", err)
	}
	missing := gpu.TextureCopy{Src: tex, Dst: tex, DstLayer: 2, Extent: metadata.Extent3D{Width: 1, Height: 1, Depth: 1}}
	if err := f.session.CopyTextureRegion(missing); !errors.Is(err, core.ErrInvalidSubresource) {
		t.Errorf("copy into missing layer\nhave %v\nwant ErrInvalidSubresource", err)
	}
	if len(f.enc.Commands()) != 0 {
		t.Fatalf("commands\nhave %v\nwant none", f.enc.Kinds())
	}

	ok := gpu.TextureCopy{
		Src: tex, Dst: tex, DstLayer: 1,
		DstOffset: metadata.Offset3D{X: 2, Y: 2},
		Extent:    metadata.Extent3D{Width: 2, Height: 2, Depth: 1},
	}
	if err := f.session.CopyTextureRegion(ok); err != nil {
		t.Fatalf("CopyTextureRegion: %v", err)
	}
	for layer := uint32(0); layer < 2; layer++ {
		if have := layout(t, tex, 0, layer); have != metadata.LayoutShaderReadOnly {
			t.Errorf("Layout(0, %d)\nhave %v\nwant ShaderReadOnly", layer, have)
		}
	}
	f.submit(t)
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	rt := f.texture(t, renderTarget(64, 64))
	tex := f.texture(t, sampled(16, 16))
	ubo := f.buffer(t, 64, metadata.BufferUsageUniform)
	fb := f.framebuffer(t, []*gpu.Image{rt}, nil)
	pipeline := f.device.CreatePipeline(metadata.PipelineKindGraphics)
	set := f.device.CreateResourceSet(
		gpu.Binding{Kind: gpu.BindingSampledImage, Image: tex},
		gpu.Binding{Kind: gpu.BindingUniformBuffer, Buffer: ubo},
	)
	s := f.session
	f.begin(t)

	if err := s.UpdateBuffer(ubo, 0, make([]byte, 64)); err != nil {
		t.Fatalf("UpdateBuffer: %v", err)
	}
	from := len(f.enc.Commands())
	if err := s.SetFramebuffer(fb); err != nil {
		t.Fatalf("SetFramebuffer: %v", err)
	}
	bs := barriers(f.enc, from)
	if len(bs) != 1 || len(bs[0].Images) != 1 {
		t.Fatalf("framebuffer barriers\nhave %v\nwant a single barrier", f.enc.Kinds()[from:])
	}
	if ib := bs[0].Images[0]; ib.Image != rt || ib.OldLayout != metadata.LayoutUndefined || ib.NewLayout != metadata.LayoutColorAttachment {
		t.Errorf("framebuffer barrier\nhave %s %v -> %v\nwant %s Undefined -> ColorAttachment", ib.Image, ib.OldLayout, ib.NewLayout, rt)
	}
	if err := s.ClearColorTarget(0, metadata.ColorBlack); err != nil {
		t.Fatalf("ClearColorTarget: %v", err)
	}
	if err := s.SetPipeline(pipeline); err != nil {
		t.Fatalf("SetPipeline: %v", err)
	}
	if err := s.SetResourceSet(0, set); err != nil {
		t.Fatalf("SetResourceSet: %v", err)
	}
	if err := s.DrawIndexed(6, 1, 0, 0, 0); err != nil {
		t.Fatalf("DrawIndexed: %v", err)
	}

	want := []headless.CommandKind{
		headless.CommandPipelineBarrier,
		headless.CommandCopyBuffer,
		headless.CommandPipelineBarrier,
		headless.CommandPipelineBarrier,
		headless.CommandBeginRenderPass,
		headless.CommandSetViewport,
		headless.CommandSetScissor,
		headless.CommandClearColor,
		headless.CommandBindPipeline,
		headless.CommandEndRenderPass,
		headless.CommandPipelineBarrier,
		headless.CommandBeginRenderPass,
		headless.CommandBindResourceSet,
		headless.CommandDrawIndexed,
	}
	if have := f.enc.Kinds(); !slices.Equal(have, want) {
		t.Fatalf("commands\nhave %v\nwant %v", have, want)
	}
	validation := barriers(f.enc, 9)[0]
	if len(validation.Images) != 1 || validation.Images[0].Image != tex || validation.Images[0].NewLayout != metadata.LayoutShaderReadOnly {
		t.Errorf("draw barrier\nhave %+v\nwant %s -> ShaderReadOnly", validation.Images, tex)
	}
	if validation.SrcStage&barrier.StageBottomOfPipe == 0 {
		t.Errorf("draw barrier source stages\nhave %v\nwant BottomOfPipe included", validation.SrcStage)
	}

	fence := f.submit(t)
	if s.RenderPassActive() {
		t.Error("render pass still active after End")
	}
	if err := s.RetireAfter(fence, time.Second); err != nil {
		t.Fatalf("RetireAfter: %v", err)
	}
	if st := f.pool.Stats(); st.InUse != 0 || st.Available != 1 {
		t.Errorf("pool\nhave %+v\nwant InUse=0 Available=1", st)
	}
}

func TestDrawRequirements(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	s := f.session
	f.begin(t)

	if err := s.DrawIndexed(3, 1, 0, 0, 0); !errors.Is(err, core.ErrNoPipelineSet) {
		t.Errorf("draw without pipeline\nhave %v\nwant ErrNoPipelineSet", err)
	}
	if err := s.Dispatch(1, 1, 1); !errors.Is(err, core.ErrNoPipelineSet) {
		t.Errorf("dispatch without pipeline\nhave %v\nwant ErrNoPipelineSet", err)
	}
	if err := s.SetPipeline(f.device.CreatePipeline(metadata.PipelineKindCompute)); err != nil {
		t.Fatalf("SetPipeline: %v", err)
	}
	if err := s.DrawIndexed(3, 1, 0, 0, 0); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("draw with compute pipeline\nhave %v\nwant ErrInvalidOperation", err)
	}
	if err := s.SetPipeline(f.device.CreatePipeline(metadata.PipelineKindGraphics)); err != nil {
		t.Fatalf("SetPipeline: %v", err)
	}
	if err := s.DrawIndexed(3, 1, 0, 0, 0); !errors.Is(err, core.ErrNoFramebufferSet) {
		t.Errorf("draw without framebuffer\nhave %v\nwant ErrNoFramebufferSet", err)
	}
	if err := s.Dispatch(1, 1, 1); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("dispatch with graphics pipeline\nhave %v\nwant ErrInvalidOperation", err)
	}
	if err := s.EnsureRenderPassActive(); !errors.Is(err, core.ErrNoFramebufferSet) {
		t.Errorf("EnsureRenderPassActive without framebuffer\nhave %v\nwant ErrNoFramebufferSet", err)
	}
	if n := f.enc.Count(headless.CommandDrawIndexed) + f.enc.Count(headless.CommandDispatch); n != 0 {
		t.Errorf("draws and dispatches recorded: %d", n)
	}
}

func TestStickyValidation(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	rt := f.texture(t, renderTarget(32, 32))
	a, b := f.texture(t, sampled(8, 8)), f.texture(t, sampled(8, 8))
	setA := f.device.CreateResourceSet(gpu.Binding{Kind: gpu.BindingSampledImage, Image: a})
	setB := f.device.CreateResourceSet(gpu.Binding{Kind: gpu.BindingSampledImage, Image: b})
	s := f.session
	f.begin(t)

	s.SetFramebuffer(f.framebuffer(t, []*gpu.Image{rt}, nil))
	s.SetPipeline(f.device.CreatePipeline(metadata.PipelineKindGraphics))
	s.SetResourceSet(0, setA)
	for i := 0; i < 2; i++ {
		if err := s.DrawIndexed(3, 1, 0, 0, 0); err != nil {
			t.Fatalf("DrawIndexed: %v", err)
		}
	}
	if n := f.enc.Count(headless.CommandPipelineBarrier); n != 2 {
		t.Errorf("barriers after two draws\nhave %d\nwant 2", n)
	}

	s.SetResourceSet(0, setB)
	if err := s.DrawIndexed(3, 1, 0, 0, 0); err != nil {
		t.Fatalf("DrawIndexed: %v", err)
	}
	if n := f.enc.Count(headless.CommandPipelineBarrier); n != 3 {
		t.Errorf("barriers after rebinding\nhave %d\nwant 3", n)
	}

	s.SetResourceSet(0, setB)
	if err := s.DrawIndexed(3, 1, 0, 0, 0); err != nil {
		t.Fatalf("DrawIndexed: %v", err)
	}
	if n := f.enc.Count(headless.CommandBindResourceSet); n != 2 {
		t.Errorf("resource set binds\nhave %d\nwant 2", n)
	}
	if n := f.enc.Count(headless.CommandPipelineBarrier); n != 3 {
		t.Errorf("barriers after rebinding the same set\nhave %d\nwant 3", n)
	}
	f.submit(t)
}

func TestDispatchStorageImage(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	rt := f.texture(t, renderTarget(16, 16))
	img := f.texture(t, metadata.TextureDescription{
		Width: 16, Height: 16,
		Format: metadata.PixelFormatRGBA8Unorm,
		Usage:  metadata.TextureUsageStorage | metadata.TextureUsageSampled,
	})
	set := f.device.CreateResourceSet(gpu.Binding{Kind: gpu.BindingStorageImage, Image: img})
	graphics := f.device.CreatePipeline(metadata.PipelineKindGraphics)
	compute := f.device.CreatePipeline(metadata.PipelineKindCompute)
	s := f.session
	f.begin(t)

	s.SetFramebuffer(f.framebuffer(t, []*gpu.Image{rt}, nil))
	s.SetPipeline(graphics)
	s.SetResourceSet(0, set)
	if err := s.DrawIndexed(3, 1, 0, 0, 0); err != nil {
		t.Fatalf("DrawIndexed: %v", err)
	}
	if have := layout(t, img, 0, 0); have != metadata.LayoutShaderReadOnly {
		t.Errorf("layout for draw\nhave %v\nwant ShaderReadOnly", have)
	}

	s.SetPipeline(compute)
	from := len(f.enc.Commands())
	if err := s.Dispatch(4, 4, 1); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if have := layout(t, img, 0, 0); have != metadata.LayoutGeneral {
		t.Errorf("layout for dispatch\nhave %v\nwant General", have)
	}
	if s.RenderPassActive() {
		t.Error("render pass active after Dispatch")
	}
	want := []headless.CommandKind{
		headless.CommandEndRenderPass,
		headless.CommandPipelineBarrier,
		headless.CommandBindResourceSet,
		headless.CommandDispatch,
	}
	if have := f.enc.Kinds()[from:]; !slices.Equal(have, want) {
		t.Errorf("commands\nhave %v\nwant %v", have, want)
	}
	f.submit(t)
}

func TestAttachmentsRestoredAfterCompute(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	rt := f.texture(t, metadata.TextureDescription{
		Width: 16, Height: 16,
		Format: metadata.PixelFormatRGBA8Unorm,
		Usage:  metadata.TextureUsageStorage | metadata.TextureUsageRenderTarget,
	})
	storage := f.device.CreateResourceSet(gpu.Binding{Kind: gpu.BindingStorageImage, Image: rt})
	empty := f.device.CreateResourceSet()
	s := f.session
	f.begin(t)

	s.SetFramebuffer(f.framebuffer(t, []*gpu.Image{rt}, nil))
	s.SetPipeline(f.device.CreatePipeline(metadata.PipelineKindCompute))
	s.SetResourceSet(0, storage)
	if err := s.Dispatch(1, 1, 1); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if have := layout(t, rt, 0, 0); have != metadata.LayoutGeneral {
		t.Fatalf("layout after dispatch\nhave %v\nwant General", have)
	}

	s.SetPipeline(f.device.CreatePipeline(metadata.PipelineKindGraphics))
	s.SetResourceSet(0, empty)
	if err := s.DrawIndexed(3, 1, 0, 0, 0); err != nil {
		t.Fatalf("DrawIndexed: %v", err)
	}
	if have := layout(t, rt, 0, 0); have != metadata.LayoutColorAttachment {
		t.Errorf("layout after draw\nhave %v\nwant ColorAttachment", have)
	}
	f.submit(t)
}

func TestAttachmentBoundAsTexture(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	rt := f.texture(t, metadata.TextureDescription{
		Width: 16, Height: 16,
		Format: metadata.PixelFormatRGBA8Unorm,
		Usage:  metadata.TextureUsageSampled | metadata.TextureUsageRenderTarget,
	})
	s := f.session
	f.begin(t)
	s.SetFramebuffer(f.framebuffer(t, []*gpu.Image{rt}, nil))
	s.SetPipeline(f.device.CreatePipeline(metadata.PipelineKindGraphics))
	s.SetResourceSet(0, f.device.CreateResourceSet(gpu.Binding{Kind: gpu.BindingSampledImage, Image: rt}))
	if err := s.DrawIndexed(3, 1, 0, 0, 0); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("DrawIndexed\nhave %v\nwant ErrInvalidOperation", err)
	}
	if have := layout(t, rt, 0, 0); have != metadata.LayoutColorAttachment {
		t.Errorf("layout\nhave %v\nwant ColorAttachment", have)
	}
}

func TestDispatchRays(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	f.begin(t)
	if err := f.session.DispatchRays(8, 8, 1); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("DispatchRays without support\nhave %v\nwant ErrInvalidOperation", err)
	}

	f = newFixture(t, gpu.Features{RayTracing: true})
	out := f.texture(t, metadata.TextureDescription{
		Width: 8, Height: 8,
		Format: metadata.PixelFormatRGBA8Unorm,
		Usage:  metadata.TextureUsageStorage,
	})
	set := f.device.CreateResourceSet(
		gpu.Binding{Kind: gpu.BindingAccelerationStructure},
		gpu.Binding{Kind: gpu.BindingStorageImage, Image: out},
	)
	s := f.session
	f.begin(t)
	s.SetPipeline(f.device.CreatePipeline(metadata.PipelineKindRayTracing))
	s.SetResourceSet(0, set)
	for i := 0; i < 2; i++ {
		if err := s.DispatchRays(8, 8, 1); err != nil {
			t.Fatalf("DispatchRays: %v", err)
		}
	}
	bs := barriers(f.enc, 0)
	if len(bs) != 2 {
		t.Fatalf("barriers\nhave %d\nwant 2", len(bs))
	}
	wantMem := gpu.MemoryBarrier{
		SrcAccess: barrier.AccessAccelerationStructureWrite,
		DstAccess: barrier.AccessAccelerationStructureRead,
	}
	for i, pb := range bs {
		if len(pb.Memory) != 1 || pb.Memory[0] != wantMem || pb.DstStage&barrier.StageRayTracingShader == 0 {
			t.Errorf("barrier %d\nhave %+v\nwant acceleration structure hazard", i, pb)
		}
	}
	if len(bs[0].Images) != 1 || len(bs[1].Images) != 0 {
		t.Errorf("image barriers\nhave %d, %d\nwant 1, 0", len(bs[0].Images), len(bs[1].Images))
	}
	if have := layout(t, out, 0, 0); have != metadata.LayoutGeneral {
		t.Errorf("layout\nhave %v\nwant General", have)
	}
	f.submit(t)
}

func TestUnknownBindingKind(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	rt := f.texture(t, renderTarget(8, 8))
	s := f.session
	f.begin(t)
	s.SetFramebuffer(f.framebuffer(t, []*gpu.Image{rt}, nil))
	s.SetPipeline(f.device.CreatePipeline(metadata.PipelineKindGraphics))
	s.SetResourceSet(0, f.device.CreateResourceSet(gpu.Binding{Kind: gpu.BindingKind(99)}))
	err := s.DrawIndexed(3, 1, 0, 0, 0)
	if !errors.Is(err, core.ErrUnsupportedResource) || !core.IsFatal(err) {
		t.Errorf("DrawIndexed\nhave %v\nwant fatal ErrUnsupportedResource", err)
	}
}

func TestClearTargets(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	rt := f.texture(t, renderTarget(8, 8))
	ds := f.texture(t, metadata.TextureDescription{
		Width: 8, Height: 8,
		Format: metadata.PixelFormatD24UnormS8Uint,
		Usage:  metadata.TextureUsageDepthStencil,
	})
	s := f.session
	f.begin(t)

	if err := s.ClearColorTarget(0, metadata.ColorBlack); !errors.Is(err, core.ErrNoFramebufferSet) {
		t.Errorf("clear without framebuffer\nhave %v\nwant ErrNoFramebufferSet", err)
	}
	s.SetFramebuffer(f.framebuffer(t, []*gpu.Image{rt}, nil))
	if err := s.ClearColorTarget(1, metadata.ColorBlack); !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("clear of color target 1\nhave %v\nwant ErrOutOfRange", err)
	}
	if err := s.ClearDepthStencil(1, 0); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("depth clear without depth target\nhave %v\nwant ErrInvalidOperation", err)
	}

	s.SetFramebuffer(f.framebuffer(t, []*gpu.Image{rt}, ds))
	if err := s.ClearDepthStencil(1, 0); err != nil {
		t.Fatalf("ClearDepthStencil: %v", err)
	}
	cmds := f.enc.Commands()
	last := cmds[len(cmds)-1]
	if last.Kind != headless.CommandClearDepthStencil || last.Aspect != barrier.AspectDepth|barrier.AspectStencil {
		t.Errorf("last command\nhave %v aspect %v\nwant ClearDepthStencil aspect Depth|Stencil", last.Kind, last.Aspect)
	}
	f.submit(t)
}

func TestEnsureRenderPassInactive(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	rt := f.texture(t, renderTarget(8, 8))
	s := f.session
	f.begin(t)

	if err := s.EnsureRenderPassInactive(); err != nil {
		t.Fatalf("EnsureRenderPassInactive: %v", err)
	}
	if len(f.enc.Commands()) != 0 {
		t.Errorf("commands without active pass\nhave %v\nwant none", f.enc.Kinds())
	}

	s.SetFramebuffer(f.framebuffer(t, []*gpu.Image{rt}, nil))
	from := len(f.enc.Commands())
	if err := s.EnsureRenderPassInactive(); err != nil {
		t.Fatalf("EnsureRenderPassInactive: %v", err)
	}
	want := []headless.CommandKind{headless.CommandEndRenderPass, headless.CommandPipelineBarrier}
	if have := f.enc.Kinds()[from:]; !slices.Equal(have, want) {
		t.Fatalf("commands\nhave %v\nwant %v", have, want)
	}
	pb := barriers(f.enc, from)[0]
	if pb.SrcStage != barrier.StageBottomOfPipe || pb.DstStage != barrier.StageTopOfPipe {
		t.Errorf("barrier stages\nhave %v -> %v\nwant BottomOfPipe -> TopOfPipe", pb.SrcStage, pb.DstStage)
	}
	if err := s.EnsureRenderPassActive(); err != nil {
		t.Fatalf("EnsureRenderPassActive: %v", err)
	}
	if !s.RenderPassActive() {
		t.Error("render pass inactive after EnsureRenderPassActive")
	}
	f.submit(t)
}

func TestSetFramebufferBatchesAttachments(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	c0, c1 := f.texture(t, renderTarget(32, 32)), f.texture(t, renderTarget(32, 32))
	ds := f.texture(t, metadata.TextureDescription{
		Width: 32, Height: 32,
		Format: metadata.PixelFormatD24UnormS8Uint,
		Usage:  metadata.TextureUsageDepthStencil,
	})
	s := f.session
	f.begin(t)

	if err := s.SetFramebuffer(f.framebuffer(t, []*gpu.Image{c0, c1}, ds)); err != nil {
		t.Fatalf("SetFramebuffer: %v", err)
	}
	want := []headless.CommandKind{
		headless.CommandPipelineBarrier,
		headless.CommandBeginRenderPass,
		headless.CommandSetViewport,
		headless.CommandSetScissor,
	}
	if have := f.enc.Kinds(); !slices.Equal(have, want) {
		t.Fatalf("commands\nhave %v\nwant %v", have, want)
	}
	pb := barriers(f.enc, 0)[0]
	if len(pb.Images) != 3 {
		t.Fatalf("image barriers\nhave %d\nwant 3", len(pb.Images))
	}
	if d := pb.Images[2]; d.NewLayout != metadata.LayoutDepthStencilAttachment || d.Aspect != barrier.AspectDepth|barrier.AspectStencil {
		t.Errorf("depth barrier\nhave %v aspect %v\nwant DepthStencilAttachment aspect Depth|Stencil", d.NewLayout, d.Aspect)
	}
	vp := f.enc.Commands()[2].Viewport
	if vp.Width != 32 || vp.Height != 32 || vp.MaxDepth != 1 {
		t.Errorf("viewport\nhave %+v\nwant 32x32 depth [0, 1]", vp)
	}

	from := len(f.enc.Commands())
	if err := s.SetFramebuffer(f.framebuffer(t, []*gpu.Image{c0}, nil)); err != nil {
		t.Fatalf("SetFramebuffer: %v", err)
	}
	want = []headless.CommandKind{
		headless.CommandEndRenderPass,
		headless.CommandBeginRenderPass,
		headless.CommandSetViewport,
		headless.CommandSetScissor,
	}
	if have := f.enc.Kinds()[from:]; !slices.Equal(have, want) {
		t.Errorf("commands\nhave %v\nwant %v", have, want)
	}
	f.submit(t)
}

func TestViewportResetDisabled(t *testing.T) {
	f := newFixture(t, gpu.Features{}, gpu.WithViewportReset(false))
	rt := f.texture(t, renderTarget(8, 8))
	f.begin(t)
	if err := f.session.SetFramebuffer(f.framebuffer(t, []*gpu.Image{rt}, nil)); err != nil {
		t.Fatalf("SetFramebuffer: %v", err)
	}
	want := []headless.CommandKind{headless.CommandPipelineBarrier, headless.CommandBeginRenderPass}
	if have := f.enc.Kinds(); !slices.Equal(have, want) {
		t.Errorf("commands\nhave %v\nwant %v", have, want)
	}
}

func TestRetire(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	b := f.buffer(t, 64, metadata.BufferUsageStorage)
	doomed := f.texture(t, sampled(4, 4))
	s := f.session
	f.begin(t)

	if err := s.UpdateBuffer(b, 0, make([]byte, 32)); err != nil {
		t.Fatalf("UpdateBuffer: %v", err)
	}
	if err := s.Retire(); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("Retire while recording\nhave %v\nwant ErrInvalidOperation", err)
	}
	if err := s.DisposeSubmitted(doomed); err != nil {
		t.Fatalf("DisposeSubmitted: %v", err)
	}
	fence := f.submit(t)

	f.queue.SetStalled(true)
	if err := s.RetireAfter(fence, time.Millisecond); !errors.Is(err, gpu.ErrNotRetired) {
		t.Errorf("RetireAfter on stalled queue\nhave %v\nwant ErrNotRetired", err)
	}
	if s.PendingStaging() != 1 || doomed.Destroyed() {
		t.Errorf("released before retirement: staging=%d destroyed=%v", s.PendingStaging(), doomed.Destroyed())
	}
	if st := f.pool.Stats(); st.InUse != 1 {
		t.Errorf("pool InUse\nhave %d\nwant 1", st.InUse)
	}

	f.queue.SetStalled(false)
	if err := s.RetireAfter(fence, time.Second); err != nil {
		t.Fatalf("RetireAfter: %v", err)
	}
	if !fence.Signaled() {
		t.Error("fence not signaled")
	}
	if s.PendingStaging() != 0 || s.PendingDisposables() != 0 || !doomed.Destroyed() {
		t.Errorf("after retirement: staging=%d disposables=%d destroyed=%v",
			s.PendingStaging(), s.PendingDisposables(), doomed.Destroyed())
	}
	if st := f.pool.Stats(); st.InUse != 0 || st.Available != 1 {
		t.Errorf("pool\nhave %+v\nwant InUse=0 Available=1", st)
	}
}

func TestDestroySession(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	b := f.buffer(t, 64, metadata.BufferUsageUniform)
	s := f.session
	f.begin(t)
	if err := s.UpdateBuffer(b, 0, make([]byte, 16)); err != nil {
		t.Fatalf("UpdateBuffer: %v", err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if st := f.pool.Stats(); st.InUse != 0 {
		t.Errorf("pool InUse\nhave %d\nwant 0", st.InUse)
	}
	if err := s.Begin(); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("Begin after Destroy\nhave %v\nwant ErrInvalidOperation", err)
	}
	if err := s.Destroy(); err != nil {
		t.Errorf("second Destroy: %v", err)
	}
}

func TestUpdateBufferAfterAccess(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	b := f.buffer(t, 64, metadata.BufferUsageStorage)
	s := f.session
	f.begin(t)

	s.SetPipeline(f.device.CreatePipeline(metadata.PipelineKindCompute))
	s.SetResourceSet(0, f.device.CreateResourceSet(gpu.Binding{Kind: gpu.BindingStorageBuffer, Buffer: b}))
	if err := s.Dispatch(1, 1, 1); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	from := len(f.enc.Commands())
	for i := 0; i < 2; i++ {
		if err := s.UpdateBuffer(b, 0, make([]byte, 16)); err != nil {
			t.Fatalf("UpdateBuffer: %v", err)
		}
	}
	want := []headless.CommandKind{
		headless.CommandPipelineBarrier,
		headless.CommandCopyBuffer,
		headless.CommandPipelineBarrier,
		headless.CommandPipelineBarrier,
		headless.CommandCopyBuffer,
		headless.CommandPipelineBarrier,
	}
	if have := f.enc.Kinds()[from:]; !slices.Equal(have, want) {
		t.Fatalf("commands\nhave %v\nwant %v", have, want)
	}
	bs := barriers(f.enc, from)
	for _, i := range []int{0, 2} {
		pb := bs[i]
		if len(pb.Memory) != 1 {
			t.Fatalf("barrier %d memory barriers\nhave %d\nwant 1", i, len(pb.Memory))
		}
		m := pb.Memory[0]
		if m.SrcAccess&barrier.AccessShaderRead == 0 || m.SrcAccess&barrier.AccessTransferWrite == 0 || m.DstAccess != barrier.AccessTransferWrite {
			t.Errorf("barrier %d access\nhave %v -> %v\nwant ShaderRead|TransferWrite -> TransferWrite", i, m.SrcAccess, m.DstAccess)
		}
		if pb.SrcStage&barrier.StageComputeShader == 0 || pb.SrcStage&barrier.StageTransfer == 0 || pb.DstStage != barrier.StageTransfer {
			t.Errorf("barrier %d stages\nhave %v -> %v\nwant ComputeShader|Transfer -> Transfer", i, pb.SrcStage, pb.DstStage)
		}
	}
	f.submit(t)
}

func TestDispatchRejectsImageBoundTwice(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	img := f.texture(t, metadata.TextureDescription{
		Width: 8, Height: 8,
		Format: metadata.PixelFormatRGBA8Unorm,
		Usage:  metadata.TextureUsageStorage | metadata.TextureUsageSampled,
	})
	s := f.session
	f.begin(t)

	s.SetPipeline(f.device.CreatePipeline(metadata.PipelineKindCompute))
	s.SetResourceSet(0, f.device.CreateResourceSet(
		gpu.Binding{Kind: gpu.BindingStorageImage, Image: img},
		gpu.Binding{Kind: gpu.BindingSampledImage, Image: img},
	))
	if err := s.Dispatch(1, 1, 1); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("Dispatch\nhave %v\nwant ErrInvalidOperation", err)
	}
	if have := layout(t, img, 0, 0); have != metadata.LayoutUndefined {
		t.Errorf("layout\nhave %v\nwant Undefined", have)
	}
	if n := f.enc.Count(headless.CommandPipelineBarrier) + f.enc.Count(headless.CommandDispatch); n != 0 {
		t.Errorf("commands\nhave %v\nwant no barrier or dispatch", f.enc.Kinds())
	}

	// The same image twice as storage is a single General transition.
	s.SetResourceSet(0, f.device.CreateResourceSet(
		gpu.Binding{Kind: gpu.BindingStorageImage, Image: img},
		gpu.Binding{Kind: gpu.BindingStorageImage, Image: img},
	))
	if err := s.Dispatch(1, 1, 1); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if have := layout(t, img, 0, 0); have != metadata.LayoutGeneral {
		t.Errorf("layout\nhave %v\nwant General", have)
	}
	if bs := barriers(f.enc, 0); len(bs) != 1 || len(bs[0].Images) != 1 {
		t.Errorf("barriers\nhave %v\nwant one image barrier", bs)
	}
	f.submit(t)
}

func TestSetFramebufferRejectedAttachment(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	rt := f.texture(t, renderTarget(16, 16))
	ds := f.texture(t, metadata.TextureDescription{
		Width: 16, Height: 16,
		Format: metadata.PixelFormatD24UnormS8Uint,
		Usage:  metadata.TextureUsageDepthStencil,
	})
	fb := &gpu.Framebuffer{
		ColorTargets: []gpu.Attachment{{Image: rt}},
		DepthTarget:  &gpu.Attachment{Image: ds, Mip: 3},
		Width:        16,
		Height:       16,
	}
	s := f.session
	f.begin(t)

	if err := s.SetFramebuffer(fb); !errors.Is(err, core.ErrInvalidSubresource) {
		t.Fatalf("SetFramebuffer\nhave %v\nwant ErrInvalidSubresource", err)
	}
	if have := layout(t, rt, 0, 0); have != metadata.LayoutUndefined {
		t.Errorf("color target layout\nhave %v\nwant Undefined", have)
	}
	if s.Framebuffer() != nil || s.RenderPassActive() {
		t.Error("rejected framebuffer was bound")
	}
	if err := s.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if n := len(f.enc.Commands()); n != 0 {
		t.Errorf("commands\nhave %v\nwant none", f.enc.Kinds())
	}
}

func TestDiscard(t *testing.T) {
	f := newFixture(t, gpu.Features{})
	rt := f.texture(t, renderTarget(8, 8))
	tex := f.texture(t, sampled(4, 4))
	s := f.session

	f.begin(t)
	if err := s.UpdateTexture(tex, make([]byte, 64), gpu.TextureRegion{Width: 4, Height: 4, Depth: 1}); err != nil {
		t.Fatalf("UpdateTexture: %v", err)
	}
	if err := s.Discard(); !errors.Is(err, core.ErrInvalidOperation) {
		t.Errorf("Discard while recording\nhave %v\nwant ErrInvalidOperation", err)
	}
	fence := f.submit(t)
	if err := s.RetireAfter(fence, time.Second); err != nil {
		t.Fatalf("RetireAfter: %v", err)
	}

	f.begin(t)
	if err := s.TransitionRange(tex, 0, 1, 0, 1, metadata.LayoutTransferSrc); err != nil {
		t.Fatalf("TransitionRange: %v", err)
	}
	if err := s.SetFramebuffer(f.framebuffer(t, []*gpu.Image{rt}, nil)); err != nil {
		t.Fatalf("SetFramebuffer: %v", err)
	}
	if err := s.UpdateTexture(tex, make([]byte, 64), gpu.TextureRegion{Width: 4, Height: 4, Depth: 1}); err != nil {
		t.Fatalf("UpdateTexture: %v", err)
	}
	if err := s.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := s.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	if have := layout(t, tex, 0, 0); have != metadata.LayoutShaderReadOnly {
		t.Errorf("texture layout\nhave %v\nwant ShaderReadOnly from the submitted recording", have)
	}
	if have := layout(t, rt, 0, 0); have != metadata.LayoutUndefined {
		t.Errorf("render target layout\nhave %v\nwant Undefined", have)
	}
	if st := f.pool.Stats(); st.InUse != 0 || s.PendingStaging() != 0 {
		t.Errorf("staging after discard\nhave pool %+v, %d pending\nwant none in use", st, s.PendingStaging())
	}

	// Discarding again after the tables were restored changes nothing.
	if err := s.Discard(); err != nil {
		t.Fatalf("second Discard: %v", err)
	}
	if have := layout(t, tex, 0, 0); have != metadata.LayoutShaderReadOnly {
		t.Errorf("texture layout after second discard\nhave %v\nwant ShaderReadOnly", have)
	}
}
