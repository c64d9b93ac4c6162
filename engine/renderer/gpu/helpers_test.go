package gpu_test

import (
	"testing"

	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/headless"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
	"github.com/spaghettifunk/anima/engine/renderer/staging"
)

type fixture struct {
	device  *headless.Device
	pool    *staging.Pool
	enc     *headless.Encoder
	queue   *headless.Queue
	session *gpu.Session
}

func newFixture(t *testing.T, features gpu.Features, opts ...gpu.SessionOption) *fixture {
	t.Helper()
	dev := headless.NewDevice(features)
	f := &fixture{
		device: dev,
		pool:   staging.NewPool(dev, 64, 512),
		enc:    dev.NewEncoder(),
		queue:  dev.NewQueue(2),
	}
	f.session = gpu.NewSession(f.enc, f.pool, opts...)
	return f
}

func (f *fixture) begin(t *testing.T) {
	t.Helper()
	if err := f.session.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
}

// submit ends the session and replays it on the queue.
func (f *fixture) submit(t *testing.T) *headless.Fence {
	t.Helper()
	if err := f.session.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	fence, err := f.queue.Submit(f.enc)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return fence
}

func (f *fixture) texture(t *testing.T, desc metadata.TextureDescription) *gpu.Image {
	t.Helper()
	if desc.Format == metadata.PixelFormatUndefined {
		desc.Format = metadata.PixelFormatRGBA8Unorm
	}
	img, err := f.device.CreateImage(desc)
	if err != nil {
		t.Fatalf("CreateImage(%+v): %v", desc, err)
	}
	return img
}

func (f *fixture) buffer(t *testing.T, size uint64, usage metadata.BufferUsage) *gpu.Buffer {
	t.Helper()
	b, err := f.device.CreateBuffer(metadata.BufferDescription{Size: size, Usage: usage})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	return b
}

func (f *fixture) framebuffer(t *testing.T, colors []*gpu.Image, depth *gpu.Image) *gpu.Framebuffer {
	t.Helper()
	var atts []gpu.Attachment
	for _, c := range colors {
		atts = append(atts, gpu.Attachment{Image: c})
	}
	var d *gpu.Attachment
	if depth != nil {
		d = &gpu.Attachment{Image: depth}
	}
	fb, err := f.device.CreateFramebuffer(atts, d)
	if err != nil {
		t.Fatalf("CreateFramebuffer: %v", err)
	}
	return fb
}

func sampled(w, h uint32) metadata.TextureDescription {
	return metadata.TextureDescription{
		Width:  w,
		Height: h,
		Format: metadata.PixelFormatRGBA8Unorm,
		Usage:  metadata.TextureUsageSampled | metadata.TextureUsageTransfer,
	}
}

func renderTarget(w, h uint32) metadata.TextureDescription {
	return metadata.TextureDescription{
		Width:  w,
		Height: h,
		Format: metadata.PixelFormatRGBA8Unorm,
		Usage:  metadata.TextureUsageRenderTarget,
	}
}

func layout(t *testing.T, img *gpu.Image, mip, layer uint32) metadata.Layout {
	t.Helper()
	l, err := img.Layout(mip, layer)
	if err != nil {
		t.Fatalf("Layout(%d, %d): %v", mip, layer, err)
	}
	return l
}

// barriers returns the barrier commands recorded since command index from.
func barriers(enc *headless.Encoder, from int) []*gpu.PipelineBarrier {
	var out []*gpu.PipelineBarrier
	for _, c := range enc.Commands()[from:] {
		if c.Kind == headless.CommandPipelineBarrier {
			out = append(out, c.Barrier)
		}
	}
	return out
}
