package gpu

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

func TestLayoutTable(t *testing.T) {
	table := newLayoutTable(3, 4, metadata.LayoutUndefined)
	table.set(2, 3, metadata.LayoutGeneral)
	if have := table.layouts[11]; have != metadata.LayoutGeneral {
		t.Errorf("layouts[11]\nhave %v\nwant General", have)
	}
	if _, ok := table.uniform(); ok {
		t.Error("uniform reported for mixed layouts")
	}
	if _, err := table.get(3, 0); !errors.Is(err, core.ErrInvalidSubresource) {
		t.Errorf("get(3, 0)\nhave %v\nwant ErrInvalidSubresource", err)
	}

	cases := []struct {
		r  [4]uint32
		ok bool
	}{
		{[4]uint32{0, 3, 0, 4}, true},
		{[4]uint32{2, 1, 3, 1}, true},
		{[4]uint32{0, 0, 0, 1}, false},
		{[4]uint32{0, 1, 0, 0}, false},
		{[4]uint32{2, 2, 0, 1}, false},
		{[4]uint32{0, 1, 3, 2}, false},
		{[4]uint32{1, ^uint32(0), 0, 1}, false},
	}
	for _, c := range cases {
		err := table.checkRange(c.r[0], c.r[1], c.r[2], c.r[3])
		if (err == nil) != c.ok {
			t.Errorf("checkRange(%v)\nhave %v\nwant ok=%v", c.r, err, c.ok)
		}
	}
}

func TestNewImage(t *testing.T) {
	img, err := NewImage(metadata.TextureDescription{
		Width: 256, Height: 64,
		Format: metadata.PixelFormatRGBA8Unorm,
		Usage:  metadata.TextureUsageSampled,
	}, nil)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	if img.Depth != 1 || img.MipLevels != 1 || img.ArrayLayers != 1 || img.SampleCount != 1 {
		t.Errorf("defaults\nhave depth=%d mips=%d layers=%d samples=%d\nwant 1 for each",
			img.Depth, img.MipLevels, img.ArrayLayers, img.SampleCount)
	}
	if img.Name == "" {
		t.Error("no name generated")
	}
	if l, ok := img.UniformLayout(); !ok || l != metadata.LayoutUndefined {
		t.Errorf("UniformLayout\nhave %v %v\nwant Undefined true", l, ok)
	}
	if have := img.MipExtent(3); have != (metadata.Extent3D{Width: 32, Height: 8, Depth: 1}) {
		t.Errorf("MipExtent(3)\nhave %v\nwant 32x8x1", have)
	}
	img.Destroy()
	img.Destroy()
	if !img.Destroyed() {
		t.Error("image not destroyed")
	}

	rejected := []struct {
		desc metadata.TextureDescription
		want error
	}{
		{metadata.TextureDescription{Height: 4, Format: metadata.PixelFormatRGBA8Unorm}, core.ErrInvalidOperation},
		{metadata.TextureDescription{Width: 4, Height: 4}, core.ErrInvalidOperation},
		{metadata.TextureDescription{Width: 4, Height: 4, MipLevels: 4, Format: metadata.PixelFormatRGBA8Unorm}, core.ErrOutOfRange},
	}
	for _, c := range rejected {
		if _, err := NewImage(c.desc, nil); !errors.Is(err, c.want) {
			t.Errorf("NewImage(%+v)\nhave %v\nwant %v", c.desc, err, c.want)
		}
	}
}

func TestRestingLayout(t *testing.T) {
	cases := []struct {
		usage metadata.TextureUsage
		want  metadata.Layout
	}{
		{metadata.TextureUsageSampled | metadata.TextureUsageRenderTarget, metadata.LayoutShaderReadOnly},
		{metadata.TextureUsageRenderTarget, metadata.LayoutColorAttachment},
		{metadata.TextureUsageDepthStencil, metadata.LayoutDepthStencilAttachment},
		{metadata.TextureUsageStorage, metadata.LayoutGeneral},
		{metadata.TextureUsageTransfer, metadata.LayoutGeneral},
	}
	for _, c := range cases {
		img := &Image{Usage: c.usage}
		if have := img.RestingLayout(); have != c.want {
			t.Errorf("RestingLayout(%v)\nhave %v\nwant %v", c.usage, have, c.want)
		}
	}
}

func TestNewFramebuffer(t *testing.T) {
	image := func(w, h uint32, format metadata.PixelFormat, usage metadata.TextureUsage) *Image {
		t.Helper()
		img, err := NewImage(metadata.TextureDescription{Width: w, Height: h, Format: format, Usage: usage}, nil)
		if err != nil {
			t.Fatalf("NewImage: %v", err)
		}
		return img
	}
	color := image(64, 32, metadata.PixelFormatRGBA8Unorm, metadata.TextureUsageRenderTarget)
	small := image(32, 32, metadata.PixelFormatRGBA8Unorm, metadata.TextureUsageRenderTarget)
	sampledOnly := image(64, 32, metadata.PixelFormatRGBA8Unorm, metadata.TextureUsageSampled)
	depth := image(64, 32, metadata.PixelFormatD32Float, metadata.TextureUsageDepthStencil)
	fakeDepth := image(64, 32, metadata.PixelFormatRGBA8Unorm, metadata.TextureUsageDepthStencil)

	fb, err := NewFramebuffer([]Attachment{{Image: color}}, &Attachment{Image: depth}, nil)
	if err != nil {
		t.Fatalf("NewFramebuffer: %v", err)
	}
	if area := fb.Area(); area.Width != 64 || area.Height != 32 {
		t.Errorf("Area\nhave %+v\nwant 64x32", area)
	}

	cases := []struct {
		name   string
		colors []Attachment
		depth  *Attachment
		want   error
	}{
		{"empty", nil, nil, core.ErrInvalidOperation},
		{"size mismatch", []Attachment{{Image: color}, {Image: small}}, nil, core.ErrDimensionMismatch},
		{"missing usage", []Attachment{{Image: sampledOnly}}, nil, core.ErrInvalidOperation},
		{"color depth target", []Attachment{{Image: color}}, &Attachment{Image: fakeDepth}, core.ErrInvalidOperation},
		{"missing mip", []Attachment{{Image: color, Mip: 1}}, nil, core.ErrInvalidSubresource},
		{"nil depth image", nil, &Attachment{}, core.ErrInvalidOperation},
	}
	for _, c := range cases {
		if _, err := NewFramebuffer(c.colors, c.depth, nil); !errors.Is(err, c.want) {
			t.Errorf("%s\nhave %v\nwant %v", c.name, err, c.want)
		}
	}
}
