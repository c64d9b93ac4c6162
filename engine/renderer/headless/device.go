// Package headless is a CPU-only backend. Its encoder records commands into
// a list and its queue replays them against host memory, checking every
// command against the image layouts the device would actually hold.
package headless

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
	"github.com/spaghettifunk/anima/engine/renderer/staging"
)

// Memory is host memory handed out as a staging allocation.
type Memory struct {
	data      []byte
	mapped    bool
	destroyed bool
}

func (m *Memory) Map() ([]byte, error) {
	if m.destroyed {
		return nil, errors.New("map of destroyed staging memory")
	}
	if m.mapped {
		return nil, errors.New("staging memory is already mapped")
	}
	m.mapped = true
	return m.data, nil
}

func (m *Memory) Unmap()          { m.mapped = false }
func (m *Memory) Destroy()        { m.destroyed = true }
func (m *Memory) Handle() any     { return m }
func (m *Memory) Destroyed() bool { return m.destroyed }

// Buffer backs a gpu.Buffer.
type Buffer struct {
	data      []byte
	destroyed bool
}

func (b *Buffer) Destroy() { b.destroyed = true }

// Image backs a gpu.Image with one tightly packed byte slice per
// subresource. Multisampled images keep a single sample per texel.
type Image struct {
	extents        []metadata.Extent3D
	layers         uint32
	bpp            uint32
	preinitialized bool
	data           [][]byte
	destroyed      bool
}

func (img *Image) Destroy() { img.destroyed = true }

func (img *Image) init(desc metadata.TextureDescription, g *gpu.Image) {
	img.layers = g.ArrayLayers
	img.bpp = g.Format.BytesPerPixel()
	img.preinitialized = desc.Preinitialized
	img.extents = make([]metadata.Extent3D, g.MipLevels)
	img.data = make([][]byte, int(g.MipLevels)*int(g.ArrayLayers))
	for mip := uint32(0); mip < g.MipLevels; mip++ {
		ext := g.MipExtent(mip)
		img.extents[mip] = ext
		for layer := uint32(0); layer < g.ArrayLayers; layer++ {
			img.data[img.index(mip, layer)] = make([]byte, int(ext.Width)*int(ext.Height)*int(ext.Depth)*int(img.bpp))
		}
	}
}

func (img *Image) index(mip, layer uint32) int {
	return int(mip)*int(img.layers) + int(layer)
}

func (img *Image) texel(mip uint32, x, y, z uint32) int {
	ext := img.extents[mip]
	return ((int(z)*int(ext.Height)+int(y))*int(ext.Width) + int(x)) * int(img.bpp)
}

// Device creates resources in host memory. It implements staging.Allocator.
type Device struct {
	features gpu.Features

	mutex              sync.Mutex
	failStaging        bool
	stagingAllocations int
}

func NewDevice(features gpu.Features) *Device {
	return &Device{features: features}
}

func (d *Device) Features() gpu.Features { return d.features }

func (d *Device) AllocateStaging(size uint64) (staging.Memory, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.failStaging {
		return nil, fmt.Errorf("headless: out of host-visible memory allocating %d bytes", size)
	}
	d.stagingAllocations++
	return &Memory{data: make([]byte, size)}, nil
}

// FailStagingAllocations makes every following staging allocation fail
// until it is called again with false.
func (d *Device) FailStagingAllocations(fail bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.failStaging = fail
}

func (d *Device) StagingAllocations() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.stagingAllocations
}

func (d *Device) CreateImage(desc metadata.TextureDescription) (*gpu.Image, error) {
	h := &Image{}
	img, err := gpu.NewImage(desc, h)
	if err != nil {
		core.LogError("headless: create image %q: %s", desc.Name, err.Error())
		return nil, err
	}
	h.init(desc, img)
	return img, nil
}

func (d *Device) CreateBuffer(desc metadata.BufferDescription) (*gpu.Buffer, error) {
	h := &Buffer{data: make([]byte, desc.Size)}
	b, err := gpu.NewBuffer(desc, h)
	if err != nil {
		core.LogError("headless: create buffer %q: %s", desc.Name, err.Error())
		return nil, err
	}
	return b, nil
}

func (d *Device) CreateFramebuffer(colors []gpu.Attachment, depth *gpu.Attachment) (*gpu.Framebuffer, error) {
	return gpu.NewFramebuffer(colors, depth, nil)
}

func (d *Device) CreatePipeline(kind metadata.PipelineKind) *gpu.PipelineHandle {
	return gpu.NewPipeline(kind, core.GenerateName("pipeline"))
}

func (d *Device) CreateResourceSet(bindings ...gpu.Binding) *gpu.BindingSet {
	return gpu.NewBindingSet(core.GenerateName("set"), bindings...)
}

func (d *Device) NewEncoder() *Encoder {
	return &Encoder{features: d.features}
}

// ReadBuffer returns a copy of the contents of b.
func ReadBuffer(b *gpu.Buffer) []byte {
	h := b.Handle().(*Buffer)
	return append([]byte(nil), h.data...)
}

// ReadTexture returns a copy of one subresource of img.
func ReadTexture(img *gpu.Image, mip, layer uint32) ([]byte, error) {
	if _, err := img.Layout(mip, layer); err != nil {
		return nil, err
	}
	h := img.Handle().(*Image)
	return append([]byte(nil), h.data[h.index(mip, layer)]...), nil
}
