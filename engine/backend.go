package engine

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/headless"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
	"github.com/spaghettifunk/anima/engine/renderer/staging"
	"github.com/spaghettifunk/anima/engine/renderer/vulkan"
)

// Backend is the resource factory and queue a session records against.
type Backend interface {
	staging.Allocator
	CreateImage(desc metadata.TextureDescription) (*gpu.Image, error)
	CreateBuffer(desc metadata.BufferDescription) (*gpu.Buffer, error)
	CreateFramebuffer(colors []gpu.Attachment, depth *gpu.Attachment) (*gpu.Framebuffer, error)
	Encoder() gpu.CommandEncoder
	// Submit hands the ended encoder to the queue.
	Submit() (gpu.Fence, error)
	Destroy()
}

// PipelineFactory is implemented by backends that can create pipelines
// without shader code.
type PipelineFactory interface {
	CreatePipeline(kind metadata.PipelineKind) gpu.Pipeline
	CreateResourceSet(bindings ...gpu.Binding) gpu.ResourceSet
}

// ShaderCompiler is implemented by backends that build pipelines from
// SPIR-V. The returned set is bound at slot 0.
type ShaderCompiler interface {
	CreateComputeProgram(spirv []byte, bindings ...gpu.Binding) (gpu.Pipeline, gpu.ResourceSet, error)
	CreateGraphicsProgram(fb *gpu.Framebuffer, vertex, fragment []byte, bindings ...gpu.Binding) (gpu.Pipeline, gpu.ResourceSet, error)
}

func NewBackend(cfg *ApplicationConfig) (Backend, error) {
	switch cfg.Backend {
	case BackendHeadless, "":
		return NewHeadlessBackend(gpu.Features{RayTracing: true}), nil
	case BackendVulkan:
		return newVulkanBackend(cfg)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

type HeadlessBackend struct {
	*headless.Device
	enc   *headless.Encoder
	queue *headless.Queue
}

func NewHeadlessBackend(features gpu.Features) *HeadlessBackend {
	dev := headless.NewDevice(features)
	return &HeadlessBackend{
		Device: dev,
		enc:    dev.NewEncoder(),
		queue:  dev.NewQueue(2),
	}
}

func (b *HeadlessBackend) Encoder() gpu.CommandEncoder { return b.enc }

// Commands returns the command log of the last recording.
func (b *HeadlessBackend) Commands() []headless.Command { return b.enc.Commands() }

func (b *HeadlessBackend) Submit() (gpu.Fence, error) {
	f, err := b.queue.Submit(b.enc)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (b *HeadlessBackend) CreatePipeline(kind metadata.PipelineKind) gpu.Pipeline {
	return b.Device.CreatePipeline(kind)
}

func (b *HeadlessBackend) CreateResourceSet(bindings ...gpu.Binding) gpu.ResourceSet {
	return b.Device.CreateResourceSet(bindings...)
}

func (b *HeadlessBackend) Destroy() {
	b.queue.WaitIdle()
}

type vulkanBackend struct {
	*vulkan.Context
	enc      *vulkan.Encoder
	queue    *vulkan.Queue
	programs []*vulkan.Program
}

func newVulkanBackend(cfg *ApplicationConfig) (*vulkanBackend, error) {
	ctx, err := vulkan.NewContext(vulkan.ContextConfig{
		AppName:    cfg.Name,
		Validation: cfg.Validation,
	})
	if err != nil {
		return nil, err
	}
	enc, err := ctx.NewEncoder()
	if err != nil {
		ctx.Destroy()
		return nil, err
	}
	return &vulkanBackend{
		Context: ctx,
		enc:     enc,
		queue:   ctx.GraphicsQueue(),
	}, nil
}

func (b *vulkanBackend) Encoder() gpu.CommandEncoder { return b.enc }

func (b *vulkanBackend) Submit() (gpu.Fence, error) {
	f, err := b.queue.Submit(b.enc)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (b *vulkanBackend) CreateComputeProgram(spirv []byte, bindings ...gpu.Binding) (gpu.Pipeline, gpu.ResourceSet, error) {
	p, err := b.NewComputeProgram(spirv, bindings...)
	if err != nil {
		return nil, nil, err
	}
	b.programs = append(b.programs, p)
	return p.Pipeline, p.Set, nil
}

// CreateGraphicsProgram expects vertices of two float2 attributes, position
// then texture coordinate.
func (b *vulkanBackend) CreateGraphicsProgram(fb *gpu.Framebuffer, vertex, fragment []byte, bindings ...gpu.Binding) (gpu.Pipeline, gpu.ResourceSet, error) {
	p, err := b.NewGraphicsProgram(vulkan.GraphicsProgramConfig{
		Framebuffer: fb,
		Vertex:      vertex,
		Fragment:    fragment,
		Stride:      16,
		Attributes: []vk.VertexInputAttributeDescription{
			{Location: 0, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 0},
			{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 8},
		},
		DepthTest: fb.DepthTarget != nil,
		Bindings:  bindings,
	})
	if err != nil {
		return nil, nil, err
	}
	b.programs = append(b.programs, p)
	return p.Pipeline, p.Set, nil
}

func (b *vulkanBackend) Destroy() {
	if err := b.queue.WaitIdle(); err != nil {
		core.LogError("%s", err)
	}
	for _, p := range b.programs {
		p.Destroy()
	}
	b.programs = nil
	b.enc.Destroy()
	b.Context.Destroy()
}
