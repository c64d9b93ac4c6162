package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
)

// Program is a pipeline together with the single resource set it reads at
// slot 0 and the descriptor objects backing that set.
type Program struct {
	Pipeline *Pipeline
	Set      *ResourceSet

	setLayout vk.DescriptorSetLayout
	pool      vk.DescriptorPool
	sampler   vk.Sampler

	ctx *Context
}

// GraphicsProgramConfig describes a vertex and fragment program drawing into
// framebuffers compatible with Framebuffer.
type GraphicsProgramConfig struct {
	Framebuffer *gpu.Framebuffer
	Vertex      []byte
	Fragment    []byte
	Stride      uint32
	Attributes  []vk.VertexInputAttributeDescription
	DepthTest   bool
	Bindings    []gpu.Binding
}

func (ctx *Context) NewComputeProgram(spirv []byte, bindings ...gpu.Binding) (*Program, error) {
	p := &Program{ctx: ctx}
	if err := p.createSet(vk.ShaderStageFlags(vk.ShaderStageComputeBit), bindings); err != nil {
		p.Destroy()
		return nil, err
	}
	stage, err := NewShaderStage(ctx, spirv, vk.ShaderStageComputeBit)
	if err != nil {
		p.Destroy()
		return nil, err
	}
	defer stage.Destroy(ctx)

	p.Pipeline, err = NewComputePipeline(ctx, stage, []vk.DescriptorSetLayout{p.setLayout})
	if err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (ctx *Context) NewGraphicsProgram(config GraphicsProgramConfig) (*Program, error) {
	p := &Program{ctx: ctx}
	if err := p.createSet(vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit), config.Bindings); err != nil {
		p.Destroy()
		return nil, err
	}
	vertex, err := NewShaderStage(ctx, config.Vertex, vk.ShaderStageVertexBit)
	if err != nil {
		p.Destroy()
		return nil, err
	}
	defer vertex.Destroy(ctx)
	fragment, err := NewShaderStage(ctx, config.Fragment, vk.ShaderStageFragmentBit)
	if err != nil {
		p.Destroy()
		return nil, err
	}
	defer fragment.Destroy(ctx)

	p.Pipeline, err = NewGraphicsPipeline(ctx, &GraphicsPipelineConfig{
		Framebuffer:          config.Framebuffer,
		Stride:               config.Stride,
		Attributes:           config.Attributes,
		DescriptorSetLayouts: []vk.DescriptorSetLayout{p.setLayout},
		Stages:               []*ShaderStage{vertex, fragment},
		CullMode:             CullModeNone,
		DepthTest:            config.DepthTest,
		DepthWrite:           config.DepthTest,
	})
	if err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// createSet builds a layout with binding i at binding number i, a pool
// holding exactly one set of it, and writes the bindings.
func (p *Program) createSet(stages vk.ShaderStageFlags, bindings []gpu.Binding) error {
	ctx := p.ctx
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	counts := map[vk.DescriptorType]uint32{}
	sampled := false
	for i, b := range bindings {
		if b.Kind == gpu.BindingAccelerationStructure {
			return fmt.Errorf("%w: acceleration structure at binding %d", core.ErrUnsupportedResource, i)
		}
		t := descriptorType(b.Kind)
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  t,
			DescriptorCount: 1,
			StageFlags:      stages,
		}
		counts[t]++
		sampled = sampled || b.Kind == gpu.BindingSampledImage
	}

	return ctx.locks.SafeCall(ResourceManagement, func() error {
		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(layoutBindings)),
			PBindings:    layoutBindings,
		}
		if res := vk.CreateDescriptorSetLayout(ctx.Device.LogicalDevice, &layoutInfo, ctx.Allocator, &p.setLayout); !VulkanResultIsSuccess(res) {
			return fmt.Errorf("%w: vkCreateDescriptorSetLayout failed with %s", core.ErrResourceAllocation, VulkanResultString(res, true))
		}

		sizes := make([]vk.DescriptorPoolSize, 0, len(counts))
		for t, n := range counts {
			sizes = append(sizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: n})
		}
		if len(sizes) == 0 {
			sizes = append(sizes, vk.DescriptorPoolSize{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1})
		}
		poolInfo := vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			MaxSets:       1,
			PoolSizeCount: uint32(len(sizes)),
			PPoolSizes:    sizes,
		}
		if res := vk.CreateDescriptorPool(ctx.Device.LogicalDevice, &poolInfo, ctx.Allocator, &p.pool); !VulkanResultIsSuccess(res) {
			return fmt.Errorf("%w: vkCreateDescriptorPool failed with %s", core.ErrResourceAllocation, VulkanResultString(res, true))
		}

		if sampled {
			samplerInfo := vk.SamplerCreateInfo{
				SType:        vk.StructureTypeSamplerCreateInfo,
				MagFilter:    vk.FilterLinear,
				MinFilter:    vk.FilterLinear,
				MipmapMode:   vk.SamplerMipmapModeLinear,
				AddressModeU: vk.SamplerAddressModeRepeat,
				AddressModeV: vk.SamplerAddressModeRepeat,
				AddressModeW: vk.SamplerAddressModeRepeat,
				MaxLod:       1000,
				BorderColor:  vk.BorderColorFloatOpaqueBlack,
			}
			if res := vk.CreateSampler(ctx.Device.LogicalDevice, &samplerInfo, ctx.Allocator, &p.sampler); !VulkanResultIsSuccess(res) {
				return fmt.Errorf("%w: vkCreateSampler failed with %s", core.ErrResourceAllocation, VulkanResultString(res, true))
			}
		}

		allocInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     p.pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{p.setLayout},
		}
		sets := make([]vk.DescriptorSet, 1)
		if res := vk.AllocateDescriptorSets(ctx.Device.LogicalDevice, &allocInfo, &sets[0]); !VulkanResultIsSuccess(res) {
			return fmt.Errorf("%w: vkAllocateDescriptorSets failed with %s", core.ErrResourceAllocation, VulkanResultString(res, true))
		}
		p.Set = ctx.WriteResourceSet(sets[0], p.sampler, bindings...)
		return nil
	})
}

// Destroy releases the pipeline and the descriptor objects. The caller makes
// sure no submitted work still reads them.
func (p *Program) Destroy() {
	if p.Pipeline != nil {
		p.Pipeline.Destroy()
		p.Pipeline = nil
	}
	ctx := p.ctx
	ctx.locks.SafeCall(ResourceManagement, func() error {
		if p.sampler != nil {
			vk.DestroySampler(ctx.Device.LogicalDevice, p.sampler, ctx.Allocator)
			p.sampler = nil
		}
		// Destroying the pool frees the set allocated from it.
		if p.pool != nil {
			vk.DestroyDescriptorPool(ctx.Device.LogicalDevice, p.pool, ctx.Allocator)
			p.pool = nil
		}
		if p.setLayout != nil {
			vk.DestroyDescriptorSetLayout(ctx.Device.LogicalDevice, p.setLayout, ctx.Allocator)
			p.setLayout = nil
		}
		return nil
	})
	p.Set = nil
}
