package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

type CullMode int

const (
	CullModeBack CullMode = iota
	CullModeNone
	CullModeFront
	CullModeFrontAndBack
)

// Pipeline holds a Vulkan pipeline and its layout. It implements
// gpu.Pipeline.
type Pipeline struct {
	Native         vk.Pipeline
	PipelineLayout vk.PipelineLayout
	kind           metadata.PipelineKind

	ctx *Context
}

func (p *Pipeline) Kind() metadata.PipelineKind { return p.kind }
func (p *Pipeline) Handle() any                 { return p }

type GraphicsPipelineConfig struct {
	// The pipeline is compatible with the render pass of this framebuffer.
	Framebuffer          *gpu.Framebuffer
	Stride               uint32
	Attributes           []vk.VertexInputAttributeDescription
	DescriptorSetLayouts []vk.DescriptorSetLayout
	Stages               []*ShaderStage
	CullMode             CullMode
	IsWireframe          bool
	DepthTest            bool
	DepthWrite           bool
}

func (ctx *Context) createLayout(setLayouts []vk.DescriptorSetLayout) (vk.PipelineLayout, error) {
	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	var layout vk.PipelineLayout
	err := ctx.locks.SafeCall(PipelineManagement, func() error {
		if res := vk.CreatePipelineLayout(ctx.Device.LogicalDevice, &info, ctx.Allocator, &layout); !VulkanResultIsSuccess(res) {
			return fmt.Errorf("%w: vkCreatePipelineLayout failed with %s", core.ErrResourceAllocation, VulkanResultString(res, true))
		}
		return nil
	})
	return layout, err
}

// NewGraphicsPipeline creates a pipeline with dynamic viewport and scissor,
// which the session sets whenever a framebuffer is bound.
func NewGraphicsPipeline(ctx *Context, config *GraphicsPipelineConfig) (*Pipeline, error) {
	fb, ok := config.Framebuffer.Handle().(*Framebuffer)
	if !ok {
		return nil, fmt.Errorf("%w: framebuffer was not created by the vulkan backend", core.ErrInvalidOperation)
	}
	out := &Pipeline{kind: metadata.PipelineKindGraphics, ctx: ctx}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		FrontFace:   vk.FrontFaceCounterClockwise,
	}
	if config.IsWireframe {
		rasterizerCreateInfo.PolygonMode = vk.PolygonModeLine
	}
	switch config.CullMode {
	case CullModeNone:
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeNone)
	case CullModeFront:
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeFrontBit)
	case CullModeFrontAndBack:
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeFrontAndBack)
	default:
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeBackBit)
	}

	samples := vk.SampleCount1Bit
	if len(config.Framebuffer.ColorTargets) > 0 {
		samples = vk.SampleCountFlagBits(config.Framebuffer.ColorTargets[0].Image.SampleCount)
	} else if d := config.Framebuffer.DepthTarget; d != nil {
		samples = vk.SampleCountFlagBits(d.Image.SampleCount)
	}
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: samples,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
	}
	if config.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
	}
	if config.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blendStates := make([]vk.PipelineColorBlendAttachmentState, len(config.Framebuffer.ColorTargets))
	for i := range blendStates {
		blendStates[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vk.True,
			SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
			DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
			DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			AlphaBlendOp:        vk.BlendOpAdd,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
				vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
		}
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendStates)),
		PAttachments:    blendStates,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if config.Stride > 0 {
		vertexInputInfo.VertexBindingDescriptionCount = 1
		vertexInputInfo.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    config.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(config.Attributes))
		vertexInputInfo.PVertexAttributeDescriptions = config.Attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	layout, err := ctx.createLayout(config.DescriptorSetLayouts)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	out.PipelineLayout = layout

	stages := make([]vk.PipelineShaderStageCreateInfo, len(config.Stages))
	for i, s := range config.Stages {
		stages[i] = s.ShaderStageCreateInfo
	}
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              out.PipelineLayout,
		RenderPass:          fb.Renderpass.Handle,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := ctx.locks.SafeCall(PipelineManagement, func() error {
		res := vk.CreateGraphicsPipelines(ctx.Device.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, ctx.Allocator, pipelines)
		if !VulkanResultIsSuccess(res) {
			return fmt.Errorf("%w: vkCreateGraphicsPipelines failed with %s", core.ErrResourceAllocation, VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError("%s", err)
		out.Destroy()
		return nil, err
	}
	out.Native = pipelines[0]

	core.LogDebug("Graphics pipeline created!")
	return out, nil
}

func NewComputePipeline(ctx *Context, stage *ShaderStage, setLayouts []vk.DescriptorSetLayout) (*Pipeline, error) {
	out := &Pipeline{kind: metadata.PipelineKindCompute, ctx: ctx}
	layout, err := ctx.createLayout(setLayouts)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	out.PipelineLayout = layout

	info := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stage.ShaderStageCreateInfo,
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := ctx.locks.SafeCall(PipelineManagement, func() error {
		res := vk.CreateComputePipelines(ctx.Device.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.ComputePipelineCreateInfo{info}, ctx.Allocator, pipelines)
		if !VulkanResultIsSuccess(res) {
			return fmt.Errorf("%w: vkCreateComputePipelines failed with %s", core.ErrResourceAllocation, VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError("%s", err)
		out.Destroy()
		return nil, err
	}
	out.Native = pipelines[0]

	core.LogDebug("Compute pipeline created!")
	return out, nil
}

func (p *Pipeline) Destroy() {
	p.ctx.locks.SafeCall(PipelineManagement, func() error {
		if p.Native != nil {
			vk.DestroyPipeline(p.ctx.Device.LogicalDevice, p.Native, p.ctx.Allocator)
			p.Native = nil
		}
		if p.PipelineLayout != nil {
			vk.DestroyPipelineLayout(p.ctx.Device.LogicalDevice, p.PipelineLayout, p.ctx.Allocator)
			p.PipelineLayout = nil
		}
		return nil
	})
}
