package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
)

// ShaderStage is a compiled SPIR-V module and the stage it runs in.
type ShaderStage struct {
	Handle                vk.ShaderModule
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

// NewShaderStage creates a module from SPIR-V bytes with entry point main.
func NewShaderStage(ctx *Context, code []byte, stage vk.ShaderStageFlagBits) (*ShaderStage, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: SPIR-V of %d bytes", core.ErrInvalidOperation, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}

	s := &ShaderStage{}
	if res := vk.CreateShaderModule(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &s.Handle); res != vk.Success {
		err := fmt.Errorf("%w: vkCreateShaderModule: %s", core.ErrResourceAllocation, VulkanResultString(res, false))
		core.LogError("%s", err)
		return nil, err
	}
	s.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: s.Handle,
		PName:  VulkanSafeString("main"),
	}
	return s, nil
}

func (s *ShaderStage) Destroy(ctx *Context) {
	if s.Handle != nil {
		vk.DestroyShaderModule(ctx.Device.LogicalDevice, s.Handle, ctx.Allocator)
		s.Handle = nil
	}
}
