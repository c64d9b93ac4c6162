package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
)

// ResourceSet is a descriptor set together with the resources written into
// it. It implements gpu.ResourceSet so the session can put the bound images
// into the layouts the descriptors were written with.
type ResourceSet struct {
	Set      vk.DescriptorSet
	bindings []gpu.Binding
}

func (s *ResourceSet) Handle() any             { return s }
func (s *ResourceSet) Bindings() []gpu.Binding { return s.bindings }

// descriptorLayout is the image layout a binding kind is accessed in.
func descriptorLayout(k gpu.BindingKind) vk.ImageLayout {
	if k == gpu.BindingStorageImage {
		return vk.ImageLayoutGeneral
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}

func descriptorType(k gpu.BindingKind) vk.DescriptorType {
	switch k {
	case gpu.BindingStorageImage:
		return vk.DescriptorTypeStorageImage
	case gpu.BindingUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case gpu.BindingStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	}
	return vk.DescriptorTypeCombinedImageSampler
}

// WriteResourceSet writes bindings into set, binding i at binding number i.
// Sampled images use sampler. Acceleration structure bindings are kept for
// hazard tracking only; their descriptors are written by the caller.
func (ctx *Context) WriteResourceSet(set vk.DescriptorSet, sampler vk.Sampler, bindings ...gpu.Binding) *ResourceSet {
	writes := make([]vk.WriteDescriptorSet, 0, len(bindings))
	for i, b := range bindings {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      uint32(i),
			DescriptorCount: 1,
			DescriptorType:  descriptorType(b.Kind),
		}
		switch {
		case b.Image != nil:
			info := vk.DescriptorImageInfo{
				ImageView:   imageHandle(b.Image).View,
				ImageLayout: descriptorLayout(b.Kind),
			}
			if b.Kind == gpu.BindingSampledImage {
				info.Sampler = sampler
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		case b.Buffer != nil:
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: bufferHandle(b.Buffer).Handle,
				Range:  vk.DeviceSize(b.Buffer.Size),
			}}
		default:
			continue
		}
		writes = append(writes, write)
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(ctx.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	}
	return &ResourceSet{Set: set, bindings: append([]gpu.Binding(nil), bindings...)}
}
