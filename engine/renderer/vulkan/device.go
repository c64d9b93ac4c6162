package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
)

const (
	rayTracingPipelineExtension    = "VK_KHR_ray_tracing_pipeline"
	accelerationStructureExtension = "VK_KHR_acceleration_structure"
	portabilitySubsetExtension     = "VK_KHR_portability_subset"
)

type Device struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	GraphicsQueueIndex uint32
	TransferQueueIndex uint32

	GraphicsQueue vk.Queue
	TransferQueue vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format

	// Set when the device exposes both ray tracing extensions.
	RayTracingSupported bool
}

type queueFamilyInfo struct {
	graphics    uint32
	transfer    uint32
	hasGraphics bool
	hasTransfer bool
}

// NewDevice selects the first physical device with a graphics and compute
// capable queue family, preferring discrete GPUs, and creates a logical
// device with one queue per distinct family.
func NewDevice(ctx *Context) (*Device, error) {
	d := &Device{}
	if err := d.selectPhysicalDevice(ctx); err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")
	families := []uint32{d.GraphicsQueueIndex}
	if d.TransferQueueIndex != d.GraphicsQueueIndex {
		families = append(families, d.TransferQueueIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	available, err := deviceExtensions(d.PhysicalDevice)
	if err != nil {
		return nil, err
	}
	var extensionNames []string
	if available[portabilitySubsetExtension] {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtension)
		extensionNames = append(extensionNames, portabilitySubsetExtension)
	}
	d.RayTracingSupported = available[rayTracingPipelineExtension] && available[accelerationStructureExtension]

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: d.Features.SamplerAnisotropy,
	}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}
	if res := vk.CreateDevice(d.PhysicalDevice, &deviceCreateInfo, ctx.Allocator, &d.LogicalDevice); res != vk.Success {
		err := fmt.Errorf("%w: vkCreateDevice: %s", core.ErrResourceAllocation, VulkanResultString(res, true))
		core.LogError("%s", err)
		return nil, err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(d.LogicalDevice, d.GraphicsQueueIndex, 0, &d.GraphicsQueue)
	vk.GetDeviceQueue(d.LogicalDevice, d.TransferQueueIndex, 0, &d.TransferQueue)
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(d.LogicalDevice, &poolCreateInfo, ctx.Allocator, &d.GraphicsCommandPool); res != vk.Success {
		err := fmt.Errorf("%w: vkCreateCommandPool: %s", core.ErrResourceAllocation, VulkanResultString(res, true))
		core.LogError("%s", err)
		vk.DestroyDevice(d.LogicalDevice, ctx.Allocator)
		return nil, err
	}
	core.LogInfo("Graphics command pool created.")

	if !d.detectDepthFormat() {
		core.LogWarn("no depth attachment format supported")
	}
	return d, nil
}

func (d *Device) Destroy(ctx *Context) {
	if d.LogicalDevice == nil {
		return
	}
	vk.DeviceWaitIdle(d.LogicalDevice)
	d.GraphicsQueue = nil
	d.TransferQueue = nil

	core.LogInfo("Destroying command pools...")
	vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, ctx.Allocator)

	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(d.LogicalDevice, ctx.Allocator)
	d.LogicalDevice = nil
	d.PhysicalDevice = nil
}

func deviceExtensions(device vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return nil, fmt.Errorf("vkEnumerateDeviceExtensionProperties: %s", VulkanResultString(res, false))
	}
	properties := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, properties); res != vk.Success {
		return nil, fmt.Errorf("vkEnumerateDeviceExtensionProperties: %s", VulkanResultString(res, false))
	}
	names := make(map[string]bool, count)
	for i := range properties {
		properties[i].Deref()
		end := FindFirstZeroInByteArray(properties[i].ExtensionName[:])
		names[vk.ToString(properties[i].ExtensionName[:end+1])] = true
	}
	return names, nil
}

func (d *Device) detectDepthFormat() bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureDepthStencilAttachmentBit
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags == flags {
			d.DepthFormat = candidate
			return true
		}
	}
	return false
}

func (d *Device) selectPhysicalDevice(ctx *Context) error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &count, nil); res != vk.Success {
		return fmt.Errorf("vkEnumeratePhysicalDevices: %s", VulkanResultString(res, false))
	}
	if count == 0 {
		err := fmt.Errorf("%w: no devices which support Vulkan were found", core.ErrInvalidOperation)
		core.LogError("%s", err)
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &count, physicalDevices); res != vk.Success {
		return fmt.Errorf("vkEnumeratePhysicalDevices: %s", VulkanResultString(res, false))
	}

	best := -1
	var bestInfo queueFamilyInfo
	var bestProperties vk.PhysicalDeviceProperties
	for i, device := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &properties)
		properties.Deref()

		info := queueFamilies(device)
		if !info.hasGraphics {
			core.LogInfo("Device '%s' has no graphics and compute queue, skipping.", deviceName(properties))
			continue
		}
		if best < 0 || (properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu && bestProperties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu) {
			best, bestInfo, bestProperties = i, info, properties
		}
	}
	if best < 0 {
		err := fmt.Errorf("%w: no physical devices were found which meet the requirements", core.ErrInvalidOperation)
		core.LogError("%s", err)
		return err
	}

	d.PhysicalDevice = physicalDevices[best]
	d.Properties = bestProperties
	d.GraphicsQueueIndex = bestInfo.graphics
	d.TransferQueueIndex = bestInfo.transfer
	if !bestInfo.hasTransfer {
		d.TransferQueueIndex = bestInfo.graphics
	}
	vk.GetPhysicalDeviceFeatures(d.PhysicalDevice, &d.Features)
	d.Features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(d.PhysicalDevice, &d.Memory)
	d.Memory.Deref()

	core.LogInfo("Selected device: '%s'.", deviceName(d.Properties))
	switch d.Properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version.Major(vk.Version(d.Properties.ApiVersion)),
		vk.Version.Minor(vk.Version(d.Properties.ApiVersion)),
		vk.Version.Patch(vk.Version(d.Properties.ApiVersion)),
	)
	for j := uint32(0); j < d.Memory.MemoryHeapCount; j++ {
		d.Memory.MemoryHeaps[j].Deref()
		gib := float64(d.Memory.MemoryHeaps[j].Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(d.Memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}
	return nil
}

// queueFamilies picks a family supporting graphics and compute, and the
// transfer family with the fewest other capabilities.
func queueFamilies(device vk.PhysicalDevice) queueFamilyInfo {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, families)

	var info queueFamilyInfo
	minTransferScore := 255
	for i := range families {
		families[i].Deref()
		flags := vk.QueueFlagBits(families[i].QueueFlags)
		score := 0
		if flags&vk.QueueGraphicsBit != 0 {
			score++
		}
		if flags&vk.QueueComputeBit != 0 {
			score++
		}
		if !info.hasGraphics && flags&(vk.QueueGraphicsBit|vk.QueueComputeBit) == vk.QueueGraphicsBit|vk.QueueComputeBit {
			info.graphics = uint32(i)
			info.hasGraphics = true
		}
		if flags&vk.QueueTransferBit != 0 && score <= minTransferScore {
			minTransferScore = score
			info.transfer = uint32(i)
			info.hasTransfer = true
		}
	}
	return info
}

func deviceName(p vk.PhysicalDeviceProperties) string {
	end := FindFirstZeroInByteArray(p.DeviceName[:])
	return vk.ToString(p.DeviceName[:end+1])
}
