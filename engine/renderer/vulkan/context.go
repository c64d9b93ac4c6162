// Package vulkan implements the gpu command encoder and resource factory on
// top of a headless Vulkan device. No surface or swapchain is created;
// presenting is left to the windowing layer that owns the surface.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
)

type ContextConfig struct {
	AppName    string
	Validation bool
}

type Context struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	debugMessenger vk.DebugReportCallback

	Device *Device

	locks *LockPool
}

// NewContext loads the Vulkan loader, creates an instance and picks a
// device with a graphics queue.
func NewContext(cfg ContextConfig) (*Context, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		core.LogError("failed to locate the Vulkan loader: %s", err)
		return nil, err
	}
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	ctx := &Context{locks: NewLockPool()}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(cfg.AppName),
		PEngineName:        VulkanSafeString("Anima Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	layers := []string{}
	if cfg.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		layers = append(layers, "VK_LAYER_KHRONOS_validation")
		if err := checkLayers(layers); err != nil {
			return nil, err
		}
	}
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, ctx.Allocator, &ctx.Instance); res != vk.Success {
		err := fmt.Errorf("%w: vkCreateInstance: %s", core.ErrResourceAllocation, VulkanResultString(res, true))
		core.LogError("%s", err)
		return nil, err
	}
	if err := vk.InitInstance(ctx.Instance); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	core.LogInfo("Vulkan instance created.")

	if cfg.Validation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(ctx.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			ctx.Destroy()
			return nil, err
		}
		ctx.debugMessenger = dbg
	}

	dev, err := NewDevice(ctx)
	if err != nil {
		ctx.Destroy()
		return nil, err
	}
	ctx.Device = dev
	return ctx, nil
}

func checkLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return fmt.Errorf("vkEnumerateInstanceLayerProperties: %s", VulkanResultString(res, false))
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return fmt.Errorf("vkEnumerateInstanceLayerProperties: %s", VulkanResultString(res, false))
	}
	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			end := FindFirstZeroInByteArray(available[i].LayerName[:])
			if vk.ToString(available[i].LayerName[:end+1]) == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: validation layer %s is missing", core.ErrInvalidOperation, name)
		}
	}
	return nil
}

// Destroy waits for the device to go idle and releases everything the
// context created.
func (ctx *Context) Destroy() {
	if ctx.Device != nil {
		ctx.Device.Destroy(ctx)
		ctx.Device = nil
	}
	if ctx.debugMessenger != nil {
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugMessenger, nil)
		ctx.debugMessenger = nil
	}
	if ctx.Instance != nil {
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every property flag, or -1.
func (ctx *Context) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlagBits) int32 {
	memoryProperties := ctx.Device.Memory
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
		flags := vk.MemoryPropertyFlagBits(memoryProperties.MemoryTypes[i].PropertyFlags)
		if typeFilter&(1<<i) != 0 && flags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// allocate backs a buffer or image with memory of the given properties.
func (ctx *Context) allocate(req vk.MemoryRequirements, properties vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	req.Deref()
	index := ctx.FindMemoryIndex(req.MemoryTypeBits, properties)
	if index < 0 {
		return nil, fmt.Errorf("%w: no memory type with properties %#x", core.ErrResourceAllocation, uint32(properties))
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	err := ctx.locks.SafeCall(MemoryManagement, func() error {
		if res := vk.AllocateMemory(ctx.Device.LogicalDevice, &allocInfo, ctx.Allocator, &memory); res != vk.Success {
			return fmt.Errorf("%w: vkAllocateMemory of %d bytes: %s", core.ErrResourceAllocation, req.Size, VulkanResultString(res, false))
		}
		return nil
	})
	return memory, err
}

func (ctx *Context) free(memory vk.DeviceMemory) {
	ctx.locks.SafeCall(MemoryManagement, func() error {
		vk.FreeMemory(ctx.Device.LogicalDevice, memory, ctx.Allocator)
		return nil
	})
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
