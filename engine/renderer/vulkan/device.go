package vulkan

import (
	"runtime"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
)

const portabilitySubsetExtension = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

type VulkanPhysicalDeviceRequirements struct {
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
}

func (q VulkanPhysicalDeviceQueueFamilyInfo) IsComplete() bool {
	return q.GraphicsFamilyIndex >= 0 && q.PresentFamilyIndex >= 0
}

func DeviceCreate(context *VulkanContext) error {
	context.Device = &VulkanDevice{GraphicsQueueIndex: -1, PresentQueueIndex: -1}
	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")
	device := context.Device

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{uint32(device.GraphicsQueueIndex)}
	if device.PresentQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, uint32(device.PresentQueueIndex))
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: vk.True,
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensions(device.PhysicalDevice)
	if err != nil {
		return err
	}
	if available[portabilitySubsetExtension] {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtension)
		extensionNames = append(extensionNames, portabilitySubsetExtension)
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var logicalDevice vk.Device
	if err := vkCheck(vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logicalDevice), "vkCreateDevice"); err != nil {
		return err
	}
	device.LogicalDevice = logicalDevice
	core.LogInfo("Logical device created.")

	var graphicsQueue, presentQueue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.GraphicsQueueIndex), 0, &graphicsQueue)
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.PresentQueueIndex), 0, &presentQueue)
	device.GraphicsQueue = graphicsQueue
	device.PresentQueue = presentQueue
	core.LogInfo("Queues obtained.")

	// Command buffers are reset individually every frame.
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit | vk.CommandPoolCreateTransientBit),
	}
	var pool vk.CommandPool
	if err := vkCheck(vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &pool), "vkCreateCommandPool"); err != nil {
		return err
	}
	device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	if !DeviceDetectDepthFormat(device) {
		err := errors.New("failed to find a supported depth format")
		core.LogError(err.Error())
		return err
	}
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device
	if device == nil {
		return
	}
	device.GraphicsQueue = nil
	device.PresentQueue = nil

	if device.LogicalDevice != nil {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(device.LogicalDevice, device.GraphicsCommandPool, context.Allocator)

		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
	device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	device.GraphicsQueueIndex = -1
	device.PresentQueueIndex = -1
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if err := vkCheck(vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities), "vkGetPhysicalDeviceSurfaceCapabilitiesKHR"); err != nil {
		return err
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := vkCheck(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
		return err
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, formatCount)
	if formatCount != 0 {
		if err := vkCheck(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, supportInfo.Formats), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
			return err
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	var presentModeCount uint32
	if err := vkCheck(vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
		return err
	}
	supportInfo.PresentModes = make([]vk.PresentMode, presentModeCount)
	if presentModeCount != 0 {
		if err := vkCheck(vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, supportInfo.PresentModes), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
			return err
		}
	}
	return nil
}

func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	return false
}

func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if err := vkCheck(vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	if physicalDeviceCount == 0 {
		err := errors.New("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := vkCheck(vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
		SamplerAnisotropy:    true,
	}

	device := context.Device
	selected := false
	for _, physicalDevice := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
		properties.Deref()
		properties.Limits.Deref()

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(physicalDevice, &features)
		features.Deref()

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memory)
		memory.Deref()

		var support VulkanSwapchainSupportInfo
		queueInfo, ok := PhysicalDeviceMeetsRequirements(physicalDevice, context.Surface, &properties, &features, &requirements, &support)
		if !ok {
			continue
		}
		// The first suitable device wins unless a discrete GPU shows up later.
		if selected && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
			continue
		}

		device.PhysicalDevice = physicalDevice
		device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
		device.PresentQueueIndex = queueInfo.PresentFamilyIndex
		device.SwapchainSupport = support
		device.Properties = properties
		device.Features = features
		device.Memory = memory
		selected = true

		if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			break
		}
	}

	if !selected {
		err := errors.New("no physical devices were found which meet the requirements")
		core.LogError(err.Error())
		return err
	}
	logDevice(device)
	return nil
}

func logDevice(device *VulkanDevice) {
	properties := device.Properties
	core.LogInfo("Selected device: '%s'.", cString(properties.DeviceName[:]))
	switch properties.DeviceType {
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
		"GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)
	for j := uint32(0); j < device.Memory.MemoryHeapCount; j++ {
		heap := device.Memory.MemoryHeaps[j]
		heap.Deref()
		memorySizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if heap.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures,
	requirements *VulkanPhysicalDeviceRequirements, outSwapchainSupport *VulkanSwapchainSupportInfo) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{GraphicsFamilyIndex: -1, PresentFamilyIndex: -1}
	name := cString(properties.DeviceName[:])

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i := range queueFamilies {
		queueFamilies[i].Deref()
		if queueInfo.GraphicsFamilyIndex < 0 && queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			queueInfo.GraphicsFamilyIndex = int32(i)
		}
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return queueInfo, false
		}
		// Prefer a family that does both.
		if supportsPresent == vk.True && (queueInfo.PresentFamilyIndex < 0 || queueInfo.GraphicsFamilyIndex == int32(i)) {
			queueInfo.PresentFamilyIndex = int32(i)
		}
	}
	if !queueInfo.IsComplete() {
		core.LogInfo("Device '%s' lacks a graphics or present queue, skipping.", name)
		return queueInfo, false
	}
	core.LogDebug("Graphics Family Index: %d", queueInfo.GraphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", queueInfo.PresentFamilyIndex)

	if err := DeviceQuerySwapchainSupport(device, surface, outSwapchainSupport); err != nil {
		return queueInfo, false
	}
	if len(outSwapchainSupport.Formats) < 1 || len(outSwapchainSupport.PresentModes) < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return queueInfo, false
	}

	available, err := deviceExtensions(device)
	if err != nil {
		return queueInfo, false
	}
	for _, required := range requirements.DeviceExtensionNames {
		if !available[required] {
			core.LogInfo("Required extension not found: '%s', skipping device.", required)
			return queueInfo, false
		}
	}

	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device does not support samplerAnisotropy, skipping.")
		return queueInfo, false
	}
	if runtime.GOOS != "darwin" && properties.DeviceType == vk.PhysicalDeviceTypeCpu {
		core.LogInfo("Device '%s' is a CPU implementation, skipping.", name)
		return queueInfo, false
	}
	return queueInfo, true
}

func deviceExtensions(device vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if err := vkCheck(vk.EnumerateDeviceExtensionProperties(device, "", &count, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	properties := make([]vk.ExtensionProperties, count)
	if count != 0 {
		if err := vkCheck(vk.EnumerateDeviceExtensionProperties(device, "", &count, properties), "vkEnumerateDeviceExtensionProperties"); err != nil {
			return nil, err
		}
	}
	available := make(map[string]bool, count)
	for i := range properties {
		properties[i].Deref()
		available[cString(properties[i].ExtensionName[:])] = true
	}
	return available, nil
}
