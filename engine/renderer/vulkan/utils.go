package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

// VulkanResultString names a VkResult. getExtended adds a short description.
func VulkanResultString(result vk.Result, getExtended bool) string {
	name, description := "VK_UNKNOWN_RESULT", "An unrecognized result code."
	switch result {
	case vk.Success:
		name, description = "VK_SUCCESS", "Command successfully completed"
	case vk.NotReady:
		name, description = "VK_NOT_READY", "A fence or query has not yet completed"
	case vk.Timeout:
		name, description = "VK_TIMEOUT", "A wait operation has not completed in the specified time"
	case vk.Incomplete:
		name, description = "VK_INCOMPLETE", "A return array was too small for the result"
	case vk.Suboptimal:
		name, description = "VK_SUBOPTIMAL_KHR", "The swapchain no longer matches the surface exactly but can still present"
	case vk.ErrorOutOfHostMemory:
		name, description = "VK_ERROR_OUT_OF_HOST_MEMORY", "A host memory allocation has failed"
	case vk.ErrorOutOfDeviceMemory:
		name, description = "VK_ERROR_OUT_OF_DEVICE_MEMORY", "A device memory allocation has failed"
	case vk.ErrorInitializationFailed:
		name, description = "VK_ERROR_INITIALIZATION_FAILED", "Initialization of an object could not be completed"
	case vk.ErrorDeviceLost:
		name, description = "VK_ERROR_DEVICE_LOST", "The logical or physical device has been lost"
	case vk.ErrorMemoryMapFailed:
		name, description = "VK_ERROR_MEMORY_MAP_FAILED", "Mapping of a memory object has failed"
	case vk.ErrorLayerNotPresent:
		name, description = "VK_ERROR_LAYER_NOT_PRESENT", "A requested layer is not present or could not be loaded"
	case vk.ErrorExtensionNotPresent:
		name, description = "VK_ERROR_EXTENSION_NOT_PRESENT", "A requested extension is not supported"
	case vk.ErrorFeatureNotPresent:
		name, description = "VK_ERROR_FEATURE_NOT_PRESENT", "A requested feature is not supported"
	case vk.ErrorIncompatibleDriver:
		name, description = "VK_ERROR_INCOMPATIBLE_DRIVER", "The requested version of Vulkan is not supported by the driver"
	case vk.ErrorFormatNotSupported:
		name, description = "VK_ERROR_FORMAT_NOT_SUPPORTED", "A requested format is not supported on this device"
	case vk.ErrorSurfaceLost:
		name, description = "VK_ERROR_SURFACE_LOST_KHR", "A surface is no longer available"
	case vk.ErrorNativeWindowInUse:
		name, description = "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "The window is already in use by another swapchain"
	case vk.ErrorOutOfDate:
		name, description = "VK_ERROR_OUT_OF_DATE_KHR", "The surface changed and the swapchain must be recreated"
	case vk.ErrorOutOfPoolMemory:
		name, description = "VK_ERROR_OUT_OF_POOL_MEMORY", "A descriptor pool allocation has failed"
	case vk.ErrorFragmentedPool:
		name, description = "VK_ERROR_FRAGMENTED_POOL", "A pool allocation has failed due to fragmentation"
	case vk.ErrorUnknown:
		name, description = "VK_ERROR_UNKNOWN", "An unknown error has occurred"
	}
	if getExtended {
		return name + " " + description
	}
	return name
}

// VulkanResultIsSuccess reports whether result is one of the non-error codes.
func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= vk.Success
}

// vkCheck turns a failed result into a logged error naming the call.
func vkCheck(result vk.Result, call string) error {
	if VulkanResultIsSuccess(result) {
		return nil
	}
	err := errors.Newf("%s failed with %s", call, VulkanResultString(result, true))
	core.LogError(err.Error())
	return err
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// FindFirstZeroInByteArray returns the index of the first NUL, or len(arr).
func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}

func cString(arr []byte) string {
	return string(arr[:FindFirstZeroInByteArray(arr)])
}

func toVkBufferUsage(usage metadata.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if usage&metadata.BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if usage&metadata.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	if usage&metadata.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if usage&metadata.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if usage&metadata.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	return vk.BufferUsageFlags(flags)
}

func toVkMemoryProperties(properties metadata.MemoryProperty) vk.MemoryPropertyFlags {
	var flags vk.MemoryPropertyFlagBits
	if properties&metadata.MemoryPropertyDeviceLocal != 0 {
		flags |= vk.MemoryPropertyDeviceLocalBit
	}
	if properties&metadata.MemoryPropertyHostVisible != 0 {
		flags |= vk.MemoryPropertyHostVisibleBit
	}
	if properties&metadata.MemoryPropertyHostCoherent != 0 {
		flags |= vk.MemoryPropertyHostCoherentBit
	}
	return vk.MemoryPropertyFlags(flags)
}

func toVkShaderStages(stages metadata.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlagBits
	if stages&metadata.ShaderStageVertex != 0 {
		flags |= vk.ShaderStageVertexBit
	}
	if stages&metadata.ShaderStageFragment != 0 {
		flags |= vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageFlags(flags)
}

func toVkDeviceSize(size uint64) vk.DeviceSize {
	if size == metadata.WholeSize {
		return vk.DeviceSize(vk.WholeSize)
	}
	return vk.DeviceSize(size)
}
