package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
)

// VulkanContext holds the instance level state shared by every object the
// backend creates.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	PipelineCache *PipelineCache

	// Serializes queue submission between frame and single use submits.
	locks *VulkanLockPool
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && memoryProperties.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	err := errors.Wrapf(core.ErrNoSuitableMemoryType, "filter %#x, properties %#x", typeFilter, propertyFlags)
	core.LogWarn(err.Error())
	return 0, err
}
