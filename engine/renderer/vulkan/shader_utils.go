package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

// NewShaderStage wraps SPIR-V words in a shader module for the given stage.
func NewShaderStage(context *VulkanContext, code []uint32, stage vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	if len(code) == 0 {
		return nil, errors.New("empty shader code")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType: vk.StructureTypeShaderModuleCreateInfo,
		// CodeSize is in bytes.
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}

	var handle vk.ShaderModule
	if err := vkCheck(vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle), "vkCreateShaderModule"); err != nil {
		return nil, err
	}

	return &VulkanShaderStage{
		Handle: handle,
		ShaderStageCreateInfo: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stage,
			Module: handle,
			PName:  VulkanSafeString("main"),
		},
	}, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != nil {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = nil
	}
}
