package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	RenderPass  *VulkanRenderPass
}

func FramebufferCreate(context *VulkanContext, renderPass *VulkanRenderPass, width, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	// Keep our own copy, the caller may reuse its slice.
	out := &VulkanFramebuffer{
		Attachments: append([]vk.ImageView(nil), attachments...),
		RenderPass:  renderPass,
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass.Handle,
		AttachmentCount: uint32(len(out.Attachments)),
		PAttachments:    out.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var handle vk.Framebuffer
	if err := vkCheck(vk.CreateFramebuffer(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle), "vkCreateFramebuffer"); err != nil {
		return nil, err
	}
	out.Handle = handle
	return out, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != nil {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
	}
	vfb.Attachments = nil
	vfb.Handle = nil
	vfb.RenderPass = nil
}
