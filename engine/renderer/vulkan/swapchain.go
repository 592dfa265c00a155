package vulkan

import (
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	emath "github.com/pa-tiq/PatiqVulkanEngine/engine/math"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

// VulkanSwapchain is one swapchain generation and everything sized to it: the
// image views, a depth attachment, the render pass and one framebuffer per
// image.
type VulkanSwapchain struct {
	Handle        vk.Swapchain
	SurfaceFormat vk.SurfaceFormat
	ImageExtent   vk.Extent2D
	Images        []vk.Image
	Views         []vk.ImageView

	DepthAttachment *VulkanImage
	MainRenderPass  *VulkanRenderPass

	// framebuffers used for on-screen rendering.
	Framebuffers []*VulkanFramebuffer

	context *VulkanContext
}

var _ renderer.Swapchain = (*VulkanSwapchain)(nil)

func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Srgb && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

func choosePresentMode(modes []vk.PresentMode, preferMailbox bool) vk.PresentMode {
	if preferMailbox {
		for _, mode := range modes {
			if mode == vk.PresentModeMailbox {
				core.LogInfo("Present mode: Mailbox")
				return mode
			}
		}
	}
	// FIFO is the only mode every implementation must support.
	core.LogInfo("Present mode: V-Sync")
	return vk.PresentModeFifo
}

func chooseExtent(capabilities vk.SurfaceCapabilities, want metadata.Extent) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	min, max := capabilities.MinImageExtent, capabilities.MaxImageExtent
	return vk.Extent2D{
		Width:  emath.Clamp(want.Width, min.Width, max.Width),
		Height: emath.Clamp(want.Height, min.Height, max.Height),
	}
}

func SwapchainCreate(context *VulkanContext, extent metadata.Extent, previous *VulkanSwapchain, preferMailbox bool) (*VulkanSwapchain, error) {
	device := context.Device
	// The surface capabilities change with the window, query them every time.
	if err := DeviceQuerySwapchainSupport(device.PhysicalDevice, context.Surface, &device.SwapchainSupport); err != nil {
		return nil, err
	}
	support := device.SwapchainSupport
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return nil, errors.New("surface reports no formats or present modes")
	}

	swapchain := &VulkanSwapchain{
		SurfaceFormat: chooseSurfaceFormat(support.Formats),
		ImageExtent:   chooseExtent(support.Capabilities, extent),
		context:       context,
	}
	presentMode := choosePresentMode(support.PresentModes, preferMailbox)

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.SurfaceFormat.Format,
		ImageColorSpace:  swapchain.SurfaceFormat.ColorSpace,
		ImageExtent:      swapchain.ImageExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}

	// Setup the queue family indices
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{
			uint32(device.GraphicsQueueIndex),
			uint32(device.PresentQueueIndex),
		}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	if previous != nil {
		createInfo.OldSwapchain = previous.Handle
	} else {
		createInfo.OldSwapchain = vk.Swapchain(vk.NullHandle)
	}

	var handle vk.Swapchain
	if err := vkCheck(vk.CreateSwapchain(device.LogicalDevice, &createInfo, context.Allocator, &handle), "vkCreateSwapchainKHR"); err != nil {
		return nil, err
	}
	swapchain.Handle = handle

	if err := swapchain.createImageViews(); err != nil {
		swapchain.Destroy()
		return nil, err
	}

	renderPass, err := RenderPassCreate(context, swapchain.SurfaceFormat.Format, device.DepthFormat)
	if err != nil {
		swapchain.Destroy()
		return nil, err
	}
	swapchain.MainRenderPass = renderPass

	depthAttachment, err := ImageCreate(
		context,
		swapchain.ImageExtent.Width,
		swapchain.ImageExtent.Height,
		device.DepthFormat,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit),
	)
	if err != nil {
		swapchain.Destroy()
		return nil, errors.Wrap(err, "failed to create depth attachment")
	}
	swapchain.DepthAttachment = depthAttachment

	if err := swapchain.createFramebuffers(); err != nil {
		swapchain.Destroy()
		return nil, err
	}

	core.LogInfo("Swapchain created successfully.")
	return swapchain, nil
}

func (vs *VulkanSwapchain) createImageViews() error {
	device := vs.context.Device.LogicalDevice

	var imageCount uint32
	if err := vkCheck(vk.GetSwapchainImages(device, vs.Handle, &imageCount, nil), "vkGetSwapchainImagesKHR"); err != nil {
		return err
	}
	vs.Images = make([]vk.Image, imageCount)
	if err := vkCheck(vk.GetSwapchainImages(device, vs.Handle, &imageCount, vs.Images), "vkGetSwapchainImagesKHR"); err != nil {
		return err
	}

	vs.Views = make([]vk.ImageView, 0, imageCount)
	for _, image := range vs.Images {
		view, err := ImageViewCreate(vs.context, vs.SurfaceFormat.Format, image, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return err
		}
		vs.Views = append(vs.Views, view)
	}
	return nil
}

func (vs *VulkanSwapchain) createFramebuffers() error {
	vs.Framebuffers = make([]*VulkanFramebuffer, 0, len(vs.Views))
	for _, view := range vs.Views {
		attachments := []vk.ImageView{view, vs.DepthAttachment.View}
		fb, err := FramebufferCreate(vs.context, vs.MainRenderPass, vs.ImageExtent.Width, vs.ImageExtent.Height, attachments)
		if err != nil {
			return err
		}
		vs.Framebuffers = append(vs.Framebuffers, fb)
	}
	return nil
}

func (vs *VulkanSwapchain) ImageFormat() metadata.Format {
	return metadata.Format(vs.SurfaceFormat.Format)
}

func (vs *VulkanSwapchain) DepthFormat() metadata.Format {
	if vs.MainRenderPass == nil {
		return metadata.Format(vs.context.Device.DepthFormat)
	}
	return metadata.Format(vs.MainRenderPass.DepthFormat)
}

func (vs *VulkanSwapchain) Extent() metadata.Extent {
	return metadata.Extent{Width: vs.ImageExtent.Width, Height: vs.ImageExtent.Height}
}

func (vs *VulkanSwapchain) ImageCount() int {
	return len(vs.Images)
}

func (vs *VulkanSwapchain) RenderPass() renderer.RenderPass {
	return vs.MainRenderPass
}

func (vs *VulkanSwapchain) Framebuffer(index uint32) renderer.Framebuffer {
	return vs.Framebuffers[index]
}

func (vs *VulkanSwapchain) AcquireNextImage(imageAvailable renderer.Semaphore) (uint32, metadata.Status, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(
		vs.context.Device.LogicalDevice,
		vs.Handle,
		vk.MaxUint64,
		semaphoreHandle(imageAvailable),
		vk.Fence(vk.NullHandle),
		&imageIndex,
	)
	switch result {
	case vk.Success:
		return imageIndex, metadata.StatusOk, nil
	case vk.Suboptimal:
		return imageIndex, metadata.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		// Trigger swapchain recreation, then boot out of the render loop.
		return 0, metadata.StatusSurfaceOutOfDate, nil
	default:
		return 0, metadata.StatusFatalError, vkCheck(result, "vkAcquireNextImageKHR")
	}
}

func (vs *VulkanSwapchain) Present(imageIndex uint32, renderFinished renderer.Semaphore) (metadata.Status, error) {
	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{semaphoreHandle(renderFinished)},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	var result vk.Result
	_ = vs.context.locks.SafeQueueCall(func() error {
		result = vk.QueuePresent(vs.context.Device.PresentQueue, &presentInfo)
		return nil
	})
	switch result {
	case vk.Success:
		return metadata.StatusOk, nil
	case vk.Suboptimal:
		return metadata.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return metadata.StatusSurfaceOutOfDate, nil
	default:
		return metadata.StatusFatalError, vkCheck(result, "vkQueuePresentKHR")
	}
}

// Destroy releases the generation. The caller makes sure the device is idle.
func (vs *VulkanSwapchain) Destroy() {
	context := vs.context
	device := context.Device.LogicalDevice

	for _, fb := range vs.Framebuffers {
		fb.Destroy(context)
	}
	vs.Framebuffers = nil

	if vs.DepthAttachment != nil {
		vs.DepthAttachment.Destroy(context)
		vs.DepthAttachment = nil
	}
	if vs.MainRenderPass != nil {
		vs.MainRenderPass.Destroy(context)
		vs.MainRenderPass = nil
	}

	// Only destroy the views, not the images, since those are owned by the swapchain and are thus
	// destroyed when it is.
	for _, view := range vs.Views {
		vk.DestroyImageView(device, view, context.Allocator)
	}
	vs.Views = nil
	vs.Images = nil

	if vs.Handle != nil {
		vk.DestroySwapchain(device, vs.Handle, context.Allocator)
		vs.Handle = nil
	}
}
