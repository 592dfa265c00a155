package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
}

// ImageCreate creates a 2D image with one mip level and dedicated memory. A
// view is created as well when createView is set.
func ImageCreate(context *VulkanContext, width, height uint32, format vk.Format, tiling vk.ImageTiling, usage vk.ImageUsageFlags,
	memoryFlags vk.MemoryPropertyFlags, createView bool, viewAspectFlags vk.ImageAspectFlags) (*VulkanImage, error) {
	out := &VulkanImage{
		Width:  width,
		Height: height,
	}
	device := context.Device.LogicalDevice

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	var handle vk.Image
	if err := vkCheck(vk.CreateImage(device, &imageInfo, context.Allocator, &handle), "vkCreateImage"); err != nil {
		return nil, err
	}
	out.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, out.Handle, &requirements)
	requirements.Deref()

	memoryType, err := context.FindMemoryIndex(requirements.MemoryTypeBits, memoryFlags)
	if err != nil {
		out.Destroy(context)
		return nil, errors.Wrap(err, "required memory type not found, image not valid")
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	if err := vkCheck(vk.AllocateMemory(device, &allocateInfo, context.Allocator, &memory), "vkAllocateMemory"); err != nil {
		out.Destroy(context)
		return nil, err
	}
	out.Memory = memory

	// TODO: configurable memory offset.
	if err := vkCheck(vk.BindImageMemory(device, out.Handle, out.Memory, 0), "vkBindImageMemory"); err != nil {
		out.Destroy(context)
		return nil, err
	}

	if createView {
		view, err := ImageViewCreate(context, format, out.Handle, viewAspectFlags)
		if err != nil {
			out.Destroy(context)
			return nil, err
		}
		out.View = view
	}
	return out, nil
}

func ImageViewCreate(context *VulkanContext, format vk.Format, image vk.Image, aspectFlags vk.ImageAspectFlags) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFlags,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := vkCheck(vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view), "vkCreateImageView"); err != nil {
		return nil, err
	}
	return view, nil
}

func (vi *VulkanImage) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if vi.View != nil {
		vk.DestroyImageView(device, vi.View, context.Allocator)
		vi.View = nil
	}
	if vi.Memory != nil {
		vk.FreeMemory(device, vi.Memory, context.Allocator)
		vi.Memory = nil
	}
	if vi.Handle != nil {
		vk.DestroyImage(device, vi.Handle, context.Allocator)
		vi.Handle = nil
	}
}
