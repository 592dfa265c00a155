package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

// VulkanBuffer is a VkBuffer bound to its own dedicated allocation.
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Usage  vk.BufferUsageFlags

	size         uint64
	memoryFlags  vk.MemoryPropertyFlags
	memoryIndex  uint32
	mapped       bool
	mappedOffset uint64

	context *VulkanContext
}

var _ renderer.DeviceBuffer = (*VulkanBuffer)(nil)

func NewVulkanBuffer(context *VulkanContext, size uint64, usage metadata.BufferUsage, properties metadata.MemoryProperty) (*VulkanBuffer, error) {
	if size == 0 {
		return nil, errors.AssertionFailedf("buffer size must be > 0")
	}
	out := &VulkanBuffer{
		Usage:       toVkBufferUsage(usage),
		size:        size,
		memoryFlags: toVkMemoryProperties(properties),
		context:     context,
	}
	device := context.Device.LogicalDevice

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       out.Usage,
		SharingMode: vk.SharingModeExclusive, // NOTE: Only used in one queue.
	}
	var handle vk.Buffer
	if err := vkCheck(vk.CreateBuffer(device, &bufferInfo, context.Allocator, &handle), "vkCreateBuffer"); err != nil {
		return nil, err
	}
	out.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, out.Handle, &requirements)
	requirements.Deref()

	index, err := context.FindMemoryIndex(requirements.MemoryTypeBits, out.memoryFlags)
	if err != nil {
		vk.DestroyBuffer(device, out.Handle, context.Allocator)
		return nil, errors.Wrap(err, "unable to create vulkan buffer")
	}
	out.memoryIndex = index

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: index,
	}
	var memory vk.DeviceMemory
	if err := vkCheck(vk.AllocateMemory(device, &allocateInfo, context.Allocator, &memory), "vkAllocateMemory"); err != nil {
		vk.DestroyBuffer(device, out.Handle, context.Allocator)
		return nil, err
	}
	out.Memory = memory

	if err := vkCheck(vk.BindBufferMemory(device, out.Handle, out.Memory, 0), "vkBindBufferMemory"); err != nil {
		out.Destroy()
		return nil, err
	}
	return out, nil
}

func (b *VulkanBuffer) Size() uint64 {
	return b.size
}

func (b *VulkanBuffer) IsCoherent() bool {
	return b.memoryFlags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0
}

func (b *VulkanBuffer) Map(size, offset uint64) ([]byte, error) {
	if b.memoryFlags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) == 0 {
		return nil, errors.New("cannot map a buffer without host visible memory")
	}
	if b.mapped {
		return nil, errors.AssertionFailedf("buffer is already mapped")
	}
	if size == metadata.WholeSize {
		size = b.size - offset
	}
	if offset+size > b.size {
		return nil, errors.Newf("map range %d+%d exceeds buffer size %d", offset, size, b.size)
	}

	var data unsafe.Pointer
	if err := vkCheck(vk.MapMemory(b.context.Device.LogicalDevice, b.Memory, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &data), "vkMapMemory"); err != nil {
		return nil, err
	}
	b.mapped = true
	b.mappedOffset = offset
	return unsafe.Slice((*byte)(data), size), nil
}

func (b *VulkanBuffer) Unmap() {
	if !b.mapped {
		return
	}
	vk.UnmapMemory(b.context.Device.LogicalDevice, b.Memory)
	b.mapped = false
	b.mappedOffset = 0
}

func (b *VulkanBuffer) Flush(size, offset uint64) error {
	if b.IsCoherent() {
		return nil
	}
	r := b.memoryRange(size, offset)
	return vkCheck(vk.FlushMappedMemoryRanges(b.context.Device.LogicalDevice, 1, []vk.MappedMemoryRange{r}), "vkFlushMappedMemoryRanges")
}

func (b *VulkanBuffer) Invalidate(size, offset uint64) error {
	if b.IsCoherent() {
		return nil
	}
	r := b.memoryRange(size, offset)
	return vkCheck(vk.InvalidateMappedMemoryRanges(b.context.Device.LogicalDevice, 1, []vk.MappedMemoryRange{r}), "vkInvalidateMappedMemoryRanges")
}

// memoryRange translates an offset relative to the mapped view into one
// relative to the allocation.
func (b *VulkanBuffer) memoryRange(size, offset uint64) vk.MappedMemoryRange {
	return vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: b.Memory,
		Offset: vk.DeviceSize(b.mappedOffset + offset),
		Size:   toVkDeviceSize(size),
	}
}

func (b *VulkanBuffer) Destroy() {
	device := b.context.Device.LogicalDevice
	b.Unmap()
	if b.Memory != nil {
		vk.FreeMemory(device, b.Memory, b.context.Allocator)
		b.Memory = nil
	}
	if b.Handle != nil {
		vk.DestroyBuffer(device, b.Handle, b.context.Allocator)
		b.Handle = nil
	}
	core.LogDebug("vulkan buffer of %d bytes destroyed", b.size)
	b.size = 0
}

func bufferHandle(b renderer.DeviceBuffer) vk.Buffer {
	return b.(*VulkanBuffer).Handle
}
