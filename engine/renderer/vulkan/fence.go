package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool

	context *VulkanContext
}

var _ renderer.Fence = (*VulkanFence)(nil)

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
		context:    context,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var handle vk.Fence
	if err := vkCheck(vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &handle), "vkCreateFence"); err != nil {
		return nil, err
	}
	fence.Handle = handle
	return fence, nil
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != nil {
		vk.DestroyFence(vf.context.Device.LogicalDevice, vf.Handle, vf.context.Allocator)
		vf.Handle = nil
	}
	vf.IsSignaled = false
}

func (vf *VulkanFence) Wait(timeoutNs uint64) error {
	// If already signaled, do not wait.
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return errors.Newf("fence wait timed out after %dns", timeoutNs)
	default:
		return vkCheck(result, "vkWaitForFences")
	}
}

func (vf *VulkanFence) Reset() error {
	if !vf.IsSignaled {
		return nil
	}
	if err := vkCheck(vk.ResetFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}), "vkResetFences"); err != nil {
		return err
	}
	vf.IsSignaled = false
	return nil
}

// markUnsignaled is called after the fence is handed to a queue submit, so a
// later Wait goes to the driver instead of trusting the cached state.
func (vf *VulkanFence) markUnsignaled() {
	vf.IsSignaled = false
}

type VulkanSemaphore struct {
	Handle vk.Semaphore

	context *VulkanContext
}

var _ renderer.Semaphore = (*VulkanSemaphore)(nil)

func NewSemaphore(context *VulkanContext) (*VulkanSemaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var handle vk.Semaphore
	if err := vkCheck(vk.CreateSemaphore(context.Device.LogicalDevice, &info, context.Allocator, &handle), "vkCreateSemaphore"); err != nil {
		return nil, err
	}
	return &VulkanSemaphore{Handle: handle, context: context}, nil
}

func (vs *VulkanSemaphore) Destroy() {
	if vs.Handle != nil {
		vk.DestroySemaphore(vs.context.Device.LogicalDevice, vs.Handle, vs.context.Allocator)
		vs.Handle = nil
	}
}

func semaphoreHandle(s renderer.Semaphore) vk.Semaphore {
	if s == nil {
		return vk.Semaphore(vk.NullHandle)
	}
	return s.(*VulkanSemaphore).Handle
}
