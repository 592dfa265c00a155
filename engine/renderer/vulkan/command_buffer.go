package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	pool    vk.CommandPool
	context *VulkanContext
}

var _ renderer.CommandBuffer = (*VulkanCommandBuffer)(nil)

// AllocateCommandBuffers allocates count primary command buffers from pool.
func AllocateCommandBuffers(context *VulkanContext, pool vk.CommandPool, count int) ([]*VulkanCommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: uint32(count),
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, count)
	if err := vkCheck(vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles), "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}
	out := make([]*VulkanCommandBuffer, count)
	for i, handle := range handles {
		out[i] = &VulkanCommandBuffer{
			Handle:  handle,
			State:   COMMAND_BUFFER_STATE_READY,
			pool:    pool,
			context: context,
		}
	}
	return out, nil
}

func (v *VulkanCommandBuffer) Free() {
	if v.Handle == nil {
		return
	}
	vk.FreeCommandBuffers(v.context.Device.LogicalDevice, v.pool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(singleUse bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if singleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := vkCheck(vk.BeginCommandBuffer(v.Handle, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return errors.AssertionFailedf("command buffer ended inside a render pass")
	}
	if err := vkCheck(vk.EndCommandBuffer(v.Handle), "vkEndCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) Reset() error {
	if err := vkCheck(vk.ResetCommandBuffer(v.Handle, 0), "vkResetCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) BeginRenderPass(pass renderer.RenderPass, framebuffer renderer.Framebuffer, extent metadata.Extent, clearColor mgl32.Vec4, clearDepth float32) {
	var clearValues [2]vk.ClearValue
	clearValues[0].SetColor(clearColor[:])
	clearValues[1].SetDepthStencil(clearDepth, 0)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass.(*VulkanRenderPass).Handle,
		Framebuffer: framebuffer.(*VulkanFramebuffer).Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues[:],
	}
	vk.CmdBeginRenderPass(v.Handle, &beginInfo, vk.SubpassContentsInline)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) SetViewport(viewport metadata.Viewport) {
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (v *VulkanCommandBuffer) SetScissor(extent metadata.Extent) {
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}})
}

func (v *VulkanCommandBuffer) BindPipeline(pipeline renderer.Pipeline) {
	vk.CmdBindPipeline(v.Handle, vk.PipelineBindPointGraphics, pipeline.(*VulkanPipeline).Handle)
}

func (v *VulkanCommandBuffer) BindDescriptorSet(pipeline renderer.Pipeline, set renderer.DescriptorSet) {
	vk.CmdBindDescriptorSets(
		v.Handle,
		vk.PipelineBindPointGraphics,
		pipeline.(*VulkanPipeline).Layout,
		0,
		1,
		[]vk.DescriptorSet{set.(vk.DescriptorSet)},
		0,
		nil,
	)
}

func (v *VulkanCommandBuffer) PushConstants(pipeline renderer.Pipeline, stages metadata.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(
		v.Handle,
		pipeline.(*VulkanPipeline).Layout,
		toVkShaderStages(stages),
		offset,
		uint32(len(data)),
		unsafe.Pointer(&data[0]),
	)
}

func (v *VulkanCommandBuffer) BindVertexBuffer(buffer renderer.DeviceBuffer) {
	vk.CmdBindVertexBuffers(v.Handle, 0, 1, []vk.Buffer{bufferHandle(buffer)}, []vk.DeviceSize{0})
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer renderer.DeviceBuffer) {
	vk.CmdBindIndexBuffer(v.Handle, bufferHandle(buffer), 0, vk.IndexTypeUint32)
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, 0, 0)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, 0, 0, 0)
}

func (v *VulkanCommandBuffer) CopyBuffer(src, dst renderer.DeviceBuffer, size uint64) {
	vk.CmdCopyBuffer(v.Handle, bufferHandle(src), bufferHandle(dst), 1, []vk.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}})
}

// AllocateAndBeginSingleUse allocates a command buffer from pool and begins
// recording into it.
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	buffers, err := AllocateCommandBuffers(context, pool, 1)
	if err != nil {
		return nil, err
	}
	cb := buffers[0]
	if err := cb.Begin(true); err != nil {
		cb.Free()
		return nil, err
	}
	return cb, nil
}

// EndSingleUse ends recording, submits to queue, waits for the queue to drain
// and frees the command buffer.
func (v *VulkanCommandBuffer) EndSingleUse(queue vk.Queue) error {
	defer v.Free()
	if err := v.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	return v.context.locks.SafeQueueCall(func() error {
		if err := vkCheck(vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.Fence(vk.NullHandle)), "vkQueueSubmit"); err != nil {
			return err
		}
		v.UpdateSubmitted()
		// Wait for it to finish
		if err := vkCheck(vk.QueueWaitIdle(queue), "vkQueueWaitIdle"); err != nil {
			core.LogError("single use command buffer did not complete")
			return err
		}
		return nil
	})
}
