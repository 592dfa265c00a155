package renderer

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

// Opaque backend handles. The frame code only passes them back to the backend
// that created them.
type (
	RenderPass          any
	Framebuffer         any
	DescriptorSet       any
	DescriptorSetLayout any
)

// Window is the drawable surface the swapchain presents to.
type Window interface {
	// Extent is the current framebuffer size in pixels. Zero while minimized.
	Extent() metadata.Extent
	WasResized() bool
	ResetResizedFlag()
	// WaitEvents blocks until the platform delivers at least one event.
	WaitEvents()
}

// Device is the graphics device the renderer allocates from and submits to.
type Device interface {
	WaitIdle() error
	// CreateSwapchain builds a swapchain generation sized to extent. previous is
	// nil on first creation and is handed to the driver for resource reuse.
	CreateSwapchain(extent metadata.Extent, previous Swapchain) (Swapchain, error)
	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	AllocateCommandBuffers(count int) ([]CommandBuffer, error)
	FreeCommandBuffers(buffers []CommandBuffer)
	// BeginSingleTimeCommands returns a recording command buffer whose work
	// EndSingleTimeCommands submits and waits for before returning.
	BeginSingleTimeCommands() (CommandBuffer, error)
	EndSingleTimeCommands(cmd CommandBuffer) error
	SubmitGraphics(cmd CommandBuffer, wait, signal Semaphore, fence Fence) error
	CreateBuffer(size uint64, usage metadata.BufferUsage, properties metadata.MemoryProperty) (DeviceBuffer, error)
	CreatePipeline(config *PipelineConfig) (Pipeline, error)
	// CreateUniformDescriptorSets builds a set layout with a single uniform
	// buffer at binding 0, visible to every graphics stage, and one set per
	// buffer. The sets live until the device is destroyed.
	CreateUniformDescriptorSets(buffers []BufferInfo) (DescriptorSetLayout, []DescriptorSet, error)
	MinUniformBufferOffsetAlignment() uint64
}

// Swapchain is one generation of presentable images together with the
// framebuffers, depth attachment and render pass built for them.
type Swapchain interface {
	ImageFormat() metadata.Format
	DepthFormat() metadata.Format
	Extent() metadata.Extent
	ImageCount() int
	RenderPass() RenderPass
	Framebuffer(index uint32) Framebuffer
	// AcquireNextImage signals imageAvailable once the image is ready. The
	// error is non-nil only together with StatusFatalError.
	AcquireNextImage(imageAvailable Semaphore) (uint32, metadata.Status, error)
	Present(imageIndex uint32, renderFinished Semaphore) (metadata.Status, error)
	Destroy()
}

type Fence interface {
	// Wait blocks until the fence is signaled or timeout nanoseconds pass.
	Wait(timeout uint64) error
	Reset() error
	Destroy()
}

type Semaphore interface {
	Destroy()
}

// DeviceBuffer is a buffer handle and its backing memory, released together.
type DeviceBuffer interface {
	Size() uint64
	// Map returns a host view of size bytes starting at offset. size may be
	// metadata.WholeSize.
	Map(size, offset uint64) ([]byte, error)
	Unmap()
	Flush(size, offset uint64) error
	Invalidate(size, offset uint64) error
	IsCoherent() bool
	Destroy()
}

type Pipeline interface {
	Destroy()
}

// PipelineConfig describes a graphics pipeline for one of the render passes.
type PipelineConfig struct {
	Name string
	// SPIR-V words.
	VertexShader   []uint32
	FragmentShader []uint32
	// VertexInput enables the metadata.Vertex layout at binding 0. Passes that
	// generate geometry in the vertex shader leave it off.
	VertexInput          bool
	AlphaBlend           bool
	PushConstantStages   metadata.ShaderStage
	PushConstantSize     uint32
	RenderPass           RenderPass
	DescriptorSetLayouts []DescriptorSetLayout
}

// CommandBuffer records GPU work. Recording calls don't fail; errors surface on
// End or submission.
type CommandBuffer interface {
	Begin(singleUse bool) error
	End() error
	Reset() error

	BeginRenderPass(pass RenderPass, framebuffer Framebuffer, extent metadata.Extent, clearColor mgl32.Vec4, clearDepth float32)
	EndRenderPass()
	SetViewport(viewport metadata.Viewport)
	SetScissor(extent metadata.Extent)

	BindPipeline(pipeline Pipeline)
	BindDescriptorSet(pipeline Pipeline, set DescriptorSet)
	PushConstants(pipeline Pipeline, stages metadata.ShaderStage, offset uint32, data []byte)
	BindVertexBuffer(buffer DeviceBuffer)
	BindIndexBuffer(buffer DeviceBuffer)
	Draw(vertexCount, instanceCount uint32)
	DrawIndexed(indexCount, instanceCount uint32)

	CopyBuffer(src, dst DeviceBuffer, size uint64)
}
