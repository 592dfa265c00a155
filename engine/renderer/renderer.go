package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

// FrameRenderer drives one frame at a time through acquire, record, submit
// and present, cycling through metadata.MaxFramesInFlight command buffers.
type FrameRenderer struct {
	window         Window
	device         Device
	swapchain      *SwapchainManager
	commandBuffers []CommandBuffer

	currentImageIndex uint32
	currentFrameIndex int
	isFrameStarted    bool

	ClearColor mgl32.Vec4
	ClearDepth float32
}

func NewFrameRenderer(window Window, device Device) (*FrameRenderer, error) {
	sm, err := NewSwapchainManager(device, window)
	if err != nil {
		return nil, err
	}

	buffers, err := device.AllocateCommandBuffers(metadata.MaxFramesInFlight)
	if err != nil {
		sm.Destroy()
		err = errors.Wrap(err, "failed to allocate command buffers")
		core.LogError(err.Error())
		return nil, err
	}

	return &FrameRenderer{
		window:         window,
		device:         device,
		swapchain:      sm,
		commandBuffers: buffers,
		ClearColor:     mgl32.Vec4{0.01, 0.01, 0.01, 1},
		ClearDepth:     1.0,
	}, nil
}

// BeginFrame acquires the next image and starts recording. It returns a nil
// command buffer and no error when the swapchain had to be recreated; the
// caller skips this frame.
func (r *FrameRenderer) BeginFrame() (CommandBuffer, error) {
	if r.isFrameStarted {
		panic(errors.AssertionFailedf("can't call BeginFrame while a frame is already in progress"))
	}

	imageIndex, status, err := r.swapchain.AcquireNextImage()
	switch status {
	case metadata.StatusOk, metadata.StatusSuboptimal:
	case metadata.StatusSurfaceOutOfDate:
		return nil, r.recreateSwapchain()
	default:
		if err == nil {
			err = core.ErrFrameAcquire
		}
		err = errors.Wrap(err, "failed to acquire swapchain image")
		core.LogError(err.Error())
		return nil, err
	}

	r.currentImageIndex = imageIndex
	r.isFrameStarted = true

	cmd := r.CurrentCommandBuffer()
	if err := cmd.Begin(false); err != nil {
		err = errors.Wrap(err, "failed to begin recording command buffer")
		core.LogError(err.Error())
		return nil, err
	}
	return cmd, nil
}

// EndFrame finishes recording, submits and presents. Once the frame has been
// submitted the frame index advances, whether or not the swapchain is
// recreated afterwards. Fatal errors are returned before any recreation.
func (r *FrameRenderer) EndFrame() error {
	if !r.isFrameStarted {
		panic(errors.AssertionFailedf("can't call EndFrame while frame is not in progress"))
	}
	cmd := r.CurrentCommandBuffer()
	r.isFrameStarted = false

	if err := cmd.End(); err != nil {
		// Nothing was submitted, so the swapchain slot did not move either.
		err = errors.Wrap(err, "failed to record command buffer")
		core.LogError(err.Error())
		return err
	}

	status, err := r.swapchain.Submit(cmd, r.currentImageIndex)
	r.currentFrameIndex = (r.currentFrameIndex + 1) % metadata.MaxFramesInFlight

	if err != nil || status == metadata.StatusFatalError {
		if err == nil {
			err = core.ErrFramePresent
		}
		err = errors.Wrap(err, "failed to present swapchain image")
		core.LogError(err.Error())
		return err
	}
	if status.NeedsRecreate() || r.window.WasResized() {
		r.window.ResetResizedFlag()
		return r.recreateSwapchain()
	}
	return nil
}

func (r *FrameRenderer) recreateSwapchain() error {
	if err := r.swapchain.Recreate(); err != nil {
		return err
	}
	return nil
}

// BeginSwapchainRenderPass starts the swapchain render pass on cmd and points the
// dynamic viewport and scissor at the current extent.
func (r *FrameRenderer) BeginSwapchainRenderPass(cmd CommandBuffer) {
	r.assertActive(cmd, "BeginSwapchainRenderPass")

	extent := r.swapchain.Extent()
	cmd.BeginRenderPass(
		r.swapchain.RenderPass(),
		r.swapchain.Framebuffer(r.currentImageIndex),
		extent,
		r.ClearColor,
		r.ClearDepth,
	)
	cmd.SetViewport(metadata.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	cmd.SetScissor(extent)
}

func (r *FrameRenderer) EndSwapchainRenderPass(cmd CommandBuffer) {
	r.assertActive(cmd, "EndSwapchainRenderPass")
	cmd.EndRenderPass()
}

func (r *FrameRenderer) assertActive(cmd CommandBuffer, op string) {
	if !r.isFrameStarted {
		panic(errors.AssertionFailedf("can't call %s if frame is not in progress", op))
	}
	if cmd != r.commandBuffers[r.currentFrameIndex] {
		panic(errors.AssertionFailedf("can't call %s on a command buffer from a different frame", op))
	}
}

func (r *FrameRenderer) IsFrameInProgress() bool {
	return r.isFrameStarted
}

func (r *FrameRenderer) CurrentCommandBuffer() CommandBuffer {
	if !r.isFrameStarted {
		panic(errors.AssertionFailedf("cannot get command buffer when frame not in progress"))
	}
	return r.commandBuffers[r.currentFrameIndex]
}

func (r *FrameRenderer) FrameIndex() int {
	if !r.isFrameStarted {
		panic(errors.AssertionFailedf("cannot get frame index when frame not in progress"))
	}
	return r.currentFrameIndex
}

func (r *FrameRenderer) AspectRatio() float32 {
	return r.swapchain.ExtentAspectRatio()
}

func (r *FrameRenderer) ImageCount() int {
	return r.swapchain.ImageCount()
}

func (r *FrameRenderer) SwapchainRenderPass() RenderPass {
	return r.swapchain.RenderPass()
}

func (r *FrameRenderer) Swapchain() *SwapchainManager {
	return r.swapchain
}

func (r *FrameRenderer) Destroy() {
	if r.commandBuffers != nil {
		r.device.FreeCommandBuffers(r.commandBuffers)
		r.commandBuffers = nil
	}
	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
	}
}
