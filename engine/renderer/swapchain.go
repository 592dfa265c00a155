package renderer

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

// SwapchainManager owns the current swapchain generation and the per-frame
// synchronization objects, which outlive recreation.
type SwapchainManager struct {
	device    Device
	window    Window
	swapchain Swapchain

	imageAvailableSemaphores [metadata.MaxFramesInFlight]Semaphore
	renderFinishedSemaphores [metadata.MaxFramesInFlight]Semaphore
	inFlightFences           [metadata.MaxFramesInFlight]Fence
	// imagesInFlight[i] is the fence of the frame slot last submitted with image i.
	imagesInFlight []Fence
	currentFrame   int
}

func NewSwapchainManager(device Device, window Window) (*SwapchainManager, error) {
	sm := &SwapchainManager{
		device: device,
		window: window,
	}

	sc, err := device.CreateSwapchain(sm.waitForExtent(), nil)
	if err != nil {
		err = errors.Wrap(err, "failed to create swapchain")
		core.LogError(err.Error())
		return nil, err
	}
	sm.swapchain = sc
	sm.imagesInFlight = make([]Fence, sc.ImageCount())

	if err := sm.createSyncObjects(); err != nil {
		sm.Destroy()
		return nil, err
	}
	core.LogInfo("swapchain created: %dx%d, %d images", sc.Extent().Width, sc.Extent().Height, sc.ImageCount())
	return sm, nil
}

func (sm *SwapchainManager) createSyncObjects() error {
	for i := 0; i < metadata.MaxFramesInFlight; i++ {
		var err error
		if sm.imageAvailableSemaphores[i], err = sm.device.CreateSemaphore(); err != nil {
			return errors.Wrapf(err, "failed to create image available semaphore %d", i)
		}
		if sm.renderFinishedSemaphores[i], err = sm.device.CreateSemaphore(); err != nil {
			return errors.Wrapf(err, "failed to create render finished semaphore %d", i)
		}
		// Signaled so the first wait on each slot returns immediately.
		if sm.inFlightFences[i], err = sm.device.CreateFence(true); err != nil {
			return errors.Wrapf(err, "failed to create in flight fence %d", i)
		}
	}
	return nil
}

// waitForExtent blocks while the window is minimized.
func (sm *SwapchainManager) waitForExtent() metadata.Extent {
	extent := sm.window.Extent()
	for extent.IsZero() {
		sm.window.WaitEvents()
		extent = sm.window.Extent()
	}
	return extent
}

// Recreate replaces the current generation with one sized to the window. The
// new generation must keep the image and depth formats of the old one.
func (sm *SwapchainManager) Recreate() error {
	extent := sm.waitForExtent()

	if err := sm.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "failed to wait for device idle")
	}

	previous := sm.swapchain
	sc, err := sm.device.CreateSwapchain(extent, previous)
	if err != nil {
		err = errors.Wrap(err, "failed to recreate swapchain")
		core.LogError(err.Error())
		return err
	}

	if sc.ImageFormat() != previous.ImageFormat() || sc.DepthFormat() != previous.DepthFormat() {
		sc.Destroy()
		err := errors.Wrapf(core.ErrSwapchainFormatMismatch, "image format %d -> %d, depth format %d -> %d",
			previous.ImageFormat(), sc.ImageFormat(), previous.DepthFormat(), sc.DepthFormat())
		core.LogError(err.Error())
		return err
	}

	previous.Destroy()
	sm.swapchain = sc
	sm.imagesInFlight = make([]Fence, sc.ImageCount())
	core.LogDebug("swapchain recreated: %dx%d", extent.Width, extent.Height)
	return nil
}

// AcquireNextImage waits until the current frame slot is free on the GPU and
// acquires the next presentable image.
func (sm *SwapchainManager) AcquireNextImage() (uint32, metadata.Status, error) {
	if err := sm.inFlightFences[sm.currentFrame].Wait(math.MaxUint64); err != nil {
		return 0, metadata.StatusFatalError, errors.Wrap(err, "failed to wait for in flight fence")
	}
	return sm.swapchain.AcquireNextImage(sm.imageAvailableSemaphores[sm.currentFrame])
}

// Submit queues cmd for imageIndex and presents it. The submission waits on the
// image being available and signals the semaphore presentation waits on.
func (sm *SwapchainManager) Submit(cmd CommandBuffer, imageIndex uint32) (metadata.Status, error) {
	if int(imageIndex) >= len(sm.imagesInFlight) {
		panic(errors.AssertionFailedf("image index %d out of range [0, %d)", imageIndex, len(sm.imagesInFlight)))
	}

	if fence := sm.imagesInFlight[imageIndex]; fence != nil {
		if err := fence.Wait(math.MaxUint64); err != nil {
			return metadata.StatusFatalError, errors.Wrap(err, "failed to wait for image in flight")
		}
	}
	sm.imagesInFlight[imageIndex] = sm.inFlightFences[sm.currentFrame]

	if err := sm.inFlightFences[sm.currentFrame].Reset(); err != nil {
		return metadata.StatusFatalError, errors.Wrap(err, "failed to reset in flight fence")
	}

	if err := sm.device.SubmitGraphics(cmd,
		sm.imageAvailableSemaphores[sm.currentFrame],
		sm.renderFinishedSemaphores[sm.currentFrame],
		sm.inFlightFences[sm.currentFrame]); err != nil {
		return metadata.StatusFatalError, errors.Wrap(err, "failed to submit draw command buffer")
	}

	status, err := sm.swapchain.Present(imageIndex, sm.renderFinishedSemaphores[sm.currentFrame])
	sm.currentFrame = (sm.currentFrame + 1) % metadata.MaxFramesInFlight
	return status, err
}

func (sm *SwapchainManager) RenderPass() RenderPass {
	return sm.swapchain.RenderPass()
}

func (sm *SwapchainManager) Framebuffer(index uint32) Framebuffer {
	return sm.swapchain.Framebuffer(index)
}

func (sm *SwapchainManager) Extent() metadata.Extent {
	return sm.swapchain.Extent()
}

func (sm *SwapchainManager) ExtentAspectRatio() float32 {
	return sm.swapchain.Extent().AspectRatio()
}

func (sm *SwapchainManager) ImageCount() int {
	return sm.swapchain.ImageCount()
}

func (sm *SwapchainManager) ImageFormat() metadata.Format {
	return sm.swapchain.ImageFormat()
}

func (sm *SwapchainManager) DepthFormat() metadata.Format {
	return sm.swapchain.DepthFormat()
}

func (sm *SwapchainManager) Destroy() {
	if sm.swapchain != nil {
		sm.swapchain.Destroy()
		sm.swapchain = nil
	}
	for i := 0; i < metadata.MaxFramesInFlight; i++ {
		if sm.imageAvailableSemaphores[i] != nil {
			sm.imageAvailableSemaphores[i].Destroy()
			sm.imageAvailableSemaphores[i] = nil
		}
		if sm.renderFinishedSemaphores[i] != nil {
			sm.renderFinishedSemaphores[i].Destroy()
			sm.renderFinishedSemaphores[i] = nil
		}
		if sm.inFlightFences[i] != nil {
			sm.inFlightFences[i].Destroy()
			sm.inFlightFences[i] = nil
		}
	}
	sm.imagesInFlight = nil
}
