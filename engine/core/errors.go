package core

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrSwapchainBooting is returned while a swapchain is being rebuilt and no
	// image can be handed out.
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	// ErrSwapchainFormatMismatch means a recreated swapchain reported a color or
	// depth format different from the generation it replaced.
	ErrSwapchainFormatMismatch = errors.New("swapchain image or depth format has changed")
	ErrFrameAcquire            = errors.New("failed to acquire swapchain image")
	ErrFramePresent            = errors.New("failed to present swapchain image")
	ErrMeshTooSmall            = errors.New("mesh needs at least 3 vertices")
	ErrUnknownMesh             = errors.New("unknown mesh")
	ErrUnknownObject           = errors.New("unknown scene object")
	ErrPipelineCacheInvalid    = errors.New("pipeline cache header does not match device")
	ErrNoSuitableMemoryType    = errors.New("failed to find suitable memory type")
	ErrUnknown                 = errors.New("unknown")
)
