package metadata

/** @brief Number of frames the CPU may record ahead of the GPU. */
const MaxFramesInFlight = 2

/** @brief Width and height of a drawable surface, in pixels. */
type Extent struct {
	Width  uint32
	Height uint32
}

func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent) AspectRatio() float32 {
	if e.Height == 0 {
		return 0
	}
	return float32(e.Width) / float32(e.Height)
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

/** @brief Backend independent pixel format identifier. Compared bit-for-bit across swapchain generations. */
type Format uint32

/**
 * @brief Outcome of an acquire or present call on the swapchain.
 */
type Status int

const (
	/** @brief The operation succeeded. */
	StatusOk Status = iota
	/** @brief The surface changed and the swapchain must be recreated before use. */
	StatusSurfaceOutOfDate
	/** @brief The image can still be presented, but the swapchain should be recreated. */
	StatusSuboptimal
	/** @brief Unrecoverable failure. */
	StatusFatalError
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusSurfaceOutOfDate:
		return "surface out of date"
	case StatusSuboptimal:
		return "suboptimal"
	default:
		return "fatal error"
	}
}

// NeedsRecreate reports whether the swapchain should be rebuilt after this status.
func (s Status) NeedsRecreate() bool {
	return s == StatusSurfaceOutOfDate || s == StatusSuboptimal
}

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageIndex
	BufferUsageVertex
)

type MemoryProperty uint32

const (
	MemoryPropertyDeviceLocal MemoryProperty = 1 << iota
	MemoryPropertyHostVisible
	MemoryPropertyHostCoherent
)

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
)

/** @brief Whole size sentinel for map/flush ranges. */
const WholeSize = ^uint64(0)
