// Package rendertest provides an in-memory backend for exercising the renderer
// without a GPU. Submitted work completes immediately: fences are signaled on
// submit and buffer copies happen when single use commands end.
package rendertest

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

const (
	FormatB8G8R8A8Unorm metadata.Format = 44
	FormatD32Sfloat     metadata.Format = 126
)

// Submission is one SubmitGraphics call.
type Submission struct {
	Cmd    *CommandBuffer
	Wait   *Semaphore
	Signal *Semaphore
	Fence  *Fence
}

// Device implements renderer.Device. Exported fields script its behavior and
// record what the renderer did with it.
type Device struct {
	// Formats and image count reported by the next swapchain generation.
	ImageFormat metadata.Format
	DepthFormat metadata.Format
	ImageCount  int
	Alignment   uint64

	// Statuses handed out, in order, by AcquireNextImage and Present of any
	// generation. StatusOk once exhausted.
	AcquireScript []metadata.Status
	PresentScript []metadata.Status

	// When set, the next call of the corresponding kind fails.
	CreateSwapchainErr error
	CreateBufferErr    error

	Swapchains     []*Swapchain
	Buffers        []*Buffer
	CommandBuffers []*CommandBuffer
	SingleTime     []*CommandBuffer
	Submissions    []Submission
	Pipelines      []*Pipeline
	Fences         []*Fence
	Semaphores     []*Semaphore
	SetLayouts     []string
	DescriptorSets []*DescriptorSet
	WaitIdleCalls  int
}

// DescriptorSet is a uniform buffer binding created by CreateUniformDescriptorSets.
type DescriptorSet struct {
	ID      int
	Layout  string
	Binding renderer.BufferInfo
}

var _ renderer.Device = (*Device)(nil)

func NewDevice() *Device {
	return &Device{
		ImageFormat: FormatB8G8R8A8Unorm,
		DepthFormat: FormatD32Sfloat,
		ImageCount:  3,
		Alignment:   256,
	}
}

func (d *Device) WaitIdle() error {
	d.WaitIdleCalls++
	return nil
}

func (d *Device) CreateSwapchain(extent metadata.Extent, previous renderer.Swapchain) (renderer.Swapchain, error) {
	if err := d.CreateSwapchainErr; err != nil {
		d.CreateSwapchainErr = nil
		return nil, err
	}
	if extent.IsZero() {
		return nil, errors.Newf("zero sized swapchain requested: %dx%d", extent.Width, extent.Height)
	}
	sc := &Swapchain{
		device:     d,
		Generation: len(d.Swapchains) + 1,
		extent:     extent,
		imageFmt:   d.ImageFormat,
		depthFmt:   d.DepthFormat,
		imageCount: d.ImageCount,
		renderPass: fmt.Sprintf("renderpass-%d", len(d.Swapchains)+1),
	}
	if previous != nil {
		sc.Previous = previous.(*Swapchain)
	}
	d.Swapchains = append(d.Swapchains, sc)
	return sc, nil
}

// Current returns the latest swapchain generation.
func (d *Device) Current() *Swapchain {
	if len(d.Swapchains) == 0 {
		return nil
	}
	return d.Swapchains[len(d.Swapchains)-1]
}

func (d *Device) CreateFence(signaled bool) (renderer.Fence, error) {
	f := &Fence{Signaled: signaled}
	d.Fences = append(d.Fences, f)
	return f, nil
}

func (d *Device) CreateSemaphore() (renderer.Semaphore, error) {
	s := &Semaphore{ID: len(d.Semaphores)}
	d.Semaphores = append(d.Semaphores, s)
	return s, nil
}

func (d *Device) AllocateCommandBuffers(count int) ([]renderer.CommandBuffer, error) {
	out := make([]renderer.CommandBuffer, count)
	for i := range out {
		cb := &CommandBuffer{ID: len(d.CommandBuffers)}
		d.CommandBuffers = append(d.CommandBuffers, cb)
		out[i] = cb
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(buffers []renderer.CommandBuffer) {
	for _, b := range buffers {
		b.(*CommandBuffer).Freed = true
	}
}

func (d *Device) BeginSingleTimeCommands() (renderer.CommandBuffer, error) {
	cb := &CommandBuffer{ID: -1 - len(d.SingleTime)}
	if err := cb.Begin(true); err != nil {
		return nil, err
	}
	d.SingleTime = append(d.SingleTime, cb)
	return cb, nil
}

// EndSingleTimeCommands executes the recorded copies.
func (d *Device) EndSingleTimeCommands(cmd renderer.CommandBuffer) error {
	cb := cmd.(*CommandBuffer)
	if err := cb.End(); err != nil {
		return err
	}
	for _, c := range cb.Calls {
		if c.Op != OpCopyBuffer {
			continue
		}
		src, dst := c.Src.(*Buffer), c.Buffer.(*Buffer)
		if src.Destroyed || dst.Destroyed {
			return errors.Newf("copy between destroyed buffers %d -> %d", src.ID, dst.ID)
		}
		copy(dst.Data[:c.Size], src.Data[:c.Size])
	}
	cb.Freed = true
	return nil
}

func (d *Device) SubmitGraphics(cmd renderer.CommandBuffer, wait, signal renderer.Semaphore, fence renderer.Fence) error {
	cb := cmd.(*CommandBuffer)
	if cb.Recording {
		return errors.New("submitted command buffer is still recording")
	}
	f := fence.(*Fence)
	if f.Signaled {
		return errors.New("submitted with a signaled fence")
	}
	f.Signaled = true
	d.Submissions = append(d.Submissions, Submission{
		Cmd:    cb,
		Wait:   wait.(*Semaphore),
		Signal: signal.(*Semaphore),
		Fence:  f,
	})
	return nil
}

func (d *Device) CreateBuffer(size uint64, usage metadata.BufferUsage, properties metadata.MemoryProperty) (renderer.DeviceBuffer, error) {
	if err := d.CreateBufferErr; err != nil {
		d.CreateBufferErr = nil
		return nil, err
	}
	b := &Buffer{
		ID:         len(d.Buffers),
		Data:       make([]byte, size),
		Usage:      usage,
		Properties: properties,
	}
	d.Buffers = append(d.Buffers, b)
	return b, nil
}

func (d *Device) CreatePipeline(config *renderer.PipelineConfig) (renderer.Pipeline, error) {
	p := &Pipeline{Config: *config}
	d.Pipelines = append(d.Pipelines, p)
	return p, nil
}

func (d *Device) CreateUniformDescriptorSets(buffers []renderer.BufferInfo) (renderer.DescriptorSetLayout, []renderer.DescriptorSet, error) {
	layout := fmt.Sprintf("set-layout-%d", len(d.SetLayouts)+1)
	d.SetLayouts = append(d.SetLayouts, layout)
	sets := make([]renderer.DescriptorSet, len(buffers))
	for i, info := range buffers {
		if info.Buffer == nil {
			return nil, nil, errors.Newf("descriptor %d has no buffer", i)
		}
		set := &DescriptorSet{ID: len(d.DescriptorSets), Layout: layout, Binding: info}
		d.DescriptorSets = append(d.DescriptorSets, set)
		sets[i] = set
	}
	return layout, sets, nil
}

func (d *Device) MinUniformBufferOffsetAlignment() uint64 {
	return d.Alignment
}

// LiveBuffers counts buffers not yet destroyed.
func (d *Device) LiveBuffers() int {
	n := 0
	for _, b := range d.Buffers {
		if !b.Destroyed {
			n++
		}
	}
	return n
}

func popStatus(script *[]metadata.Status) metadata.Status {
	if len(*script) == 0 {
		return metadata.StatusOk
	}
	s := (*script)[0]
	*script = (*script)[1:]
	return s
}
