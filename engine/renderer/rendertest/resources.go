package rendertest

import (
	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

type Swapchain struct {
	device     *Device
	Generation int
	Previous   *Swapchain
	Destroyed  bool
	Acquired   []uint32
	Presented  []uint32

	extent     metadata.Extent
	imageFmt   metadata.Format
	depthFmt   metadata.Format
	imageCount int
	renderPass string
	next       uint32
}

var _ renderer.Swapchain = (*Swapchain)(nil)

func (s *Swapchain) ImageFormat() metadata.Format { return s.imageFmt }
func (s *Swapchain) DepthFormat() metadata.Format { return s.depthFmt }
func (s *Swapchain) Extent() metadata.Extent { return s.extent }
func (s *Swapchain) ImageCount() int { return s.imageCount }
func (s *Swapchain) RenderPass() renderer.RenderPass { return s.renderPass }

// Framebuffer handles are "framebuffer-<generation>-<index>".
func (s *Swapchain) Framebuffer(index uint32) renderer.Framebuffer {
	return framebufferName(s.Generation, index)
}

func (s *Swapchain) AcquireNextImage(imageAvailable renderer.Semaphore) (uint32, metadata.Status, error) {
	if s.Destroyed {
		panic(errors.AssertionFailedf("acquire on destroyed swapchain generation %d", s.Generation))
	}
	status := popStatus(&s.device.AcquireScript)
	if status == metadata.StatusFatalError {
		return 0, status, errors.New("device lost")
	}
	if status == metadata.StatusSurfaceOutOfDate {
		return 0, status, nil
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(s.imageCount)
	s.Acquired = append(s.Acquired, idx)
	return idx, status, nil
}

func (s *Swapchain) Present(imageIndex uint32, renderFinished renderer.Semaphore) (metadata.Status, error) {
	status := popStatus(&s.device.PresentScript)
	if status == metadata.StatusFatalError {
		return status, errors.New("device lost")
	}
	s.Presented = append(s.Presented, imageIndex)
	return status, nil
}

func (s *Swapchain) Destroy() {
	s.Destroyed = true
}

type Fence struct {
	Signaled  bool
	Destroyed bool
	Waits     int
}

func (f *Fence) Wait(timeout uint64) error {
	f.Waits++
	if !f.Signaled {
		return errors.New("fence would never signal")
	}
	return nil
}

func (f *Fence) Reset() error {
	f.Signaled = false
	return nil
}

func (f *Fence) Destroy() { f.Destroyed = true }

type Semaphore struct {
	ID        int
	Destroyed bool
}

func (s *Semaphore) Destroy() { s.Destroyed = true }

// Buffer is host memory standing in for device memory.
type Buffer struct {
	ID         int
	Data       []byte
	Usage      metadata.BufferUsage
	Properties metadata.MemoryProperty
	Mapped     bool
	Destroyed  bool
	Flushes    int
}

var _ renderer.DeviceBuffer = (*Buffer)(nil)

func (b *Buffer) Size() uint64 { return uint64(len(b.Data)) }

func (b *Buffer) Map(size, offset uint64) ([]byte, error) {
	if b.Properties&metadata.MemoryPropertyHostVisible == 0 {
		return nil, errors.Newf("buffer %d is not host visible", b.ID)
	}
	if size == metadata.WholeSize {
		size = uint64(len(b.Data)) - offset
	}
	b.Mapped = true
	return b.Data[offset : offset+size], nil
}

func (b *Buffer) Unmap() { b.Mapped = false }

func (b *Buffer) Flush(size, offset uint64) error {
	b.Flushes++
	return nil
}

func (b *Buffer) Invalidate(size, offset uint64) error { return nil }

func (b *Buffer) IsCoherent() bool {
	return b.Properties&metadata.MemoryPropertyHostCoherent != 0
}

func (b *Buffer) Destroy() { b.Destroyed = true }

type Pipeline struct {
	Config    renderer.PipelineConfig
	Destroyed bool
}

func (p *Pipeline) Destroy() { p.Destroyed = true }
