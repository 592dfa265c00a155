package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

// BufferInfo is what a descriptor write needs to reference a buffer region.
type BufferInfo struct {
	Buffer DeviceBuffer
	Offset uint64
	Range  uint64
}

// Buffer holds instanceCount elements of instanceSize bytes, each starting on
// an alignmentSize boundary.
type Buffer struct {
	device Device
	buffer DeviceBuffer
	mapped []byte

	bufferSize       uint64
	instanceCount    uint32
	instanceSize     uint64
	alignmentSize    uint64
	usage            metadata.BufferUsage
	memoryProperties metadata.MemoryProperty
}

func NewBuffer(device Device, instanceSize uint64, instanceCount uint32, usage metadata.BufferUsage,
	memoryProperties metadata.MemoryProperty, minOffsetAlignment uint64) (*Buffer, error) {
	alignmentSize := metadata.GetAligned(instanceSize, minOffsetAlignment)
	bufferSize := alignmentSize * uint64(instanceCount)

	handle, err := device.CreateBuffer(bufferSize, usage, memoryProperties)
	if err != nil {
		err = errors.Wrapf(err, "failed to create buffer of %d bytes", bufferSize)
		core.LogError(err.Error())
		return nil, err
	}

	return &Buffer{
		device:           device,
		buffer:           handle,
		bufferSize:       bufferSize,
		instanceCount:    instanceCount,
		instanceSize:     instanceSize,
		alignmentSize:    alignmentSize,
		usage:            usage,
		memoryProperties: memoryProperties,
	}, nil
}

// Map maps the whole buffer. The mapping stays valid until Unmap or Destroy.
func (b *Buffer) Map() error {
	return b.MapRange(metadata.WholeSize, 0)
}

func (b *Buffer) MapRange(size, offset uint64) error {
	if b.buffer == nil {
		panic(errors.AssertionFailedf("called map on buffer before create"))
	}
	mapped, err := b.buffer.Map(size, offset)
	if err != nil {
		err = errors.Wrap(err, "failed to map buffer memory")
		core.LogError(err.Error())
		return err
	}
	b.mapped = mapped
	return nil
}

func (b *Buffer) Unmap() {
	if b.mapped != nil {
		b.buffer.Unmap()
		b.mapped = nil
	}
}

// WriteToBuffer copies data into the mapped range at offset.
func (b *Buffer) WriteToBuffer(data []byte, offset uint64) {
	if b.mapped == nil {
		panic(errors.AssertionFailedf("cannot copy to unmapped buffer"))
	}
	if offset+uint64(len(data)) > uint64(len(b.mapped)) {
		panic(errors.AssertionFailedf("write of %d bytes at %d overflows mapping of %d bytes", len(data), offset, len(b.mapped)))
	}
	copy(b.mapped[offset:], data)
}

// Flush makes host writes to the whole buffer visible to the device. It does
// nothing for host coherent memory.
func (b *Buffer) Flush() error {
	return b.FlushRange(metadata.WholeSize, 0)
}

func (b *Buffer) FlushRange(size, offset uint64) error {
	if b.IsCoherent() {
		return nil
	}
	return b.buffer.Flush(size, offset)
}

// Invalidate makes device writes visible to the host. It does nothing for
// host coherent memory.
func (b *Buffer) Invalidate() error {
	return b.InvalidateRange(metadata.WholeSize, 0)
}

func (b *Buffer) InvalidateRange(size, offset uint64) error {
	if b.IsCoherent() {
		return nil
	}
	return b.buffer.Invalidate(size, offset)
}

func (b *Buffer) DescriptorInfo() BufferInfo {
	return b.DescriptorInfoRange(metadata.WholeSize, 0)
}

func (b *Buffer) DescriptorInfoRange(size, offset uint64) BufferInfo {
	return BufferInfo{Buffer: b.buffer, Offset: offset, Range: size}
}

func (b *Buffer) WriteToIndex(data []byte, index uint32) {
	b.WriteToBuffer(data, uint64(index)*b.alignmentSize)
}

func (b *Buffer) FlushIndex(index uint32) error {
	return b.FlushRange(b.alignmentSize, uint64(index)*b.alignmentSize)
}

func (b *Buffer) InvalidateIndex(index uint32) error {
	return b.InvalidateRange(b.alignmentSize, uint64(index)*b.alignmentSize)
}

func (b *Buffer) DescriptorInfoForIndex(index uint32) BufferInfo {
	return b.DescriptorInfoRange(b.alignmentSize, uint64(index)*b.alignmentSize)
}

func (b *Buffer) IsCoherent() bool {
	return b.memoryProperties&metadata.MemoryPropertyHostCoherent != 0
}

func (b *Buffer) Handle() DeviceBuffer { return b.buffer }
func (b *Buffer) MappedMemory() []byte { return b.mapped }
func (b *Buffer) InstanceCount() uint32 { return b.instanceCount }
func (b *Buffer) InstanceSize() uint64 { return b.instanceSize }
func (b *Buffer) AlignmentSize() uint64 { return b.alignmentSize }
func (b *Buffer) BufferSize() uint64 { return b.bufferSize }
func (b *Buffer) Usage() metadata.BufferUsage { return b.usage }
func (b *Buffer) MemoryProperties() metadata.MemoryProperty { return b.memoryProperties }

// Destroy unmaps and releases the buffer together with its memory.
func (b *Buffer) Destroy() {
	if b.buffer == nil {
		return
	}
	b.Unmap()
	b.buffer.Destroy()
	b.buffer = nil
}

// UploadStaged creates a device local buffer with the given usage and fills it
// with data through a host visible staging buffer. The copy has completed on
// the device when UploadStaged returns.
func UploadStaged(device Device, data []byte, instanceSize uint64, instanceCount uint32, usage metadata.BufferUsage) (*Buffer, error) {
	staging, err := NewBuffer(device, instanceSize, instanceCount,
		metadata.BufferUsageTransferSrc,
		metadata.MemoryPropertyHostVisible|metadata.MemoryPropertyHostCoherent, 1)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	if uint64(len(data)) > staging.BufferSize() {
		panic(errors.AssertionFailedf("upload of %d bytes exceeds buffer of %d bytes", len(data), staging.BufferSize()))
	}
	if err := staging.Map(); err != nil {
		return nil, err
	}
	staging.WriteToBuffer(data, 0)

	dst, err := NewBuffer(device, instanceSize, instanceCount,
		usage|metadata.BufferUsageTransferDst,
		metadata.MemoryPropertyDeviceLocal, 1)
	if err != nil {
		return nil, err
	}

	if err := CopyBuffer(device, staging.Handle(), dst.Handle(), staging.BufferSize()); err != nil {
		dst.Destroy()
		return nil, err
	}
	return dst, nil
}

// CopyBuffer copies size bytes from src to dst on a single use command buffer
// and waits for it.
func CopyBuffer(device Device, src, dst DeviceBuffer, size uint64) error {
	cmd, err := device.BeginSingleTimeCommands()
	if err != nil {
		return errors.Wrap(err, "failed to begin copy commands")
	}
	cmd.CopyBuffer(src, dst, size)
	if err := device.EndSingleTimeCommands(cmd); err != nil {
		return errors.Wrap(err, "failed to submit copy commands")
	}
	return nil
}

// ReadBack copies the device contents of b into host memory.
func (b *Buffer) ReadBack() ([]byte, error) {
	staging, err := NewBuffer(b.device, b.bufferSize, 1,
		metadata.BufferUsageTransferDst,
		metadata.MemoryPropertyHostVisible|metadata.MemoryPropertyHostCoherent, 1)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	if err := CopyBuffer(b.device, b.buffer, staging.Handle(), b.bufferSize); err != nil {
		return nil, err
	}
	if err := staging.Map(); err != nil {
		return nil, err
	}
	if err := staging.Invalidate(); err != nil {
		return nil, err
	}
	out := make([]byte, b.bufferSize)
	copy(out, staging.MappedMemory())
	return out, nil
}
