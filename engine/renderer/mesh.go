package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

// Mesh owns immutable device local vertex and, optionally, index buffers.
type Mesh struct {
	vertexBuffer *Buffer
	vertexCount  uint32
	indexBuffer  *Buffer
	indexCount   uint32
}

func NewMesh(device Device, builder *metadata.MeshBuilder) (*Mesh, error) {
	m := &Mesh{}
	if err := m.createVertexBuffers(device, builder.Vertices); err != nil {
		return nil, err
	}
	if err := m.createIndexBuffers(device, builder.Indices); err != nil {
		m.Destroy()
		return nil, err
	}
	return m, nil
}

func (m *Mesh) createVertexBuffers(device Device, vertices []metadata.Vertex) error {
	m.vertexCount = uint32(len(vertices))
	if m.vertexCount < 3 {
		err := errors.Wrapf(core.ErrMeshTooSmall, "got %d", m.vertexCount)
		core.LogError(err.Error())
		return err
	}

	buf, err := UploadStaged(device, metadata.VerticesToBytes(vertices),
		metadata.VertexSize, m.vertexCount, metadata.BufferUsageVertex)
	if err != nil {
		return errors.Wrap(err, "failed to upload vertex buffer")
	}
	m.vertexBuffer = buf
	return nil
}

func (m *Mesh) createIndexBuffers(device Device, indices []uint32) error {
	m.indexCount = uint32(len(indices))
	if m.indexCount == 0 {
		return nil
	}

	buf, err := UploadStaged(device, metadata.IndicesToBytes(indices),
		metadata.IndexSize, m.indexCount, metadata.BufferUsageIndex)
	if err != nil {
		return errors.Wrap(err, "failed to upload index buffer")
	}
	m.indexBuffer = buf
	return nil
}

func (m *Mesh) Bind(cmd CommandBuffer) {
	cmd.BindVertexBuffer(m.vertexBuffer.Handle())
	if m.HasIndexBuffer() {
		cmd.BindIndexBuffer(m.indexBuffer.Handle())
	}
}

func (m *Mesh) Draw(cmd CommandBuffer) {
	if m.HasIndexBuffer() {
		cmd.DrawIndexed(m.indexCount, 1)
	} else {
		cmd.Draw(m.vertexCount, 1)
	}
}

func (m *Mesh) HasIndexBuffer() bool {
	return m.indexBuffer != nil
}

func (m *Mesh) VertexCount() uint32 { return m.vertexCount }
func (m *Mesh) IndexCount() uint32 { return m.indexCount }

func (m *Mesh) VertexBuffer() *Buffer { return m.vertexBuffer }
func (m *Mesh) IndexBuffer() *Buffer { return m.indexBuffer }

func (m *Mesh) Destroy() {
	if m.vertexBuffer != nil {
		m.vertexBuffer.Destroy()
		m.vertexBuffer = nil
	}
	if m.indexBuffer != nil {
		m.indexBuffer.Destroy()
		m.indexBuffer = nil
	}
}
