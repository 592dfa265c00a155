package metadata

/**
 * @brief CPU side mesh data, before upload. Indices are optional.
 */
type MeshBuilder struct {
	Vertices []Vertex
	Indices  []uint32
}

func (b *MeshBuilder) VertexCount() uint32 {
	return uint32(len(b.Vertices))
}

func (b *MeshBuilder) IndexCount() uint32 {
	return uint32(len(b.Indices))
}
