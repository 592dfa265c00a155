package metadata

import (
	"bytes"
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
)

/**
 * @brief A single mesh vertex as laid out in the vertex buffer.
 */
type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
}

/** @brief Size in bytes of one packed Vertex. */
const VertexSize = 44

/** @brief Byte offsets of the Vertex attributes, in shader location order. */
const (
	VertexOffsetPosition = 0
	VertexOffsetColor    = 12
	VertexOffsetNormal   = 24
	VertexOffsetUV       = 36
)

/** @brief Size in bytes of one index. */
const IndexSize = 4

// VerticesToBytes packs vertices tightly, little-endian.
func VerticesToBytes(vertices []Vertex) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(vertices)*VertexSize))
	if err := binary.Write(buf, binary.LittleEndian, vertices); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// BytesToVertices is the inverse of VerticesToBytes.
func BytesToVertices(data []byte) ([]Vertex, error) {
	vertices := make([]Vertex, len(data)/VertexSize)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, vertices); err != nil {
		return nil, err
	}
	return vertices, nil
}

func IndicesToBytes(indices []uint32) []byte {
	out := make([]byte, len(indices)*IndexSize)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(out[i*IndexSize:], idx)
	}
	return out
}
