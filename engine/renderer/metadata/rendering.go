package metadata

import (
	"bytes"
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
)

/** @brief Capacity of the point light array in the global uniform block. */
const MaxLights = 10

type PointLightUniform struct {
	/** @brief World position, w ignored. */
	Position mgl32.Vec4
	/** @brief RGB color, w is intensity. */
	Color mgl32.Vec4
}

/**
 * @brief Per-frame uniform data shared by every pass. Serialized in std140 layout.
 */
type GlobalUbo struct {
	Projection        mgl32.Mat4
	View              mgl32.Mat4
	InverseView       mgl32.Mat4
	AmbientLightColor mgl32.Vec4
	PointLights       [MaxLights]PointLightUniform
	NumLights         int32
	_                 [3]int32
}

/** @brief Size in bytes of a serialized GlobalUbo. */
const GlobalUboSize = 3*64 + 16 + MaxLights*32 + 16

func NewGlobalUbo() GlobalUbo {
	return GlobalUbo{
		Projection:        mgl32.Ident4(),
		View:              mgl32.Ident4(),
		InverseView:       mgl32.Ident4(),
		AmbientLightColor: mgl32.Vec4{1, 1, 1, .02},
	}
}

func (u *GlobalUbo) Bytes() []byte {
	return structBytes(u, GlobalUboSize)
}

/**
 * @brief Per-object push constants of the mesh pass.
 */
type SimplePushConstantData struct {
	ModelMatrix  mgl32.Mat4
	NormalMatrix mgl32.Mat4
}

const SimplePushConstantSize = 128

func (p *SimplePushConstantData) Bytes() []byte {
	return structBytes(p, SimplePushConstantSize)
}

/**
 * @brief Per-light push constants of the point light pass.
 */
type PointLightPushConstants struct {
	Position mgl32.Vec4
	Color    mgl32.Vec4
	Radius   float32
}

const PointLightPushConstantSize = 36

func (p *PointLightPushConstants) Bytes() []byte {
	return structBytes(p, PointLightPushConstantSize)
}

func structBytes(v interface{}, size int) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
