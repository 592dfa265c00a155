package components

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

/**
 * @brief Position, scale and Tait-Bryan rotation (radians) of a scene object.
 */
type Transform struct {
	Translation mgl32.Vec3
	Scale       mgl32.Vec3
	Rotation    mgl32.Vec3
}

func NewTransform() Transform {
	return Transform{Scale: mgl32.Vec3{1, 1, 1}}
}

func sincos(angle float32) (float32, float32) {
	s, c := math.Sincos(float64(angle))
	return float32(s), float32(c)
}

// Mat4 returns Translate * Ry * Rx * Rz * Scale.
func (t *Transform) Mat4() mgl32.Mat4 {
	s3, c3 := sincos(t.Rotation.Z())
	s2, c2 := sincos(t.Rotation.X())
	s1, c1 := sincos(t.Rotation.Y())
	sx, sy, sz := t.Scale.Elem()
	tx, ty, tz := t.Translation.Elem()

	return mgl32.Mat4{
		sx * (c1*c3 + s1*s2*s3), sx * (c2 * s3), sx * (c1*s2*s3 - c3*s1), 0,
		sy * (c3*s1*s2 - c1*s3), sy * (c2 * c3), sy * (c1*c3*s2 + s1*s3), 0,
		sz * (c2 * s1), sz * (-s2), sz * (c1 * c2), 0,
		tx, ty, tz, 1,
	}
}

// NormalMatrix is the inverse transpose of the upper 3x3 of Mat4, widened to
// a Mat4 for std140 push constants.
func (t *Transform) NormalMatrix() mgl32.Mat4 {
	s3, c3 := sincos(t.Rotation.Z())
	s2, c2 := sincos(t.Rotation.X())
	s1, c1 := sincos(t.Rotation.Y())
	ix, iy, iz := 1/t.Scale.X(), 1/t.Scale.Y(), 1/t.Scale.Z()

	return mgl32.Mat3{
		ix * (c1*c3 + s1*s2*s3), ix * (c2 * s3), ix * (c1*s2*s3 - c3*s1),
		iy * (c3*s1*s2 - c1*s3), iy * (c2 * c3), iy * (c1*c3*s2 + s1*s3),
		iz * (c2 * s1), iz * (-s2), iz * (c1 * c2),
	}.Mat4()
}
