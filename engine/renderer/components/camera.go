package components

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultUp points down the Y axis: Vulkan clip space has +Y going down.
var DefaultUp = mgl32.Vec3{0, -1, 0}

/**
 * @brief Projection and view state for rendering. Depth maps to [0, 1].
 */
type Camera struct {
	projectionMatrix  mgl32.Mat4
	viewMatrix        mgl32.Mat4
	inverseViewMatrix mgl32.Mat4
}

func NewCamera() *Camera {
	return &Camera{
		projectionMatrix:  mgl32.Ident4(),
		viewMatrix:        mgl32.Ident4(),
		inverseViewMatrix: mgl32.Ident4(),
	}
}

func (c *Camera) SetOrthographicProjection(left, right, top, bottom, near, far float32) {
	p := mgl32.Ident4()
	p.Set(0, 0, 2/(right-left))
	p.Set(1, 1, 2/(bottom-top))
	p.Set(2, 2, 1/(far-near))
	p.Set(0, 3, -(right+left)/(right-left))
	p.Set(1, 3, -(bottom+top)/(bottom-top))
	p.Set(2, 3, -near/(far-near))
	c.projectionMatrix = p
}

func (c *Camera) SetPerspectiveProjection(fovy, aspect, near, far float32) {
	if aspect == 0 {
		return
	}
	tanHalfFovy := float32(math.Tan(float64(fovy / 2)))
	var p mgl32.Mat4
	p.Set(0, 0, 1/(aspect*tanHalfFovy))
	p.Set(1, 1, 1/tanHalfFovy)
	p.Set(2, 2, far/(far-near))
	p.Set(3, 2, 1)
	p.Set(2, 3, -(far*near)/(far-near))
	c.projectionMatrix = p
}

// SetViewDirection points the camera at position along direction. up defaults
// to DefaultUp when zero.
func (c *Camera) SetViewDirection(position, direction, up mgl32.Vec3) {
	if up.Len() == 0 {
		up = DefaultUp
	}
	w := direction.Normalize()
	u := w.Cross(up).Normalize()
	v := w.Cross(u)
	c.setBasis(position, u, v, w)
}

func (c *Camera) SetViewTarget(position, target, up mgl32.Vec3) {
	c.SetViewDirection(position, target.Sub(position), up)
}

// SetViewYXZ orients the camera with the same Y, X, Z rotation order used by
// Transform.
func (c *Camera) SetViewYXZ(position, rotation mgl32.Vec3) {
	s3, c3 := sincos(rotation.Z())
	s2, c2 := sincos(rotation.X())
	s1, c1 := sincos(rotation.Y())
	u := mgl32.Vec3{c1*c3 + s1*s2*s3, c2 * s3, c1*s2*s3 - c3*s1}
	v := mgl32.Vec3{c3*s1*s2 - c1*s3, c2 * c3, c1*c3*s2 + s1*s3}
	w := mgl32.Vec3{c2 * s1, -s2, c1 * c2}
	c.setBasis(position, u, v, w)
}

// setBasis builds the view matrix from an orthonormal camera basis and its inverse.
func (c *Camera) setBasis(position, u, v, w mgl32.Vec3) {
	view := mgl32.Ident4()
	view.SetRow(0, u.Vec4(-u.Dot(position)))
	view.SetRow(1, v.Vec4(-v.Dot(position)))
	view.SetRow(2, w.Vec4(-w.Dot(position)))
	c.viewMatrix = view

	inverse := mgl32.Ident4()
	inverse.SetCol(0, u.Vec4(0))
	inverse.SetCol(1, v.Vec4(0))
	inverse.SetCol(2, w.Vec4(0))
	inverse.SetCol(3, position.Vec4(1))
	c.inverseViewMatrix = inverse
}

func (c *Camera) Projection() mgl32.Mat4 {
	return c.projectionMatrix
}

func (c *Camera) View() mgl32.Mat4 {
	return c.viewMatrix
}

func (c *Camera) InverseView() mgl32.Mat4 {
	return c.inverseViewMatrix
}

// Position is the translation column of the inverse view matrix.
func (c *Camera) Position() mgl32.Vec3 {
	return c.inverseViewMatrix.Col(3).Vec3()
}
