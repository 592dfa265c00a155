package systems

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	emath "github.com/pa-tiq/PatiqVulkanEngine/engine/math"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/components"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/scene"
)

const DefaultCameraName = "default"

type CameraSystemConfig struct {
	MaxCameraCount uint16
	// Vertical field of view in degrees.
	FovDegrees float32
	Near       float32
	Far        float32
}

type cameraLookup struct {
	camera         *components.Camera
	referenceCount uint16
}

/**
 * @brief Named cameras with reference counting, plus a default camera that
 * always exists and is never released.
 */
type CameraSystem struct {
	Config        CameraSystemConfig
	DefaultCamera *components.Camera
	lookup        map[string]*cameraLookup
}

func NewCameraSystem(config CameraSystemConfig) (*CameraSystem, error) {
	if config.MaxCameraCount == 0 {
		err := errors.New("camera system config.MaxCameraCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	if config.Near <= 0 || config.Far <= config.Near {
		err := errors.Newf("camera system needs 0 < near < far, got near %f far %f", config.Near, config.Far)
		core.LogError(err.Error())
		return nil, err
	}
	return &CameraSystem{
		Config:        config,
		DefaultCamera: components.NewCamera(),
		lookup:        make(map[string]*cameraLookup),
	}, nil
}

/**
 * @brief Acquires a camera by name, creating it on first use. The internal
 * reference counter is incremented.
 */
func (cs *CameraSystem) Acquire(name string) (*components.Camera, error) {
	if name == DefaultCameraName {
		return cs.DefaultCamera, nil
	}
	entry, ok := cs.lookup[name]
	if !ok {
		if len(cs.lookup) >= int(cs.Config.MaxCameraCount) {
			err := errors.Newf("no free slot for camera '%s'. Adjust camera system config to allow more", name)
			core.LogError(err.Error())
			return nil, err
		}
		core.LogDebug("creating new camera named '%s'...", name)
		entry = &cameraLookup{camera: components.NewCamera()}
		cs.lookup[name] = entry
	}
	entry.referenceCount++
	return entry.camera, nil
}

/**
 * @brief Releases a camera by name. When the counter reaches 0 the camera is
 * dropped and the name can be reused.
 */
func (cs *CameraSystem) Release(name string) {
	if name == DefaultCameraName {
		core.LogDebug("cannot release default camera. Nothing was done.")
		return
	}
	entry, ok := cs.lookup[name]
	if !ok {
		core.LogWarn("camera release failed lookup for '%s'. Nothing was done.", name)
		return
	}
	entry.referenceCount--
	if entry.referenceCount == 0 {
		delete(cs.lookup, name)
	}
}

func (cs *CameraSystem) GetDefault() *components.Camera {
	return cs.DefaultCamera
}

// Follow places camera at the viewer transform and refreshes its perspective
// for the given aspect ratio.
func (cs *CameraSystem) Follow(camera *components.Camera, viewer *scene.Object, aspect float32) {
	camera.SetViewYXZ(viewer.Transform.Translation, viewer.Transform.Rotation)
	camera.SetPerspectiveProjection(mgl32.DegToRad(cs.Config.FovDegrees), aspect, cs.Config.Near, cs.Config.Far)
}

// KeyState reports whether a key is held. Implemented by core.Input.
type KeyState interface {
	IsKeyDown(key core.KeyCode) bool
}

type KeyMappings struct {
	MoveLeft     core.KeyCode
	MoveRight    core.KeyCode
	MoveForward  core.KeyCode
	MoveBackward core.KeyCode
	MoveUp       core.KeyCode
	MoveDown     core.KeyCode
	LookLeft     core.KeyCode
	LookRight    core.KeyCode
	LookUp       core.KeyCode
	LookDown     core.KeyCode
}

func DefaultKeyMappings() KeyMappings {
	return KeyMappings{
		MoveLeft:     core.KEY_A,
		MoveRight:    core.KEY_D,
		MoveForward:  core.KEY_W,
		MoveBackward: core.KEY_S,
		MoveUp:       core.KEY_E,
		MoveDown:     core.KEY_Q,
		LookLeft:     core.KEY_LEFT,
		LookRight:    core.KEY_RIGHT,
		LookUp:       core.KEY_UP,
		LookDown:     core.KEY_DOWN,
	}
}

const maxPitch = 1.5

// KeyboardMovementController flies an object around with the keyboard.
type KeyboardMovementController struct {
	Keys      KeyMappings
	MoveSpeed float32
	LookSpeed float32
}

func NewKeyboardMovementController() *KeyboardMovementController {
	return &KeyboardMovementController{
		Keys:      DefaultKeyMappings(),
		MoveSpeed: 3,
		LookSpeed: 1.5,
	}
}

// MoveInPlaneXZ applies one frame of input to obj. Movement stays parallel to
// the XZ plane regardless of pitch.
func (c *KeyboardMovementController) MoveInPlaneXZ(keys KeyState, dt float32, obj *scene.Object) {
	var rotate mgl32.Vec3
	if keys.IsKeyDown(c.Keys.LookRight) {
		rotate[1]++
	}
	if keys.IsKeyDown(c.Keys.LookLeft) {
		rotate[1]--
	}
	if keys.IsKeyDown(c.Keys.LookUp) {
		rotate[0]++
	}
	if keys.IsKeyDown(c.Keys.LookDown) {
		rotate[0]--
	}
	if rotate.Dot(rotate) > 0 {
		obj.Transform.Rotation = obj.Transform.Rotation.Add(rotate.Normalize().Mul(c.LookSpeed * dt))
	}

	rot := &obj.Transform.Rotation
	rot[0] = emath.Clamp(rot[0], -maxPitch, maxPitch)
	rot[1] = emath.WrapRadians(rot[1])

	yaw := float64(rot[1])
	forward := mgl32.Vec3{float32(math.Sin(yaw)), 0, float32(math.Cos(yaw))}
	right := mgl32.Vec3{forward.Z(), 0, -forward.X()}
	up := mgl32.Vec3{0, -1, 0}

	var move mgl32.Vec3
	if keys.IsKeyDown(c.Keys.MoveForward) {
		move = move.Add(forward)
	}
	if keys.IsKeyDown(c.Keys.MoveBackward) {
		move = move.Sub(forward)
	}
	if keys.IsKeyDown(c.Keys.MoveRight) {
		move = move.Add(right)
	}
	if keys.IsKeyDown(c.Keys.MoveLeft) {
		move = move.Sub(right)
	}
	if keys.IsKeyDown(c.Keys.MoveUp) {
		move = move.Add(up)
	}
	if keys.IsKeyDown(c.Keys.MoveDown) {
		move = move.Sub(up)
	}
	if move.Dot(move) > 0 {
		obj.Transform.Translation = obj.Transform.Translation.Add(move.Normalize().Mul(c.MoveSpeed * dt))
	}
}
