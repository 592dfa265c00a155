package testbed

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pa-tiq/PatiqVulkanEngine/engine"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/scene"
)

const (
	lightIntensity = .2
	lightRadius    = .1
	// Lights orbit the -Y axis at this many radians per second.
	lightOrbitSpeed = .5
)

var lightColors = []mgl32.Vec3{
	{1, .1, .1},
	{.1, .1, 1},
	{.1, 1, .1},
	{1, 1, .1},
	{.1, 1, 1},
	{1, 1, 1},
}

var models = map[string]string{
	"flat_vase":   "flat_vase.obj",
	"smooth_vase": "smooth_vase.obj",
	"quad":        "quad.obj",
}

type TestGame struct {
	*engine.Game
}

type gameState struct {
	lights []*scene.Object
	width  uint32
	height uint32
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				width:  config.Window.Width,
				height: config.Window.Height,
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

// Initialize loads the vases and the floor and places six colored lights on
// a circle above them.
func (g *TestGame) Initialize(world *engine.World) error {
	core.LogInfo("initializing testbed...")

	ids, err := world.Meshes.LoadAll(context.Background(), models)
	if err != nil {
		return errors.Wrap(err, "failed to load testbed models")
	}

	place := func(mesh string, translation, scale mgl32.Vec3) error {
		obj := world.Scene.CreateObject()
		obj.Transform.Translation = translation
		obj.Transform.Scale = scale
		return world.Scene.AttachMesh(obj, ids[mesh])
	}
	if err := place("flat_vase", mgl32.Vec3{-.5, .5, 0}, mgl32.Vec3{3, 1.5, 3}); err != nil {
		return err
	}
	if err := place("smooth_vase", mgl32.Vec3{.5, .5, 0}, mgl32.Vec3{3, 1.5, 3}); err != nil {
		return err
	}
	if err := place("quad", mgl32.Vec3{0, .5, 0}, mgl32.Vec3{3, 1, 3}); err != nil {
		return err
	}

	state := g.state()
	state.lights = state.lights[:0]
	for i, color := range lightColors {
		light := world.Scene.MakePointLight(lightIntensity, lightRadius, color)
		angle := float32(i) * 2 * math.Pi / float32(len(lightColors))
		rotate := mgl32.HomogRotate3D(angle, mgl32.Vec3{0, -1, 0})
		light.Transform.Translation = rotate.Mul4x1(mgl32.Vec4{-1, -1, -1, 1}).Vec3()
		state.lights = append(state.lights, light)
	}

	core.LogInfo("testbed scene ready: %d objects, %d lights", world.Scene.Len(), len(state.lights))
	return nil
}

// Update spins the lights around the vertical axis.
func (g *TestGame) Update(world *engine.World, deltaTime float32) error {
	state := g.state()
	orbit := mgl32.HomogRotate3D(lightOrbitSpeed*deltaTime, mgl32.Vec3{0, -1, 0})
	for _, light := range state.lights {
		light.Transform.Translation = orbit.Mul4x1(light.Transform.Translation.Vec4(1)).Vec3()
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	return nil
}
