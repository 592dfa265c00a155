package engine

import (
	"github.com/pa-tiq/PatiqVulkanEngine/engine/scene"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/systems"
)

// World is what a game gets to populate and animate. It is owned by the
// engine and valid between Initialize and Shutdown.
type World struct {
	Config *ApplicationConfig
	Scene  *scene.Scene
	Meshes *systems.MeshSystem
	// Viewer carries the camera transform driven by the keyboard controller.
	Viewer *scene.Object
}

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnOnResize        OnResize
}

type Initialize func(world *World) error
type Update func(world *World, deltaTime float32) error
type OnResize func(width uint32, height uint32) error
