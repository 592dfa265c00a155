package testbed

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pa-tiq/PatiqVulkanEngine/engine"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/rendertest"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/resources"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/scene"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/systems"
)

type triangleLoader struct {
	loaded []string
}

func (l *triangleLoader) LoadAsset(filename string, params interface{}) (*resources.Resource, error) {
	l.loaded = append(l.loaded, filename)
	return &resources.Resource{
		Name: filename,
		Type: resources.ResourceTypeModel,
		Data: &metadata.MeshBuilder{
			Vertices: []metadata.Vertex{
				{Position: mgl32.Vec3{0, -.5, 0}},
				{Position: mgl32.Vec3{.5, .5, 0}},
				{Position: mgl32.Vec3{-.5, .5, 0}},
			},
		},
	}, nil
}

func newTestWorld() *engine.World {
	meshes := systems.NewMeshSystem(rendertest.NewDevice(), &triangleLoader{})
	return &engine.World{
		Config: engine.DefaultApplicationConfig(),
		Scene:  scene.New(core.NewIDAllocator(), meshes),
		Meshes: meshes,
	}
}

func TestInitializeBuildsScene(t *testing.T) {
	world := newTestWorld()
	game := NewTestGame(world.Config)
	if err := game.FnInitialize(world); err != nil {
		t.Fatal(err)
	}

	var meshObjects, lights int
	world.Scene.Each(func(obj *scene.Object) {
		if obj.HasMesh() {
			meshObjects++
		}
		if obj.IsPointLight() {
			lights++
			if obj.PointLight.LightIntensity != lightIntensity {
				t.Fatalf("light %d intensity:\nhave %g\nwant %g", obj.ID(), obj.PointLight.LightIntensity, lightIntensity)
			}
		}
	})
	if meshObjects != 3 || lights != len(lightColors) {
		t.Fatalf("scene:\nhave %d meshes, %d lights\nwant 3 meshes, %d lights", meshObjects, lights, len(lightColors))
	}
	if n := world.Meshes.Len(); n != len(models) {
		t.Fatalf("registered meshes:\nhave %d\nwant %d", n, len(models))
	}
	for name := range models {
		id, ok := world.Meshes.Lookup(name)
		if !ok {
			t.Fatalf("mesh %q not registered", name)
		}
		if refs := world.Meshes.RefCount(id); refs != 1 {
			t.Fatalf("mesh %q references:\nhave %d\nwant 1", name, refs)
		}
	}
}

func TestUpdateOrbitsLights(t *testing.T) {
	world := newTestWorld()
	game := NewTestGame(world.Config)
	if err := game.FnInitialize(world); err != nil {
		t.Fatal(err)
	}
	lights := game.state().lights
	start := make([]mgl32.Vec3, len(lights))
	for i, light := range lights {
		start[i] = light.Transform.Translation
	}

	// One sixth of a turn moves every light onto its neighbor's spot.
	step := float32(2*math.Pi/float64(len(lights))) / lightOrbitSpeed
	if err := game.FnUpdate(world, step); err != nil {
		t.Fatal(err)
	}
	for i, light := range lights {
		want := start[(i+1)%len(lights)]
		if have := light.Transform.Translation; !have.ApproxEqualThreshold(want, 1e-4) {
			t.Fatalf("light %d after a sixth of a turn:\nhave %v\nwant %v", i, have, want)
		}
	}
}
