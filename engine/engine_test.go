package engine

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/components"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/rendertest"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/scene"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/systems"
)

func TestDefaultApplicationConfig(t *testing.T) {
	cfg, err := LoadApplicationConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("missing config file: %v", err)
	}
	if *cfg != *DefaultApplicationConfig() {
		t.Fatalf("config:\nhave %+v\nwant %+v", *cfg, *DefaultApplicationConfig())
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadApplicationConfigOverlay(t *testing.T) {
	path := writeConfig(t, `
[window]
width = 1280
height = 720

[renderer]
prefer_mailbox = false

[camera]
fov_degrees = 70
`)
	cfg, err := LoadApplicationConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	want := DefaultApplicationConfig()
	want.Window.Width, want.Window.Height = 1280, 720
	want.Renderer.PreferMailbox = false
	want.Camera.FovDegrees = 70
	if *cfg != *want {
		t.Fatalf("config:\nhave %+v\nwant %+v", *cfg, *want)
	}
}

func TestLoadApplicationConfigRejects(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
	}{
		{"syntax", "[window\nwidth = 1"},
		{"zero width", "[window]\nwidth = 0"},
		{"far before near", "[camera]\nnear = 10.0\nfar = 1.0"},
		{"fov", "[camera]\nfov_degrees = 180.0"},
	} {
		if _, err := LoadApplicationConfig(writeConfig(t, tc.body)); err == nil {
			t.Fatalf("%s: want error", tc.name)
		}
	}
}

type shaderMap map[string][]uint32

func (m shaderMap) LoadShader(name string) ([]uint32, error) {
	code, ok := m[name]
	if !ok {
		return nil, errors.Newf("no shader %s", name)
	}
	return code, nil
}

func testShaders() shaderMap {
	return shaderMap{
		SimpleVertexShader:       {1},
		SimpleFragmentShader:     {2},
		PointLightVertexShader:   {3},
		PointLightFragmentShader: {4},
	}
}

type sceneFixture struct {
	device *rendertest.Device
	window *rendertest.Window
	sr     *SceneRenderer
	meshes *systems.MeshSystem
	scene  *scene.Scene
	camera *components.Camera
}

func newSceneFixture(t *testing.T) *sceneFixture {
	t.Helper()
	f := &sceneFixture{
		device: rendertest.NewDevice(),
		window: rendertest.NewWindow(800, 600),
		camera: components.NewCamera(),
	}
	var err error
	f.sr, err = NewSceneRenderer(f.window, f.device, testShaders())
	if err != nil {
		t.Fatalf("NewSceneRenderer: %v", err)
	}
	f.meshes = systems.NewMeshSystem(f.device, nil)
	f.scene = scene.New(core.NewIDAllocator(), f.meshes)
	return f
}

func (f *sceneFixture) populate(t *testing.T) {
	t.Helper()
	id, err := f.meshes.Create("triangle", &metadata.MeshBuilder{
		Vertices: []metadata.Vertex{
			{Position: mgl32.Vec3{0, -.5, 0}},
			{Position: mgl32.Vec3{.5, .5, 0}},
			{Position: mgl32.Vec3{-.5, .5, 0}},
		},
		Indices: []uint32{0, 1, 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.scene.AttachMesh(f.scene.CreateObject(), id); err != nil {
		t.Fatal(err)
	}
	f.scene.MakePointLight(.2, .1, mgl32.Vec3{1, 0, 0}).Transform.Translation = mgl32.Vec3{0, 0, 1}
	f.scene.MakePointLight(.2, .1, mgl32.Vec3{0, 0, 1}).Transform.Translation = mgl32.Vec3{0, 0, 5}
}

func pushZ(call rendertest.Call) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(call.Data[8:]))
}

func TestSceneRendererDrawFrame(t *testing.T) {
	f := newSceneFixture(t)
	f.populate(t)

	if n := len(f.device.Pipelines); n != 2 {
		t.Fatalf("pipelines:\nhave %d\nwant 2", n)
	}
	if n := f.sr.FrameRenderer().ImageCount(); n != f.device.ImageCount {
		t.Fatalf("swapchain images:\nhave %d\nwant %d", n, f.device.ImageCount)
	}

	drawn, err := f.sr.DrawFrame(1./60, f.camera, f.scene, f.meshes)
	if err != nil || !drawn {
		t.Fatalf("DrawFrame:\nhave %v, %v\nwant true, nil", drawn, err)
	}
	if n := len(f.device.Submissions); n != 1 {
		t.Fatalf("submissions:\nhave %d\nwant 1", n)
	}
	cmd := f.device.Submissions[0].Cmd

	draws := cmd.Draws()
	wantOps := []string{rendertest.OpDrawIndexed, rendertest.OpDraw, rendertest.OpDraw}
	if len(draws) != len(wantOps) {
		t.Fatalf("draw count:\nhave %d\nwant %d", len(draws), len(wantOps))
	}
	for i, op := range wantOps {
		if draws[i].Op != op {
			t.Fatalf("draw %d:\nhave %s\nwant %s", i, draws[i].Op, op)
		}
	}

	pushes := cmd.Filter(rendertest.OpPushConstants)
	if len(pushes) != 3 {
		t.Fatalf("push count:\nhave %d\nwant 3", len(pushes))
	}
	if have := pushZ(pushes[1]); have != 5 {
		t.Fatalf("first light z:\nhave %g\nwant 5", have)
	}
	if have := pushZ(pushes[2]); have != 1 {
		t.Fatalf("second light z:\nhave %g\nwant 1", have)
	}

	ops := cmd.Ops()
	if ops[0] != rendertest.OpBeginRenderPass || ops[len(ops)-1] != rendertest.OpEndRenderPass {
		t.Fatalf("render pass bracket:\nhave %v", ops)
	}

	numLights := int32(binary.LittleEndian.Uint32(f.sr.uboBuffers[0].MappedMemory()[metadata.GlobalUboSize-16:]))
	if numLights != 2 {
		t.Fatalf("NumLights in frame 0 uniform buffer:\nhave %d\nwant 2", numLights)
	}
}

func TestSceneRendererCyclesGlobalSets(t *testing.T) {
	f := newSceneFixture(t)
	f.populate(t)

	for frame := 0; frame < 3; frame++ {
		if _, err := f.sr.DrawFrame(1./60, f.camera, f.scene, f.meshes); err != nil {
			t.Fatal(err)
		}
		cmd := f.device.Submissions[frame].Cmd
		want := f.sr.globalSets[frame%metadata.MaxFramesInFlight]
		for _, bind := range cmd.Filter(rendertest.OpBindDescriptorSet) {
			if bind.Set != want {
				t.Fatalf("frame %d bound set:\nhave %v\nwant %v", frame, bind.Set, want)
			}
		}
	}
}

func TestSceneRendererSkipsFrameOnRecreate(t *testing.T) {
	f := newSceneFixture(t)
	f.device.AcquireScript = []metadata.Status{metadata.StatusSurfaceOutOfDate}

	drawn, err := f.sr.DrawFrame(1./60, f.camera, f.scene, f.meshes)
	if err != nil || drawn {
		t.Fatalf("DrawFrame:\nhave %v, %v\nwant false, nil", drawn, err)
	}
	if n := len(f.device.Swapchains); n != 2 {
		t.Fatalf("swapchain generations:\nhave %d\nwant 2", n)
	}
	if drawn, err := f.sr.DrawFrame(1./60, f.camera, f.scene, f.meshes); err != nil || !drawn {
		t.Fatalf("DrawFrame after recreate:\nhave %v, %v\nwant true, nil", drawn, err)
	}
}

func TestSceneRendererReloadShaders(t *testing.T) {
	f := newSceneFixture(t)
	old := append([]*rendertest.Pipeline(nil), f.device.Pipelines...)

	shaders := testShaders()
	shaders[SimpleFragmentShader] = []uint32{20}
	if err := f.sr.ReloadShaders(shaders); err != nil {
		t.Fatal(err)
	}
	if f.device.WaitIdleCalls == 0 {
		t.Fatal("ReloadShaders did not wait for the device")
	}
	if n := len(f.device.Pipelines); n != 4 {
		t.Fatalf("pipelines:\nhave %d\nwant 4", n)
	}
	for i, p := range old {
		if !p.Destroyed {
			t.Fatalf("old pipeline %d was not destroyed", i)
		}
	}
	if have := f.device.Pipelines[2].Config.FragmentShader[0]; have != 20 {
		t.Fatalf("rebuilt fragment shader:\nhave %d\nwant 20", have)
	}

	delete(shaders, PointLightVertexShader)
	if err := f.sr.ReloadShaders(shaders); err == nil {
		t.Fatal("ReloadShaders with a missing stage: want error")
	}
	if n := len(f.device.Pipelines); n != 4 {
		t.Fatalf("pipelines after failed reload:\nhave %d\nwant 4", n)
	}
}

func TestSceneRendererReloadAfterResize(t *testing.T) {
	f := newSceneFixture(t)
	f.populate(t)

	f.window.Resize(1024, 768)
	if _, err := f.sr.DrawFrame(1./60, f.camera, f.scene, f.meshes); err != nil {
		t.Fatal(err)
	}
	if n := len(f.device.Swapchains); n != 2 {
		t.Fatalf("swapchain generations:\nhave %d\nwant 2", n)
	}

	if err := f.sr.ReloadShaders(testShaders()); err != nil {
		t.Fatal(err)
	}
	live := f.device.Current().RenderPass()
	for i, p := range f.device.Pipelines[2:] {
		if p.Config.RenderPass != live {
			t.Fatalf("rebuilt pipeline %d render pass:\nhave %v\nwant %v", i, p.Config.RenderPass, live)
		}
	}

	if drawn, err := f.sr.DrawFrame(1./60, f.camera, f.scene, f.meshes); err != nil || !drawn {
		t.Fatalf("DrawFrame after reload:\nhave %v, %v\nwant true, nil", drawn, err)
	}
	cmd := f.device.Submissions[len(f.device.Submissions)-1].Cmd
	if pass := cmd.Filter(rendertest.OpBeginRenderPass)[0].RenderPass; pass != live {
		t.Fatalf("render pass begun:\nhave %v\nwant %v", pass, live)
	}
}

func TestNewSceneRendererMissingShader(t *testing.T) {
	shaders := testShaders()
	delete(shaders, SimpleVertexShader)
	if _, err := NewSceneRenderer(rendertest.NewWindow(800, 600), rendertest.NewDevice(), shaders); err == nil {
		t.Fatal("NewSceneRenderer without a vertex shader: want error")
	}
}

func TestSceneRendererDestroy(t *testing.T) {
	f := newSceneFixture(t)
	f.sr.Destroy()
	if n := f.device.LiveBuffers(); n != 0 {
		t.Fatalf("live buffers after Destroy:\nhave %d\nwant 0", n)
	}
	for i, p := range f.device.Pipelines {
		if !p.Destroyed {
			t.Fatalf("pipeline %d not destroyed", i)
		}
	}
}
