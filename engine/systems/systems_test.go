package systems

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/components"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/rendertest"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/resources"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/scene"
)

func triangle() *metadata.MeshBuilder {
	return &metadata.MeshBuilder{
		Vertices: []metadata.Vertex{
			{Position: mgl32.Vec3{0, -.5, 0}, Color: mgl32.Vec3{1, 1, 1}},
			{Position: mgl32.Vec3{.5, .5, 0}, Color: mgl32.Vec3{1, 1, 1}},
			{Position: mgl32.Vec3{-.5, .5, 0}, Color: mgl32.Vec3{1, 1, 1}},
		},
		Indices: []uint32{0, 1, 2},
	}
}

type testWorld struct {
	device *rendertest.Device
	meshes *MeshSystem
	scene  *scene.Scene
	simple *SimpleRenderSystem
	lights *PointLightSystem
	cmd    *rendertest.CommandBuffer
	frame  *FrameInfo
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	w := &testWorld{device: rendertest.NewDevice()}
	w.meshes = NewMeshSystem(w.device, nil)
	w.scene = scene.New(core.NewIDAllocator(), w.meshes)

	var err error
	w.simple, err = NewSimpleRenderSystem(w.device, "renderpass", "set-layout", []uint32{1}, []uint32{2})
	if err != nil {
		t.Fatalf("NewSimpleRenderSystem: %v", err)
	}
	w.lights, err = NewPointLightSystem(w.device, "renderpass", "set-layout", []uint32{3}, []uint32{4})
	if err != nil {
		t.Fatalf("NewPointLightSystem: %v", err)
	}

	w.cmd = &rendertest.CommandBuffer{}
	w.cmd.Begin(false)
	w.frame = &FrameInfo{
		FrameTime:           1. / 60,
		CommandBuffer:       w.cmd,
		Camera:              components.NewCamera(),
		GlobalDescriptorSet: "global-set",
		Scene:               w.scene,
		Meshes:              w.meshes,
	}
	return w
}

func pushPosition(call rendertest.Call) mgl32.Vec3 {
	var v mgl32.Vec3
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(call.Data[i*4:]))
	}
	return v
}

func TestPointLightUpdate(t *testing.T) {
	w := newTestWorld(t)
	w.scene.MakePointLight(.2, .1, mgl32.Vec3{1, 0, 0}).Transform.Translation = mgl32.Vec3{1, 2, 3}
	w.scene.CreateObject()
	w.scene.MakePointLight(.5, .1, mgl32.Vec3{0, 1, 0}).Transform.Translation = mgl32.Vec3{4, 5, 6}

	ubo := metadata.NewGlobalUbo()
	ubo.NumLights = 7
	w.lights.Update(w.frame, &ubo)

	if ubo.NumLights != 2 {
		t.Fatalf("NumLights:\nhave %d\nwant 2", ubo.NumLights)
	}
	want := []metadata.PointLightUniform{
		{Position: mgl32.Vec4{1, 2, 3, 1}, Color: mgl32.Vec4{1, 0, 0, .2}},
		{Position: mgl32.Vec4{4, 5, 6, 1}, Color: mgl32.Vec4{0, 1, 0, .5}},
	}
	for i, light := range want {
		if ubo.PointLights[i] != light {
			t.Fatalf("light %d:\nhave %v\nwant %v", i, ubo.PointLights[i], light)
		}
	}
}

func TestPointLightUpdatePanicsOverCapacity(t *testing.T) {
	w := newTestWorld(t)
	for i := 0; i <= metadata.MaxLights; i++ {
		w.scene.MakePointLight(1, .1, mgl32.Vec3{1, 1, 1})
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("Update with %d lights: want panic", metadata.MaxLights+1)
		}
	}()
	ubo := metadata.NewGlobalUbo()
	w.lights.Update(w.frame, &ubo)
}

func TestPointLightRenderFarthestFirst(t *testing.T) {
	w := newTestWorld(t)
	near := w.scene.MakePointLight(.2, .1, mgl32.Vec3{1, 1, 1})
	near.Transform.Translation = mgl32.Vec3{0, 0, 3}
	far := w.scene.MakePointLight(.2, .3, mgl32.Vec3{1, 1, 1})
	far.Transform.Translation = mgl32.Vec3{0, 0, 7}

	w.lights.Render(w.frame)

	pushes := w.cmd.Filter(rendertest.OpPushConstants)
	if len(pushes) != 2 {
		t.Fatalf("push count:\nhave %d\nwant 2", len(pushes))
	}
	if have := pushPosition(pushes[0]); have != far.Transform.Translation {
		t.Fatalf("first light drawn:\nhave %v\nwant %v", have, far.Transform.Translation)
	}
	if have := pushPosition(pushes[1]); have != near.Transform.Translation {
		t.Fatalf("second light drawn:\nhave %v\nwant %v", have, near.Transform.Translation)
	}
	for _, draw := range w.cmd.Draws() {
		if draw.Op != rendertest.OpDraw || draw.Count != 6 || draw.Instances != 1 {
			t.Fatalf("light draw:\nhave %s(%d, %d)\nwant Draw(6, 1)", draw.Op, draw.Count, draw.Instances)
		}
	}
	radius := math.Float32frombits(binary.LittleEndian.Uint32(pushes[0].Data[32:]))
	if radius != .3 {
		t.Fatalf("radius:\nhave %v\nwant 0.3", radius)
	}
}

func TestPointLightRenderForgetsDestroyedLights(t *testing.T) {
	w := newTestWorld(t)
	gone := w.scene.MakePointLight(.2, .1, mgl32.Vec3{1, 0, 0})
	gone.Transform.Translation = mgl32.Vec3{0, 0, 9}
	kept := w.scene.MakePointLight(.2, .1, mgl32.Vec3{0, 1, 0})
	kept.Transform.Translation = mgl32.Vec3{0, 0, 4}
	w.lights.Render(w.frame)

	if err := w.scene.Destroy(gone.ID()); err != nil {
		t.Fatal(err)
	}
	w.cmd.Reset()
	w.cmd.Begin(false)
	w.lights.Render(w.frame)

	pushes := w.cmd.Filter(rendertest.OpPushConstants)
	if len(pushes) != 1 {
		t.Fatalf("push count:\nhave %d\nwant 1", len(pushes))
	}
	if have := pushPosition(pushes[0]); have != kept.Transform.Translation {
		t.Fatalf("light drawn:\nhave %v\nwant %v", have, kept.Transform.Translation)
	}
	for i, lit := range w.lights.sorted {
		if lit.id == gone.ID() {
			t.Fatalf("scratch entry %d still refers to destroyed light %d", i, gone.ID())
		}
	}
}

func TestPointLightRenderTiesAreDeterministic(t *testing.T) {
	w := newTestWorld(t)
	w.scene.MakePointLight(.2, .1, mgl32.Vec3{1, 0, 0}).Transform.Translation = mgl32.Vec3{2, 0, 0}
	w.scene.MakePointLight(.2, .1, mgl32.Vec3{0, 1, 0}).Transform.Translation = mgl32.Vec3{-2, 0, 0}
	w.scene.MakePointLight(.2, .1, mgl32.Vec3{0, 0, 1}).Transform.Translation = mgl32.Vec3{0, 2, 0}

	// equal distances draw in descending id order
	want := []mgl32.Vec3{{0, 2, 0}, {-2, 0, 0}, {2, 0, 0}}
	for run := 0; run < 3; run++ {
		w.cmd.Reset()
		w.cmd.Begin(false)
		w.lights.Render(w.frame)
		pushes := w.cmd.Filter(rendertest.OpPushConstants)
		for i, pos := range want {
			if have := pushPosition(pushes[i]); have != pos {
				t.Fatalf("run %d light %d:\nhave %v\nwant %v", run, i, have, pos)
			}
		}
	}
}

func TestSimpleRenderSkipsObjectsWithoutMesh(t *testing.T) {
	w := newTestWorld(t)
	id, err := w.meshes.Create("triangle", triangle())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	obj := w.scene.CreateObject()
	obj.Transform.Translation = mgl32.Vec3{1, 2, 3}
	obj.Transform.Scale = mgl32.Vec3{2, 2, 2}
	if err := w.scene.AttachMesh(obj, id); err != nil {
		t.Fatalf("AttachMesh: %v", err)
	}
	w.scene.CreateObject()
	w.scene.MakePointLight(1, .1, mgl32.Vec3{1, 1, 1})

	w.simple.Render(w.frame)

	wantOps := []string{
		rendertest.OpBindPipeline,
		rendertest.OpBindDescriptorSet,
		rendertest.OpPushConstants,
		rendertest.OpBindVertexBuffer,
		rendertest.OpBindIndexBuffer,
		rendertest.OpDrawIndexed,
	}
	ops := w.cmd.Ops()
	if len(ops) != len(wantOps) {
		t.Fatalf("ops:\nhave %v\nwant %v", ops, wantOps)
	}
	for i := range ops {
		if ops[i] != wantOps[i] {
			t.Fatalf("ops:\nhave %v\nwant %v", ops, wantOps)
		}
	}

	push := w.cmd.Filter(rendertest.OpPushConstants)[0]
	want := metadata.SimplePushConstantData{
		ModelMatrix:  obj.Transform.Mat4(),
		NormalMatrix: obj.Transform.NormalMatrix(),
	}
	if string(push.Data) != string(want.Bytes()) {
		t.Fatalf("push payload does not match the object transform")
	}
	if push.Stages != metadata.ShaderStageVertex|metadata.ShaderStageFragment {
		t.Fatalf("push stages:\nhave %v\nwant vertex|fragment", push.Stages)
	}
	if set := w.cmd.Filter(rendertest.OpBindDescriptorSet)[0].Set; set != "global-set" {
		t.Fatalf("descriptor set:\nhave %v\nwant global-set", set)
	}
}

func TestPipelineConfigs(t *testing.T) {
	w := newTestWorld(t)
	if len(w.device.Pipelines) != 2 {
		t.Fatalf("pipelines:\nhave %d\nwant 2", len(w.device.Pipelines))
	}
	simple, light := w.device.Pipelines[0].Config, w.device.Pipelines[1].Config
	if !simple.VertexInput || simple.AlphaBlend || simple.PushConstantSize != metadata.SimplePushConstantSize {
		t.Fatalf("simple pipeline config: %+v", simple)
	}
	if light.VertexInput || !light.AlphaBlend || light.PushConstantSize != metadata.PointLightPushConstantSize {
		t.Fatalf("point light pipeline config: %+v", light)
	}
}

func TestReloadShadersReplacesPipeline(t *testing.T) {
	w := newTestWorld(t)
	if err := w.simple.ReloadShaders("renderpass-2", []uint32{5}, []uint32{6}); err != nil {
		t.Fatalf("ReloadShaders: %v", err)
	}
	if len(w.device.Pipelines) != 3 {
		t.Fatalf("pipelines:\nhave %d\nwant 3", len(w.device.Pipelines))
	}
	if !w.device.Pipelines[0].Destroyed {
		t.Fatalf("old simple pipeline not destroyed")
	}
	rebuilt := w.device.Pipelines[2].Config
	if rebuilt.VertexShader[0] != 5 || rebuilt.FragmentShader[0] != 6 || !rebuilt.VertexInput {
		t.Fatalf("rebuilt config: %+v", rebuilt)
	}
	if rebuilt.RenderPass != "renderpass-2" {
		t.Fatalf("rebuilt render pass:\nhave %v\nwant renderpass-2", rebuilt.RenderPass)
	}

	w.simple.Render(w.frame)
	if bound := w.cmd.Filter(rendertest.OpBindPipeline)[0].Pipeline; bound != w.device.Pipelines[2] {
		t.Fatalf("Render bound the old pipeline")
	}
}

func TestMeshSystemReferenceCounting(t *testing.T) {
	w := newTestWorld(t)
	id, err := w.meshes.Create("triangle", triangle())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a, b := w.scene.CreateObject(), w.scene.CreateObject()
	for _, obj := range []*scene.Object{a, b} {
		if err := w.scene.AttachMesh(obj, id); err != nil {
			t.Fatalf("AttachMesh: %v", err)
		}
	}
	if have := w.meshes.RefCount(id); have != 2 {
		t.Fatalf("RefCount:\nhave %d\nwant 2", have)
	}
	if err := w.meshes.Unload(id); err == nil {
		t.Fatalf("Unload of a referenced mesh succeeded")
	}

	w.scene.Destroy(a.ID())
	if w.meshes.Get(id) == nil {
		t.Fatalf("mesh destroyed while still referenced")
	}
	w.scene.Destroy(b.ID())
	if w.meshes.Get(id) != nil {
		t.Fatalf("mesh kept after the last reference went away")
	}
	if _, ok := w.meshes.Lookup("triangle"); ok {
		t.Fatalf("name still registered after unload")
	}
	if have := w.device.LiveBuffers(); have != 0 {
		t.Fatalf("live buffers:\nhave %d\nwant 0", have)
	}
	if err := w.meshes.Acquire(id); !errors.Is(err, core.ErrUnknownMesh) {
		t.Fatalf("Acquire after unload:\nhave %v\nwant %v", err, core.ErrUnknownMesh)
	}
}

func TestMeshSystemRejectsDuplicateNames(t *testing.T) {
	w := newTestWorld(t)
	if _, err := w.meshes.Create("triangle", triangle()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.meshes.Create("triangle", triangle()); err == nil {
		t.Fatalf("second Create with the same name succeeded")
	}
	if have := w.device.LiveBuffers(); have != 2 {
		t.Fatalf("live buffers:\nhave %d\nwant 2 (vertex and index of the first mesh)", have)
	}
}

type mapLoader map[string]*metadata.MeshBuilder

func (l mapLoader) LoadAsset(filename string, params interface{}) (*resources.Resource, error) {
	builder, ok := l[filename]
	if !ok {
		return nil, errors.Newf("no such model %s", filename)
	}
	return &resources.Resource{Name: filename, Type: resources.ResourceTypeModel, Data: builder}, nil
}

func TestMeshSystemLoadAll(t *testing.T) {
	dev := rendertest.NewDevice()
	quad := &metadata.MeshBuilder{
		Vertices: append(triangle().Vertices, metadata.Vertex{Position: mgl32.Vec3{1, 1, 0}}),
		Indices:  []uint32{0, 1, 2, 2, 1, 3},
	}
	ms := NewMeshSystem(dev, mapLoader{"tri.obj": triangle(), "quad.obj": quad})

	ids, err := ms.LoadAll(context.Background(), map[string]string{"tri": "tri.obj", "quad": "quad.obj"})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	// uploads happen in name order
	if ids["quad"] != 1 || ids["tri"] != 2 {
		t.Fatalf("ids:\nhave %v\nwant map[quad:1 tri:2]", ids)
	}
	if have := ms.Get(ids["quad"]).IndexCount(); have != 6 {
		t.Fatalf("quad index count:\nhave %d\nwant 6", have)
	}

	if _, err := ms.LoadAll(context.Background(), map[string]string{"missing": "missing.obj"}); err == nil {
		t.Fatalf("LoadAll with a missing file succeeded")
	}
	if ms.Len() != 2 {
		t.Fatalf("Len after failed LoadAll:\nhave %d\nwant 2", ms.Len())
	}

	ms.Shutdown()
	if have := dev.LiveBuffers(); have != 0 {
		t.Fatalf("live buffers after Shutdown:\nhave %d\nwant 0", have)
	}
}

type keys map[core.KeyCode]bool

func (k keys) IsKeyDown(key core.KeyCode) bool { return k[key] }

func TestKeyboardMovementController(t *testing.T) {
	const dt = .5
	for _, tc := range []struct {
		name        string
		pressed     keys
		rotation    mgl32.Vec3
		wantPos     mgl32.Vec3
		wantRotaton mgl32.Vec3
	}{
		{
			name:        "forward",
			pressed:     keys{core.KEY_W: true},
			wantPos:     mgl32.Vec3{0, 0, 1.5},
			wantRotaton: mgl32.Vec3{},
		},
		{
			name:        "strafe right",
			pressed:     keys{core.KEY_D: true},
			wantPos:     mgl32.Vec3{1.5, 0, 0},
			wantRotaton: mgl32.Vec3{},
		},
		{
			name:        "up is negative y",
			pressed:     keys{core.KEY_E: true},
			wantPos:     mgl32.Vec3{0, -1.5, 0},
			wantRotaton: mgl32.Vec3{},
		},
		{
			name:        "opposite keys cancel",
			pressed:     keys{core.KEY_W: true, core.KEY_S: true},
			wantRotaton: mgl32.Vec3{},
		},
		{
			name:        "look right",
			pressed:     keys{core.KEY_RIGHT: true},
			wantRotaton: mgl32.Vec3{0, .75, 0},
		},
		{
			name:        "pitch is clamped",
			pressed:     keys{core.KEY_UP: true},
			rotation:    mgl32.Vec3{1.4, 0, 0},
			wantRotaton: mgl32.Vec3{1.5, 0, 0},
		},
		{
			name:        "yaw wraps",
			rotation:    mgl32.Vec3{0, -.5, 0},
			wantRotaton: mgl32.Vec3{0, 2*math.Pi - .5, 0},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			obj := &scene.Object{Transform: components.NewTransform()}
			obj.Transform.Rotation = tc.rotation
			NewKeyboardMovementController().MoveInPlaneXZ(tc.pressed, dt, obj)
			if !obj.Transform.Translation.ApproxEqualThreshold(tc.wantPos, 1e-5) {
				t.Fatalf("translation:\nhave %v\nwant %v", obj.Transform.Translation, tc.wantPos)
			}
			if !obj.Transform.Rotation.ApproxEqualThreshold(tc.wantRotaton, 1e-5) {
				t.Fatalf("rotation:\nhave %v\nwant %v", obj.Transform.Rotation, tc.wantRotaton)
			}
		})
	}
}

func TestCameraSystem(t *testing.T) {
	if _, err := NewCameraSystem(CameraSystemConfig{MaxCameraCount: 1, Near: 1, Far: .5}); err == nil {
		t.Fatalf("NewCameraSystem with far < near succeeded")
	}
	cs, err := NewCameraSystem(CameraSystemConfig{MaxCameraCount: 1, FovDegrees: 50, Near: .1, Far: 100})
	if err != nil {
		t.Fatalf("NewCameraSystem: %v", err)
	}
	def, _ := cs.Acquire(DefaultCameraName)
	if def != cs.GetDefault() {
		t.Fatalf("default camera not returned by name")
	}
	a, err := cs.Acquire("world")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if b, _ := cs.Acquire("world"); a != b {
		t.Fatalf("same name gave different cameras")
	}
	if _, err := cs.Acquire("ui"); err == nil {
		t.Fatalf("Acquire beyond MaxCameraCount succeeded")
	}
	cs.Release("world")
	cs.Release("world")
	if c, _ := cs.Acquire("world"); c == a {
		t.Fatalf("released camera was reused")
	}

	viewer := &scene.Object{Transform: components.NewTransform()}
	viewer.Transform.Translation = mgl32.Vec3{0, 0, -2.5}
	cs.Follow(def, viewer, 4./3)
	if !def.Position().ApproxEqualThreshold(viewer.Transform.Translation, 1e-5) {
		t.Fatalf("camera position:\nhave %v\nwant %v", def.Position(), viewer.Transform.Translation)
	}
}
