package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/components"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/scene"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/systems"
)

// Shader stage names, resolved to "<name>.spv" by the shader source.
const (
	SimpleVertexShader       = "simple_shader.vert"
	SimpleFragmentShader     = "simple_shader.frag"
	PointLightVertexShader   = "point_light.vert"
	PointLightFragmentShader = "point_light.frag"
)

// ShaderSource resolves compiled SPIR-V by stage name. Implemented by
// assets.AssetManager.
type ShaderSource interface {
	LoadShader(name string) ([]uint32, error)
}

type passShaders struct {
	simpleVertex, simpleFragment []uint32
	lightVertex, lightFragment   []uint32
}

func loadPassShaders(shaders ShaderSource) (*passShaders, error) {
	var out passShaders
	for _, s := range []struct {
		name string
		dst  *[]uint32
	}{
		{SimpleVertexShader, &out.simpleVertex},
		{SimpleFragmentShader, &out.simpleFragment},
		{PointLightVertexShader, &out.lightVertex},
		{PointLightFragmentShader, &out.lightFragment},
	} {
		code, err := shaders.LoadShader(s.name)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load shader %s", s.name)
		}
		*s.dst = code
	}
	return &out, nil
}

/**
 * @brief Records and submits the scene every frame: one uniform buffer and
 * descriptor set per frame in flight, the mesh pass, then the light pass.
 */
type SceneRenderer struct {
	device   renderer.Device
	renderer *renderer.FrameRenderer

	uboBuffers   []*renderer.Buffer
	globalLayout renderer.DescriptorSetLayout
	globalSets   []renderer.DescriptorSet

	simple *systems.SimpleRenderSystem
	lights *systems.PointLightSystem
}

func NewSceneRenderer(window renderer.Window, device renderer.Device, shaders ShaderSource) (*SceneRenderer, error) {
	code, err := loadPassShaders(shaders)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	fr, err := renderer.NewFrameRenderer(window, device)
	if err != nil {
		return nil, err
	}
	sr := &SceneRenderer{device: device, renderer: fr}

	infos := make([]renderer.BufferInfo, metadata.MaxFramesInFlight)
	for i := range infos {
		ubo, err := renderer.NewBuffer(device, metadata.GlobalUboSize, 1, metadata.BufferUsageUniform,
			metadata.MemoryPropertyHostVisible, device.MinUniformBufferOffsetAlignment())
		if err != nil {
			sr.Destroy()
			return nil, err
		}
		sr.uboBuffers = append(sr.uboBuffers, ubo)
		if err := ubo.Map(); err != nil {
			sr.Destroy()
			return nil, errors.Wrapf(err, "failed to map uniform buffer %d", i)
		}
		infos[i] = ubo.DescriptorInfo()
	}

	sr.globalLayout, sr.globalSets, err = device.CreateUniformDescriptorSets(infos)
	if err != nil {
		sr.Destroy()
		err = errors.Wrap(err, "failed to create global descriptor sets")
		core.LogError(err.Error())
		return nil, err
	}

	renderPass := fr.SwapchainRenderPass()
	sr.simple, err = systems.NewSimpleRenderSystem(device, renderPass, sr.globalLayout, code.simpleVertex, code.simpleFragment)
	if err != nil {
		sr.Destroy()
		return nil, err
	}
	sr.lights, err = systems.NewPointLightSystem(device, renderPass, sr.globalLayout, code.lightVertex, code.lightFragment)
	if err != nil {
		sr.Destroy()
		return nil, err
	}
	return sr, nil
}

/**
 * @brief Draws one frame of s as seen by camera.
 *
 * @return false with a nil error when the frame was skipped because the
 * swapchain was recreated.
 */
func (sr *SceneRenderer) DrawFrame(frameTime float32, camera *components.Camera, s *scene.Scene, meshes *systems.MeshSystem) (bool, error) {
	cmd, err := sr.renderer.BeginFrame()
	if err != nil {
		return false, err
	}
	if cmd == nil {
		return false, nil
	}

	frameIndex := sr.renderer.FrameIndex()
	frame := &systems.FrameInfo{
		FrameIndex:          frameIndex,
		FrameTime:           frameTime,
		CommandBuffer:       cmd,
		Camera:              camera,
		GlobalDescriptorSet: sr.globalSets[frameIndex],
		Scene:               s,
		Meshes:              meshes,
	}

	// update
	ubo := metadata.NewGlobalUbo()
	ubo.Projection = camera.Projection()
	ubo.View = camera.View()
	ubo.InverseView = camera.InverseView()
	sr.lights.Update(frame, &ubo)
	buffer := sr.uboBuffers[frameIndex]
	buffer.WriteToBuffer(ubo.Bytes(), 0)
	if err := buffer.Flush(); err != nil {
		return false, errors.Wrapf(err, "failed to flush uniform buffer %d", frameIndex)
	}

	// render
	sr.renderer.BeginSwapchainRenderPass(cmd)
	sr.simple.Render(frame)
	sr.lights.Render(frame)
	sr.renderer.EndSwapchainRenderPass(cmd)

	if err := sr.renderer.EndFrame(); err != nil {
		return false, err
	}
	return true, nil
}

// ReloadShaders rebuilds both pass pipelines from freshly loaded SPIR-V. It
// waits for the device to go idle first.
func (sr *SceneRenderer) ReloadShaders(shaders ShaderSource) error {
	code, err := loadPassShaders(shaders)
	if err != nil {
		return err
	}
	if err := sr.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "failed to wait for device before shader reload")
	}
	// Recreating the swapchain replaces its render pass.
	renderPass := sr.renderer.SwapchainRenderPass()
	if err := sr.simple.ReloadShaders(renderPass, code.simpleVertex, code.simpleFragment); err != nil {
		return err
	}
	if err := sr.lights.ReloadShaders(renderPass, code.lightVertex, code.lightFragment); err != nil {
		return err
	}
	core.LogInfo("shaders reloaded")
	return nil
}

func (sr *SceneRenderer) AspectRatio() float32 {
	return sr.renderer.AspectRatio()
}

func (sr *SceneRenderer) FrameRenderer() *renderer.FrameRenderer {
	return sr.renderer
}

// Destroy releases everything the renderer created. The device must be idle.
func (sr *SceneRenderer) Destroy() {
	if sr.lights != nil {
		sr.lights.Destroy()
		sr.lights = nil
	}
	if sr.simple != nil {
		sr.simple.Destroy()
		sr.simple = nil
	}
	for _, b := range sr.uboBuffers {
		b.Destroy()
	}
	sr.uboBuffers = nil
	if sr.renderer != nil {
		sr.renderer.Destroy()
		sr.renderer = nil
	}
}
