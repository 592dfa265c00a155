package systems

import (
	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/scene"
)

const simplePushStages = metadata.ShaderStageVertex | metadata.ShaderStageFragment

/**
 * @brief Draws every scene object that carries a mesh, lit by the global
 * uniform block.
 */
type SimpleRenderSystem struct {
	pipeline *passPipeline
}

func NewSimpleRenderSystem(device renderer.Device, renderPass renderer.RenderPass, globalSetLayout renderer.DescriptorSetLayout,
	vertexShader, fragmentShader []uint32) (*SimpleRenderSystem, error) {
	p, err := newPassPipeline(device, renderer.PipelineConfig{
		Name:                 "simple",
		VertexShader:         vertexShader,
		FragmentShader:       fragmentShader,
		VertexInput:          true,
		PushConstantStages:   simplePushStages,
		PushConstantSize:     metadata.SimplePushConstantSize,
		RenderPass:           renderPass,
		DescriptorSetLayouts: []renderer.DescriptorSetLayout{globalSetLayout},
	})
	if err != nil {
		return nil, err
	}
	return &SimpleRenderSystem{pipeline: p}, nil
}

func (s *SimpleRenderSystem) Render(frame *FrameInfo) {
	cmd := frame.CommandBuffer
	pipeline := s.pipeline.pipeline
	cmd.BindPipeline(pipeline)
	cmd.BindDescriptorSet(pipeline, frame.GlobalDescriptorSet)

	frame.Scene.Each(func(obj *scene.Object) {
		if !obj.HasMesh() {
			return
		}
		mesh := frame.Meshes.Get(obj.Mesh)
		if mesh == nil {
			panic(errors.AssertionFailedf("object %d references mesh %d which is not loaded", obj.ID(), obj.Mesh))
		}
		push := metadata.SimplePushConstantData{
			ModelMatrix:  obj.Transform.Mat4(),
			NormalMatrix: obj.Transform.NormalMatrix(),
		}
		cmd.PushConstants(pipeline, simplePushStages, 0, push.Bytes())
		mesh.Bind(cmd)
		mesh.Draw(cmd)
	})
}

// ReloadShaders rebuilds the pipeline against renderPass. The device must be idle.
func (s *SimpleRenderSystem) ReloadShaders(renderPass renderer.RenderPass, vertexShader, fragmentShader []uint32) error {
	return s.pipeline.Rebuild(renderPass, vertexShader, fragmentShader)
}

func (s *SimpleRenderSystem) Destroy() {
	s.pipeline.Destroy()
}
