package systems

import (
	"cmp"

	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/scene"
	"golang.org/x/exp/slices"
)

const pointLightPushStages = metadata.ShaderStageVertex | metadata.ShaderStageFragment

// Each light is a camera facing quad generated in the vertex shader.
const pointLightVertexCount = 6

/**
 * @brief Publishes the scene lights into the global uniform block and draws
 * them as blended billboards, farthest first.
 */
type PointLightSystem struct {
	pipeline *passPipeline
	sorted   []litObject
}

// litObject is a light snapshot for one frame. It holds no object pointer so
// the scratch slice never keeps destroyed objects reachable.
type litObject struct {
	distSq float32
	id     scene.ObjectID
	push   metadata.PointLightPushConstants
}

func NewPointLightSystem(device renderer.Device, renderPass renderer.RenderPass, globalSetLayout renderer.DescriptorSetLayout,
	vertexShader, fragmentShader []uint32) (*PointLightSystem, error) {
	p, err := newPassPipeline(device, renderer.PipelineConfig{
		Name:                 "point light",
		VertexShader:         vertexShader,
		FragmentShader:       fragmentShader,
		AlphaBlend:           true,
		PushConstantStages:   pointLightPushStages,
		PushConstantSize:     metadata.PointLightPushConstantSize,
		RenderPass:           renderPass,
		DescriptorSetLayouts: []renderer.DescriptorSetLayout{globalSetLayout},
	})
	if err != nil {
		return nil, err
	}
	return &PointLightSystem{pipeline: p}, nil
}

// Update writes every light of the scene into ubo, in object id order.
func (s *PointLightSystem) Update(frame *FrameInfo, ubo *metadata.GlobalUbo) {
	lightIndex := 0
	frame.Scene.Each(func(obj *scene.Object) {
		if !obj.IsPointLight() {
			return
		}
		if lightIndex >= metadata.MaxLights {
			panic(errors.AssertionFailedf("point lights exceed maximum specified (%d)", metadata.MaxLights))
		}
		ubo.PointLights[lightIndex] = metadata.PointLightUniform{
			Position: obj.Transform.Translation.Vec4(1),
			Color:    obj.Color.Vec4(obj.PointLight.LightIntensity),
		}
		lightIndex++
	})
	ubo.NumLights = int32(lightIndex)
}

// Render draws the lights back to front so blending composes correctly.
func (s *PointLightSystem) Render(frame *FrameInfo) {
	eye := frame.Camera.Position()

	s.sorted = s.sorted[:0]
	frame.Scene.Each(func(obj *scene.Object) {
		if !obj.IsPointLight() {
			return
		}
		offset := eye.Sub(obj.Transform.Translation)
		s.sorted = append(s.sorted, litObject{
			distSq: offset.Dot(offset),
			id:     obj.ID(),
			push: metadata.PointLightPushConstants{
				Position: obj.Transform.Translation.Vec4(1),
				Color:    obj.Color.Vec4(obj.PointLight.LightIntensity),
				Radius:   obj.Transform.Scale.X(),
			},
		})
	})
	// Ties are ordered by id so the draw order is reproducible.
	slices.SortStableFunc(s.sorted, func(a, b litObject) int {
		if c := cmp.Compare(a.distSq, b.distSq); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	cmd := frame.CommandBuffer
	pipeline := s.pipeline.pipeline
	cmd.BindPipeline(pipeline)
	cmd.BindDescriptorSet(pipeline, frame.GlobalDescriptorSet)

	for i := len(s.sorted) - 1; i >= 0; i-- {
		cmd.PushConstants(pipeline, pointLightPushStages, 0, s.sorted[i].push.Bytes())
		cmd.Draw(pointLightVertexCount, 1)
	}
}

// ReloadShaders rebuilds the pipeline against renderPass. The device must be idle.
func (s *PointLightSystem) ReloadShaders(renderPass renderer.RenderPass, vertexShader, fragmentShader []uint32) error {
	return s.pipeline.Rebuild(renderPass, vertexShader, fragmentShader)
}

func (s *PointLightSystem) Destroy() {
	s.pipeline.Destroy()
}
