package systems

import (
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/components"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/scene"
)

// FrameInfo is everything a render pass needs for the frame being recorded.
// It is rebuilt every frame and must not be kept.
type FrameInfo struct {
	FrameIndex          int
	FrameTime           float32
	CommandBuffer       renderer.CommandBuffer
	Camera              *components.Camera
	GlobalDescriptorSet renderer.DescriptorSet
	Scene               *scene.Scene
	Meshes              *MeshSystem
}
