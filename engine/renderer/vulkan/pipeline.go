package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/loov/hrtime"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	Name string
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	Layout vk.PipelineLayout

	context *VulkanContext
}

var _ renderer.Pipeline = (*VulkanPipeline)(nil)

// vertexInputDescriptions matches the metadata.Vertex layout: position,
// color, normal and uv at locations 0 to 3.
func vertexInputDescriptions() ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription) {
	bindings := []vk.VertexInputBindingDescription{{
		Binding:   0, // Binding index
		Stride:    metadata.VertexSize,
		InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
	}}
	attributes := []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: metadata.VertexOffsetPosition},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: metadata.VertexOffsetColor},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: metadata.VertexOffsetNormal},
		{Location: 3, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: metadata.VertexOffsetUV},
	}
	return bindings, attributes
}

func NewGraphicsPipeline(context *VulkanContext, config *renderer.PipelineConfig) (*VulkanPipeline, error) {
	if config.RenderPass == nil {
		return nil, errors.AssertionFailedf("cannot create pipeline %q: no render pass", config.Name)
	}
	start := hrtime.Now()
	out := &VulkanPipeline{Name: config.Name, context: context}

	vertexStage, err := NewShaderStage(context, config.VertexShader, vk.ShaderStageVertexBit)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q vertex shader", config.Name)
	}
	defer vertexStage.Destroy(context)
	fragmentStage, err := NewShaderStage(context, config.FragmentShader, vk.ShaderStageFragmentBit)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q fragment shader", config.Name)
	}
	defer fragmentStage.Destroy(context)
	stages := []vk.PipelineShaderStageCreateInfo{
		vertexStage.ShaderStageCreateInfo,
		fragmentStage.ShaderStageCreateInfo,
	}

	// Viewport and scissor are dynamic, only the counts matter here.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceClockwise,
		DepthBiasEnable:         vk.False,
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.True,
		DepthWriteEnable:      vk.True,
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
		MaxDepthBounds:        1.0,
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorOne,
		DstColorBlendFactor: vk.BlendFactorZero,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	if config.AlphaBlend {
		colorBlendAttachmentState.BlendEnable = vk.True
		colorBlendAttachmentState.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		colorBlendAttachmentState.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if config.VertexInput {
		bindings, attributes := vertexInputDescriptions()
		vertexInputInfo.VertexBindingDescriptionCount = uint32(len(bindings))
		vertexInputInfo.PVertexBindingDescriptions = bindings
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInputInfo.PVertexAttributeDescriptions = attributes
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Pipeline layout
	setLayouts := make([]vk.DescriptorSetLayout, len(config.DescriptorSetLayouts))
	for i, layout := range config.DescriptorSetLayouts {
		setLayouts[i] = layout.(*VulkanDescriptorSetLayout).Handle
	}
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	// Push constants
	if config.PushConstantSize > 0 {
		pipelineLayoutCreateInfo.PushConstantRangeCount = 1
		pipelineLayoutCreateInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: toVkShaderStages(config.PushConstantStages),
			Offset:     0,
			Size:       config.PushConstantSize,
		}}
	}

	var pipelineLayout vk.PipelineLayout
	if err := vkCheck(vk.CreatePipelineLayout(context.Device.LogicalDevice, &pipelineLayoutCreateInfo, context.Allocator, &pipelineLayout), "vkCreatePipelineLayout"); err != nil {
		return nil, err
	}
	out.Layout = pipelineLayout

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              out.Layout,
		RenderPass:          config.RenderPass.(*VulkanRenderPass).Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.Pipeline(vk.NullHandle),
		BasePipelineIndex:   -1,
	}

	cache := vk.PipelineCache(vk.NullHandle)
	if context.PipelineCache != nil {
		cache = context.PipelineCache.Handle
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := context.locks.SafeCall(PipelineManagement, func() error {
		return vkCheck(vk.CreateGraphicsPipelines(
			context.Device.LogicalDevice,
			cache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			context.Allocator,
			pipelines,
		), "vkCreateGraphicsPipelines")
	}); err != nil {
		out.Destroy()
		return nil, errors.Wrapf(err, "pipeline %q", config.Name)
	}
	out.Handle = pipelines[0]

	core.LogDebug("graphics pipeline %q created in %v", config.Name, hrtime.Since(start))
	return out, nil
}

func (pipeline *VulkanPipeline) Destroy() {
	context := pipeline.context
	_ = context.locks.SafeCall(PipelineManagement, func() error {
		if pipeline.Handle != nil {
			vk.DestroyPipeline(context.Device.LogicalDevice, pipeline.Handle, context.Allocator)
			pipeline.Handle = nil
		}
		if pipeline.Layout != nil {
			vk.DestroyPipelineLayout(context.Device.LogicalDevice, pipeline.Layout, context.Allocator)
			pipeline.Layout = nil
		}
		return nil
	})
}
