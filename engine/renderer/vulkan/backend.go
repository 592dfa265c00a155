package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/platform"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

type VulkanBackendConfig struct {
	ApplicationName string
	// Validation enables the Khronos validation layer and routes its reports
	// into the engine log.
	Validation    bool
	PreferMailbox bool
	// PipelineCachePath is where the pipeline cache is read from at startup
	// and written to at shutdown. Empty disables persistence.
	PipelineCachePath string
}

// VulkanBackend is the renderer.Device implementation on top of goki/vulkan.
type VulkanBackend struct {
	platform *platform.Platform
	config   VulkanBackendConfig
	context  *VulkanContext

	descriptorPool *VulkanDescriptorPool
	setLayouts     []*VulkanDescriptorSetLayout
}

var _ renderer.Device = (*VulkanBackend)(nil)

func New(p *platform.Platform, config VulkanBackendConfig) *VulkanBackend {
	return &VulkanBackend{
		platform: p,
		config:   config,
		context: &VulkanContext{
			// TODO: custom allocator.
			Allocator: nil,
			locks:     NewVulkanLockPool(),
		},
	}
}

func (vb *VulkanBackend) Initialize() error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := errors.New("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	if err := vb.createInstance(); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if vb.config.Validation {
		if err := vb.createDebugCallback(); err != nil {
			return err
		}
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := vb.platform.CreateSurface(vb.context.Instance)
	if err != nil || surface == 0 {
		err = errors.Wrap(err, "failed to create platform surface")
		core.LogError(err.Error())
		return err
	}
	vb.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(vb.context); err != nil {
		return errors.Wrap(err, "failed to create device")
	}

	cache, err := NewPipelineCache(vb.context, vb.config.PipelineCachePath)
	if err != nil {
		return err
	}
	vb.context.PipelineCache = cache

	pool, err := NewDescriptorPoolBuilder().
		SetMaxSets(metadata.MaxFramesInFlight).
		AddPoolSize(vk.DescriptorTypeUniformBuffer, metadata.MaxFramesInFlight).
		Build(vb.context)
	if err != nil {
		return err
	}
	vb.descriptorPool = pool

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vb *VulkanBackend) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vb.config.ApplicationName),
		PEngineName:        VulkanSafeString("Patiq Vulkan Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := vb.platform.GetRequiredExtensionNames()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if vb.config.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)

		ok, err := validationLayerAvailable()
		if err != nil {
			return err
		}
		if ok {
			layers = append(layers, validationLayerName)
			core.LogInfo("Validation layers enabled.")
		} else {
			core.LogWarn("Required validation layer is missing: %s. Continuing without validation.", validationLayerName)
			vb.config.Validation = false
			requiredExtensions = requiredExtensions[:len(requiredExtensions)-1]
		}
	}

	core.LogDebug("Required extensions: %v", requiredExtensions)
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if err := vkCheck(vk.CreateInstance(&createInfo, vb.context.Allocator, &instance), "vkCreateInstance"); err != nil {
		return err
	}
	vb.context.Instance = instance
	if err := vk.InitInstance(vb.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	return nil
}

func validationLayerAvailable() (bool, error) {
	var count uint32
	if err := vkCheck(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return false, err
	}
	available := make([]vk.LayerProperties, count)
	if err := vkCheck(vk.EnumerateInstanceLayerProperties(&count, available), "vkEnumerateInstanceLayerProperties"); err != nil {
		return false, err
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == validationLayerName {
			return true, nil
		}
	}
	return false, nil
}

func (vb *VulkanBackend) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}
	var dbg vk.DebugReportCallback
	if err := vkCheck(vk.CreateDebugReportCallback(vb.context.Instance, &debugCreateInfo, vb.context.Allocator, &dbg), "vkCreateDebugReportCallbackEXT"); err != nil {
		return err
	}
	vb.context.debugMessenger = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func (vb *VulkanBackend) Shutdown() error {
	context := vb.context
	if context.Device != nil && context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(context.Device.LogicalDevice)

		if context.PipelineCache != nil {
			if err := context.PipelineCache.Save(context); err != nil {
				core.LogWarn("pipeline cache not saved: %s", err)
			}
			context.PipelineCache.Destroy(context)
			context.PipelineCache = nil
		}
		for _, layout := range vb.setLayouts {
			layout.Destroy(context)
		}
		vb.setLayouts = nil
		if vb.descriptorPool != nil {
			vb.descriptorPool.Destroy(context)
			vb.descriptorPool = nil
		}
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(context)

	core.LogDebug("Destroying Vulkan surface...")
	if context.Surface != vk.NullSurface {
		vk.DestroySurface(context.Instance, context.Surface, context.Allocator)
		context.Surface = vk.NullSurface
	}

	if context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(context.Instance, context.debugMessenger, context.Allocator)
		context.debugMessenger = vk.NullDebugReportCallback
	}

	if context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(context.Instance, context.Allocator)
		context.Instance = nil
	}
	return nil
}

func (vb *VulkanBackend) WaitIdle() error {
	// nothing to wait for when Initialize failed before the device existed
	if vb.context.Device == nil || vb.context.Device.LogicalDevice == nil {
		return nil
	}
	return vkCheck(vk.DeviceWaitIdle(vb.context.Device.LogicalDevice), "vkDeviceWaitIdle")
}

func (vb *VulkanBackend) CreateSwapchain(extent metadata.Extent, previous renderer.Swapchain) (renderer.Swapchain, error) {
	var old *VulkanSwapchain
	if previous != nil {
		old = previous.(*VulkanSwapchain)
	}
	return SwapchainCreate(vb.context, extent, old, vb.config.PreferMailbox)
}

func (vb *VulkanBackend) CreateFence(signaled bool) (renderer.Fence, error) {
	return NewFence(vb.context, signaled)
}

func (vb *VulkanBackend) CreateSemaphore() (renderer.Semaphore, error) {
	return NewSemaphore(vb.context)
}

func (vb *VulkanBackend) AllocateCommandBuffers(count int) ([]renderer.CommandBuffer, error) {
	buffers, err := AllocateCommandBuffers(vb.context, vb.context.Device.GraphicsCommandPool, count)
	if err != nil {
		return nil, err
	}
	out := make([]renderer.CommandBuffer, len(buffers))
	for i, b := range buffers {
		out[i] = b
	}
	return out, nil
}

func (vb *VulkanBackend) FreeCommandBuffers(buffers []renderer.CommandBuffer) {
	for _, b := range buffers {
		b.(*VulkanCommandBuffer).Free()
	}
}

func (vb *VulkanBackend) BeginSingleTimeCommands() (renderer.CommandBuffer, error) {
	return AllocateAndBeginSingleUse(vb.context, vb.context.Device.GraphicsCommandPool)
}

func (vb *VulkanBackend) EndSingleTimeCommands(cmd renderer.CommandBuffer) error {
	return cmd.(*VulkanCommandBuffer).EndSingleUse(vb.context.Device.GraphicsQueue)
}

func (vb *VulkanBackend) SubmitGraphics(cmd renderer.CommandBuffer, wait, signal renderer.Semaphore, fence renderer.Fence) error {
	commandBuffer := cmd.(*VulkanCommandBuffer)
	inFlight := fence.(*VulkanFence)

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{semaphoreHandle(wait)},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{commandBuffer.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{semaphoreHandle(signal)},
	}
	err := vb.context.locks.SafeQueueCall(func() error {
		return vkCheck(vk.QueueSubmit(vb.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, inFlight.Handle), "vkQueueSubmit")
	})
	if err != nil {
		return errors.Wrap(err, "failed to submit draw command buffer")
	}
	inFlight.markUnsignaled()
	commandBuffer.UpdateSubmitted()
	return nil
}

func (vb *VulkanBackend) CreateBuffer(size uint64, usage metadata.BufferUsage, properties metadata.MemoryProperty) (renderer.DeviceBuffer, error) {
	return NewVulkanBuffer(vb.context, size, usage, properties)
}

func (vb *VulkanBackend) CreatePipeline(config *renderer.PipelineConfig) (renderer.Pipeline, error) {
	return NewGraphicsPipeline(vb.context, config)
}

func (vb *VulkanBackend) CreateUniformDescriptorSets(buffers []renderer.BufferInfo) (renderer.DescriptorSetLayout, []renderer.DescriptorSet, error) {
	layout, err := NewDescriptorSetLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeUniformBuffer, vk.ShaderStageFlags(vk.ShaderStageAllGraphics), 1).
		Build(vb.context)
	if err != nil {
		return nil, nil, err
	}
	vb.setLayouts = append(vb.setLayouts, layout)

	sets := make([]renderer.DescriptorSet, len(buffers))
	for i, info := range buffers {
		if info.Buffer == nil {
			return nil, nil, errors.AssertionFailedf("descriptor set %d has no buffer", i)
		}
		set, err := NewDescriptorWriter(layout, vb.descriptorPool).
			WriteBuffer(0, info).
			Build(vb.context)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to build global descriptor set %d", i)
		}
		sets[i] = set
	}
	return layout, sets, nil
}

func (vb *VulkanBackend) MinUniformBufferOffsetAlignment() uint64 {
	return uint64(vb.context.Device.Properties.Limits.MinUniformBufferOffsetAlignment)
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
