package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
)

// DescriptorSetLayoutBuilder collects bindings keyed by binding index. Adding
// the same index twice is a programming error.
type DescriptorSetLayoutBuilder struct {
	bindings map[uint32]vk.DescriptorSetLayoutBinding
	order    []uint32
}

func NewDescriptorSetLayoutBuilder() *DescriptorSetLayoutBuilder {
	return &DescriptorSetLayoutBuilder{bindings: make(map[uint32]vk.DescriptorSetLayoutBinding)}
}

func (b *DescriptorSetLayoutBuilder) AddBinding(binding uint32, descriptorType vk.DescriptorType, stages vk.ShaderStageFlags, count uint32) *DescriptorSetLayoutBuilder {
	if _, ok := b.bindings[binding]; ok {
		panic(errors.AssertionFailedf("descriptor binding %d already in use", binding))
	}
	b.bindings[binding] = vk.DescriptorSetLayoutBinding{
		Binding:         binding,
		DescriptorType:  descriptorType,
		DescriptorCount: count,
		StageFlags:      stages,
	}
	b.order = append(b.order, binding)
	return b
}

func (b *DescriptorSetLayoutBuilder) Build(context *VulkanContext) (*VulkanDescriptorSetLayout, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(b.order))
	for _, index := range b.order {
		bindings = append(bindings, b.bindings[index])
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var handle vk.DescriptorSetLayout
	if err := vkCheck(vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle), "vkCreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	return &VulkanDescriptorSetLayout{
		Handle:   handle,
		bindings: b.bindings,
	}, nil
}

type VulkanDescriptorSetLayout struct {
	Handle   vk.DescriptorSetLayout
	bindings map[uint32]vk.DescriptorSetLayoutBinding
}

func (l *VulkanDescriptorSetLayout) Destroy(context *VulkanContext) {
	if l.Handle != nil {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, l.Handle, context.Allocator)
		l.Handle = nil
	}
}

type DescriptorPoolBuilder struct {
	sizes   []vk.DescriptorPoolSize
	maxSets uint32
}

func NewDescriptorPoolBuilder() *DescriptorPoolBuilder {
	return &DescriptorPoolBuilder{maxSets: 1000}
}

func (b *DescriptorPoolBuilder) AddPoolSize(descriptorType vk.DescriptorType, count uint32) *DescriptorPoolBuilder {
	b.sizes = append(b.sizes, vk.DescriptorPoolSize{Type: descriptorType, DescriptorCount: count})
	return b
}

func (b *DescriptorPoolBuilder) SetMaxSets(count uint32) *DescriptorPoolBuilder {
	b.maxSets = count
	return b
}

func (b *DescriptorPoolBuilder) Build(context *VulkanContext) (*VulkanDescriptorPool, error) {
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(b.sizes)),
		PPoolSizes:    b.sizes,
		MaxSets:       b.maxSets,
	}
	var handle vk.DescriptorPool
	if err := vkCheck(vk.CreateDescriptorPool(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle), "vkCreateDescriptorPool"); err != nil {
		return nil, err
	}
	return &VulkanDescriptorPool{Handle: handle}, nil
}

type VulkanDescriptorPool struct {
	Handle vk.DescriptorPool
}

// Allocate returns a set with the given layout. Running out of pool space is
// reported as an error, callers do not grow the pool.
func (p *VulkanDescriptorPool) Allocate(context *VulkanContext, layout *VulkanDescriptorSetLayout) (vk.DescriptorSet, error) {
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.Handle},
	}
	sets := make([]vk.DescriptorSet, 1)
	var result vk.Result
	_ = context.locks.SafeCall(DescriptorManagement, func() error {
		result = vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocateInfo, &sets[0])
		return nil
	})
	if err := vkCheck(result, "vkAllocateDescriptorSets"); err != nil {
		return nil, err
	}
	return sets[0], nil
}

func (p *VulkanDescriptorPool) Reset(context *VulkanContext) error {
	return vkCheck(vk.ResetDescriptorPool(context.Device.LogicalDevice, p.Handle, 0), "vkResetDescriptorPool")
}

func (p *VulkanDescriptorPool) Destroy(context *VulkanContext) {
	if p.Handle != nil {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, p.Handle, context.Allocator)
		p.Handle = nil
	}
}

// DescriptorWriter accumulates buffer writes against one layout and flushes
// them into a set.
type DescriptorWriter struct {
	layout *VulkanDescriptorSetLayout
	pool   *VulkanDescriptorPool
	writes []vk.WriteDescriptorSet
}

func NewDescriptorWriter(layout *VulkanDescriptorSetLayout, pool *VulkanDescriptorPool) *DescriptorWriter {
	return &DescriptorWriter{layout: layout, pool: pool}
}

func (w *DescriptorWriter) WriteBuffer(binding uint32, info renderer.BufferInfo) *DescriptorWriter {
	description, ok := w.layout.bindings[binding]
	if !ok {
		panic(errors.AssertionFailedf("layout does not contain binding %d", binding))
	}
	if description.DescriptorCount != 1 {
		panic(errors.AssertionFailedf("binding %d expects %d descriptors, a single buffer was written", binding, description.DescriptorCount))
	}
	w.writes = append(w.writes, vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      binding,
		DescriptorType:  description.DescriptorType,
		DescriptorCount: 1,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: bufferHandle(info.Buffer),
			Offset: vk.DeviceSize(info.Offset),
			Range:  toVkDeviceSize(info.Range),
		}},
	})
	return w
}

func (w *DescriptorWriter) Build(context *VulkanContext) (vk.DescriptorSet, error) {
	set, err := w.pool.Allocate(context, w.layout)
	if err != nil {
		return nil, err
	}
	w.Overwrite(context, set)
	return set, nil
}

func (w *DescriptorWriter) Overwrite(context *VulkanContext, set vk.DescriptorSet) {
	for i := range w.writes {
		w.writes[i].DstSet = set
	}
	vk.UpdateDescriptorSets(context.Device.LogicalDevice, uint32(len(w.writes)), w.writes, 0, nil)
}
