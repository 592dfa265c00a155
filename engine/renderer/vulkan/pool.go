package vulkan

import "sync"

type LockGroup string

const (
	QueueManagement      LockGroup = "queue_management"
	PipelineManagement   LockGroup = "pipeline_management"
	DescriptorManagement LockGroup = "descriptor_management"
)

// VulkanLockPool hands out one mutex per group of externally synchronized
// Vulkan objects. Queue submission and pipeline creation may be driven from
// goroutines other than the frame loop (asset hot reload), so both go
// through here.
type VulkanLockPool struct {
	mu    sync.Mutex
	locks map[LockGroup]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks: make(map[LockGroup]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	l, ok := vs.locks[group]
	if !ok {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	return l
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// SafeQueueCall serializes access to the graphics and present queues. They
// are often the same VkQueue so a single lock guards both.
func (vs *VulkanLockPool) SafeQueueCall(fn func() error) error {
	return vs.SafeCall(QueueManagement, fn)
}
