package vulkan

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
)

const (
	pipelineCacheHeaderSize    = 32
	pipelineCacheHeaderVersion = 1
)

// PipelineCacheHeader is the version one header every driver writes at the
// start of vkGetPipelineCacheData output.
type PipelineCacheHeader struct {
	Length   uint32
	Version  uint32
	VendorID uint32
	DeviceID uint32
	CacheID  uuid.UUID
}

func ParsePipelineCacheHeader(data []byte) (PipelineCacheHeader, error) {
	var header PipelineCacheHeader
	if len(data) < pipelineCacheHeaderSize {
		return header, errors.Wrapf(core.ErrPipelineCacheInvalid, "%d bytes is shorter than the header", len(data))
	}
	if err := binary.Read(bytes.NewReader(data[:pipelineCacheHeaderSize]), binary.LittleEndian, &header); err != nil {
		return header, errors.Wrap(core.ErrPipelineCacheInvalid, err.Error())
	}
	if header.Length != pipelineCacheHeaderSize || header.Version != pipelineCacheHeaderVersion {
		return header, errors.Wrapf(core.ErrPipelineCacheInvalid, "header length %d version %d", header.Length, header.Version)
	}
	return header, nil
}

// Validate checks that the cache was written by the same driver on the same
// device. Anything else must be discarded.
func (h PipelineCacheHeader) Validate(vendorID, deviceID uint32, cacheID uuid.UUID) error {
	if h.VendorID != vendorID || h.DeviceID != deviceID {
		return errors.Wrapf(core.ErrPipelineCacheInvalid, "cache is for device %#x:%#x, running on %#x:%#x", h.VendorID, h.DeviceID, vendorID, deviceID)
	}
	if h.CacheID != cacheID {
		return errors.Wrapf(core.ErrPipelineCacheInvalid, "cache id %s does not match driver cache id %s", h.CacheID, cacheID)
	}
	return nil
}

// PipelineCache wraps a VkPipelineCache that is seeded from and written back
// to a file on disk.
type PipelineCache struct {
	Handle vk.PipelineCache

	path     string
	vendorID uint32
	deviceID uint32
	cacheID  uuid.UUID
}

func NewPipelineCache(context *VulkanContext, path string) (*PipelineCache, error) {
	properties := context.Device.Properties
	cacheID, err := uuid.FromBytes(properties.PipelineCacheUUID[:])
	if err != nil {
		return nil, errors.Wrap(err, "driver returned a malformed pipeline cache uuid")
	}
	cache := &PipelineCache{
		path:     path,
		vendorID: properties.VendorID,
		deviceID: properties.DeviceID,
		cacheID:  cacheID,
	}

	initial := cache.readInitialData()
	createInfo := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	if len(initial) > 0 {
		createInfo.InitialDataSize = uint(len(initial))
		createInfo.PInitialData = unsafe.Pointer(&initial[0])
	}

	var handle vk.PipelineCache
	if err := vkCheck(vk.CreatePipelineCache(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle), "vkCreatePipelineCache"); err != nil {
		return nil, err
	}
	cache.Handle = handle
	return cache, nil
}

// readInitialData returns the cached blob when it is usable, nil otherwise.
func (c *PipelineCache) readInitialData() []byte {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogDebug("no pipeline cache at %s, starting empty", c.path)
		return nil
	}
	if err != nil {
		core.LogWarn("failed to read pipeline cache %s: %s", c.path, err)
		return nil
	}
	header, err := ParsePipelineCacheHeader(data)
	if err == nil {
		err = header.Validate(c.vendorID, c.deviceID, c.cacheID)
	}
	if err != nil {
		core.LogWarn("discarding pipeline cache %s: %s", c.path, err)
		return nil
	}
	core.LogInfo("loaded %d bytes of pipeline cache from %s", len(data), c.path)
	return data
}

// Save writes the current cache contents to disk.
func (c *PipelineCache) Save(context *VulkanContext) error {
	if c.path == "" || c.Handle == nil {
		return nil
	}
	device := context.Device.LogicalDevice

	var size uint
	if err := vkCheck(vk.GetPipelineCacheData(device, c.Handle, &size, nil), "vkGetPipelineCacheData"); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	data := make([]byte, size)
	if err := vkCheck(vk.GetPipelineCacheData(device, c.Handle, &size, unsafe.Pointer(&data[0])), "vkGetPipelineCacheData"); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for pipeline cache %s", c.path)
	}
	if err := os.WriteFile(c.path, data[:size], 0o644); err != nil {
		return errors.Wrapf(err, "failed to write pipeline cache %s", c.path)
	}
	core.LogInfo("saved %d bytes of pipeline cache to %s", size, c.path)
	return nil
}

func (c *PipelineCache) Destroy(context *VulkanContext) {
	if c.Handle != nil {
		vk.DestroyPipelineCache(context.Device.LogicalDevice, c.Handle, context.Allocator)
		c.Handle = nil
	}
}
