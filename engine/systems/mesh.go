package systems

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/resources"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/scene"
	"golang.org/x/sync/errgroup"
)

// MeshLoader resolves a model file into a decoded resource. Implemented by
// assets.AssetManager.
type MeshLoader interface {
	LoadAsset(filename string, params interface{}) (*resources.Resource, error)
}

type meshEntry struct {
	name     string
	mesh     *renderer.Mesh
	refCount uint32
}

/**
 * @brief Registry of uploaded meshes. Scene objects hold a scene.MeshID and
 * the registry counts their references; a mesh is destroyed when the last
 * reference goes away.
 */
type MeshSystem struct {
	device renderer.Device
	loader MeshLoader
	ids    *core.IDAllocator

	meshes map[scene.MeshID]*meshEntry
	byName map[string]scene.MeshID
}

var _ scene.MeshRefCounter = (*MeshSystem)(nil)

// NewMeshSystem creates an empty registry. loader may be nil when meshes are
// only created from builders.
func NewMeshSystem(device renderer.Device, loader MeshLoader) *MeshSystem {
	return &MeshSystem{
		device: device,
		loader: loader,
		ids:    core.NewIDAllocator(),
		meshes: make(map[scene.MeshID]*meshEntry),
		byName: make(map[string]scene.MeshID),
	}
}

// Register takes ownership of an already uploaded mesh.
func (ms *MeshSystem) Register(name string, mesh *renderer.Mesh) (scene.MeshID, error) {
	if _, ok := ms.byName[name]; ok {
		return scene.NoMesh, errors.Newf("mesh %q already registered", name)
	}
	id := scene.MeshID(ms.ids.Next())
	ms.meshes[id] = &meshEntry{name: name, mesh: mesh}
	ms.byName[name] = id
	core.LogDebug("registered mesh '%s' as %d (%d vertices, %d indices)", name, id, mesh.VertexCount(), mesh.IndexCount())
	return id, nil
}

// Create uploads builder and registers the result under name.
func (ms *MeshSystem) Create(name string, builder *metadata.MeshBuilder) (scene.MeshID, error) {
	mesh, err := renderer.NewMesh(ms.device, builder)
	if err != nil {
		return scene.NoMesh, errors.Wrapf(err, "failed to create mesh %q", name)
	}
	id, err := ms.Register(name, mesh)
	if err != nil {
		mesh.Destroy()
		return scene.NoMesh, err
	}
	return id, nil
}

// Load decodes a model file through the loader and uploads it.
func (ms *MeshSystem) Load(name, filename string) (scene.MeshID, error) {
	builder, err := ms.decode(filename)
	if err != nil {
		return scene.NoMesh, err
	}
	return ms.Create(name, builder)
}

func (ms *MeshSystem) decode(filename string) (*metadata.MeshBuilder, error) {
	if ms.loader == nil {
		return nil, errors.AssertionFailedf("mesh system has no loader for %s", filename)
	}
	res, err := ms.loader.LoadAsset(filename, nil)
	if err != nil {
		return nil, err
	}
	builder, ok := res.Data.(*metadata.MeshBuilder)
	if !ok {
		return nil, errors.Newf("%s is a %s, not a model", filename, res.Type)
	}
	return builder, nil
}

/**
 * @brief Loads several models at once. Files are decoded concurrently; the
 * uploads happen afterwards on the calling goroutine in name order.
 *
 * @param ctx Cancels outstanding decodes.
 * @param files Mesh name to model file name.
 * @return The registered ids by mesh name.
 */
func (ms *MeshSystem) LoadAll(ctx context.Context, files map[string]string) (map[string]scene.MeshID, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var mu sync.Mutex
	builders := make(map[string]*metadata.MeshBuilder, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			builder, err := ms.decode(files[name])
			if err != nil {
				return errors.Wrapf(err, "mesh %q", name)
			}
			mu.Lock()
			builders[name] = builder
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	ids := make(map[string]scene.MeshID, len(names))
	for _, name := range names {
		id, err := ms.Create(name, builders[name])
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		ids[name] = id
	}
	return ids, nil
}

func (ms *MeshSystem) Acquire(id scene.MeshID) error {
	entry, ok := ms.meshes[id]
	if !ok {
		return errors.Wrapf(core.ErrUnknownMesh, "mesh %d", id)
	}
	entry.refCount++
	return nil
}

// Release drops a reference. The mesh is destroyed when none remain.
func (ms *MeshSystem) Release(id scene.MeshID) {
	entry, ok := ms.meshes[id]
	if !ok {
		core.LogWarn("release of unknown mesh %d. Nothing was done.", id)
		return
	}
	if entry.refCount == 0 {
		panic(errors.AssertionFailedf("mesh %d released more often than acquired", id))
	}
	entry.refCount--
	if entry.refCount == 0 {
		ms.unload(id, entry)
	}
}

// Get returns the mesh for id, or nil.
func (ms *MeshSystem) Get(id scene.MeshID) *renderer.Mesh {
	if entry, ok := ms.meshes[id]; ok {
		return entry.mesh
	}
	return nil
}

func (ms *MeshSystem) RefCount(id scene.MeshID) uint32 {
	if entry, ok := ms.meshes[id]; ok {
		return entry.refCount
	}
	return 0
}

func (ms *MeshSystem) Lookup(name string) (scene.MeshID, bool) {
	id, ok := ms.byName[name]
	return id, ok
}

func (ms *MeshSystem) Len() int {
	return len(ms.meshes)
}

// Unload destroys a mesh nobody references. Referenced meshes are kept.
func (ms *MeshSystem) Unload(id scene.MeshID) error {
	entry, ok := ms.meshes[id]
	if !ok {
		return errors.Wrapf(core.ErrUnknownMesh, "mesh %d", id)
	}
	if entry.refCount > 0 {
		return errors.Newf("mesh %q still has %d references", entry.name, entry.refCount)
	}
	ms.unload(id, entry)
	return nil
}

func (ms *MeshSystem) unload(id scene.MeshID, entry *meshEntry) {
	entry.mesh.Destroy()
	delete(ms.meshes, id)
	delete(ms.byName, entry.name)
	core.LogDebug("unloaded mesh '%s'", entry.name)
}

// Shutdown destroys every mesh regardless of references.
func (ms *MeshSystem) Shutdown() {
	for id, entry := range ms.meshes {
		ms.unload(id, entry)
	}
}
