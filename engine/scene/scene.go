package scene

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/components"
)

type ObjectID uint32

// MeshID references a mesh held by a mesh registry.
type MeshID uint32

const NoMesh MeshID = 0

// MeshRefCounter tracks how many objects reference each mesh.
type MeshRefCounter interface {
	Acquire(id MeshID) error
	Release(id MeshID)
}

// Object is a scene entry. Mesh and PointLight are optional and independent.
type Object struct {
	id         ObjectID
	Name       string
	Transform  components.Transform
	Color      mgl32.Vec3
	Mesh       MeshID
	PointLight *components.PointLight
}

func (o *Object) ID() ObjectID {
	return o.id
}

func (o *Object) HasMesh() bool {
	return o.Mesh != NoMesh
}

func (o *Object) IsPointLight() bool {
	return o.PointLight != nil
}

// Scene owns every object. Objects are only reachable through their id and are
// never copied out of the scene.
type Scene struct {
	ids     *core.IDAllocator
	meshes  MeshRefCounter
	objects map[ObjectID]*Object
	order   []ObjectID
}

// New creates an empty scene. meshes may be nil if no object will carry a mesh.
func New(ids *core.IDAllocator, meshes MeshRefCounter) *Scene {
	return &Scene{
		ids:     ids,
		meshes:  meshes,
		objects: make(map[ObjectID]*Object),
	}
}

func (s *Scene) CreateObject() *Object {
	obj := &Object{
		id:        ObjectID(s.ids.Next()),
		Transform: components.NewTransform(),
	}
	s.objects[obj.id] = obj
	// ids are increasing, so appending keeps order sorted
	s.order = append(s.order, obj.id)
	return obj
}

// MakePointLight creates a light-only object. radius is stored as the uniform
// transform scale.
func (s *Scene) MakePointLight(intensity, radius float32, color mgl32.Vec3) *Object {
	obj := s.CreateObject()
	obj.Color = color
	obj.Transform.Scale = mgl32.Vec3{radius, radius, radius}
	obj.PointLight = &components.PointLight{LightIntensity: intensity}
	return obj
}

func (s *Scene) Get(id ObjectID) (*Object, bool) {
	obj, ok := s.objects[id]
	return obj, ok
}

// AttachMesh points obj at mesh, taking a reference on it and dropping the
// reference on any previous mesh.
func (s *Scene) AttachMesh(obj *Object, mesh MeshID) error {
	if _, ok := s.objects[obj.id]; !ok {
		return errors.Wrapf(core.ErrUnknownObject, "object %d", obj.id)
	}
	if obj.Mesh == mesh {
		return nil
	}
	if mesh != NoMesh {
		if s.meshes == nil {
			return errors.AssertionFailedf("scene has no mesh registry")
		}
		if err := s.meshes.Acquire(mesh); err != nil {
			return err
		}
	}
	if obj.Mesh != NoMesh {
		s.meshes.Release(obj.Mesh)
	}
	obj.Mesh = mesh
	return nil
}

// Destroy removes the object and releases its mesh reference.
func (s *Scene) Destroy(id ObjectID) error {
	obj, ok := s.objects[id]
	if !ok {
		return errors.Wrapf(core.ErrUnknownObject, "object %d", id)
	}
	if obj.Mesh != NoMesh {
		s.meshes.Release(obj.Mesh)
		obj.Mesh = NoMesh
	}
	delete(s.objects, id)
	i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= id })
	s.order = append(s.order[:i], s.order[i+1:]...)
	return nil
}

func (s *Scene) Len() int {
	return len(s.objects)
}

// Each visits objects in ascending id order.
func (s *Scene) Each(fn func(obj *Object)) {
	for _, id := range s.order {
		fn(s.objects[id])
	}
}

// Clear destroys every object.
func (s *Scene) Clear() {
	for len(s.order) > 0 {
		s.Destroy(s.order[len(s.order)-1])
	}
}
