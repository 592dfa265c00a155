package scene

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
)

type countingRefs map[MeshID]int

func (c countingRefs) Acquire(id MeshID) error {
	if id == 99 {
		return core.ErrUnknownMesh
	}
	c[id]++
	return nil
}

func (c countingRefs) Release(id MeshID) { c[id]-- }

func TestObjectIDsAreNeverReused(t *testing.T) {
	s := New(core.NewIDAllocator(), nil)
	a := s.CreateObject()
	b := s.CreateObject()
	if err := s.Destroy(a.ID()); err != nil {
		t.Fatal(err)
	}
	c := s.CreateObject()
	if c.ID() == a.ID() || c.ID() <= b.ID() {
		t.Fatalf("ids:\nhave a=%d b=%d c=%d\nwant c greater than every earlier id", a.ID(), b.ID(), c.ID())
	}
	if _, ok := s.Get(a.ID()); ok {
		t.Fatal("destroyed object still reachable")
	}
	if err := s.Destroy(a.ID()); !errors.Is(err, core.ErrUnknownObject) {
		t.Fatalf("double Destroy:\nhave %v\nwant %v", err, core.ErrUnknownObject)
	}
}

func TestEachVisitsInIDOrder(t *testing.T) {
	s := New(core.NewIDAllocator(), nil)
	var created []ObjectID
	for i := 0; i < 5; i++ {
		created = append(created, s.CreateObject().ID())
	}
	s.Destroy(created[2])

	var visited []ObjectID
	s.Each(func(o *Object) { visited = append(visited, o.ID()) })
	want := []ObjectID{created[0], created[1], created[3], created[4]}
	if len(visited) != len(want) {
		t.Fatalf("Each:\nhave %v\nwant %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("Each:\nhave %v\nwant %v", visited, want)
		}
	}
}

func TestMakePointLight(t *testing.T) {
	s := New(core.NewIDAllocator(), nil)
	light := s.MakePointLight(10, .1, mgl32.Vec3{1, 1, 1})
	if !light.IsPointLight() || light.HasMesh() {
		t.Fatal("point light should carry a light and no mesh")
	}
	if light.PointLight.LightIntensity != 10 || light.Transform.Scale.X() != .1 {
		t.Fatalf("light:\nhave intensity %v radius %v\nwant 10 0.1", light.PointLight.LightIntensity, light.Transform.Scale.X())
	}
}

func TestAttachMeshCountsReferences(t *testing.T) {
	refs := countingRefs{}
	s := New(core.NewIDAllocator(), refs)
	a, b := s.CreateObject(), s.CreateObject()

	if err := s.AttachMesh(a, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.AttachMesh(b, 1); err != nil {
		t.Fatal(err)
	}
	if refs[1] != 2 {
		t.Fatalf("refs after sharing:\nhave %d\nwant 2", refs[1])
	}

	if err := s.AttachMesh(b, 2); err != nil {
		t.Fatal(err)
	}
	if refs[1] != 1 || refs[2] != 1 {
		t.Fatalf("refs after swap:\nhave %v\nwant map[1:1 2:1]", refs)
	}

	if err := s.AttachMesh(a, 99); err == nil {
		t.Fatal("AttachMesh to unknown mesh: want error")
	}
	if a.Mesh != 1 || refs[1] != 1 {
		t.Fatal("failed attach changed the object")
	}

	s.Clear()
	if refs[1] != 0 || refs[2] != 0 || s.Len() != 0 {
		t.Fatalf("refs after Clear:\nhave %v\nwant all zero", refs)
	}
}
