package renderer_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/rendertest"
)

func recordMesh(t *testing.T, m *renderer.Mesh) *rendertest.CommandBuffer {
	t.Helper()
	cmd := &rendertest.CommandBuffer{}
	cmd.Begin(false)
	m.Bind(cmd)
	m.Draw(cmd)
	cmd.End()
	return cmd
}

func TestMeshDraw(t *testing.T) {
	for _, tc := range []struct {
		name    string
		builder metadata.MeshBuilder
		ops     []string
		count   uint32
	}{
		{
			name:    "indexed",
			builder: metadata.MeshBuilder{Vertices: testVertices(4), Indices: []uint32{0, 1, 2, 2, 3, 0}},
			ops:     []string{rendertest.OpBindVertexBuffer, rendertest.OpBindIndexBuffer, rendertest.OpDrawIndexed},
			count:   6,
		},
		{
			name:    "non-indexed",
			builder: metadata.MeshBuilder{Vertices: testVertices(3)},
			ops:     []string{rendertest.OpBindVertexBuffer, rendertest.OpDraw},
			count:   3,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev := rendertest.NewDevice()
			m, err := renderer.NewMesh(dev, &tc.builder)
			if err != nil {
				t.Fatalf("NewMesh: %v", err)
			}

			cmd := recordMesh(t, m)
			ops := cmd.Ops()
			if len(ops) != len(tc.ops) {
				t.Fatalf("ops:\nhave %v\nwant %v", ops, tc.ops)
			}
			for i := range ops {
				if ops[i] != tc.ops[i] {
					t.Fatalf("ops:\nhave %v\nwant %v", ops, tc.ops)
				}
			}
			draw := cmd.Calls[len(cmd.Calls)-1]
			if draw.Count != tc.count || draw.Instances != 1 {
				t.Fatalf("draw:\nhave %d x%d\nwant %d x1", draw.Count, draw.Instances, tc.count)
			}
			if cmd.Calls[0].Buffer != m.VertexBuffer().Handle() {
				t.Fatal("bound the wrong vertex buffer")
			}

			m.Destroy()
			if dev.LiveBuffers() != 0 {
				t.Fatalf("live buffers after Destroy: %d", dev.LiveBuffers())
			}
		})
	}
}

func TestMeshNeedsThreeVertices(t *testing.T) {
	dev := rendertest.NewDevice()
	_, err := renderer.NewMesh(dev, &metadata.MeshBuilder{Vertices: testVertices(2)})
	if !errors.Is(err, core.ErrMeshTooSmall) {
		t.Fatalf("NewMesh with 2 vertices:\nhave %v\nwant %v", err, core.ErrMeshTooSmall)
	}
	if len(dev.Buffers) != 0 {
		t.Fatal("buffers allocated for a rejected mesh")
	}
}
