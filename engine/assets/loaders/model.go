package loaders

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/resources"
)

// ModelLoader decodes Wavefront OBJ files into an indexed mesh. Faces are fan
// triangulated and identical position/uv/normal triples share one vertex.
// Safe for concurrent use.
type ModelLoader struct{}

func (ml *ModelLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	objFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open model %s", path)
	}
	defer objFile.Close()

	var mtl io.Reader = strings.NewReader("")
	if mtlFile, err := os.Open(strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl"); err == nil {
		defer mtlFile.Close()
		mtl = mtlFile
	}

	builder, err := DecodeOBJ(objFile, mtl)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode model %s", path)
	}

	return &resources.Resource{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		Type:     resources.ResourceTypeModel,
		DataSize: uint64(len(builder.Vertices)*metadata.VertexSize + len(builder.Indices)*metadata.IndexSize),
		Data:     builder,
	}, nil
}

func (ml *ModelLoader) Unload(res *resources.Resource) error {
	res.Data = nil
	return nil
}

type vertexKey struct {
	position, uv, normal int
}

type objMesh struct {
	decoder *obj.Decoder
	unique  map[vertexKey]uint32
	builder *metadata.MeshBuilder
}

// DecodeOBJ reads an OBJ stream and its material library into a MeshBuilder.
func DecodeOBJ(objReader, mtlReader io.Reader) (*metadata.MeshBuilder, error) {
	decoder, err := obj.DecodeReader(objReader, mtlReader)
	if err != nil {
		return nil, err
	}

	m := &objMesh{
		decoder: decoder,
		unique:  make(map[vertexKey]uint32),
		builder: &metadata.MeshBuilder{},
	}
	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				if err := m.addVertex(face, 0); err != nil {
					return nil, err
				}
				if err := m.addVertex(face, i-1); err != nil {
					return nil, err
				}
				if err := m.addVertex(face, i); err != nil {
					return nil, err
				}
			}
		}
	}
	if len(m.builder.Vertices) == 0 {
		return nil, errors.New("model has no faces")
	}
	return m.builder, nil
}

// attribute returns the index of face attribute i, or -1 when the face does not
// carry it.
func attribute(indices []int, i, count int) int {
	if i >= len(indices) || indices[i] < 0 || indices[i] >= count {
		return -1
	}
	return indices[i]
}

func (m *objMesh) addVertex(face obj.Face, faceIndex int) error {
	d := m.decoder
	key := vertexKey{
		position: attribute(face.Vertices, faceIndex, len(d.Vertices)/3),
		uv:       attribute(face.Uvs, faceIndex, len(d.Uvs)/2),
		normal:   attribute(face.Normals, faceIndex, len(d.Normals)/3),
	}
	if key.position < 0 {
		return errors.Newf("face references missing vertex %d", face.Vertices[faceIndex])
	}

	index, exists := m.unique[key]
	if !exists {
		vert := metadata.Vertex{
			Position: mgl32.Vec3{
				d.Vertices[key.position*3],
				d.Vertices[key.position*3+1],
				d.Vertices[key.position*3+2],
			},
			Color: mgl32.Vec3{1, 1, 1},
		}
		if key.normal >= 0 {
			vert.Normal = mgl32.Vec3{
				d.Normals[key.normal*3],
				d.Normals[key.normal*3+1],
				d.Normals[key.normal*3+2],
			}
		}
		if key.uv >= 0 {
			vert.UV = mgl32.Vec2{
				d.Uvs[key.uv*2],
				1.0 - d.Uvs[key.uv*2+1],
			}
		}

		index = uint32(len(m.builder.Vertices))
		m.builder.Vertices = append(m.builder.Vertices, vert)
		m.unique[key] = index
	}

	m.builder.Indices = append(m.builder.Indices, index)
	return nil
}
