package loaders

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/resources"
)

// ShaderLoader reads a compiled SPIR-V stage into words.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read shader %s", path)
	}
	code, err := bytesToBytecode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}
	if len(code) == 0 || code[0] != resources.SpirvMagic {
		return nil, errors.Newf("shader %s is not SPIR-V", path)
	}
	return &resources.Resource{
		Name:     strings.TrimSuffix(filepath.Base(path), ".spv"),
		FullPath: path,
		Type:     resources.ResourceTypeShader,
		DataSize: uint64(len(data)),
		Data:     code,
	}, nil
}

func (sl *ShaderLoader) Unload(res *resources.Resource) error {
	res.Data = nil
	return nil
}
