//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

const shaderDir = "shaders"

type Build mg.Namespace

// Compiles every GLSL stage under shaders/ to SPIR-V next to its source.
// Stages whose .spv is newer than the source are skipped.
func (Build) Shaders() error {
	return buildShaders()
}

func buildShaders() error {
	var sources []string
	for _, pattern := range []string{"*.vert", "*.frag"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, pattern))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shader sources found in %s", shaderDir)
	}

	for _, src := range sources {
		dst := src + ".spv"
		stale, err := target.Path(dst, src)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		if !stale {
			continue
		}
		if _, err := executeCmd("glslc", withArgs(src, "-o", dst), withStream()); err != nil {
			return err
		}
	}
	return nil
}
