package engine

import (
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
)

type WindowConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position, if applicable.
	X uint32 `toml:"x"`
	Y uint32 `toml:"y"`
	// Window starting size, if applicable.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	Validation    bool   `toml:"validation"`
	PreferMailbox bool   `toml:"prefer_mailbox"`
	PipelineCache string `toml:"pipeline_cache"`
}

type CameraConfig struct {
	FovDegrees float32 `toml:"fov_degrees"`
	Near       float32 `toml:"near"`
	Far        float32 `toml:"far"`
	MoveSpeed  float32 `toml:"move_speed"`
	LookSpeed  float32 `toml:"look_speed"`
}

// AssetsConfig lists the directories indexed and watched by the asset manager.
type AssetsConfig struct {
	ShaderDir string `toml:"shader_dir"`
	ModelDir  string `toml:"model_dir"`
}

type ApplicationConfig struct {
	Window   WindowConfig   `toml:"window"`
	Log      LogConfig      `toml:"log"`
	Renderer RendererConfig `toml:"renderer"`
	Camera   CameraConfig   `toml:"camera"`
	Assets   AssetsConfig   `toml:"assets"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Window: WindowConfig{
			Name:   "Patiq Vulkan Engine",
			X:      100,
			Y:      100,
			Width:  800,
			Height: 600,
		},
		Log: LogConfig{Level: "info"},
		Renderer: RendererConfig{
			Validation:    true,
			PreferMailbox: true,
			PipelineCache: ".cache/pipeline.bin",
		},
		Camera: CameraConfig{
			FovDegrees: 50,
			Near:       .1,
			Far:        100,
			MoveSpeed:  3,
			LookSpeed:  1.5,
		},
		Assets: AssetsConfig{
			ShaderDir: "shaders",
			ModelDir:  "assets/models",
		},
	}
}

// LoadApplicationConfig overlays the TOML file at path on the defaults. A
// missing file leaves the defaults untouched.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	config := DefaultApplicationConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogInfo("no config at %s, using defaults", path)
		return config, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := config.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return config, nil
}

func (c *ApplicationConfig) validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return errors.Newf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		return errors.Newf("camera needs 0 < near < far, got near %g far %g", c.Camera.Near, c.Camera.Far)
	}
	if c.Camera.FovDegrees <= 0 || c.Camera.FovDegrees >= 180 {
		return errors.Newf("camera fov must be in (0, 180) degrees, got %g", c.Camera.FovDegrees)
	}
	return nil
}
