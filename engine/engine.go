package engine

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/assets"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/platform"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/vulkan"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/resources"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/scene"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// MaxFrameTime caps the delta handed to the update step, e.g. after the
// window was dragged or the process was paused in a debugger.
const MaxFrameTime = 1.0

// ViewerStartZ is where the viewer object starts, looking down +Z.
const ViewerStartZ = -2.5

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *ApplicationConfig
	isRunning    atomic.Bool
	isSuspended  bool
	reloadQueued bool

	events        *core.EventBus
	input         *core.Input
	platform      *platform.Platform
	backend       *vulkan.VulkanBackend
	assetManager  *assets.AssetManager
	meshes        *systems.MeshSystem
	cameras       *systems.CameraSystem
	controller    *systems.KeyboardMovementController
	sceneRenderer *SceneRenderer
	world         *World

	clock    *core.Clock
	metrics  *core.Metrics
	lastTime float64
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = DefaultApplicationConfig()
	}
	if err := g.ApplicationConfig.validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	events := core.NewEventBus()
	input := core.NewInput(events)

	return &Engine{
		currentStage: EngineStageBootComplete,
		gameInstance: g,
		config:       g.ApplicationConfig,
		events:       events,
		input:        input,
		platform:     platform.New(input, events),
		assetManager: am,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.config

	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogWarn("%s, keeping the default log level", err)
	}

	// register some events
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_SHADER_CHANGED, e, e.onShaderChanged)

	if err := e.platform.Startup(cfg.Window.Name, cfg.Window.X, cfg.Window.Y, cfg.Window.Width, cfg.Window.Height); err != nil {
		return err
	}

	e.backend = vulkan.New(e.platform, vulkan.VulkanBackendConfig{
		ApplicationName:   cfg.Window.Name,
		Validation:        cfg.Renderer.Validation,
		PreferMailbox:     cfg.Renderer.PreferMailbox,
		PipelineCachePath: cfg.Renderer.PipelineCache,
	})
	if err := e.backend.Initialize(); err != nil {
		return err
	}

	if err := e.assetManager.Initialize(cfg.Assets.ShaderDir, cfg.Assets.ModelDir); err != nil {
		return err
	}

	sr, err := NewSceneRenderer(e.platform, e.backend, e.assetManager)
	if err != nil {
		return err
	}
	e.sceneRenderer = sr

	e.cameras, err = systems.NewCameraSystem(systems.CameraSystemConfig{
		MaxCameraCount: 61,
		FovDegrees:     cfg.Camera.FovDegrees,
		Near:           cfg.Camera.Near,
		Far:            cfg.Camera.Far,
	})
	if err != nil {
		return err
	}
	e.controller = systems.NewKeyboardMovementController()
	e.controller.MoveSpeed = cfg.Camera.MoveSpeed
	e.controller.LookSpeed = cfg.Camera.LookSpeed

	e.meshes = systems.NewMeshSystem(e.backend, e.assetManager)
	world := &World{
		Config: cfg,
		Scene:  scene.New(core.NewIDAllocator(), e.meshes),
		Meshes: e.meshes,
	}
	world.Viewer = world.Scene.CreateObject()
	world.Viewer.Transform.Translation[2] = ViewerStartZ
	e.world = world

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(world); err != nil {
			err = errors.Wrap(err, "game failed to initialize")
			core.LogError(err.Error())
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized with %d scene objects and %d meshes", world.Scene.Len(), e.meshes.Len())
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return errors.AssertionFailedf("engine must be initialized before Run, stage is %d", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	camera := e.cameras.GetDefault()

	for e.isRunning.Load() {
		e.platform.PumpMessages()
		if e.platform.ShouldClose() {
			e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
			break
		}

		if e.isSuspended {
			e.platform.WaitEvents()
			continue
		}

		e.pollAssetChanges()
		if e.reloadQueued {
			e.reloadQueued = false
			if err := e.sceneRenderer.ReloadShaders(e.assetManager); err != nil {
				core.LogError("shader reload failed, keeping previous pipelines: %s", err)
			}
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		frameTime := currentTime - e.lastTime
		e.lastTime = currentTime
		if frameTime > MaxFrameTime {
			frameTime = MaxFrameTime
		}
		dt := float32(frameTime)

		e.controller.MoveInPlaneXZ(e.input, dt, e.world.Viewer)
		e.cameras.Follow(camera, e.world.Viewer, e.sceneRenderer.AspectRatio())

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(e.world, dt); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				e.isRunning.Store(false)
				break
			}
		}

		if _, err := e.sceneRenderer.DrawFrame(dt, camera, e.world.Scene, e.meshes); err != nil {
			e.isRunning.Store(false)
			return err
		}

		if e.metrics.Update(frameTime) {
			fps, ms := e.metrics.Frame()
			core.LogDebug("%.0f fps, %.3f ms/frame", fps, ms)
		}

		// NOTE: Input update/state copying should always be handled
		// after any input should be recorded; I.E. before this line.
		e.input.Update()
	}

	return e.backend.WaitIdle()
}

// Stop asks the run loop to exit after the current frame. Safe to call from
// any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

// Shutdown releases everything in reverse creation order. Run must have
// returned.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	if e.backend != nil {
		if err := e.backend.WaitIdle(); err != nil {
			core.LogError(err.Error())
		}
	}
	if e.sceneRenderer != nil {
		e.sceneRenderer.Destroy()
		e.sceneRenderer = nil
	}
	if e.world != nil {
		e.world.Scene.Clear()
	}
	if e.meshes != nil {
		e.meshes.Shutdown()
	}
	if err := e.assetManager.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if e.backend != nil {
		if err := e.backend.Shutdown(); err != nil {
			return err
		}
		e.backend = nil
	}
	if err := e.platform.Shutdown(); err != nil {
		return err
	}
	e.events.Shutdown()
	e.currentStage = EngineStageUninitialized
	return nil
}

// pollAssetChanges turns pending file change notifications into events
// without blocking.
func (e *Engine) pollAssetChanges() {
	for {
		select {
		case info := <-e.assetManager.Changes():
			if info.Type == resources.ResourceTypeShader {
				e.events.Fire(core.EVENT_CODE_SHADER_CHANGED, e.assetManager, core.EventContext{Path: info.Path})
			}
		default:
			return
		}
	}
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	if context.Key == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	width, height := context.Width, context.Height
	// Handle minimization
	if width == 0 || height == 0 {
		if !e.isSuspended {
			core.LogInfo("Window minimized, suspending application.")
		}
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	core.LogDebug("Window resize: %d, %d", width, height)
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	return false
}

func (e *Engine) onShaderChanged(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	core.LogInfo("shader %s changed, reloading pipelines at the next frame", context.Path)
	e.reloadQueued = true
	return false
}
