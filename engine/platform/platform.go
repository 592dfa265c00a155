package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

var keyMap = map[glfw.Key]core.KeyCode{
	glfw.KeyEscape: core.KEY_ESCAPE,
	glfw.KeySpace:  core.KEY_SPACE,
	glfw.KeyLeft:   core.KEY_LEFT,
	glfw.KeyUp:     core.KEY_UP,
	glfw.KeyRight:  core.KEY_RIGHT,
	glfw.KeyDown:   core.KEY_DOWN,
	glfw.KeyA:      core.KEY_A,
	glfw.KeyD:      core.KEY_D,
	glfw.KeyE:      core.KEY_E,
	glfw.KeyQ:      core.KEY_Q,
	glfw.KeyS:      core.KEY_S,
	glfw.KeyW:      core.KEY_W,
}

// Platform owns the glfw window and feeds its input into the engine.
type Platform struct {
	Window *glfw.Window

	input   *core.Input
	events  *core.EventBus
	resized bool
}

var _ renderer.Window = (*Platform)(nil)

func New(input *core.Input, events *core.EventBus) *Platform {
	return &Platform{
		input:  input,
		events: events,
	}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events without blocking.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

func (p *Platform) ShouldClose() bool {
	return p.Window.ShouldClose()
}

func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// CreateSurface returns the raw VkSurfaceKHR handle for the window.
func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, nil)
}

func (p *Platform) Extent() metadata.Extent {
	w, h := p.Window.GetFramebufferSize()
	return metadata.Extent{Width: uint32(w), Height: uint32(h)}
}

func (p *Platform) WasResized() bool {
	return p.resized
}

func (p *Platform) ResetResizedFlag() {
	p.resized = false
}

func (p *Platform) WaitEvents() {
	glfw.WaitEvents()
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	code, ok := keyMap[key]
	if !ok || action == glfw.Repeat {
		return
	}
	p.input.ProcessKey(code, action == glfw.Press)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.resized = true
	p.events.Fire(core.EVENT_CODE_RESIZED, p, core.EventContext{
		Width:  uint32(width),
		Height: uint32(height),
	})
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
}
