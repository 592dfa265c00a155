package rendertest

import (
	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

// maxWaits bounds WaitEvents so a test that never un-minimizes fails instead
// of hanging.
const maxWaits = 1000

// Window implements renderer.Window. Each WaitEvents call moves the next
// extent of Pending into Size.
type Window struct {
	Size      metadata.Extent
	Pending   []metadata.Extent
	Resized   bool
	WaitCalls int
}

var _ renderer.Window = (*Window)(nil)

func NewWindow(width, height uint32) *Window {
	return &Window{Size: metadata.Extent{Width: width, Height: height}}
}

func (w *Window) Extent() metadata.Extent { return w.Size }

func (w *Window) WasResized() bool { return w.Resized }

func (w *Window) ResetResizedFlag() { w.Resized = false }

func (w *Window) WaitEvents() {
	w.WaitCalls++
	if w.WaitCalls > maxWaits {
		panic(errors.AssertionFailedf("window never produced a drawable extent"))
	}
	if len(w.Pending) > 0 {
		w.Size = w.Pending[0]
		w.Pending = w.Pending[1:]
	}
}

// Resize simulates the platform reporting a new framebuffer size.
func (w *Window) Resize(width, height uint32) {
	w.Size = metadata.Extent{Width: width, Height: height}
	w.Resized = true
}
