package renderer_test

import (
	"testing"

	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/rendertest"
)

func newFrameRenderer(t *testing.T) (*renderer.FrameRenderer, *rendertest.Device, *rendertest.Window) {
	t.Helper()
	dev := rendertest.NewDevice()
	win := rendertest.NewWindow(800, 600)
	r, err := renderer.NewFrameRenderer(win, dev)
	if err != nil {
		t.Fatalf("NewFrameRenderer: %v", err)
	}
	t.Cleanup(r.Destroy)
	return r, dev, win
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: want panic", name)
		}
	}()
	fn()
}

func TestFrameIndexAdvancesOncePerEndFrame(t *testing.T) {
	r, dev, win := newFrameRenderer(t)

	// frame 1 presents suboptimal, frame 2 sees a resize, frame 4 goes out of date
	dev.PresentScript = []metadata.Status{
		metadata.StatusOk,
		metadata.StatusSuboptimal,
		metadata.StatusOk,
		metadata.StatusOk,
		metadata.StatusSurfaceOutOfDate,
	}

	for frame := 0; frame < 8; frame++ {
		cmd, err := r.BeginFrame()
		if err != nil || cmd == nil {
			t.Fatalf("BeginFrame #%d: %v, %v", frame, cmd, err)
		}
		if have, want := r.FrameIndex(), frame%metadata.MaxFramesInFlight; have != want {
			t.Fatalf("FrameIndex at frame %d:\nhave %d\nwant %d", frame, have, want)
		}
		if frame == 2 {
			win.Resize(640, 480)
		}
		if err := r.EndFrame(); err != nil {
			t.Fatalf("EndFrame #%d: %v", frame, err)
		}
		if r.IsFrameInProgress() {
			t.Fatalf("frame %d still in progress after EndFrame", frame)
		}
	}

	if have := len(dev.Swapchains); have != 4 {
		t.Fatalf("swapchain generations:\nhave %d\nwant 4", have)
	}
	if win.Resized {
		t.Fatal("resize flag not reset")
	}
}

func TestBeginFrameOutOfDateSkipsFrame(t *testing.T) {
	r, dev, _ := newFrameRenderer(t)
	dev.AcquireScript = []metadata.Status{metadata.StatusSurfaceOutOfDate}

	cmd, err := r.BeginFrame()
	if err != nil || cmd != nil {
		t.Fatalf("BeginFrame on out of date surface:\nhave %v, %v\nwant nil, nil", cmd, err)
	}
	if r.IsFrameInProgress() {
		t.Fatal("frame in progress after out of date acquire")
	}
	if len(dev.Swapchains) != 2 {
		t.Fatalf("swapchain generations:\nhave %d\nwant 2", len(dev.Swapchains))
	}

	cmd, err = r.BeginFrame()
	if err != nil || cmd == nil {
		t.Fatalf("BeginFrame after recreation: %v, %v", cmd, err)
	}
	if r.FrameIndex() != 0 {
		t.Fatalf("dropped frame advanced the index to %d", r.FrameIndex())
	}
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestBeginFrameSuboptimalAcquireStillRenders(t *testing.T) {
	r, dev, _ := newFrameRenderer(t)
	dev.AcquireScript = []metadata.Status{metadata.StatusSuboptimal}

	cmd, err := r.BeginFrame()
	if err != nil || cmd == nil {
		t.Fatalf("BeginFrame: %v, %v", cmd, err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if len(dev.Current().Presented) != 1 {
		t.Fatal("suboptimal image was not presented")
	}
}

func TestFrameFatalErrors(t *testing.T) {
	r, dev, _ := newFrameRenderer(t)

	dev.AcquireScript = []metadata.Status{metadata.StatusFatalError}
	if _, err := r.BeginFrame(); err == nil {
		t.Fatal("BeginFrame on fatal acquire: want error")
	}
	if r.IsFrameInProgress() {
		t.Fatal("frame in progress after fatal acquire")
	}

	dev.PresentScript = []metadata.Status{metadata.StatusFatalError}
	if _, err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndFrame(); err == nil {
		t.Fatal("EndFrame on fatal present: want error")
	}
	if r.IsFrameInProgress() {
		t.Fatal("frame in progress after fatal present")
	}
}

func TestEndFrameRecordingFailureIsFatal(t *testing.T) {
	r, dev, win := newFrameRenderer(t)

	cmd, err := r.BeginFrame()
	if err != nil {
		t.Fatal(err)
	}
	// ending the buffer early makes the End inside EndFrame fail
	cmd.End()
	win.Resize(640, 480)
	if err := r.EndFrame(); err == nil {
		t.Fatal("EndFrame after a failed End: want error")
	}
	if n := len(dev.Submissions); n != 0 {
		t.Fatalf("submissions:\nhave %d\nwant 0", n)
	}
	if n := len(dev.Swapchains); n != 1 {
		t.Fatalf("swapchain generations:\nhave %d\nwant 1", n)
	}

	// the unsubmitted frame keeps its slot, and the frame slot and the
	// swapchain slot still agree afterwards
	for frame := 0; frame < 2; frame++ {
		if _, err := r.BeginFrame(); err != nil {
			t.Fatal(err)
		}
		if have := r.FrameIndex(); have != frame {
			t.Fatalf("FrameIndex after a failed frame:\nhave %d\nwant %d", have, frame)
		}
		if err := r.EndFrame(); err != nil {
			t.Fatal(err)
		}
		s := dev.Submissions[frame]
		if s.Cmd != dev.CommandBuffers[frame] || s.Fence != dev.Fences[frame] {
			t.Fatalf("submission %d used command buffer %d with fence of another slot", frame, s.Cmd.ID)
		}
	}
}

func TestEndFrameFatalPresentWinsOverResize(t *testing.T) {
	r, dev, win := newFrameRenderer(t)
	dev.PresentScript = []metadata.Status{metadata.StatusFatalError}

	if _, err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	win.Resize(640, 480)
	if err := r.EndFrame(); err == nil {
		t.Fatal("EndFrame on fatal present with a pending resize: want error")
	}
	if n := len(dev.Swapchains); n != 1 {
		t.Fatalf("swapchain generations:\nhave %d\nwant 1", n)
	}
}

func TestFrameStateAssertions(t *testing.T) {
	r, dev, _ := newFrameRenderer(t)

	mustPanic(t, "EndFrame while idle", func() { r.EndFrame() })
	mustPanic(t, "FrameIndex while idle", func() { r.FrameIndex() })

	cmd, err := r.BeginFrame()
	if err != nil {
		t.Fatal(err)
	}
	mustPanic(t, "BeginFrame twice", func() { r.BeginFrame() })

	other := dev.CommandBuffers[1]
	if renderer.CommandBuffer(other) == cmd {
		other = dev.CommandBuffers[0]
	}
	mustPanic(t, "BeginSwapchainRenderPass with foreign command buffer", func() { r.BeginSwapchainRenderPass(other) })
	mustPanic(t, "EndSwapchainRenderPass with foreign command buffer", func() { r.EndSwapchainRenderPass(other) })

	r.BeginSwapchainRenderPass(cmd)
	r.EndSwapchainRenderPass(cmd)
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	mustPanic(t, "BeginSwapchainRenderPass after EndFrame", func() { r.BeginSwapchainRenderPass(cmd) })
}

func TestSwapchainRenderPassFollowsExtent(t *testing.T) {
	r, _, win := newFrameRenderer(t)

	record := func() *rendertest.CommandBuffer {
		cmd, err := r.BeginFrame()
		if err != nil || cmd == nil {
			t.Fatalf("BeginFrame: %v, %v", cmd, err)
		}
		r.BeginSwapchainRenderPass(cmd)
		r.EndSwapchainRenderPass(cmd)
		if err := r.EndFrame(); err != nil {
			t.Fatal(err)
		}
		return cmd.(*rendertest.CommandBuffer)
	}

	cmd := record()
	want := []string{rendertest.OpBeginRenderPass, rendertest.OpSetViewport, rendertest.OpSetScissor, rendertest.OpEndRenderPass}
	ops := cmd.Ops()
	if len(ops) != len(want) {
		t.Fatalf("ops:\nhave %v\nwant %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("ops:\nhave %v\nwant %v", ops, want)
		}
	}
	begin := cmd.Calls[0]
	if begin.ClearColor != r.ClearColor || begin.ClearDepth != 1 {
		t.Fatalf("clear values:\nhave %v %v\nwant %v 1", begin.ClearColor, begin.ClearDepth, r.ClearColor)
	}
	if vp := cmd.Calls[1].Viewport; vp.Width != 800 || vp.Height != 600 || vp.MaxDepth != 1 {
		t.Fatalf("viewport:\nhave %+v\nwant 800x600 depth [0, 1]", vp)
	}

	win.Resize(1280, 720)
	record()
	cmd = record()
	if vp := cmd.Calls[1].Viewport; vp.Width != 1280 || vp.Height != 720 {
		t.Fatalf("viewport after resize:\nhave %+v\nwant 1280x720", vp)
	}
	if sc := cmd.Calls[2].Extent; sc.Width != 1280 || sc.Height != 720 {
		t.Fatalf("scissor after resize:\nhave %+v\nwant 1280x720", sc)
	}
	if r.AspectRatio() != float32(1280)/720 {
		t.Fatalf("AspectRatio:\nhave %v\nwant %v", r.AspectRatio(), float32(1280)/720)
	}
}
