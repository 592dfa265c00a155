package renderer_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/rendertest"
)

func TestSwapchainWaitsForDrawableExtent(t *testing.T) {
	dev := rendertest.NewDevice()
	win := rendertest.NewWindow(0, 0)
	win.Pending = []metadata.Extent{{Width: 0, Height: 600}, {Width: 800, Height: 600}}

	sm, err := renderer.NewSwapchainManager(dev, win)
	if err != nil {
		t.Fatalf("NewSwapchainManager: %v", err)
	}
	defer sm.Destroy()

	if win.WaitCalls != 2 {
		t.Fatalf("WaitEvents calls:\nhave %d\nwant 2", win.WaitCalls)
	}
	if len(dev.Swapchains) != 1 {
		t.Fatalf("swapchain generations:\nhave %d\nwant 1", len(dev.Swapchains))
	}
	want := metadata.Extent{Width: 800, Height: 600}
	if have := sm.Extent(); have != want {
		t.Fatalf("Extent:\nhave %v\nwant %v", have, want)
	}
}

func TestSwapchainRecreateWhileMinimized(t *testing.T) {
	dev := rendertest.NewDevice()
	win := rendertest.NewWindow(800, 600)
	sm, err := renderer.NewSwapchainManager(dev, win)
	if err != nil {
		t.Fatal(err)
	}
	defer sm.Destroy()

	win.Size = metadata.Extent{}
	win.Pending = []metadata.Extent{{}, {}, {Width: 1024, Height: 768}}
	if err := sm.Recreate(); err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if win.WaitCalls != 3 {
		t.Fatalf("WaitEvents calls:\nhave %d\nwant 3", win.WaitCalls)
	}
	if have := dev.Current().Extent(); have.Width != 1024 || have.Height != 768 {
		t.Fatalf("recreated extent:\nhave %v\nwant 1024x768", have)
	}
}

func TestSwapchainRecreateKeepsFormats(t *testing.T) {
	dev := rendertest.NewDevice()
	win := rendertest.NewWindow(800, 600)
	sm, err := renderer.NewSwapchainManager(dev, win)
	if err != nil {
		t.Fatal(err)
	}
	defer sm.Destroy()

	for i := 0; i < 2; i++ {
		if err := sm.Recreate(); err != nil {
			t.Fatalf("Recreate #%d: %v", i+1, err)
		}
	}

	if len(dev.Swapchains) != 3 {
		t.Fatalf("swapchain generations:\nhave %d\nwant 3", len(dev.Swapchains))
	}
	second, third := dev.Swapchains[1], dev.Swapchains[2]
	if second.ImageFormat() != third.ImageFormat() || second.DepthFormat() != third.DepthFormat() {
		t.Fatalf("formats drifted between generations: (%d, %d) vs (%d, %d)",
			second.ImageFormat(), second.DepthFormat(), third.ImageFormat(), third.DepthFormat())
	}
	if third.Previous != second || second.Previous != dev.Swapchains[0] {
		t.Fatal("recreation did not pass the previous generation to the device")
	}
	if !dev.Swapchains[0].Destroyed || !second.Destroyed || third.Destroyed {
		t.Fatal("only the latest generation should be alive")
	}
	if dev.WaitIdleCalls != 2 {
		t.Fatalf("WaitIdle calls:\nhave %d\nwant 2", dev.WaitIdleCalls)
	}
}

func TestSwapchainRecreateFormatMismatch(t *testing.T) {
	for _, tc := range []struct {
		name  string
		drift func(*rendertest.Device)
	}{
		{"image", func(d *rendertest.Device) { d.ImageFormat = 50 }},
		{"depth", func(d *rendertest.Device) { d.DepthFormat = 130 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev := rendertest.NewDevice()
			sm, err := renderer.NewSwapchainManager(dev, rendertest.NewWindow(800, 600))
			if err != nil {
				t.Fatal(err)
			}
			defer sm.Destroy()

			tc.drift(dev)
			err = sm.Recreate()
			if !errors.Is(err, core.ErrSwapchainFormatMismatch) {
				t.Fatalf("Recreate:\nhave %v\nwant %v", err, core.ErrSwapchainFormatMismatch)
			}
			if !dev.Current().Destroyed {
				t.Fatal("mismatched generation was not destroyed")
			}
		})
	}
}

func TestSwapchainCreateFailureIsFatal(t *testing.T) {
	dev := rendertest.NewDevice()
	dev.CreateSwapchainErr = errors.New("surface lost")
	if _, err := renderer.NewSwapchainManager(dev, rendertest.NewWindow(800, 600)); err == nil {
		t.Fatal("NewSwapchainManager: want error")
	}
}

func TestSwapchainSubmitSynchronization(t *testing.T) {
	dev := rendertest.NewDevice()
	sm, err := renderer.NewSwapchainManager(dev, rendertest.NewWindow(800, 600))
	if err != nil {
		t.Fatal(err)
	}
	defer sm.Destroy()

	cmds, _ := dev.AllocateCommandBuffers(1)
	for i := 0; i < 4; i++ {
		idx, status, err := sm.AcquireNextImage()
		if err != nil || status != metadata.StatusOk {
			t.Fatalf("AcquireNextImage #%d: %v %v", i, status, err)
		}
		cmds[0].Begin(false)
		cmds[0].End()
		if status, err := sm.Submit(cmds[0], idx); err != nil || status != metadata.StatusOk {
			t.Fatalf("Submit #%d: %v %v", i, status, err)
		}
	}

	if len(dev.Submissions) != 4 {
		t.Fatalf("submissions:\nhave %d\nwant 4", len(dev.Submissions))
	}
	for i, s := range dev.Submissions {
		// slots alternate, and each submission waits on the semaphore of its slot
		other := dev.Submissions[(i+1)%len(dev.Submissions)]
		if s.Fence == other.Fence || s.Wait == other.Wait || s.Signal == other.Signal {
			t.Fatalf("consecutive submissions %d and %d share sync objects", i, (i+1)%4)
		}
		if s.Wait == s.Signal {
			t.Fatalf("submission %d waits and signals the same semaphore", i)
		}
	}
	if have := dev.Current().Presented; len(have) != 4 || have[3] != 0 {
		t.Fatalf("presented images:\nhave %v\nwant [0 1 2 0]", have)
	}
}

func TestSwapchainAcquireWaitsForSlotFence(t *testing.T) {
	dev := rendertest.NewDevice()
	sm, err := renderer.NewSwapchainManager(dev, rendertest.NewWindow(800, 600))
	if err != nil {
		t.Fatal(err)
	}
	defer sm.Destroy()

	if len(dev.Fences) != metadata.MaxFramesInFlight {
		t.Fatalf("fences:\nhave %d\nwant %d", len(dev.Fences), metadata.MaxFramesInFlight)
	}
	cmds, _ := dev.AllocateCommandBuffers(1)
	for i := 0; i < 4; i++ {
		slot := dev.Fences[i%metadata.MaxFramesInFlight]
		before := slot.Waits
		idx, status, err := sm.AcquireNextImage()
		if err != nil || status != metadata.StatusOk {
			t.Fatalf("AcquireNextImage #%d: %v %v", i, status, err)
		}
		if slot.Waits != before+1 {
			t.Fatalf("acquire #%d waits on slot fence:\nhave %d\nwant %d", i, slot.Waits-before, 1)
		}
		cmds[0].Begin(false)
		cmds[0].End()
		if _, err := sm.Submit(cmds[0], idx); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSwapchainAcquireUnsignaledFenceIsFatal(t *testing.T) {
	dev := rendertest.NewDevice()
	sm, err := renderer.NewSwapchainManager(dev, rendertest.NewWindow(800, 600))
	if err != nil {
		t.Fatal(err)
	}
	defer sm.Destroy()

	dev.Fences[0].Signaled = false
	_, status, err := sm.AcquireNextImage()
	if err == nil || status != metadata.StatusFatalError {
		t.Fatalf("AcquireNextImage:\nhave %v, %v\nwant %v, error", status, err, metadata.StatusFatalError)
	}
	if n := len(dev.Current().Acquired); n != 0 {
		t.Fatalf("images acquired past an unsignaled fence:\nhave %d\nwant 0", n)
	}
}
