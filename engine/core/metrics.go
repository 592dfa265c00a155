package core

import "github.com/pa-tiq/PatiqVulkanEngine/engine/containers"

const AVG_COUNT = 30

// Metrics keeps a rolling average of frame times and a frames-per-second count
// refreshed once every accumulated second.
type Metrics struct {
	frameTimes         *containers.RingQueue[float64]
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		frameTimes: containers.NewRingQueue[float64](AVG_COUNT),
	}
}

// Update records one frame. Returns true when the FPS counter rolled over.
func (m *Metrics) Update(frameElapsedTime float64) bool {
	frameMS := frameElapsedTime * 1000.0
	m.frameTimes.Push(frameMS)

	if m.frameTimes.IsFull() {
		sum := 0.0
		m.frameTimes.Each(func(ms float64) { sum += ms })
		m.MSavg = sum / float64(AVG_COUNT)
	}

	rolled := false
	m.AccumulatedFrameMS += frameMS
	if m.AccumulatedFrameMS > 1000 {
		m.FPS = float64(m.Frames)
		m.AccumulatedFrameMS -= 1000
		m.Frames = 0
		rolled = true
	}

	m.Frames++
	return rolled
}

func (m *Metrics) FrameTime() float64 {
	return m.MSavg
}

func (m *Metrics) Frame() (float64, float64) {
	return m.FPS, m.MSavg
}
