package systems

import (
	"github.com/cockroachdb/errors"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
)

// passPipeline owns the pipeline of one render pass and can rebuild it from
// new shader code without touching the rest of the configuration.
type passPipeline struct {
	device   renderer.Device
	config   renderer.PipelineConfig
	pipeline renderer.Pipeline
}

func newPassPipeline(device renderer.Device, config renderer.PipelineConfig) (*passPipeline, error) {
	p := &passPipeline{device: device, config: config}
	if err := p.build(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *passPipeline) build() error {
	if p.config.RenderPass == nil {
		return errors.AssertionFailedf("cannot create %s pipeline before the swapchain render pass", p.config.Name)
	}
	pipeline, err := p.device.CreatePipeline(&p.config)
	if err != nil {
		err = errors.Wrapf(err, "failed to create %s pipeline", p.config.Name)
		core.LogError(err.Error())
		return err
	}
	p.pipeline = pipeline
	return nil
}

// Rebuild swaps in new shader code and targets renderPass, which must be the
// render pass of the live swapchain. The device must be idle. On failure the
// previous pipeline stays in use.
func (p *passPipeline) Rebuild(renderPass renderer.RenderPass, vertex, fragment []uint32) error {
	previous, prevConfig := p.pipeline, p.config
	p.config.RenderPass = renderPass
	p.config.VertexShader = vertex
	p.config.FragmentShader = fragment
	if err := p.build(); err != nil {
		p.pipeline, p.config = previous, prevConfig
		return err
	}
	previous.Destroy()
	core.LogInfo("rebuilt %s pipeline", p.config.Name)
	return nil
}

func (p *passPipeline) Destroy() {
	if p.pipeline != nil {
		p.pipeline.Destroy()
		p.pipeline = nil
	}
}
