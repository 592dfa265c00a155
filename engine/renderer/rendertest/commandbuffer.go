package rendertest

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/renderer/metadata"
)

const (
	OpBeginRenderPass   = "BeginRenderPass"
	OpEndRenderPass     = "EndRenderPass"
	OpSetViewport       = "SetViewport"
	OpSetScissor        = "SetScissor"
	OpBindPipeline      = "BindPipeline"
	OpBindDescriptorSet = "BindDescriptorSet"
	OpPushConstants     = "PushConstants"
	OpBindVertexBuffer  = "BindVertexBuffer"
	OpBindIndexBuffer   = "BindIndexBuffer"
	OpDraw              = "Draw"
	OpDrawIndexed       = "DrawIndexed"
	OpCopyBuffer        = "CopyBuffer"
)

// Call is one recorded command. Only the fields relevant to Op are set.
type Call struct {
	Op          string
	RenderPass  renderer.RenderPass
	Framebuffer renderer.Framebuffer
	Extent      metadata.Extent
	Viewport    metadata.Viewport
	ClearColor  mgl32.Vec4
	ClearDepth  float32
	Pipeline    renderer.Pipeline
	Set         renderer.DescriptorSet
	Stages      metadata.ShaderStage
	Offset      uint32
	Data        []byte
	Buffer      renderer.DeviceBuffer
	Src         renderer.DeviceBuffer
	Size        uint64
	Count       uint32
	Instances   uint32
}

// CommandBuffer records calls since the last Begin.
type CommandBuffer struct {
	ID        int
	Calls     []Call
	Recording bool
	SingleUse bool
	Begins    int
	Freed     bool
}

var _ renderer.CommandBuffer = (*CommandBuffer)(nil)

func (c *CommandBuffer) Begin(singleUse bool) error {
	if c.Recording {
		return errors.Newf("command buffer %d already recording", c.ID)
	}
	c.Recording = true
	c.SingleUse = singleUse
	c.Begins++
	c.Calls = nil
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.Recording {
		return errors.Newf("command buffer %d is not recording", c.ID)
	}
	c.Recording = false
	return nil
}

func (c *CommandBuffer) Reset() error {
	c.Recording = false
	c.Calls = nil
	return nil
}

func (c *CommandBuffer) record(call Call) {
	if !c.Recording {
		panic(errors.AssertionFailedf("%s recorded outside Begin/End on command buffer %d", call.Op, c.ID))
	}
	c.Calls = append(c.Calls, call)
}

func (c *CommandBuffer) BeginRenderPass(pass renderer.RenderPass, framebuffer renderer.Framebuffer, extent metadata.Extent, clearColor mgl32.Vec4, clearDepth float32) {
	c.record(Call{Op: OpBeginRenderPass, RenderPass: pass, Framebuffer: framebuffer, Extent: extent, ClearColor: clearColor, ClearDepth: clearDepth})
}

func (c *CommandBuffer) EndRenderPass() {
	c.record(Call{Op: OpEndRenderPass})
}

func (c *CommandBuffer) SetViewport(viewport metadata.Viewport) {
	c.record(Call{Op: OpSetViewport, Viewport: viewport})
}

func (c *CommandBuffer) SetScissor(extent metadata.Extent) {
	c.record(Call{Op: OpSetScissor, Extent: extent})
}

func (c *CommandBuffer) BindPipeline(pipeline renderer.Pipeline) {
	c.record(Call{Op: OpBindPipeline, Pipeline: pipeline})
}

func (c *CommandBuffer) BindDescriptorSet(pipeline renderer.Pipeline, set renderer.DescriptorSet) {
	c.record(Call{Op: OpBindDescriptorSet, Pipeline: pipeline, Set: set})
}

func (c *CommandBuffer) PushConstants(pipeline renderer.Pipeline, stages metadata.ShaderStage, offset uint32, data []byte) {
	c.record(Call{Op: OpPushConstants, Pipeline: pipeline, Stages: stages, Offset: offset, Data: append([]byte(nil), data...)})
}

func (c *CommandBuffer) BindVertexBuffer(buffer renderer.DeviceBuffer) {
	c.record(Call{Op: OpBindVertexBuffer, Buffer: buffer})
}

func (c *CommandBuffer) BindIndexBuffer(buffer renderer.DeviceBuffer) {
	c.record(Call{Op: OpBindIndexBuffer, Buffer: buffer})
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount uint32) {
	c.record(Call{Op: OpDraw, Count: vertexCount, Instances: instanceCount})
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	c.record(Call{Op: OpDrawIndexed, Count: indexCount, Instances: instanceCount})
}

func (c *CommandBuffer) CopyBuffer(src, dst renderer.DeviceBuffer, size uint64) {
	c.record(Call{Op: OpCopyBuffer, Src: src, Buffer: dst, Size: size})
}

// Ops lists the recorded operation names in order.
func (c *CommandBuffer) Ops() []string {
	ops := make([]string, len(c.Calls))
	for i, call := range c.Calls {
		ops[i] = call.Op
	}
	return ops
}

// Filter returns the recorded calls with the given operation, in order.
func (c *CommandBuffer) Filter(op string) []Call {
	var out []Call
	for _, call := range c.Calls {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// Draws returns Draw and DrawIndexed calls, in order.
func (c *CommandBuffer) Draws() []Call {
	var out []Call
	for _, call := range c.Calls {
		if call.Op == OpDraw || call.Op == OpDrawIndexed {
			out = append(out, call)
		}
	}
	return out
}

func framebufferName(generation int, index uint32) string {
	return fmt.Sprintf("framebuffer-%d-%d", generation, index)
}
