package framegraph

import (
	"github.com/spaghettifunk/anima-framegraph/engine/math"
)

// SetupFunc declares the pass's resources and pipeline state through the Builder.
// It runs on the render actor while the frame is built.
type SetupFunc func(b *Builder) error

// ExecuteFunc records the pass's commands.
type ExecuteFunc func(fg *FrameGraph, cmd CommandList) error

// PostFunc runs after every pass of the frame executed. It must not create or
// mutate resources.
type PostFunc func(fg *FrameGraph) error

type TextureCreate struct {
	Handle      ResourceHandle
	Description TextureDescription
}

// Pass is a declared unit of GPU work. The closures are owned by the pass and
// dropped together with it when its slot is cleared.
type Pass struct {
	name  string
	queue QueueType

	setup   SetupFunc
	execute ExecuteFunc
	post    PostFunc

	// populated by setup
	creates           []TextureCreate
	reads             []ResourceHandle
	writes            []ResourceHandle
	depthStencilWrite ResourceHandle
	shader            *ShaderDescription
	pipeline          *PipelineDescription
	viewport          *Viewport
	scissor           *math.Rect2D
	renderpass        *RenderpassDescription
	swapchainTarget   bool

	// populated by PlaceBarriers
	incomingBarriers []BarrierBatch
}

func newPass(name string, queue QueueType, setup SetupFunc, execute ExecuteFunc, post PostFunc) *Pass {
	return &Pass{
		name:    name,
		queue:   queue,
		setup:   setup,
		execute: execute,
		post:    post,
	}
}

// reset drops everything setup and PlaceBarriers computed.
func (p *Pass) reset() {
	p.creates = nil
	p.reads = nil
	p.writes = nil
	p.depthStencilWrite = InvalidHandle
	p.shader = nil
	p.pipeline = nil
	p.viewport = nil
	p.scissor = nil
	p.renderpass = nil
	p.swapchainTarget = false
	p.incomingBarriers = nil
}

func (p *Pass) Name() string {
	return p.name
}

func (p *Pass) Queue() QueueType {
	return p.queue
}

func (p *Pass) Creates() []TextureCreate {
	return append([]TextureCreate(nil), p.creates...)
}

func (p *Pass) Reads() []ResourceHandle {
	return append([]ResourceHandle(nil), p.reads...)
}

func (p *Pass) Writes() []ResourceHandle {
	return append([]ResourceHandle(nil), p.writes...)
}

func (p *Pass) DepthStencilWrite() (ResourceHandle, bool) {
	return p.depthStencilWrite, p.depthStencilWrite.IsValid()
}

func (p *Pass) Shader() *ShaderDescription {
	return p.shader
}

func (p *Pass) Pipeline() *PipelineDescription {
	return p.pipeline
}

func (p *Pass) Viewport() *Viewport {
	return p.viewport
}

func (p *Pass) Scissor() *math.Rect2D {
	return p.scissor
}

func (p *Pass) Renderpass() *RenderpassDescription {
	return p.renderpass
}

func (p *Pass) RendersToSwapchain() bool {
	return p.swapchainTarget
}

// IncomingBarriers are the batches issued right before the pass executes.
func (p *Pass) IncomingBarriers() []BarrierBatch {
	return append([]BarrierBatch(nil), p.incomingBarriers...)
}
