package framegraph

import "github.com/spaghettifunk/anima-framegraph/engine/math"

// Resource is a concrete GPU texture owned by a backend.
type Resource interface {
	Create(device Device, desc TextureDescription) error
	ValidResource() bool
	GetLayout() Layout
	SetLayout(layout Layout)
	Destroy()
}

// Device is the part of a backend the frame graph needs.
type Device interface {
	// GpuWaitForIdle blocks until all submitted work has completed.
	GpuWaitForIdle() error
	// GetSwapchainImage returns the image that is presented this frame, or nil.
	GetSwapchainImage() Resource
	GetFramesInFlightCount() uint32
	// NewTexture returns an empty resource, Create materializes it.
	NewTexture() Resource
}

// ImageBarrier pairs a resolved barrier with the resource it applies to.
type ImageBarrier struct {
	Barrier
	Resource Resource
}

// RenderpassBegin is handed to CommandList.BeginRenderpass with the pass's
// attachments already resolved.
type RenderpassBegin struct {
	Pass         string
	Description  RenderpassDescription
	ColorTargets []Resource
	DepthTarget  Resource
	RenderArea   math.Rect2D
}

// CommandList records GPU commands. The frame graph only ever calls these
// methods and never builds backend specific structures.
type CommandList interface {
	BeginRenderpass(begin RenderpassBegin)
	EndRenderpass()
	PipelineBarrier(srcStage, dstStage PipelineStageFlags, barriers []ImageBarrier)
	SetViewport(viewport Viewport)
	SetScissor(scissor math.Rect2D)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	Dispatch(groupsX, groupsY, groupsZ uint32)
}
