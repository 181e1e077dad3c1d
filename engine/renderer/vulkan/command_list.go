package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
)

// CommandList encodes frame graph commands into the current frame's graphics
// command buffer.
type CommandList struct {
	context *VulkanContext
	buffer  *VulkanCommandBuffer
	current *VulkanRenderpass
	// Draws are dropped until BindPipeline is called.
	pipelineBound bool
	warnedDraw    bool
}

func newCommandList(context *VulkanContext, buffer *VulkanCommandBuffer) *CommandList {
	return &CommandList{context: context, buffer: buffer}
}

func (c *CommandList) BeginRenderpass(begin framegraph.RenderpassBegin) {
	colors := make([]*VulkanImage, 0, len(begin.ColorTargets))
	views := make([]vk.ImageView, 0, len(begin.ColorTargets)+1)
	for _, r := range begin.ColorTargets {
		img := r.(*VulkanImage)
		colors = append(colors, img)
		views = append(views, img.View)
	}
	var depth *VulkanImage
	if begin.DepthTarget != nil {
		depth = begin.DepthTarget.(*VulkanImage)
		views = append(views, depth.View)
	}
	if len(colors) > maxColorAttachments {
		core.LogError("pass %s: %d color attachments, at most %d supported", begin.Pass, len(colors), maxColorAttachments)
		return
	}

	rp, err := c.context.renderpasses.get(c.context, newRenderpassKey(begin.Description, colors, depth))
	if err != nil {
		core.LogError("pass %s: %s", begin.Pass, err)
		return
	}
	area := begin.RenderArea
	fb, err := c.context.framebuffers.get(c.context, rp, views, area.Extent.Width, area.Extent.Height)
	if err != nil {
		core.LogError("pass %s: %s", begin.Pass, err)
		return
	}
	rp.RenderpassBegin(c.buffer, fb.Handle, toVkRect(area), begin.Description)
	c.current = rp
}

func (c *CommandList) EndRenderpass() {
	if c.current == nil {
		return
	}
	c.current.RenderpassEnd(c.buffer)
	c.current = nil
}

func (c *CommandList) PipelineBarrier(srcStage, dstStage framegraph.PipelineStageFlags, barriers []framegraph.ImageBarrier) {
	if len(barriers) == 0 {
		return
	}
	native := make([]vk.ImageMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		img, ok := b.Resource.(*VulkanImage)
		if !ok || img.Handle == vk.NullImage {
			core.LogWarn("barrier on %s skipped, no image", b.Handle)
			continue
		}
		native = append(native, ToVkImageMemoryBarrier(b.Barrier, img.Handle))
	}
	if len(native) == 0 {
		return
	}
	vk.CmdPipelineBarrier(
		c.buffer.Handle,
		ToVkPipelineStageFlags(srcStage),
		ToVkPipelineStageFlags(dstStage),
		0,
		0, nil,
		0, nil,
		uint32(len(native)), native)
}

func (c *CommandList) SetViewport(viewport framegraph.Viewport) {
	vk.CmdSetViewport(c.buffer.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (c *CommandList) SetScissor(scissor math.Rect2D) {
	vk.CmdSetScissor(c.buffer.Handle, 0, 1, []vk.Rect2D{toVkRect(scissor)})
}

func (c *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if !c.canDraw() {
		return
	}
	vk.CmdDraw(c.buffer.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *CommandList) Dispatch(groupsX, groupsY, groupsZ uint32) {
	if !c.canDraw() {
		return
	}
	vk.CmdDispatch(c.buffer.Handle, groupsX, groupsY, groupsZ)
}

// BindPipeline binds a pipeline created by the caller. Execute callbacks reach it
// through a type assertion on the command list.
func (c *CommandList) BindPipeline(bindPoint vk.PipelineBindPoint, pipeline vk.Pipeline) {
	vk.CmdBindPipeline(c.buffer.Handle, bindPoint, pipeline)
	c.pipelineBound = true
}

func (c *CommandList) canDraw() bool {
	if c.pipelineBound {
		return true
	}
	if !c.warnedDraw {
		core.LogWarn("draw recorded without a bound pipeline, dropping")
		c.warnedDraw = true
	}
	return false
}

func toVkRect(r math.Rect2D) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}
}
