package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
)

const maxColorAttachments = 8

// renderpassKey identifies a compatible render pass. Attachments enter and leave in
// their attachment layout: the frame graph barriers own every transition.
type renderpassKey struct {
	colorFormats [maxColorAttachments]vk.Format
	colorCount   int
	depthFormat  vk.Format
	colorLoad    vk.AttachmentLoadOp
	colorStore   vk.AttachmentStoreOp
	depthLoad    vk.AttachmentLoadOp
	depthStore   vk.AttachmentStoreOp
}

func newRenderpassKey(desc framegraph.RenderpassDescription, colors []*VulkanImage, depth *VulkanImage) renderpassKey {
	key := renderpassKey{
		colorCount:  len(colors),
		depthFormat: vk.FormatUndefined,
		colorLoad:   ToVkLoadOp(desc.ColorLoad),
		colorStore:  ToVkStoreOp(desc.ColorStore),
		depthLoad:   ToVkLoadOp(desc.DepthLoad),
		depthStore:  ToVkStoreOp(desc.DepthStore),
	}
	for i, c := range colors {
		key.colorFormats[i] = c.Format
	}
	if depth != nil {
		key.depthFormat = depth.Format
	}
	return key
}

type VulkanRenderpass struct {
	Handle vk.RenderPass
	key    renderpassKey
}

func RenderpassCreate(context *VulkanContext, key renderpassKey) (*VulkanRenderpass, error) {
	attachments := make([]vk.AttachmentDescription, 0, key.colorCount+1)
	colorRefs := make([]vk.AttachmentReference, 0, key.colorCount)

	for i := 0; i < key.colorCount; i++ {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         key.colorFormats[i],
			Samples:        vk.SampleCount1Bit,
			LoadOp:         key.colorLoad,
			StoreOp:        key.colorStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}

	if key.depthFormat != vk.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         key.depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         key.depthLoad,
			StoreOp:        key.depthStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		depthRef := vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		subpass.PDepthStencilAttachment = &depthRef
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var handle vk.RenderPass
	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle); res != vk.Success {
		return nil, resultError("failed to create render pass", res)
	}
	return &VulkanRenderpass{Handle: handle, key: key}, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, framebuffer vk.Framebuffer, area vk.Rect2D, desc framegraph.RenderpassDescription) {
	var clearValues []vk.ClearValue
	for i := 0; i < vr.key.colorCount; i++ {
		var cv vk.ClearValue
		cv.SetColor([]float32{desc.ClearColour.X, desc.ClearColour.Y, desc.ClearColour.Z, desc.ClearColour.W})
		clearValues = append(clearValues, cv)
	}
	if vr.key.depthFormat != vk.FormatUndefined {
		var cv vk.ClearValue
		cv.SetDepthStencil(desc.ClearDepth, desc.ClearStencil)
		clearValues = append(clearValues, cv)
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      vr.Handle,
		Framebuffer:     framebuffer,
		RenderArea:      area,
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}

// renderpassCache creates render passes on first use and keeps them until shutdown.
type renderpassCache struct {
	mu     sync.Mutex
	passes map[renderpassKey]*VulkanRenderpass
}

func newRenderpassCache() *renderpassCache {
	return &renderpassCache{passes: make(map[renderpassKey]*VulkanRenderpass)}
}

func (c *renderpassCache) get(context *VulkanContext, key renderpassKey) (*VulkanRenderpass, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rp, ok := c.passes[key]; ok {
		return rp, nil
	}
	rp, err := RenderpassCreate(context, key)
	if err != nil {
		return nil, err
	}
	c.passes[key] = rp
	core.LogDebug("render pass created (%d color, depth %v)", key.colorCount, key.depthFormat != vk.FormatUndefined)
	return rp, nil
}

func (c *renderpassCache) destroy(context *VulkanContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, rp := range c.passes {
		rp.RenderpassDestroy(context)
		delete(c.passes, key)
	}
}
