package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	fb := &VulkanFramebuffer{
		Attachments: append([]vk.ImageView(nil), attachments...),
		Renderpass:  renderpass,
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(fb.Attachments)),
		PAttachments:    fb.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var handle vk.Framebuffer
	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle); res != vk.Success {
		return nil, resultError("failed to create framebuffer", res)
	}
	fb.Handle = handle
	return fb, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
	}
	vfb.Attachments = nil
	vfb.Handle = vk.NullFramebuffer
	vfb.Renderpass = nil
}

type framebufferKey struct {
	renderpass    vk.RenderPass
	views         [maxColorAttachments + 1]vk.ImageView
	width, height uint32
}

// framebufferCache keeps one framebuffer per render pass and attachment set.
// Entries die with any of their image views.
type framebufferCache struct {
	mu           sync.Mutex
	framebuffers map[framebufferKey]*VulkanFramebuffer
}

func newFramebufferCache() *framebufferCache {
	return &framebufferCache{framebuffers: make(map[framebufferKey]*VulkanFramebuffer)}
}

func (c *framebufferCache) get(context *VulkanContext, rp *VulkanRenderpass, views []vk.ImageView, width, height uint32) (*VulkanFramebuffer, error) {
	key := framebufferKey{renderpass: rp.Handle, width: width, height: height}
	copy(key.views[:], views)

	c.mu.Lock()
	defer c.mu.Unlock()
	if fb, ok := c.framebuffers[key]; ok {
		return fb, nil
	}
	fb, err := FramebufferCreate(context, rp, width, height, views)
	if err != nil {
		return nil, err
	}
	c.framebuffers[key] = fb
	return fb, nil
}

// evict destroys every framebuffer that references view. The caller guarantees
// the GPU no longer uses them.
func (c *framebufferCache) evict(context *VulkanContext, view vk.ImageView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, fb := range c.framebuffers {
		for _, v := range fb.Attachments {
			if v == view {
				fb.Destroy(context)
				delete(c.framebuffers, key)
				n++
				break
			}
		}
	}
	if n > 0 {
		core.LogDebug("evicted %d framebuffers", n)
	}
}

func (c *framebufferCache) destroy(context *VulkanContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, fb := range c.framebuffers {
		fb.Destroy(context)
		delete(c.framebuffers, key)
	}
}
