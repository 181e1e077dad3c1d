package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
)

// GPUDevice is the frame graph's view of the Vulkan backend.
type GPUDevice struct {
	context *VulkanContext
}

func (d *GPUDevice) GpuWaitForIdle() error {
	if res := vk.DeviceWaitIdle(d.context.Device.LogicalDevice); res != vk.Success {
		return resultError("failed to wait for device idle", res)
	}
	return nil
}

// GetSwapchainImage returns the image acquired for this frame, nil between
// frames or while the swapchain is being recreated.
func (d *GPUDevice) GetSwapchainImage() framegraph.Resource {
	c := d.context
	if c.Swapchain == nil || !c.ImageAcquired || c.RecreatingSwapchain {
		return nil
	}
	if int(c.ImageIndex) >= len(c.Swapchain.Images) {
		return nil
	}
	return c.Swapchain.Images[c.ImageIndex]
}

func (d *GPUDevice) GetFramesInFlightCount() uint32 {
	if d.context.Swapchain == nil {
		return 0
	}
	return d.context.Swapchain.MaxFramesInFlight
}

func (d *GPUDevice) NewTexture() framegraph.Resource {
	return &VulkanImage{context: d.context}
}
